package domain

import "errors"

var (
	ErrSignalingUnavailable        = errors.New("signaling relay unavailable")
	ErrMediaAcquisitionFailed      = errors.New("media acquisition failed")
	ErrPeerConnectionFailed        = errors.New("peer connection failed")
	ErrChunkTransmissionFailed     = errors.New("audio chunk transmission failed")
	ErrTranscriptPollFailed        = errors.New("transcript poll failed")
	ErrTraversalServersUnavailable = errors.New("traversal servers unavailable")
	ErrSessionNotFound             = errors.New("session not found")
	ErrParticipantNotFound         = errors.New("participant not found")
)
