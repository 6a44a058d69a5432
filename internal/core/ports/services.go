package ports

import (
	"context"
	"time"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
)

// SignalingChannel relays offer/answer/ICE messages between the two
// participants of one session. Messages arrive in the order sent per
// sender; cross-sender ordering is not guaranteed. Cleanup is idempotent.
type SignalingChannel interface {
	SendOffer(ctx context.Context, sdp string) error
	SendAnswer(ctx context.Context, sdp string) error
	SendICECandidate(ctx context.Context, candidate string) error

	OnRemoteOffer(fn func(sdp string))
	OnRemoteAnswer(fn func(sdp string))
	OnRemoteICECandidate(fn func(candidate string))

	Cleanup() error
}

// SignalingDialer opens a signaling channel for a session. Open fails
// with domain.ErrSignalingUnavailable when the relay cannot be reached.
type SignalingDialer interface {
	Open(ctx context.Context, session *domain.Session) (SignalingChannel, error)
}

// StatsSource produces one QualityMetrics snapshot per call. A failed
// sample returns an error and is treated by the monitor as missed.
type StatsSource interface {
	Sample(ctx context.Context) (domain.QualityMetrics, error)
}

// EncodingApplier applies outgoing video encoding ceilings on the live
// sender without renegotiation.
type EncodingApplier interface {
	ApplyEncodingParams(ctx context.Context, params domain.EncodingParams) error
}

// MediaSession owns one peer-to-peer media connection. Exactly one
// instance exists per session. Duplicate remote descriptions are applied
// as no-ops; candidates arriving before the remote description are queued
// and applied once it is set.
type MediaSession interface {
	// Negotiation.
	CreateOffer(ctx context.Context) (sdp string, err error)
	AcceptOffer(ctx context.Context, sdp string) (answer string, err error)
	AcceptAnswer(ctx context.Context, sdp string) error
	AddRemoteCandidate(candidate string) error
	OnLocalCandidate(fn func(candidate string))

	// Lifecycle.
	State() domain.ConnectionState
	OnStateChange(fn func(domain.ConnectionState))
	Close() error

	// Local media.
	AttachLocalAudio(track LocalTrack) error
	AttachLocalVideo(track LocalTrack) error
	ReplaceVideoTrack(track LocalTrack) error
	DetachLocalTracks() error

	StatsSource
	EncodingApplier
}

// MediaFactory constructs the media session for one call, using the
// cached traversal server list.
type MediaFactory interface {
	NewMediaSession(ctx context.Context, session *domain.Session) (MediaSession, error)
}

// LocalTrack abstracts a local media track so services can be driven in
// tests without a real capture device.
type LocalTrack interface {
	ID() string
	Kind() string // "audio" or "video"
}

// AudioFrame is one capture read from the local audio track.
type AudioFrame struct {
	Data     []byte
	Duration time.Duration
}

// AudioSource reads successive frames from the local audio track.
// ReadFrame blocks until a frame is available, the source is exhausted
// (io.EOF) or the context is cancelled.
type AudioSource interface {
	ReadFrame(ctx context.Context) (AudioFrame, error)
}

// ChunkTransmitter delivers one audio chunk to the transcription backend.
// Delivery is fire-and-forget; a failed send is dropped by the caller.
type ChunkTransmitter interface {
	Transmit(ctx context.Context, chunk domain.AudioChunk) error
}

// TranscriptSource fetches the full current segment set for a
// consultation. The backend is the source of truth for final vs partial.
type TranscriptSource interface {
	FetchSegments(ctx context.Context, id domain.ConsultationID) ([]domain.TranscriptSegment, error)
}
