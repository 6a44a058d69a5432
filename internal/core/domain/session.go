package domain

import "time"

type SessionID string
type ParticipantID string
type ConsultationID string

// Session identifies one telehealth call. Immutable for the call's lifetime.
type Session struct {
	ID                SessionID
	LocalParticipant  ParticipantID
	RemoteParticipant ParticipantID
	ConsultationID    ConsultationID
	StartedAt         time.Time
}

// IsInitiator reports whether the local participant initiates negotiation.
// The lexicographically smaller participant ID always initiates, so both
// ends agree without an extra negotiation round.
func (s *Session) IsInitiator() bool {
	return s.LocalParticipant < s.RemoteParticipant
}

// Initiator returns the participant that sends the offer for this session.
func Initiator(a, b ParticipantID) ParticipantID {
	if a < b {
		return a
	}
	return b
}

// ConnectionState models the lifecycle of the peer media connection.
// Transitions are forward-only except the disconnected -> connected
// recovery edge; closed is terminal.
type ConnectionState int

const (
	ConnectionNew ConnectionState = iota
	ConnectionConnecting
	ConnectionConnected
	ConnectionDisconnected
	ConnectionFailed
	ConnectionClosed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionNew:
		return "new"
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionFailed:
		return "failed"
	case ConnectionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CanTransition reports whether moving from s to next is a legal state
// machine edge. Recovery from disconnected back to connected is the only
// backward edge.
func (s ConnectionState) CanTransition(next ConnectionState) bool {
	if s == ConnectionClosed {
		return false
	}
	if s == next {
		return false
	}
	if s == ConnectionDisconnected && next == ConnectionConnected {
		return true
	}
	if next == ConnectionClosed {
		return true
	}
	return next > s
}
