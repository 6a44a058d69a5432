package ports

import (
	"context"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
)

// SessionRepository is the relay-side registry of signaling participants.
// It tracks which participants of a session are currently attached and
// buffers messages sent before the remote participant has joined so that
// per-sender FIFO ordering survives a late join.
type SessionRepository interface {
	Register(ctx context.Context, sessionID domain.SessionID, participant domain.ParticipantID) error
	Unregister(ctx context.Context, sessionID domain.SessionID, participant domain.ParticipantID) error
	IsPresent(ctx context.Context, sessionID domain.SessionID, participant domain.ParticipantID) (bool, error)

	// EnqueuePending buffers a message for a participant that has not yet
	// joined. The buffer is bounded; the oldest message is evicted when full.
	EnqueuePending(ctx context.Context, msg *domain.SignalMessage) error

	// DrainPending returns and clears all buffered messages addressed to
	// the participant, in the order they were enqueued per sender.
	DrainPending(ctx context.Context, sessionID domain.SessionID, to domain.ParticipantID) ([]*domain.SignalMessage, error)
}
