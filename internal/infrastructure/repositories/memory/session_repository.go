package memory

import (
	"context"
	"sync"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/ports"
)

type sessionKey struct {
	session     domain.SessionID
	participant domain.ParticipantID
}

// SessionRepository is the in-memory session registry used by a
// single-node relay.
type SessionRepository struct {
	mu            sync.RWMutex
	present       map[sessionKey]bool
	pending       map[sessionKey][]*domain.SignalMessage
	pendingBuffer int
}

// NewSessionRepository creates an in-memory registry. pendingBuffer
// bounds the number of messages buffered per absent participant.
func NewSessionRepository(pendingBuffer int) *SessionRepository {
	if pendingBuffer <= 0 {
		pendingBuffer = 128
	}
	return &SessionRepository{
		present:       make(map[sessionKey]bool),
		pending:       make(map[sessionKey][]*domain.SignalMessage),
		pendingBuffer: pendingBuffer,
	}
}

var _ ports.SessionRepository = (*SessionRepository)(nil)

func (r *SessionRepository) Register(_ context.Context, sessionID domain.SessionID, participant domain.ParticipantID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.present[sessionKey{sessionID, participant}] = true
	return nil
}

func (r *SessionRepository) Unregister(_ context.Context, sessionID domain.SessionID, participant domain.ParticipantID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.present, sessionKey{sessionID, participant})
	return nil
}

func (r *SessionRepository) IsPresent(_ context.Context, sessionID domain.SessionID, participant domain.ParticipantID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.present[sessionKey{sessionID, participant}], nil
}

func (r *SessionRepository) EnqueuePending(_ context.Context, msg *domain.SignalMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sessionKey{msg.SessionID, msg.To}
	queue := r.pending[key]
	if len(queue) >= r.pendingBuffer {
		// Bounded buffer: evict the oldest message.
		queue = queue[1:]
	}
	r.pending[key] = append(queue, msg)
	return nil
}

func (r *SessionRepository) DrainPending(_ context.Context, sessionID domain.SessionID, to domain.ParticipantID) ([]*domain.SignalMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sessionKey{sessionID, to}
	queue := r.pending[key]
	delete(r.pending, key)
	return queue, nil
}
