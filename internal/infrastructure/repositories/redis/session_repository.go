package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/ports"
)

const (
	presenceTTL = 2 * time.Minute
	pendingTTL  = 5 * time.Minute
)

// SessionRepository is the Redis-backed session registry, used when the
// relay runs as more than one node. Presence keys carry a TTL so a
// crashed relay node does not leave ghosts; pending message queues are
// Redis lists, preserving enqueue order.
type SessionRepository struct {
	client        *redis.Client
	pendingBuffer int64
}

// NewSessionRepository creates a Redis-backed registry.
func NewSessionRepository(client *redis.Client, pendingBuffer int) *SessionRepository {
	if pendingBuffer <= 0 {
		pendingBuffer = 128
	}
	return &SessionRepository{client: client, pendingBuffer: int64(pendingBuffer)}
}

var _ ports.SessionRepository = (*SessionRepository)(nil)

func presenceKey(sessionID domain.SessionID, participant domain.ParticipantID) string {
	return fmt.Sprintf("signal:present:%s:%s", sessionID, participant)
}

func pendingKey(sessionID domain.SessionID, to domain.ParticipantID) string {
	return fmt.Sprintf("signal:pending:%s:%s", sessionID, to)
}

func (r *SessionRepository) Register(ctx context.Context, sessionID domain.SessionID, participant domain.ParticipantID) error {
	return r.client.Set(ctx, presenceKey(sessionID, participant), "1", presenceTTL).Err()
}

func (r *SessionRepository) Unregister(ctx context.Context, sessionID domain.SessionID, participant domain.ParticipantID) error {
	return r.client.Del(ctx, presenceKey(sessionID, participant)).Err()
}

func (r *SessionRepository) IsPresent(ctx context.Context, sessionID domain.SessionID, participant domain.ParticipantID) (bool, error) {
	n, err := r.client.Exists(ctx, presenceKey(sessionID, participant)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SessionRepository) EnqueuePending(ctx context.Context, msg *domain.SignalMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal signal message: %w", err)
	}

	key := pendingKey(msg.SessionID, msg.To)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	// Bounded buffer: keep only the newest messages.
	pipe.LTrim(ctx, key, -r.pendingBuffer, -1)
	pipe.Expire(ctx, key, pendingTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *SessionRepository) DrainPending(ctx context.Context, sessionID domain.SessionID, to domain.ParticipantID) ([]*domain.SignalMessage, error) {
	key := pendingKey(sessionID, to)

	pipe := r.client.TxPipeline()
	items := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	raw, err := items.Result()
	if err != nil {
		return nil, err
	}

	msgs := make([]*domain.SignalMessage, 0, len(raw))
	for _, item := range raw {
		var msg domain.SignalMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		msgs = append(msgs, &msg)
	}
	return msgs, nil
}
