package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/ports"
	"github.com/dowhatkennydoes/distancedoc-sub000/pkg/logger"
)

// frameSource serves a fixed number of equal frames, then EOF.
type frameSource struct {
	frameDuration time.Duration
	frameBytes    int
	remaining     int
}

func (f *frameSource) ReadFrame(ctx context.Context) (ports.AudioFrame, error) {
	if err := ctx.Err(); err != nil {
		return ports.AudioFrame{}, err
	}
	if f.remaining <= 0 {
		return ports.AudioFrame{}, io.EOF
	}
	f.remaining--
	return ports.AudioFrame{
		Data:     make([]byte, f.frameBytes),
		Duration: f.frameDuration,
	}, nil
}

// chunkRecorder captures transmitted chunks; optionally fails some.
type chunkRecorder struct {
	mu      sync.Mutex
	chunks  []domain.AudioChunk
	failIdx map[uint64]bool
}

func (r *chunkRecorder) Transmit(ctx context.Context, chunk domain.AudioChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failIdx[chunk.Index] {
		return errors.New("backend unreachable")
	}
	r.chunks = append(r.chunks, chunk)
	return nil
}

func (r *chunkRecorder) all() []domain.AudioChunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AudioChunk, len(r.chunks))
	copy(out, r.chunks)
	return out
}

func testSession() *domain.Session {
	return &domain.Session{
		ID:                "session_1",
		LocalParticipant:  "alice",
		RemoteParticipant: "bob",
		ConsultationID:    "consult_1",
	}
}

func TestStreamerChunksTwoSecondsInto250msChunks(t *testing.T) {
	// 80 frames of 25ms = 2s of audio.
	source := &frameSource{frameDuration: 25 * time.Millisecond, frameBytes: 640, remaining: 80}
	recorder := &chunkRecorder{}
	s := NewAudioStreamer(testSession(), source, recorder, 250*time.Millisecond, logger.Nop())

	s.Start(context.Background())
	require.Eventually(t, func() bool {
		return len(recorder.all()) >= 8
	}, 2*time.Second, 10*time.Millisecond)
	s.Stop()

	chunks := recorder.all()
	require.Len(t, chunks, 8)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, chunk.Duration, 250*time.Millisecond)
		assert.Equal(t, domain.SessionID("session_1"), chunk.SessionID)
		assert.Equal(t, domain.ConsultationID("consult_1"), chunk.ConsultationID)
		assert.NotEmpty(t, chunk.Data)
	}
}

func TestStreamerIndicesStrictlyIncrease(t *testing.T) {
	source := &frameSource{frameDuration: 50 * time.Millisecond, frameBytes: 100, remaining: 30}
	recorder := &chunkRecorder{}
	s := NewAudioStreamer(testSession(), source, recorder, 250*time.Millisecond, logger.Nop())

	s.Start(context.Background())
	require.Eventually(t, func() bool {
		return len(recorder.all()) == 6
	}, 2*time.Second, 10*time.Millisecond)
	s.Stop()

	indices := make(map[uint64]bool)
	var max uint64
	for _, chunk := range recorder.all() {
		assert.False(t, indices[chunk.Index], "duplicate index %d", chunk.Index)
		indices[chunk.Index] = true
		if chunk.Index > max {
			max = chunk.Index
		}
	}
	assert.Equal(t, uint64(5), max)
}

func TestStreamerFailedSendLeavesGap(t *testing.T) {
	source := &frameSource{frameDuration: 250 * time.Millisecond, frameBytes: 100, remaining: 4}
	recorder := &chunkRecorder{failIdx: map[uint64]bool{1: true}}
	s := NewAudioStreamer(testSession(), source, recorder, 250*time.Millisecond, logger.Nop())

	s.Start(context.Background())
	require.Eventually(t, func() bool {
		return len(recorder.all()) == 3
	}, 2*time.Second, 10*time.Millisecond)
	s.Stop()

	// Chunk 1 was dropped without retry; indices 0, 2, 3 arrived.
	got := map[uint64]bool{}
	for _, chunk := range recorder.all() {
		got[chunk.Index] = true
	}
	assert.Equal(t, map[uint64]bool{0: true, 2: true, 3: true}, got)
}

func TestStreamerStopIdempotent(t *testing.T) {
	source := &frameSource{frameDuration: 20 * time.Millisecond, frameBytes: 10, remaining: 1000000}
	s := NewAudioStreamer(testSession(), source, &chunkRecorder{}, 250*time.Millisecond, logger.Nop())

	s.Stop() // before Start

	s.Start(context.Background())
	s.Stop()
	s.Stop()
	s.Stop()
}

func TestStreamerClampsChunkDuration(t *testing.T) {
	s := NewAudioStreamer(testSession(), &frameSource{}, &chunkRecorder{}, 50*time.Millisecond, logger.Nop())
	assert.Equal(t, 200*time.Millisecond, s.chunkDuration)

	s = NewAudioStreamer(testSession(), &frameSource{}, &chunkRecorder{}, time.Second, logger.Nop())
	assert.Equal(t, 300*time.Millisecond, s.chunkDuration)

	s = NewAudioStreamer(testSession(), &frameSource{}, &chunkRecorder{}, 0, logger.Nop())
	assert.Equal(t, DefaultChunkDuration, s.chunkDuration)
}
