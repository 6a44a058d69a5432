package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/ports"
)

const (
	// DefaultChunkDuration is the target duration of one audio chunk.
	// Shorter chunks raise per-chunk overhead, longer ones raise
	// transcription latency.
	DefaultChunkDuration = 250 * time.Millisecond

	minChunkDuration = 200 * time.Millisecond
	maxChunkDuration = 300 * time.Millisecond

	defaultSendTimeout = 2 * time.Second
)

// AudioStreamer slices the local audio track into bounded-duration
// chunks and hands each to the transmitter, independent of the peer
// connection. Transmission is fire-and-forget: a failed send is logged
// and the chunk is dropped. Capture continues across transient peer
// disruption; only Stop halts it.
type AudioStreamer struct {
	session       *domain.Session
	source        ports.AudioSource
	transmitter   ports.ChunkTransmitter
	chunkDuration time.Duration
	sendTimeout   time.Duration
	logger        *zap.SugaredLogger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	nextIndex uint64

	sends sync.WaitGroup
}

// NewAudioStreamer creates a streamer. Chunk duration is clamped to the
// acceptable 200-300ms range; zero selects the default.
func NewAudioStreamer(session *domain.Session, source ports.AudioSource, transmitter ports.ChunkTransmitter, chunkDuration time.Duration, logger *zap.SugaredLogger) *AudioStreamer {
	if chunkDuration <= 0 {
		chunkDuration = DefaultChunkDuration
	}
	if chunkDuration < minChunkDuration {
		chunkDuration = minChunkDuration
	}
	if chunkDuration > maxChunkDuration {
		chunkDuration = maxChunkDuration
	}
	return &AudioStreamer{
		session:       session,
		source:        source,
		transmitter:   transmitter,
		chunkDuration: chunkDuration,
		sendTimeout:   defaultSendTimeout,
		logger:        logger,
	}
}

// Start begins capture in its own goroutine. Calling Start on a running
// streamer is a no-op.
func (s *AudioStreamer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Stop halts capture and waits for in-flight sends. Safe to call when
// never started or already stopped.
func (s *AudioStreamer) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	s.sends.Wait()
}

func (s *AudioStreamer) run(ctx context.Context) {
	defer close(s.done)

	var buf []byte
	var buffered time.Duration

	flush := func() {
		if len(buf) == 0 {
			return
		}
		s.emit(ctx, buf, buffered)
		buf = nil
		buffered = 0
	}

	for {
		frame, err := s.source.ReadFrame(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.logger.Warnw("audio frame read failed", "error", err)
			}
			flush()
			return
		}
		if len(frame.Data) == 0 {
			continue
		}

		// Never let a chunk grow past the configured duration.
		if buffered > 0 && buffered+frame.Duration > s.chunkDuration {
			flush()
		}
		buf = append(buf, frame.Data...)
		buffered += frame.Duration
		if buffered >= s.chunkDuration {
			flush()
		}
	}
}

// emit hands one chunk to the transmitter. Indices are strictly
// increasing; a failed send drops the chunk without retry, leaving a gap.
func (s *AudioStreamer) emit(ctx context.Context, data []byte, duration time.Duration) {
	s.mu.Lock()
	index := s.nextIndex
	s.nextIndex++
	s.mu.Unlock()

	chunk := domain.AudioChunk{
		SessionID:      s.session.ID,
		ConsultationID: s.session.ConsultationID,
		Index:          index,
		CapturedAt:     time.Now(),
		Duration:       duration,
		Data:           data,
	}

	s.sends.Add(1)
	go func() {
		defer s.sends.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sendTimeout)
		defer cancel()
		if err := s.transmitter.Transmit(sendCtx, chunk); err != nil {
			s.logger.Warnw("audio chunk dropped",
				"session_id", s.session.ID,
				"chunk_index", chunk.Index,
				"error", err,
			)
		}
	}()
}
