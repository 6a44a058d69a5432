package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/ports"
)

const (
	// DefaultPollInterval is how often the full segment set is refetched.
	DefaultPollInterval = 2 * time.Second

	// DefaultDegradedThreshold is the number of consecutive poll failures
	// after which the degraded-mode indicator is raised.
	DefaultDegradedThreshold = 5
)

// TranscriptPoller periodically fetches the full segment set for the
// consultation and merges it into one live buffer. A failed poll keeps
// the last good buffer and retries on the next tick; the transcript is
// never cleared on a transient failure.
type TranscriptPoller struct {
	source            ports.TranscriptSource
	consultationID    domain.ConsultationID
	interval          time.Duration
	degradedThreshold int
	logger            *zap.SugaredLogger

	mu         sync.Mutex
	buffer     domain.LiveTranscript
	failures   int
	degraded   bool
	onUpdate   []func(domain.LiveTranscript)
	onDegraded []func(bool)
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewTranscriptPoller creates a poller. Zero interval and threshold
// select the defaults.
func NewTranscriptPoller(source ports.TranscriptSource, consultationID domain.ConsultationID, interval time.Duration, degradedThreshold int, logger *zap.SugaredLogger) *TranscriptPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if degradedThreshold <= 0 {
		degradedThreshold = DefaultDegradedThreshold
	}
	return &TranscriptPoller{
		source:            source,
		consultationID:    consultationID,
		interval:          interval,
		degradedThreshold: degradedThreshold,
		logger:            logger,
	}
}

// OnUpdate registers a subscriber for merged buffer changes.
func (p *TranscriptPoller) OnUpdate(fn func(domain.LiveTranscript)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onUpdate = append(p.onUpdate, fn)
}

// OnDegraded registers a subscriber for the degraded-mode indicator.
// It fires with true after the consecutive-failure threshold is crossed
// and with false on the next successful poll.
func (p *TranscriptPoller) OnDegraded(fn func(bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDegraded = append(p.onDegraded, fn)
}

// Buffer returns the last successfully merged transcript.
func (p *TranscriptPoller) Buffer() domain.LiveTranscript {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer
}

// Start begins polling. No-op if already running.
func (p *TranscriptPoller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx)
}

// Stop halts polling without waiting for an in-flight poll; its result
// is discarded. Safe to call multiple times or before Start.
func (p *TranscriptPoller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (p *TranscriptPoller) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// PollOnce performs a single fetch-and-merge cycle.
func (p *TranscriptPoller) pollOnce(ctx context.Context) {
	segments, err := p.source.FetchSegments(ctx, p.consultationID)
	if ctx.Err() != nil {
		// Teardown began while the poll was in flight; ignore the result.
		return
	}
	if err != nil {
		p.recordFailure(err)
		return
	}

	merged := domain.MergeSegments(segments)

	p.mu.Lock()
	p.failures = 0
	wasDegraded := p.degraded
	p.degraded = false
	changed := merged != p.buffer
	p.buffer = merged
	updateFns := append([]func(domain.LiveTranscript){}, p.onUpdate...)
	degradedFns := append([]func(bool){}, p.onDegraded...)
	p.mu.Unlock()

	if wasDegraded {
		for _, fn := range degradedFns {
			fn(false)
		}
	}
	if changed {
		for _, fn := range updateFns {
			fn(merged)
		}
	}
}

func (p *TranscriptPoller) recordFailure(err error) {
	p.mu.Lock()
	p.failures++
	crossed := p.failures == p.degradedThreshold
	if crossed {
		p.degraded = true
	}
	degradedFns := append([]func(bool){}, p.onDegraded...)
	failures := p.failures
	p.mu.Unlock()

	p.logger.Warnw("transcript poll failed, keeping last buffer",
		"consultation_id", p.consultationID,
		"consecutive_failures", failures,
		"error", err,
	)

	if crossed {
		for _, fn := range degradedFns {
			fn(true)
		}
	}
}
