package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/ports"
)

// debouncer tracks the raw classification stream and decides when a level
// change is confirmed. A new level must persist for `persistence`
// consecutive samples before it is reported; samples matching the already
// reported level reset any pending candidate.
type debouncer struct {
	persistence int
	reported    domain.NetworkQuality
	candidate   domain.NetworkQuality
	streak      int
}

func newDebouncer(persistence int) *debouncer {
	if persistence < 1 {
		persistence = 1
	}
	return &debouncer{
		persistence: persistence,
		reported:    domain.QualityUnknown,
		candidate:   domain.QualityUnknown,
	}
}

// observe feeds one raw sample and reports whether the debounced level
// changed. Consecutive confirmations of the same level never fire twice.
func (d *debouncer) observe(level domain.NetworkQuality) (domain.NetworkQuality, bool) {
	if level == d.reported {
		d.candidate = d.reported
		d.streak = 0
		return d.reported, false
	}
	if level == d.candidate {
		d.streak++
	} else {
		d.candidate = level
		d.streak = 1
	}
	if d.streak >= d.persistence {
		d.reported = level
		d.streak = 0
		return d.reported, true
	}
	return d.reported, false
}

// QualityMonitor samples connection statistics on a fixed interval,
// classifies them through the policy and notifies subscribers on
// debounced level changes only.
type QualityMonitor struct {
	stats       ports.StatsSource
	policy      *QualityPolicy
	interval    time.Duration
	persistence int
	logger      *zap.SugaredLogger

	mu          sync.Mutex
	debounce    *debouncer
	subscribers []func(domain.NetworkQuality)
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewQualityMonitor creates a monitor. Interval defaults to 3s and
// persistence to 2 samples when zero values are given.
func NewQualityMonitor(stats ports.StatsSource, policy *QualityPolicy, interval time.Duration, persistence int, logger *zap.SugaredLogger) *QualityMonitor {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if persistence <= 0 {
		persistence = 2
	}
	return &QualityMonitor{
		stats:       stats,
		policy:      policy,
		interval:    interval,
		persistence: persistence,
		logger:      logger,
		debounce:    newDebouncer(persistence),
	}
}

// OnQualityChange registers a subscriber. Subscribers only ever see a
// level different from the previously notified one.
func (m *QualityMonitor) OnQualityChange(fn func(domain.NetworkQuality)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Current returns the last debounced level.
func (m *QualityMonitor) Current() domain.NetworkQuality {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debounce.reported
}

// Start begins sampling. Calling Start on a running monitor is a no-op.
func (m *QualityMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx)
}

// Stop halts sampling. Safe to call multiple times or before Start.
func (m *QualityMonitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (m *QualityMonitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sampleOnce(ctx)
		}
	}
}

// sampleOnce takes one sample. A failed stats retrieval is a missed
// sample: no downgrade, retry on the next tick.
func (m *QualityMonitor) sampleOnce(ctx context.Context) {
	metrics, err := m.stats.Sample(ctx)
	if err != nil {
		m.logger.Debugw("stats sample missed", "error", err)
		return
	}

	level := m.policy.Classify(metrics)

	m.mu.Lock()
	reported, changed := m.debounce.observe(level)
	subscribers := make([]func(domain.NetworkQuality), len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()

	if !changed {
		return
	}

	m.logger.Infow("network quality changed",
		"level", reported.String(),
		"rtt", metrics.RTT,
		"packet_loss", metrics.PacketLoss,
	)

	for _, fn := range subscribers {
		fn(reported)
	}
}
