package services

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/ports"
)

// DefaultEncodingLadder maps each quality level to outgoing video
// encoding ceilings. The same mapping is used for downgrades and
// upgrades; there is no separate recovery curve.
func DefaultEncodingLadder() map[domain.NetworkQuality]domain.EncodingParams {
	return map[domain.NetworkQuality]domain.EncodingParams{
		domain.QualityExcellent: {MaxWidth: 1280, MaxHeight: 720, MaxFramerate: 30, MaxBitrate: 2000},
		domain.QualityGood:      {MaxWidth: 1280, MaxHeight: 720, MaxFramerate: 24, MaxBitrate: 1200},
		domain.QualityFair:      {MaxWidth: 640, MaxHeight: 480, MaxFramerate: 20, MaxBitrate: 600},
		domain.QualityPoor:      {MaxWidth: 320, MaxHeight: 240, MaxFramerate: 15, MaxBitrate: 250},
	}
}

// AdaptiveController translates debounced quality-level changes into
// encoding parameter adjustments on the live sender. Adjustments are
// serialized: if a new level arrives while a previous adjustment is
// still being applied, the newer request wins and the stale one is
// discarded.
type AdaptiveController struct {
	applier ports.EncodingApplier
	ladder  map[domain.NetworkQuality]domain.EncodingParams
	logger  *zap.SugaredLogger

	// pending holds at most the latest requested level.
	pending chan domain.NetworkQuality

	mu      sync.Mutex
	current domain.NetworkQuality
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewAdaptiveController creates a controller using the given ladder, or
// the default ladder when nil.
func NewAdaptiveController(applier ports.EncodingApplier, ladder map[domain.NetworkQuality]domain.EncodingParams, logger *zap.SugaredLogger) *AdaptiveController {
	if ladder == nil {
		ladder = DefaultEncodingLadder()
	}
	return &AdaptiveController{
		applier: applier,
		ladder:  ladder,
		logger:  logger,
		pending: make(chan domain.NetworkQuality, 1),
	}
}

// Start launches the apply worker. No-op if already running.
func (c *AdaptiveController) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Stop halts the worker. Safe to call multiple times or before Start.
func (c *AdaptiveController) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// HandleQualityChange is the monitor subscription entry point. It never
// blocks: a still-queued stale request is replaced by the newer level.
func (c *AdaptiveController) HandleQualityChange(level domain.NetworkQuality) {
	for {
		select {
		case c.pending <- level:
			return
		default:
			select {
			case <-c.pending:
			default:
			}
		}
	}
}

// Current returns the last successfully applied level.
func (c *AdaptiveController) Current() domain.NetworkQuality {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *AdaptiveController) run(ctx context.Context) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case level := <-c.pending:
			c.apply(ctx, level)
		}
	}
}

func (c *AdaptiveController) apply(ctx context.Context, level domain.NetworkQuality) {
	params, ok := c.ladder[level]
	if !ok {
		// Unknown has no ladder entry; leave encodings as they are.
		return
	}

	if err := c.applier.ApplyEncodingParams(ctx, params); err != nil {
		c.logger.Warnw("failed to apply encoding parameters",
			"level", level.String(),
			"max_bitrate", params.MaxBitrate,
			"error", err,
		)
		return
	}

	c.mu.Lock()
	c.current = level
	c.mu.Unlock()

	c.logger.Infow("encoding parameters applied",
		"level", level.String(),
		"max_width", params.MaxWidth,
		"max_height", params.MaxHeight,
		"max_framerate", params.MaxFramerate,
		"max_bitrate", params.MaxBitrate,
	)
}
