package webrtc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
)

// Video RTP clock rate, used to convert interarrival jitter to wall time.
const videoClockRate = 90000.0

var errNoStats = errors.New("no connection statistics available yet")

// statsCollector derives link health from RTCP feedback and the ICE
// candidate pair. Receiver reports carry fraction lost and jitter, REMB
// carries the receiver's uplink estimate, and the nominated pair carries
// round trip time.
type statsCollector struct {
	pc     *webrtc.PeerConnection
	logger *zap.SugaredLogger

	mu           sync.RWMutex
	fractionLost float64
	jitter       time.Duration
	uplinkKbps   int
	hasFeedback  bool

	done      chan struct{}
	closeOnce sync.Once
}

func newStatsCollector(pc *webrtc.PeerConnection, logger *zap.SugaredLogger) *statsCollector {
	return &statsCollector{pc: pc, logger: logger, done: make(chan struct{})}
}

// watchSender starts consuming RTCP feedback for one outgoing track.
func (c *statsCollector) watchSender(sender *webrtc.RTPSender) {
	go c.readRTCP(sender)
}

func (c *statsCollector) readRTCP(sender *webrtc.RTPSender) {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		packets, _, err := sender.ReadRTCP()
		if err != nil {
			// The sender is gone when the connection closes or the
			// track is replaced; this goroutine ends with it.
			return
		}
		for _, packet := range packets {
			switch p := packet.(type) {
			case *rtcp.ReceiverReport:
				for _, report := range p.Reports {
					c.recordReception(report)
				}
			case *rtcp.ReceiverEstimatedMaximumBitrate:
				c.recordREMB(p.Bitrate)
			}
		}
	}
}

func (c *statsCollector) recordReception(report rtcp.ReceptionReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fractionLost = float64(report.FractionLost) / 256.0
	c.jitter = time.Duration(float64(report.Jitter) / videoClockRate * float64(time.Second))
	c.hasFeedback = true
}

func (c *statsCollector) recordREMB(bitrate float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uplinkKbps = int(bitrate / 1000)
	c.hasFeedback = true
}

// sample returns the current snapshot. Before any RTCP feedback or a
// nominated candidate pair exists, the sample is a miss.
func (c *statsCollector) sample(_ context.Context) (domain.QualityMetrics, error) {
	c.mu.RLock()
	hasFeedback := c.hasFeedback
	metrics := domain.QualityMetrics{
		Timestamp:       time.Now(),
		PacketLoss:      c.fractionLost,
		Jitter:          c.jitter,
		AvailableUplink: c.uplinkKbps,
	}
	c.mu.RUnlock()

	rtt, ok := c.currentRTT()
	if !ok && !hasFeedback {
		return domain.QualityMetrics{}, errNoStats
	}
	metrics.RTT = rtt
	return metrics, nil
}

func (c *statsCollector) currentRTT() (time.Duration, bool) {
	report := c.pc.GetStats()
	for _, s := range report {
		pair, ok := s.(webrtc.ICECandidatePairStats)
		if !ok || !pair.Nominated {
			continue
		}
		if pair.CurrentRoundTripTime > 0 {
			return time.Duration(pair.CurrentRoundTripTime * float64(time.Second)), true
		}
	}
	return 0, false
}

func (c *statsCollector) stop() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
