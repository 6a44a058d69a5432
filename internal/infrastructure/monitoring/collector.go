package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
)

// Collector exposes the session core's Prometheus metrics.
type Collector struct {
	participantsConnected prometheus.Gauge
	signalsRelayed        *prometheus.CounterVec
	signalsBuffered       prometheus.Counter

	qualityLevel    prometheus.Gauge
	qualitySwitches prometheus.Counter

	chunksSent    prometheus.Counter
	chunksDropped prometheus.Counter

	transcriptPolls        prometheus.Counter
	transcriptPollFailures prometheus.Counter
	transcriptDegraded     prometheus.Gauge

	connectionStateChanges *prometheus.CounterVec
	traversalFallbacks     prometheus.Counter
}

// NewCollector registers and returns the collector. Call once per process.
func NewCollector() *Collector {
	return &Collector{
		participantsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "distancedoc_signal_participants_connected",
			Help: "Participants currently attached to the signaling relay",
		}),
		signalsRelayed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "distancedoc_signal_messages_relayed_total",
			Help: "Signaling messages relayed, by type",
		}, []string{"type"}),
		signalsBuffered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "distancedoc_signal_messages_buffered_total",
			Help: "Signaling messages buffered for an absent participant",
		}),
		qualityLevel: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "distancedoc_network_quality_level",
			Help: "Last debounced network quality level (0=unknown..4=excellent)",
		}),
		qualitySwitches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "distancedoc_quality_switches_total",
			Help: "Debounced quality level changes",
		}),
		chunksSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "distancedoc_audio_chunks_sent_total",
			Help: "Audio chunks handed to the transcription backend",
		}),
		chunksDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "distancedoc_audio_chunks_dropped_total",
			Help: "Audio chunks dropped after a failed send",
		}),
		transcriptPolls: promauto.NewCounter(prometheus.CounterOpts{
			Name: "distancedoc_transcript_polls_total",
			Help: "Transcript poll attempts",
		}),
		transcriptPollFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "distancedoc_transcript_poll_failures_total",
			Help: "Failed transcript polls",
		}),
		transcriptDegraded: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "distancedoc_transcript_degraded",
			Help: "1 while transcript polling is in degraded mode",
		}),
		connectionStateChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "distancedoc_connection_state_changes_total",
			Help: "Peer connection state transitions, by target state",
		}, []string{"state"}),
		traversalFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "distancedoc_traversal_fallbacks_total",
			Help: "Connections started without a fresh traversal server list",
		}),
	}
}

func (c *Collector) ParticipantConnected()    { c.participantsConnected.Inc() }
func (c *Collector) ParticipantDisconnected() { c.participantsConnected.Dec() }

func (c *Collector) SignalRelayed(kind string) { c.signalsRelayed.WithLabelValues(kind).Inc() }
func (c *Collector) SignalBuffered()           { c.signalsBuffered.Inc() }

func (c *Collector) QualityChanged(level domain.NetworkQuality) {
	c.qualityLevel.Set(float64(level))
	c.qualitySwitches.Inc()
}

func (c *Collector) ChunkSent()    { c.chunksSent.Inc() }
func (c *Collector) ChunkDropped() { c.chunksDropped.Inc() }

func (c *Collector) TranscriptPoll(failed bool) {
	c.transcriptPolls.Inc()
	if failed {
		c.transcriptPollFailures.Inc()
	}
}

func (c *Collector) TranscriptDegraded(degraded bool) {
	if degraded {
		c.transcriptDegraded.Set(1)
	} else {
		c.transcriptDegraded.Set(0)
	}
}

func (c *Collector) ConnectionStateChanged(state domain.ConnectionState) {
	c.connectionStateChanges.WithLabelValues(state.String()).Inc()
}

func (c *Collector) TraversalFallback() { c.traversalFallbacks.Inc() }
