package services

import (
	"time"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
)

// QualityThreshold is the ceiling a metrics snapshot must stay under to
// be classified at (or above) a level.
type QualityThreshold struct {
	MaxPacketLoss float64
	MaxRTT        time.Duration
}

// QualityPolicy classifies link metrics into an ordered quality level.
// Thresholds are tunable configuration; classification is total and
// monotonic (strictly better metrics never classify lower).
type QualityPolicy struct {
	thresholds map[domain.NetworkQuality]QualityThreshold
}

// NewQualityPolicy returns a policy with the default thresholds.
func NewQualityPolicy() *QualityPolicy {
	return &QualityPolicy{
		thresholds: map[domain.NetworkQuality]QualityThreshold{
			domain.QualityExcellent: {
				MaxPacketLoss: 0.01,
				MaxRTT:        100 * time.Millisecond,
			},
			domain.QualityGood: {
				MaxPacketLoss: 0.03,
				MaxRTT:        250 * time.Millisecond,
			},
			domain.QualityFair: {
				MaxPacketLoss: 0.08,
				MaxRTT:        500 * time.Millisecond,
			},
		},
	}
}

// NewQualityPolicyWithThresholds returns a policy with custom thresholds.
// Missing levels fall back to the defaults.
func NewQualityPolicyWithThresholds(thresholds map[domain.NetworkQuality]QualityThreshold) *QualityPolicy {
	policy := NewQualityPolicy()
	for level, t := range thresholds {
		policy.thresholds[level] = t
	}
	return policy
}

// Thresholds returns the active thresholds (for use by the adaptive controller).
func (p *QualityPolicy) Thresholds() map[domain.NetworkQuality]QualityThreshold {
	return p.thresholds
}

// Classify maps one metrics snapshot to a quality level. Anything that
// misses the fair ceiling is poor; unknown is reserved for "no samples yet".
func (p *QualityPolicy) Classify(metrics domain.QualityMetrics) domain.NetworkQuality {
	for _, level := range []domain.NetworkQuality{
		domain.QualityExcellent,
		domain.QualityGood,
		domain.QualityFair,
	} {
		if p.meets(metrics, p.thresholds[level]) {
			return level
		}
	}
	return domain.QualityPoor
}

func (p *QualityPolicy) meets(metrics domain.QualityMetrics, t QualityThreshold) bool {
	return metrics.PacketLoss < t.MaxPacketLoss && metrics.RTT < t.MaxRTT
}
