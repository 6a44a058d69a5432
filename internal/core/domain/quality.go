package domain

import "time"

// QualityMetrics is one snapshot of link health taken from connection
// statistics. Snapshots are not persisted; only the derived NetworkQuality
// level is retained as the last-known value.
type QualityMetrics struct {
	Timestamp       time.Time
	RTT             time.Duration
	PacketLoss      float64 // 0.0 - 1.0
	AvailableUplink int     // kbps
	Jitter          time.Duration
}

// NetworkQuality is the ordered classification of link health.
type NetworkQuality int

const (
	QualityUnknown NetworkQuality = iota
	QualityPoor
	QualityFair
	QualityGood
	QualityExcellent
)

func (q NetworkQuality) String() string {
	switch q {
	case QualityPoor:
		return "poor"
	case QualityFair:
		return "fair"
	case QualityGood:
		return "good"
	case QualityExcellent:
		return "excellent"
	default:
		return "unknown"
	}
}

// EncodingParams are the outgoing video encoding ceilings applied by the
// adaptive controller. A zero field means "leave unchanged".
type EncodingParams struct {
	MaxWidth     int
	MaxHeight    int
	MaxFramerate int
	MaxBitrate   int // kbps
}
