package media

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/rtp"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/ports"
)

// PacketReader yields successive RTP datagrams, one per call. A UDP
// socket bound to the capture pipeline's loopback port satisfies it.
type PacketReader interface {
	ReadPacket(ctx context.Context) ([]byte, error)
}

// RTPSource adapts an RTP packet stream from the local capture pipeline
// into audio frames. Frame duration is derived from the RTP timestamp
// delta between consecutive packets.
type RTPSource struct {
	packets   PacketReader
	clockRate int

	lastTimestamp uint32
	havePrevious  bool
	fallback      time.Duration
}

// NewRTPSource creates a source for the given RTP clock rate. fallback
// is the duration assumed for the first packet and after timestamp
// wraparound anomalies; 20ms matches common Opus packetization.
func NewRTPSource(packets PacketReader, clockRate int, fallback time.Duration) (*RTPSource, error) {
	if clockRate <= 0 {
		return nil, fmt.Errorf("invalid rtp clock rate %d", clockRate)
	}
	if fallback <= 0 {
		fallback = 20 * time.Millisecond
	}
	return &RTPSource{packets: packets, clockRate: clockRate, fallback: fallback}, nil
}

var _ ports.AudioSource = (*RTPSource)(nil)

func (s *RTPSource) ReadFrame(ctx context.Context) (ports.AudioFrame, error) {
	raw, err := s.packets.ReadPacket(ctx)
	if err != nil {
		return ports.AudioFrame{}, err
	}

	var packet rtp.Packet
	if err := packet.Unmarshal(raw); err != nil {
		return ports.AudioFrame{}, fmt.Errorf("unmarshal rtp packet: %w", err)
	}

	duration := s.fallback
	if s.havePrevious {
		delta := packet.Timestamp - s.lastTimestamp
		// Reordered or wrapped timestamps fall back to the nominal size.
		if delta > 0 && delta < uint32(s.clockRate) {
			duration = time.Duration(int64(delta) * int64(time.Second) / int64(s.clockRate))
		}
	}
	s.lastTimestamp = packet.Timestamp
	s.havePrevious = true

	return ports.AudioFrame{Data: packet.Payload, Duration: duration}, nil
}
