package media

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type packetScript struct {
	packets [][]byte
	pos     int
}

func (s *packetScript) ReadPacket(ctx context.Context) ([]byte, error) {
	if s.pos >= len(s.packets) {
		return nil, io.EOF
	}
	p := s.packets[s.pos]
	s.pos++
	return p, nil
}

func marshalPacket(t *testing.T, seq uint16, timestamp uint32, payload []byte) []byte {
	t.Helper()
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    111,
			SequenceNumber: seq,
			Timestamp:      timestamp,
			SSRC:           0x1234,
		},
		Payload: payload,
	}
	raw, err := pkt.Marshal()
	require.NoError(t, err)
	return raw
}

func TestRTPSourceDerivesDurationFromTimestamps(t *testing.T) {
	// Opus at 48kHz: 960 ticks per 20ms packet.
	script := &packetScript{packets: [][]byte{
		marshalPacket(t, 1, 0, []byte{0xAA}),
		marshalPacket(t, 2, 960, []byte{0xBB}),
		marshalPacket(t, 3, 1920, []byte{0xCC}),
	}}
	src, err := NewRTPSource(script, 48000, 20*time.Millisecond)
	require.NoError(t, err)

	ctx := context.Background()

	frame, err := src.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA}, frame.Data)
	assert.Equal(t, 20*time.Millisecond, frame.Duration) // fallback for the first packet

	frame, err = src.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, frame.Duration)

	frame, err = src.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCC}, frame.Data)
	assert.Equal(t, 20*time.Millisecond, frame.Duration)
}

func TestRTPSourceReorderedTimestampFallsBack(t *testing.T) {
	script := &packetScript{packets: [][]byte{
		marshalPacket(t, 1, 960, []byte{0x01}),
		marshalPacket(t, 2, 0, []byte{0x02}), // older timestamp
	}}
	src, err := NewRTPSource(script, 48000, 20*time.Millisecond)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = src.ReadFrame(ctx)
	require.NoError(t, err)

	frame, err := src.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, frame.Duration)
}

func TestRTPSourceMalformedPacket(t *testing.T) {
	script := &packetScript{packets: [][]byte{{0x00, 0x01}}}
	src, err := NewRTPSource(script, 48000, 0)
	require.NoError(t, err)

	_, err = src.ReadFrame(context.Background())
	assert.Error(t, err)
}

func TestRTPSourceRejectsBadClockRate(t *testing.T) {
	_, err := NewRTPSource(&packetScript{}, 0, 0)
	assert.Error(t, err)
}
