package media

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/ports"
)

// PCMSource reads fixed-duration PCM frames from a capture stream. The
// frame size follows from the sample rate, channel count and 16-bit
// samples, so every frame carries the same wall-clock duration.
type PCMSource struct {
	r             io.Reader
	frameDuration time.Duration
	frameBytes    int
}

// NewPCMSource wraps a raw 16-bit PCM stream. frameDuration is how much
// audio one ReadFrame returns.
func NewPCMSource(r io.Reader, sampleRate, channels int, frameDuration time.Duration) (*PCMSource, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid pcm format: rate=%d channels=%d", sampleRate, channels)
	}
	if frameDuration <= 0 {
		return nil, fmt.Errorf("invalid frame duration %v", frameDuration)
	}
	samplesPerFrame := int(int64(sampleRate) * int64(frameDuration) / int64(time.Second))
	return &PCMSource{
		r:             r,
		frameDuration: frameDuration,
		frameBytes:    samplesPerFrame * channels * 2,
	}, nil
}

var _ ports.AudioSource = (*PCMSource)(nil)

// ReadFrame blocks until a full frame is read. A short final read is
// returned with a proportionally shorter duration; after that io.EOF.
func (s *PCMSource) ReadFrame(ctx context.Context) (ports.AudioFrame, error) {
	if err := ctx.Err(); err != nil {
		return ports.AudioFrame{}, err
	}

	buf := make([]byte, s.frameBytes)
	n, err := io.ReadFull(s.r, buf)
	if n == 0 {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return ports.AudioFrame{}, err
	}

	frame := ports.AudioFrame{
		Data:     buf[:n],
		Duration: s.frameDuration * time.Duration(n) / time.Duration(s.frameBytes),
	}
	if err == io.ErrUnexpectedEOF {
		// Partial tail frame; next call reports EOF.
		return frame, nil
	}
	return frame, nil
}
