package webrtc

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/ports"
)

// Track wraps a pion local track behind ports.LocalTrack so services
// stay decoupled from the media engine.
type Track struct {
	local  webrtc.TrackLocal
	sample *webrtc.TrackLocalStaticSample

	mu      sync.Mutex
	control func(domain.EncodingParams)
}

var _ ports.LocalTrack = (*Track)(nil)

// NewMicrophoneTrack creates the local Opus audio track.
func NewMicrophoneTrack(streamID string) (*Track, error) {
	t, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio-mic",
		streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("create microphone track: %w", err)
	}
	return &Track{local: t, sample: t}, nil
}

// NewCameraTrack creates the local VP8 camera track.
func NewCameraTrack(streamID string) (*Track, error) {
	t, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video-camera",
		streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("create camera track: %w", err)
	}
	return &Track{local: t, sample: t}, nil
}

// NewScreenTrack creates the VP8 screen capture track that replaces the
// camera track during screen sharing.
func NewScreenTrack(streamID string) (*Track, error) {
	t, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video-screen",
		streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("create screen track: %w", err)
	}
	return &Track{local: t, sample: t}, nil
}

func (t *Track) ID() string { return t.local.ID() }

func (t *Track) Kind() string { return t.local.Kind().String() }

// WriteSample feeds one encoded frame into the track.
func (t *Track) WriteSample(data []byte, duration time.Duration) error {
	if t.sample == nil {
		return fmt.Errorf("track %s does not accept samples", t.ID())
	}
	return t.sample.WriteSample(media.Sample{Data: data, Duration: duration})
}

// OnEncodingParams registers the encoder control hook. The capture
// pipeline uses it to clamp resolution, framerate and bitrate when the
// adaptive controller changes ceilings.
func (t *Track) OnEncodingParams(fn func(domain.EncodingParams)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.control = fn
}

func (t *Track) applyEncodingParams(params domain.EncodingParams) {
	t.mu.Lock()
	fn := t.control
	t.mu.Unlock()
	if fn != nil {
		fn(params)
	}
}
