package media

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCMSourceFixedFrames(t *testing.T) {
	// 48kHz mono 16-bit, 20ms frames: 960 samples = 1920 bytes each.
	data := make([]byte, 1920*3)
	src, err := NewPCMSource(bytes.NewReader(data), 48000, 1, 20*time.Millisecond)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		frame, err := src.ReadFrame(ctx)
		require.NoError(t, err)
		assert.Len(t, frame.Data, 1920)
		assert.Equal(t, 20*time.Millisecond, frame.Duration)
	}

	_, err = src.ReadFrame(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestPCMSourceShortTailFrame(t *testing.T) {
	// One and a half frames: the tail is returned with half the duration.
	data := make([]byte, 1920+960)
	src, err := NewPCMSource(bytes.NewReader(data), 48000, 1, 20*time.Millisecond)
	require.NoError(t, err)

	ctx := context.Background()
	frame, err := src.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Len(t, frame.Data, 1920)

	frame, err = src.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Len(t, frame.Data, 960)
	assert.Equal(t, 10*time.Millisecond, frame.Duration)
}

func TestPCMSourceRejectsBadFormat(t *testing.T) {
	_, err := NewPCMSource(bytes.NewReader(nil), 0, 1, 20*time.Millisecond)
	assert.Error(t, err)
	_, err = NewPCMSource(bytes.NewReader(nil), 48000, 0, 20*time.Millisecond)
	assert.Error(t, err)
	_, err = NewPCMSource(bytes.NewReader(nil), 48000, 1, 0)
	assert.Error(t, err)
}

func TestPCMSourceHonorsContext(t *testing.T) {
	src, err := NewPCMSource(bytes.NewReader(make([]byte, 1920)), 48000, 1, 20*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.ReadFrame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
