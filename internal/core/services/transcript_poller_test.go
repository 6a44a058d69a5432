package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
	"github.com/dowhatkennydoes/distancedoc-sub000/pkg/logger"
)

// scriptedTranscripts serves one scripted response per FetchSegments
// call; a nil entry is a failure.
type scriptedTranscripts struct {
	mu        sync.Mutex
	responses [][]domain.TranscriptSegment
	pos       int
}

func (s *scriptedTranscripts) FetchSegments(ctx context.Context, id domain.ConsultationID) ([]domain.TranscriptSegment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.responses) {
		return nil, errors.New("script exhausted")
	}
	resp := s.responses[s.pos]
	s.pos++
	if resp == nil {
		return nil, errors.New("backend unavailable")
	}
	return resp, nil
}

func newTestPoller(source *scriptedTranscripts, threshold int) *TranscriptPoller {
	return NewTranscriptPoller(source, "consult_1", DefaultPollInterval, threshold, logger.Nop())
}

func TestPollerMergesAndNotifies(t *testing.T) {
	source := &scriptedTranscripts{responses: [][]domain.TranscriptSegment{
		{
			{Text: "Hello", IsFinal: true},
			{Text: "how are", IsFinal: false},
		},
	}}
	p := newTestPoller(source, 5)

	var updates []domain.LiveTranscript
	p.OnUpdate(func(tr domain.LiveTranscript) { updates = append(updates, tr) })

	p.pollOnce(context.Background())

	assert.Len(t, updates, 1)
	assert.Equal(t, "Hello how are", p.Buffer().Text())
}

func TestPollerUnchangedBufferDoesNotNotify(t *testing.T) {
	same := []domain.TranscriptSegment{{Text: "Hello", IsFinal: true}}
	source := &scriptedTranscripts{responses: [][]domain.TranscriptSegment{same, same}}
	p := newTestPoller(source, 5)

	var updates int
	p.OnUpdate(func(domain.LiveTranscript) { updates++ })

	p.pollOnce(context.Background())
	p.pollOnce(context.Background())

	assert.Equal(t, 1, updates)
}

func TestPollerKeepsBufferAcrossFailures(t *testing.T) {
	source := &scriptedTranscripts{responses: [][]domain.TranscriptSegment{
		{{Text: "Hello", IsFinal: true}},
		nil,
		nil,
		{{Text: "Hello", IsFinal: true}, {Text: "again", IsFinal: true}},
	}}
	p := newTestPoller(source, 5)
	ctx := context.Background()

	p.pollOnce(ctx)
	assert.Equal(t, "Hello", p.Buffer().Text())

	p.pollOnce(ctx)
	p.pollOnce(ctx)
	// Last good buffer survives the failed polls.
	assert.Equal(t, "Hello", p.Buffer().Text())

	p.pollOnce(ctx)
	assert.Equal(t, "Hello again", p.Buffer().Text())
}

func TestPollerDegradedThresholdAndRecovery(t *testing.T) {
	source := &scriptedTranscripts{responses: [][]domain.TranscriptSegment{
		nil, nil, nil,
		{{Text: "back", IsFinal: true}},
	}}
	p := newTestPoller(source, 3)

	var signals []bool
	p.OnDegraded(func(d bool) { signals = append(signals, d) })
	ctx := context.Background()

	p.pollOnce(ctx)
	p.pollOnce(ctx)
	assert.Empty(t, signals, "below threshold must not signal")

	p.pollOnce(ctx)
	assert.Equal(t, []bool{true}, signals, "threshold crossing signals once")

	p.pollOnce(ctx)
	assert.Equal(t, []bool{true, false}, signals, "success clears degraded")
}

func TestPollerIgnoresResultAfterCancel(t *testing.T) {
	source := &scriptedTranscripts{responses: [][]domain.TranscriptSegment{
		{{Text: "late", IsFinal: true}},
	}}
	p := newTestPoller(source, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.pollOnce(ctx)

	assert.Equal(t, "", p.Buffer().Text())
}

func TestPollerStopIdempotent(t *testing.T) {
	p := newTestPoller(&scriptedTranscripts{}, 5)
	p.Stop() // before Start
	p.Start(context.Background())
	p.Stop()
	p.Stop()
}
