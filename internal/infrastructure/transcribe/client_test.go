package transcribe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
	"github.com/dowhatkennydoes/distancedoc-sub000/pkg/logger"
)

func TestTransmitSendsChunkMetadata(t *testing.T) {
	var mu sync.Mutex
	var gotHeaders http.Header
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 2*time.Second, logger.Nop())
	err := c.Transmit(context.Background(), domain.AudioChunk{
		SessionID:      "session_1",
		ConsultationID: "consult_1",
		Index:          7,
		Duration:       250 * time.Millisecond,
		Data:           []byte{1, 2, 3},
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "session_1", gotHeaders.Get("X-Session-ID"))
	assert.Equal(t, "consult_1", gotHeaders.Get("X-Consultation-ID"))
	assert.Equal(t, "7", gotHeaders.Get("X-Chunk-Index"))
	assert.Equal(t, "250", gotHeaders.Get("X-Chunk-Duration-Ms"))
	assert.Equal(t, []byte{1, 2, 3}, gotBody)
}

func TestTransmitErrorWrapsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 2*time.Second, logger.Nop())
	err := c.Transmit(context.Background(), domain.AudioChunk{SessionID: "session_1"})
	assert.ErrorIs(t, err, domain.ErrChunkTransmissionFailed)
}

func TestFetchSegments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/consult_1/segments", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"segments":[
			{"text":"Hello","is_final":true,"start_offset_ms":0},
			{"text":"how ar","is_final":false,"start_offset_ms":1200}
		]}`))
	}))
	defer srv.Close()

	c := NewClient("", srv.URL, 2*time.Second, logger.Nop())
	segments, err := c.FetchSegments(context.Background(), "consult_1")
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.True(t, segments[0].IsFinal)
	assert.Equal(t, "how ar", segments[1].Text)
	assert.Equal(t, int64(1200), segments[1].StartOffsetMs)
}

func TestFetchSegmentsErrorWrapsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient("", srv.URL, 2*time.Second, logger.Nop())
	_, err := c.FetchSegments(context.Background(), "consult_1")
	assert.ErrorIs(t, err, domain.ErrTranscriptPollFailed)
}

func TestBreakerShedsAfterRepeatedFailures(t *testing.T) {
	var mu sync.Mutex
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 2*time.Second, logger.Nop())

	// Default breaker opens after 5 failures; later sends are shed
	// without reaching the backend.
	for i := 0; i < 8; i++ {
		c.Transmit(context.Background(), domain.AudioChunk{Index: uint64(i)})
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, requests)
}
