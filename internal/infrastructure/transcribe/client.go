package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/ports"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/infrastructure/monitoring"
	"github.com/dowhatkennydoes/distancedoc-sub000/pkg/circuitbreaker"
)

// Client talks to the transcription backend: it pushes audio chunks and
// pulls the current segment set. Chunk delivery runs through a circuit
// breaker so a dead backend sheds sends instead of stacking timeouts.
type Client struct {
	ingestURL  string
	pollURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	collector  *monitoring.Collector
	logger     *zap.SugaredLogger
}

// NewClient creates a transcription backend client. ingestURL receives
// chunk POSTs, pollURL serves GET {pollURL}/{consultation_id}/segments.
func NewClient(ingestURL, pollURL string, timeout time.Duration, logger *zap.SugaredLogger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		ingestURL:  ingestURL,
		pollURL:    pollURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    circuitbreaker.New(circuitbreaker.DefaultConfig()),
		logger:     logger,
	}
	c.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("transcription ingest breaker state changed", "from", from, "to", to)
	})
	return c
}

// SetCollector attaches metrics instrumentation.
func (c *Client) SetCollector(collector *monitoring.Collector) {
	c.collector = collector
}

var (
	_ ports.ChunkTransmitter = (*Client)(nil)
	_ ports.TranscriptSource = (*Client)(nil)
)

// Transmit delivers one audio chunk. The caller treats any error as a
// dropped chunk; nothing is retried here.
func (c *Client) Transmit(ctx context.Context, chunk domain.AudioChunk) error {
	err := c.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ingestURL, bytes.NewReader(chunk.Data))
		if err != nil {
			return fmt.Errorf("%w: build ingest request: %v", domain.ErrChunkTransmissionFailed, err)
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("X-Session-ID", string(chunk.SessionID))
		req.Header.Set("X-Consultation-ID", string(chunk.ConsultationID))
		req.Header.Set("X-Chunk-Index", strconv.FormatUint(chunk.Index, 10))
		req.Header.Set("X-Chunk-Duration-Ms", strconv.FormatInt(chunk.Duration.Milliseconds(), 10))

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrChunkTransmissionFailed, err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("%w: ingest returned %d", domain.ErrChunkTransmissionFailed, resp.StatusCode)
		}
		return nil
	})
	if c.collector != nil {
		if err != nil {
			c.collector.ChunkDropped()
		} else {
			c.collector.ChunkSent()
		}
	}
	return err
}

type segmentsResponse struct {
	Segments []domain.TranscriptSegment `json:"segments"`
}

// FetchSegments returns the backend's full current segment set for the
// consultation. The backend decides which segments are final.
func (c *Client) FetchSegments(ctx context.Context, id domain.ConsultationID) (segments []domain.TranscriptSegment, err error) {
	if c.collector != nil {
		defer func() { c.collector.TranscriptPoll(err != nil) }()
	}

	url := fmt.Sprintf("%s/%s/segments", c.pollURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build poll request: %v", domain.ErrTranscriptPollFailed, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTranscriptPollFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: poll returned %d", domain.ErrTranscriptPollFailed, resp.StatusCode)
	}

	var body segmentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode segments: %v", domain.ErrTranscriptPollFailed, err)
	}
	return body.Segments, nil
}
