package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/infrastructure/monitoring"
	"github.com/dowhatkennydoes/distancedoc-sub000/pkg/retry"
)

// DefaultTraversalCacheTTL is how long a fetched traversal server list
// stays fresh before a refresh is attempted.
const DefaultTraversalCacheTTL = 5 * time.Minute

// ICECache serves the STUN/TURN server list for new peer connections.
// The list is fetched once from the traversal endpoint and refreshed
// after the TTL. Fetch failure is never fatal: a stale list is reused,
// and with no list at all the connection proceeds with host candidates
// only.
type ICECache struct {
	endpoint  string
	ttl       time.Duration
	client    *http.Client
	retryCfg  retry.Config
	static    []webrtc.ICEServer
	collector *monitoring.Collector
	logger    *zap.SugaredLogger

	mu        sync.Mutex
	fetched   []webrtc.ICEServer
	fetchedAt time.Time
}

// NewICECache creates the cache. staticURLs come from local config and
// are always included; endpoint may be empty to disable fetching.
func NewICECache(endpoint string, staticURLs []string, ttl time.Duration, logger *zap.SugaredLogger) *ICECache {
	if ttl <= 0 {
		ttl = DefaultTraversalCacheTTL
	}
	var static []webrtc.ICEServer
	if len(staticURLs) > 0 {
		static = []webrtc.ICEServer{{URLs: staticURLs}}
	}
	return &ICECache{
		endpoint: endpoint,
		ttl:      ttl,
		client:   &http.Client{Timeout: 10 * time.Second},
		retryCfg: retry.DefaultConfig(),
		static:   static,
		logger:   logger,
	}
}

// SetCollector attaches metrics instrumentation.
func (c *ICECache) SetCollector(collector *monitoring.Collector) {
	c.collector = collector
}

// Servers returns the traversal servers to use for a new connection.
func (c *ICECache) Servers(ctx context.Context) []webrtc.ICEServer {
	if c.endpoint == "" {
		return c.static
	}

	c.mu.Lock()
	if c.fetched != nil && time.Since(c.fetchedAt) < c.ttl {
		servers := c.combined(c.fetched)
		c.mu.Unlock()
		return servers
	}
	stale := c.fetched
	c.mu.Unlock()

	fetched, err := retry.DoWithResult(ctx, c.retryCfg, func() ([]webrtc.ICEServer, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		if c.collector != nil {
			c.collector.TraversalFallback()
		}
		if stale != nil {
			c.logger.Warnw("traversal server refresh failed, reusing stale list", "error", err)
			return c.combined(stale)
		}
		c.logger.Warnw("traversal servers unavailable, proceeding with host candidates only", "error", err)
		return c.static
	}

	c.mu.Lock()
	c.fetched = fetched
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return c.combined(fetched)
}

type traversalResponse struct {
	Servers []struct {
		URLs       []string `json:"urls"`
		Username   string   `json:"username"`
		Credential string   `json:"credential"`
	} `json:"ice_servers"`
}

func (c *ICECache) fetch(ctx context.Context) ([]webrtc.ICEServer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build traversal request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch traversal servers: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("traversal endpoint returned %d", resp.StatusCode)
	}

	var body traversalResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode traversal response: %w", err)
	}

	servers := make([]webrtc.ICEServer, 0, len(body.Servers))
	for _, s := range body.Servers {
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		servers = append(servers, server)
	}
	return servers, nil
}

func (c *ICECache) combined(fetched []webrtc.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.static)+len(fetched))
	out = append(out, c.static...)
	out = append(out, fetched...)
	return out
}
