package webrtc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dowhatkennydoes/distancedoc-sub000/pkg/logger"
	"github.com/dowhatkennydoes/distancedoc-sub000/pkg/retry"
)

func TestICECacheFetchesAndCaches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ice_servers":[{"urls":["turn:turn.example.com:3478"],"username":"u","credential":"s"}]}`))
	}))
	defer srv.Close()

	c := NewICECache(srv.URL, []string{"stun:stun.example.com:3478"}, time.Hour, logger.Nop())

	servers := c.Servers(context.Background())
	require.Len(t, servers, 2)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, servers[0].URLs)
	assert.Equal(t, []string{"turn:turn.example.com:3478"}, servers[1].URLs)
	assert.Equal(t, "u", servers[1].Username)

	// Within the TTL the endpoint is not hit again.
	c.Servers(context.Background())
	assert.Equal(t, int32(1), calls.Load())
}

func TestICECacheFailureFallsBackToStatic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewICECache(srv.URL, []string{"stun:stun.example.com:3478"}, time.Hour, logger.Nop())
	c.retryCfg = retry.Config{MaxAttempts: 0, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	servers := c.Servers(context.Background())
	require.Len(t, servers, 1)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, servers[0].URLs)
}

func TestICECacheReusesStaleListOnRefreshFailure(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ice_servers":[{"urls":["turn:turn.example.com:3478"]}]}`))
	}))
	defer srv.Close()

	c := NewICECache(srv.URL, nil, 10*time.Millisecond, logger.Nop())
	c.retryCfg = retry.Config{MaxAttempts: 0, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	first := c.Servers(context.Background())
	require.Len(t, first, 1)

	fail.Store(true)
	time.Sleep(20 * time.Millisecond) // expire the cache

	second := c.Servers(context.Background())
	require.Len(t, second, 1)
	assert.Equal(t, first[0].URLs, second[0].URLs)
}

func TestICECacheNoEndpointUsesStaticOnly(t *testing.T) {
	c := NewICECache("", []string{"stun:stun.example.com:3478"}, time.Hour, logger.Nop())
	servers := c.Servers(context.Background())
	require.Len(t, servers, 1)

	empty := NewICECache("", nil, time.Hour, logger.Nop())
	assert.Empty(t, empty.Servers(context.Background()))
}
