package signal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
	"github.com/dowhatkennydoes/distancedoc-sub000/pkg/logger"
)

// newFlushingRelay serves one websocket connection and writes the given
// messages the instant the socket attaches, the way the relay flushes
// buffered messages for a participant that just joined.
func newFlushingRelay(t *testing.T, msgs []domain.SignalMessage) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		require.NoError(t, err)
		for i := range msgs {
			require.NoError(t, conn.WriteJSON(&msgs[i]))
		}
		// Hold the socket open until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChannelHoldsEarlyMessagesUntilCallbacksRegister(t *testing.T) {
	srv := newFlushingRelay(t, []domain.SignalMessage{
		{Kind: domain.SignalOffer, SDP: "offer-sdp"},
		{Kind: domain.SignalICECandidate, Candidate: "candidate:1 1 udp 2130706431 10.0.0.1 54400 typ host"},
		{Kind: domain.SignalICECandidate, Candidate: "candidate:2 1 udp 2130706175 10.0.0.1 54401 typ host"},
	})

	session := &domain.Session{
		ID:                "session_flush",
		LocalParticipant:  "bob",
		RemoteParticipant: "alice",
	}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ch, err := NewDialer(wsURL, "", logger.Nop()).Open(context.Background(), session)
	require.NoError(t, err)
	defer ch.Cleanup()

	// Give the read loop time to receive the flush before any callback
	// exists; nothing may be lost in that window.
	time.Sleep(100 * time.Millisecond)

	var mu sync.Mutex
	var got []string
	ch.OnRemoteOffer(func(sdp string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "offer:"+sdp)
	})
	ch.OnRemoteAnswer(func(string) {})
	ch.OnRemoteICECandidate(func(candidate string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "candidate:"+candidate)
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"offer:offer-sdp",
		"candidate:candidate:1 1 udp 2130706431 10.0.0.1 54400 typ host",
		"candidate:candidate:2 1 udp 2130706175 10.0.0.1 54401 typ host",
	}, got)
}

func TestChannelDispatchesDirectlyOnceRegistered(t *testing.T) {
	srv := newFlushingRelay(t, []domain.SignalMessage{
		{Kind: domain.SignalAnswer, SDP: "answer-sdp"},
	})

	session := &domain.Session{
		ID:                "session_flush",
		LocalParticipant:  "alice",
		RemoteParticipant: "bob",
	}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	dialer := NewDialer(wsURL, "", logger.Nop())

	answers := make(chan string, 1)
	ch, err := dialer.Open(context.Background(), session)
	require.NoError(t, err)
	defer ch.Cleanup()
	ch.OnRemoteAnswer(func(sdp string) { answers <- sdp })

	select {
	case sdp := <-answers:
		assert.Equal(t, "answer-sdp", sdp)
	case <-time.After(2 * time.Second):
		t.Fatal("answer was not delivered")
	}
}
