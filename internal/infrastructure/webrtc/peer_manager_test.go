package webrtc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/ports"
	"github.com/dowhatkennydoes/distancedoc-sub000/pkg/logger"
)

func newSessionPair(t *testing.T) (alice, bob ports.MediaSession) {
	t.Helper()
	ice := NewICECache("", nil, 0, logger.Nop())
	manager := NewManager(ice, ManagerConfig{}, logger.Nop())

	ctx := context.Background()
	aliceMS, err := manager.NewMediaSession(ctx, &domain.Session{
		ID:                "session_pair",
		LocalParticipant:  "alice",
		RemoteParticipant: "bob",
	})
	require.NoError(t, err)
	t.Cleanup(func() { aliceMS.Close() })

	bobMS, err := manager.NewMediaSession(ctx, &domain.Session{
		ID:                "session_pair",
		LocalParticipant:  "bob",
		RemoteParticipant: "alice",
	})
	require.NoError(t, err)
	t.Cleanup(func() { bobMS.Close() })

	return aliceMS, bobMS
}

func TestCandidatesBufferedUntilRemoteDescriptionSet(t *testing.T) {
	ctx := context.Background()
	alice, bob := newSessionPair(t)

	mic, err := NewMicrophoneTrack("session_pair")
	require.NoError(t, err)
	require.NoError(t, alice.AttachLocalAudio(mic))

	offer, err := alice.CreateOffer(ctx)
	require.NoError(t, err)

	// Trickled candidates outrun the offer; they are queued, not dropped,
	// and applied in arrival order once the description lands.
	first := "candidate:1 1 udp 2130706431 127.0.0.1 54400 typ host"
	second := "candidate:2 1 udp 2130706175 127.0.0.1 54401 typ host"
	require.NoError(t, bob.AddRemoteCandidate(second))
	require.NoError(t, bob.AddRemoteCandidate(first))

	bobSession := bob.(*mediaSession)
	assert.Equal(t, 2, bobSession.pending.len())

	answer, err := bob.AcceptOffer(ctx, offer)
	require.NoError(t, err)
	require.NotEmpty(t, answer)
	assert.Equal(t, 0, bobSession.pending.len())
	assert.Equal(t, domain.ConnectionConnecting, bob.State())

	// Offerer side: a candidate arriving before the answer is queued too.
	require.NoError(t, alice.AddRemoteCandidate(first))
	aliceSession := alice.(*mediaSession)
	assert.Equal(t, 1, aliceSession.pending.len())

	require.NoError(t, alice.AcceptAnswer(ctx, answer))
	assert.Equal(t, 0, aliceSession.pending.len())

	// With the description set, later candidates bypass the queue.
	require.NoError(t, bob.AddRemoteCandidate(second))
	assert.Equal(t, 0, bobSession.pending.len())
}

func TestDuplicateRemoteDescriptionsAreNoOps(t *testing.T) {
	ctx := context.Background()
	alice, bob := newSessionPair(t)

	mic, err := NewMicrophoneTrack("session_pair")
	require.NoError(t, err)
	require.NoError(t, alice.AttachLocalAudio(mic))

	offer, err := alice.CreateOffer(ctx)
	require.NoError(t, err)

	answer, err := bob.AcceptOffer(ctx, offer)
	require.NoError(t, err)

	// A re-delivered offer returns the previous answer unchanged.
	again, err := bob.AcceptOffer(ctx, offer)
	require.NoError(t, err)
	assert.Equal(t, answer, again)

	require.NoError(t, alice.AcceptAnswer(ctx, answer))
	require.NoError(t, alice.AcceptAnswer(ctx, answer))
}
