package webrtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/ports"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/infrastructure/monitoring"
)

// ManagerConfig carries peer connection tunables.
type ManagerConfig struct {
	CandidateQueueCap int
	Collector         *monitoring.Collector
}

// Manager builds peer media sessions using the cached traversal server
// list. One media session exists per call.
type Manager struct {
	ice    *ICECache
	cfg    ManagerConfig
	logger *zap.SugaredLogger
}

func NewManager(ice *ICECache, cfg ManagerConfig, logger *zap.SugaredLogger) *Manager {
	return &Manager{ice: ice, cfg: cfg, logger: logger}
}

var _ ports.MediaFactory = (*Manager)(nil)

func (m *Manager) NewMediaSession(ctx context.Context, session *domain.Session) (ports.MediaSession, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: m.ice.Servers(ctx),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPeerConnectionFailed, err)
	}

	ms := &mediaSession{
		pc:        pc,
		session:   session,
		state:     domain.ConnectionNew,
		pending:   newCandidateQueue(m.cfg.CandidateQueueCap),
		stats:     newStatsCollector(pc, m.logger),
		collector: m.cfg.Collector,
		logger:    m.logger,
	}

	pc.OnConnectionStateChange(ms.handleEngineState)
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // end of gathering
		}
		ms.emitLocalCandidate(c.ToJSON().Candidate)
	})

	return ms, nil
}

// mediaSession owns one peer-to-peer connection and its explicit state
// machine. Engine state changes pass through domain.CanTransition so
// out-of-order engine callbacks cannot produce illegal edges.
type mediaSession struct {
	pc        *webrtc.PeerConnection
	session   *domain.Session
	collector *monitoring.Collector
	logger    *zap.SugaredLogger

	mu            sync.Mutex
	state         domain.ConnectionState
	stateFns      []func(domain.ConnectionState)
	onCandidate   func(candidate string)
	lastRemoteSDP string
	lastAnswer    string
	remoteSet     bool
	params        domain.EncodingParams

	audioSender *webrtc.RTPSender
	videoSender *webrtc.RTPSender
	videoTrack  *Track

	pending *candidateQueue
	stats   *statsCollector

	closeOnce sync.Once
	closeErr  error
}

var _ ports.MediaSession = (*mediaSession)(nil)

func (s *mediaSession) CreateOffer(ctx context.Context) (string, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("%w: create offer: %v", domain.ErrPeerConnectionFailed, err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("%w: set local offer: %v", domain.ErrPeerConnectionFailed, err)
	}
	s.setState(domain.ConnectionConnecting)
	return offer.SDP, nil
}

func (s *mediaSession) AcceptOffer(ctx context.Context, sdp string) (string, error) {
	s.mu.Lock()
	if sdp == s.lastRemoteSDP && s.lastAnswer != "" {
		answer := s.lastAnswer
		s.mu.Unlock()
		s.logger.Debugw("duplicate remote offer, returning previous answer",
			"session_id", s.session.ID)
		return answer, nil
	}
	s.mu.Unlock()

	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	}); err != nil {
		return "", fmt.Errorf("%w: set remote offer: %v", domain.ErrPeerConnectionFailed, err)
	}

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("%w: create answer: %v", domain.ErrPeerConnectionFailed, err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("%w: set local answer: %v", domain.ErrPeerConnectionFailed, err)
	}

	s.mu.Lock()
	s.lastRemoteSDP = sdp
	s.lastAnswer = answer.SDP
	s.remoteSet = true
	s.mu.Unlock()

	s.setState(domain.ConnectionConnecting)
	s.applyPendingCandidates()
	return answer.SDP, nil
}

func (s *mediaSession) AcceptAnswer(ctx context.Context, sdp string) error {
	s.mu.Lock()
	if sdp == s.lastRemoteSDP {
		s.mu.Unlock()
		s.logger.Debugw("duplicate remote answer ignored", "session_id", s.session.ID)
		return nil
	}
	s.mu.Unlock()

	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	}); err != nil {
		return fmt.Errorf("%w: set remote answer: %v", domain.ErrPeerConnectionFailed, err)
	}

	s.mu.Lock()
	s.lastRemoteSDP = sdp
	s.remoteSet = true
	s.mu.Unlock()

	s.applyPendingCandidates()
	return nil
}

// AddRemoteCandidate applies a trickled candidate, buffering it when the
// remote description has not been set yet. A malformed candidate is
// dropped; gathering continues with the rest.
func (s *mediaSession) AddRemoteCandidate(candidate string) error {
	s.mu.Lock()
	ready := s.remoteSet
	s.mu.Unlock()

	if !ready {
		if evicted := s.pending.push(candidate); evicted {
			s.logger.Warnw("candidate buffer full, dropped oldest",
				"session_id", s.session.ID, "cap", s.pending.capacity)
		}
		return nil
	}

	if err := s.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: candidate}); err != nil {
		s.logger.Warnw("dropping malformed ice candidate",
			"session_id", s.session.ID, "error", err)
	}
	return nil
}

func (s *mediaSession) applyPendingCandidates() {
	for _, candidate := range s.pending.drain() {
		if err := s.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: candidate}); err != nil {
			s.logger.Warnw("dropping buffered ice candidate",
				"session_id", s.session.ID, "error", err)
		}
	}
}

func (s *mediaSession) OnLocalCandidate(fn func(candidate string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCandidate = fn
}

func (s *mediaSession) emitLocalCandidate(candidate string) {
	s.mu.Lock()
	fn := s.onCandidate
	s.mu.Unlock()
	if fn != nil {
		fn(candidate)
	}
}

func (s *mediaSession) State() domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *mediaSession) OnStateChange(fn func(domain.ConnectionState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateFns = append(s.stateFns, fn)
}

func (s *mediaSession) handleEngineState(engineState webrtc.PeerConnectionState) {
	switch engineState {
	case webrtc.PeerConnectionStateConnecting:
		s.setState(domain.ConnectionConnecting)
	case webrtc.PeerConnectionStateConnected:
		s.setState(domain.ConnectionConnected)
	case webrtc.PeerConnectionStateDisconnected:
		s.setState(domain.ConnectionDisconnected)
	case webrtc.PeerConnectionStateFailed:
		s.setState(domain.ConnectionFailed)
	case webrtc.PeerConnectionStateClosed:
		s.setState(domain.ConnectionClosed)
	}
}

func (s *mediaSession) setState(next domain.ConnectionState) {
	s.mu.Lock()
	if !s.state.CanTransition(next) {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = next
	fns := make([]func(domain.ConnectionState), len(s.stateFns))
	copy(fns, s.stateFns)
	s.mu.Unlock()

	s.logger.Infow("connection state changed",
		"session_id", s.session.ID, "from", prev, "to", next)
	if s.collector != nil {
		s.collector.ConnectionStateChanged(next)
	}
	for _, fn := range fns {
		fn(next)
	}
}

func (s *mediaSession) AttachLocalAudio(track ports.LocalTrack) error {
	t, err := asTrack(track)
	if err != nil {
		return err
	}
	sender, err := s.pc.AddTrack(t.local)
	if err != nil {
		return fmt.Errorf("%w: attach audio: %v", domain.ErrPeerConnectionFailed, err)
	}
	s.mu.Lock()
	s.audioSender = sender
	s.mu.Unlock()
	s.stats.watchSender(sender)
	return nil
}

func (s *mediaSession) AttachLocalVideo(track ports.LocalTrack) error {
	t, err := asTrack(track)
	if err != nil {
		return err
	}
	sender, err := s.pc.AddTrack(t.local)
	if err != nil {
		return fmt.Errorf("%w: attach video: %v", domain.ErrPeerConnectionFailed, err)
	}
	s.mu.Lock()
	s.videoSender = sender
	s.videoTrack = t
	params := s.params
	s.mu.Unlock()
	t.applyEncodingParams(params)
	s.stats.watchSender(sender)
	return nil
}

// ReplaceVideoTrack swaps the outgoing video source in place on the
// existing sender. No renegotiation happens; the remote side keeps
// rendering the same transceiver.
func (s *mediaSession) ReplaceVideoTrack(track ports.LocalTrack) error {
	t, err := asTrack(track)
	if err != nil {
		return err
	}

	s.mu.Lock()
	sender := s.videoSender
	s.mu.Unlock()
	if sender == nil {
		return fmt.Errorf("no video sender attached")
	}

	if err := sender.ReplaceTrack(t.local); err != nil {
		return fmt.Errorf("%w: replace video track: %v", domain.ErrPeerConnectionFailed, err)
	}

	s.mu.Lock()
	s.videoTrack = t
	params := s.params
	s.mu.Unlock()

	// The new source starts under the ceilings already in force.
	t.applyEncodingParams(params)
	s.logger.Infow("video track replaced",
		"session_id", s.session.ID, "track_id", t.ID())
	return nil
}

func (s *mediaSession) DetachLocalTracks() error {
	s.mu.Lock()
	audio, video := s.audioSender, s.videoSender
	s.audioSender, s.videoSender, s.videoTrack = nil, nil, nil
	s.mu.Unlock()

	if audio != nil {
		if err := s.pc.RemoveTrack(audio); err != nil {
			return fmt.Errorf("detach audio: %w", err)
		}
	}
	if video != nil {
		if err := s.pc.RemoveTrack(video); err != nil {
			return fmt.Errorf("detach video: %w", err)
		}
	}
	return nil
}

func (s *mediaSession) Sample(ctx context.Context) (domain.QualityMetrics, error) {
	return s.stats.sample(ctx)
}

// ApplyEncodingParams records the ceilings and pushes them to the live
// video encoder. Last write wins; no renegotiation is triggered.
func (s *mediaSession) ApplyEncodingParams(ctx context.Context, params domain.EncodingParams) error {
	s.mu.Lock()
	s.params = params
	track := s.videoTrack
	s.mu.Unlock()

	if track != nil {
		track.applyEncodingParams(params)
	}
	return nil
}

func (s *mediaSession) Close() error {
	s.closeOnce.Do(func() {
		s.stats.stop()
		s.closeErr = s.pc.Close()
		s.setState(domain.ConnectionClosed)
	})
	return s.closeErr
}

func asTrack(track ports.LocalTrack) (*Track, error) {
	t, ok := track.(*Track)
	if !ok {
		return nil, fmt.Errorf("unsupported local track type %T", track)
	}
	return t, nil
}
