package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/ports"
)

// CallState is the orchestrator's own lifecycle, distinct from the
// underlying connection state.
type CallState int

const (
	CallIdle CallState = iota
	CallConnecting
	CallActive
	CallEnded
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallConnecting:
		return "connecting"
	case CallActive:
		return "active"
	case CallEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// DefaultDisconnectGrace is how long a non-terminal disconnected state is
// tolerated silently before it is surfaced.
const DefaultDisconnectGrace = 10 * time.Second

// OrchestratorConfig carries tunables for one call lifecycle.
type OrchestratorConfig struct {
	SampleInterval    time.Duration
	SamplePersistence int
	ChunkDuration     time.Duration
	PollInterval      time.Duration
	DegradedThreshold int
	DisconnectGrace   time.Duration
	EncodingLadder    map[domain.NetworkQuality]domain.EncodingParams
	QualityPolicy     *QualityPolicy
}

// CallEvents are the orchestrator's observer callbacks. All fields are
// optional.
type CallEvents struct {
	OnStateChange func(CallState)
	OnError       func(error)
	OnTranscript  func(domain.LiveTranscript)
	OnDegraded    func(bool)
	OnQuality     func(domain.NetworkQuality)
}

// Orchestrator wires the session core into one call lifecycle:
// connect -> stream -> monitor/adapt -> transcribe -> teardown.
type Orchestrator struct {
	session     *domain.Session
	dialer      ports.SignalingDialer
	factory     ports.MediaFactory
	audioSource ports.AudioSource
	transmitter ports.ChunkTransmitter
	transcripts ports.TranscriptSource
	cfg         OrchestratorConfig
	events      CallEvents
	logger      *zap.SugaredLogger

	mu         sync.Mutex
	state      CallState
	channel    ports.SignalingChannel
	media      ports.MediaSession
	monitor    *QualityMonitor
	controller *AdaptiveController
	streamer   *AudioStreamer
	poller     *TranscriptPoller

	cameraTrack ports.LocalTrack
	screenTrack ports.LocalTrack
	sharing     bool

	graceTimer *time.Timer
	teardown   sync.Once
}

// NewOrchestrator creates the orchestrator for one session.
func NewOrchestrator(
	session *domain.Session,
	dialer ports.SignalingDialer,
	factory ports.MediaFactory,
	audioSource ports.AudioSource,
	transmitter ports.ChunkTransmitter,
	transcripts ports.TranscriptSource,
	cfg OrchestratorConfig,
	events CallEvents,
	logger *zap.SugaredLogger,
) *Orchestrator {
	if cfg.DisconnectGrace <= 0 {
		cfg.DisconnectGrace = DefaultDisconnectGrace
	}
	if cfg.QualityPolicy == nil {
		cfg.QualityPolicy = NewQualityPolicy()
	}
	return &Orchestrator{
		session:     session,
		dialer:      dialer,
		factory:     factory,
		audioSource: audioSource,
		transmitter: transmitter,
		transcripts: transcripts,
		cfg:         cfg,
		events:      events,
		logger:      logger,
		state:       CallIdle,
	}
}

// State returns the current call state.
func (o *Orchestrator) State() CallState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// transition is the single state transition function. Forward-only;
// CallEnded is terminal.
func (o *Orchestrator) transition(to CallState) bool {
	o.mu.Lock()
	if o.state == CallEnded || to <= o.state {
		o.mu.Unlock()
		return false
	}
	o.state = to
	fn := o.events.OnStateChange
	o.mu.Unlock()

	o.logger.Infow("call state changed", "session_id", o.session.ID, "state", to.String())
	if fn != nil {
		fn(to)
	}
	return true
}

// Start establishes the call: signaling first, then the peer connection,
// then monitoring, streaming and transcription. A signaling failure
// aborts before any peer connection is attempted.
func (o *Orchestrator) Start(ctx context.Context, cameraAudio, cameraVideo ports.LocalTrack) error {
	if !o.transition(CallConnecting) {
		return fmt.Errorf("call already started")
	}

	channel, err := o.dialer.Open(ctx, o.session)
	if err != nil {
		o.transition(CallEnded)
		return fmt.Errorf("%w: %v", domain.ErrSignalingUnavailable, err)
	}

	media, err := o.factory.NewMediaSession(ctx, o.session)
	if err != nil {
		_ = channel.Cleanup()
		o.transition(CallEnded)
		return fmt.Errorf("%w: %v", domain.ErrPeerConnectionFailed, err)
	}

	o.mu.Lock()
	o.channel = channel
	o.media = media
	o.cameraTrack = cameraVideo
	o.mu.Unlock()

	o.wireSignaling(ctx, channel, media)
	o.wireConnectionState(media)

	if cameraAudio != nil {
		if err := media.AttachLocalAudio(cameraAudio); err != nil {
			o.abort(fmt.Errorf("%w: attach audio: %v", domain.ErrMediaAcquisitionFailed, err))
			return fmt.Errorf("%w: attach audio: %v", domain.ErrMediaAcquisitionFailed, err)
		}
	}
	if cameraVideo != nil {
		if err := media.AttachLocalVideo(cameraVideo); err != nil {
			o.abort(fmt.Errorf("%w: attach video: %v", domain.ErrMediaAcquisitionFailed, err))
			return fmt.Errorf("%w: attach video: %v", domain.ErrMediaAcquisitionFailed, err)
		}
	}

	if o.session.IsInitiator() {
		sdp, err := media.CreateOffer(ctx)
		if err != nil {
			o.abort(fmt.Errorf("%w: create offer: %v", domain.ErrPeerConnectionFailed, err))
			return fmt.Errorf("%w: create offer: %v", domain.ErrPeerConnectionFailed, err)
		}
		if err := channel.SendOffer(ctx, sdp); err != nil {
			o.abort(fmt.Errorf("%w: send offer: %v", domain.ErrSignalingUnavailable, err))
			return fmt.Errorf("%w: send offer: %v", domain.ErrSignalingUnavailable, err)
		}
	}

	o.startAuxiliaries(ctx, media)
	return nil
}

func (o *Orchestrator) wireSignaling(ctx context.Context, channel ports.SignalingChannel, media ports.MediaSession) {
	media.OnLocalCandidate(func(candidate string) {
		if err := channel.SendICECandidate(ctx, candidate); err != nil {
			o.logger.Warnw("failed to send ICE candidate", "session_id", o.session.ID, "error", err)
		}
	})

	channel.OnRemoteOffer(func(sdp string) {
		if o.session.IsInitiator() {
			// Glare: the deterministic initiator never accepts an offer.
			o.logger.Warnw("ignoring offer received by initiator", "session_id", o.session.ID)
			return
		}
		answer, err := media.AcceptOffer(ctx, sdp)
		if err != nil {
			o.surfaceError(fmt.Errorf("%w: accept offer: %v", domain.ErrPeerConnectionFailed, err))
			return
		}
		if err := channel.SendAnswer(ctx, answer); err != nil {
			o.surfaceError(fmt.Errorf("%w: send answer: %v", domain.ErrSignalingUnavailable, err))
		}
	})

	channel.OnRemoteAnswer(func(sdp string) {
		if err := media.AcceptAnswer(ctx, sdp); err != nil {
			o.surfaceError(fmt.Errorf("%w: accept answer: %v", domain.ErrPeerConnectionFailed, err))
		}
	})

	channel.OnRemoteICECandidate(func(candidate string) {
		if err := media.AddRemoteCandidate(candidate); err != nil {
			o.logger.Warnw("failed to apply remote ICE candidate", "session_id", o.session.ID, "error", err)
		}
	})
}

func (o *Orchestrator) wireConnectionState(media ports.MediaSession) {
	media.OnStateChange(func(state domain.ConnectionState) {
		switch state {
		case domain.ConnectionConnected:
			o.cancelGrace()
			o.transition(CallActive)
		case domain.ConnectionDisconnected:
			// Tolerated silently for the grace period; audio capture and
			// transcription keep running.
			o.startGrace()
		case domain.ConnectionFailed:
			o.cancelGrace()
			o.surfaceError(domain.ErrPeerConnectionFailed)
		}
	})
}

func (o *Orchestrator) startAuxiliaries(ctx context.Context, media ports.MediaSession) {
	monitor := NewQualityMonitor(media, o.cfg.QualityPolicy, o.cfg.SampleInterval, o.cfg.SamplePersistence, o.logger)
	controller := NewAdaptiveController(media, o.cfg.EncodingLadder, o.logger)
	monitor.OnQualityChange(controller.HandleQualityChange)
	if o.events.OnQuality != nil {
		monitor.OnQualityChange(o.events.OnQuality)
	}

	streamer := NewAudioStreamer(o.session, o.audioSource, o.transmitter, o.cfg.ChunkDuration, o.logger)
	poller := NewTranscriptPoller(o.transcripts, o.session.ConsultationID, o.cfg.PollInterval, o.cfg.DegradedThreshold, o.logger)
	if o.events.OnTranscript != nil {
		poller.OnUpdate(o.events.OnTranscript)
	}
	if o.events.OnDegraded != nil {
		poller.OnDegraded(o.events.OnDegraded)
	}

	o.mu.Lock()
	o.monitor = monitor
	o.controller = controller
	o.streamer = streamer
	o.poller = poller
	o.mu.Unlock()

	controller.Start(ctx)
	monitor.Start(ctx)
	streamer.Start(ctx)
	poller.Start(ctx)
}

// StartScreenShare replaces the outgoing camera video with the screen
// track in place, without renegotiation.
func (o *Orchestrator) StartScreenShare(screen ports.LocalTrack) error {
	o.mu.Lock()
	media := o.media
	if media == nil {
		o.mu.Unlock()
		return fmt.Errorf("call not started")
	}
	o.screenTrack = screen
	o.sharing = true
	o.mu.Unlock()

	return media.ReplaceVideoTrack(screen)
}

// StopScreenShare restores the camera track. The browser-level "track
// ended" event and an explicit user toggle both route here.
func (o *Orchestrator) StopScreenShare() error {
	o.mu.Lock()
	media := o.media
	camera := o.cameraTrack
	wasSharing := o.sharing
	o.sharing = false
	o.screenTrack = nil
	o.mu.Unlock()

	if media == nil || !wasSharing {
		return nil
	}
	return media.ReplaceVideoTrack(camera)
}

// HandleScreenTrackEnded is invoked when the share track ends outside an
// explicit toggle (user hits the OS stop button). Same path as toggle-off.
func (o *Orchestrator) HandleScreenTrackEnded() {
	if err := o.StopScreenShare(); err != nil {
		o.logger.Warnw("failed to restore camera after screen share ended",
			"session_id", o.session.ID, "error", err)
	}
}

func (o *Orchestrator) startGrace() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.graceTimer != nil {
		return
	}
	o.graceTimer = time.AfterFunc(o.cfg.DisconnectGrace, func() {
		o.mu.Lock()
		o.graceTimer = nil
		o.mu.Unlock()
		o.surfaceError(domain.ErrPeerConnectionFailed)
	})
}

func (o *Orchestrator) cancelGrace() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.graceTimer != nil {
		o.graceTimer.Stop()
		o.graceTimer = nil
	}
}

func (o *Orchestrator) surfaceError(err error) {
	o.logger.Errorw("call error", "session_id", o.session.ID, "error", err)
	o.mu.Lock()
	fn := o.events.OnError
	o.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (o *Orchestrator) abort(err error) {
	o.surfaceError(err)
	o.Teardown()
}

// Teardown releases all resources in order: transcript poller, audio
// streamer, quality monitor and controller, peer connection, signaling
// channel. Each step is isolated so an earlier failure never skips the
// remaining steps. Safe to invoke any number of times.
func (o *Orchestrator) Teardown() {
	o.teardown.Do(func() {
		o.mu.Lock()
		poller := o.poller
		streamer := o.streamer
		monitor := o.monitor
		controller := o.controller
		media := o.media
		channel := o.channel
		o.mu.Unlock()

		o.cancelGrace()

		steps := []struct {
			name string
			fn   func() error
		}{
			{"transcript_poller", func() error {
				if poller != nil {
					poller.Stop()
				}
				return nil
			}},
			{"audio_streamer", func() error {
				if streamer != nil {
					streamer.Stop()
				}
				return nil
			}},
			{"quality_monitor", func() error {
				if monitor != nil {
					monitor.Stop()
				}
				if controller != nil {
					controller.Stop()
				}
				return nil
			}},
			{"peer_connection", func() error {
				if media != nil {
					return media.Close()
				}
				return nil
			}},
			{"signaling_channel", func() error {
				if channel != nil {
					return channel.Cleanup()
				}
				return nil
			}},
		}

		for _, step := range steps {
			o.runStep(step.name, step.fn)
		}

		o.transition(CallEnded)
	})
}

// runStep isolates one teardown step: a panic or error is logged and the
// remaining steps still run.
func (o *Orchestrator) runStep(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Errorw("teardown step panicked", "step", name, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		o.logger.Warnw("teardown step failed", "step", name, "error", err)
	}
}
