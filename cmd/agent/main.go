package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/services"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/infrastructure/media"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/infrastructure/monitoring"
	signalrelay "github.com/dowhatkennydoes/distancedoc-sub000/internal/infrastructure/signal"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/infrastructure/transcribe"
	webrtcinfra "github.com/dowhatkennydoes/distancedoc-sub000/internal/infrastructure/webrtc"
	"github.com/dowhatkennydoes/distancedoc-sub000/pkg/config"
	"github.com/dowhatkennydoes/distancedoc-sub000/pkg/logger"
	"github.com/dowhatkennydoes/distancedoc-sub000/pkg/utils"
)

func main() {
	var (
		configPath     = flag.String("config", "configs/config.yaml", "path to config file")
		participantID  = flag.String("participant", "", "local participant id")
		remoteID       = flag.String("remote", "", "remote participant id")
		consultationID = flag.String("consultation", "", "consultation id (generated when empty)")
		relayToken     = flag.String("token", os.Getenv("DISTANCEDOC_RELAY_TOKEN"), "relay bearer token")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.DefaultConfig()
		cfg.ApplyEnv()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	if *participantID == "" || *remoteID == "" {
		log.Fatal("both -participant and -remote are required")
	}
	consultation := *consultationID
	if consultation == "" {
		consultation = utils.GenerateConsultationID()
	}

	session := &domain.Session{
		ID:                domain.SessionID(utils.DeriveSessionID(*participantID, *remoteID)),
		LocalParticipant:  domain.ParticipantID(*participantID),
		RemoteParticipant: domain.ParticipantID(*remoteID),
		ConsultationID:    domain.ConsultationID(consultation),
		StartedAt:         time.Now(),
	}
	log.Infow("starting call agent",
		"session_id", session.ID,
		"participant_id", session.LocalParticipant,
		"initiator", session.IsInitiator(),
	)

	dialer := signalrelay.NewDialer(cfg.Signal.URL, *relayToken, log)

	var collector *monitoring.Collector
	if cfg.Monitoring.PrometheusEnabled {
		collector = monitoring.NewCollector()
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
			if err := http.ListenAndServe(addr, metricsMux); err != nil {
				log.Warnw("metrics endpoint stopped", "error", err)
			}
		}()
	}

	var staticICE []string
	for _, s := range cfg.WebRTC.ICEServers {
		staticICE = append(staticICE, s.URLs...)
	}
	iceCache := webrtcinfra.NewICECache(cfg.WebRTC.TraversalEndpoint, staticICE, cfg.WebRTC.TraversalCacheTTL, log)
	if collector != nil {
		iceCache.SetCollector(collector)
	}
	factory := webrtcinfra.NewManager(iceCache, webrtcinfra.ManagerConfig{
		CandidateQueueCap: cfg.WebRTC.CandidateQueueCap,
		Collector:         collector,
	}, log)

	backend := transcribe.NewClient(cfg.Audio.IngestURL, cfg.Transcript.BaseURL, cfg.Audio.SendTimeout, log)
	if collector != nil {
		backend.SetCollector(collector)
	}

	// Audio is read as raw 16-bit mono PCM from stdin; the capture
	// pipeline pipes it in.
	audioSource, err := media.NewPCMSource(os.Stdin, 48000, 1, 20*time.Millisecond)
	if err != nil {
		log.Fatalw("failed to open audio source", "error", err)
	}

	micTrack, err := webrtcinfra.NewMicrophoneTrack(string(session.ID))
	if err != nil {
		log.Fatalw("failed to create microphone track", "error", err)
	}
	cameraTrack, err := webrtcinfra.NewCameraTrack(string(session.ID))
	if err != nil {
		log.Fatalw("failed to create camera track", "error", err)
	}

	orch := services.NewOrchestrator(
		session,
		dialer,
		factory,
		audioSource,
		backend,
		backend,
		services.OrchestratorConfig{
			SampleInterval:    cfg.Quality.SampleInterval,
			SamplePersistence: cfg.Quality.Persistence,
			ChunkDuration:     cfg.Audio.ChunkDuration,
			PollInterval:      cfg.Transcript.PollInterval,
			DegradedThreshold: cfg.Transcript.DegradedThreshold,
			DisconnectGrace:   cfg.Call.DisconnectGrace,
			EncodingLadder:    services.DefaultEncodingLadder(),
		},
		services.CallEvents{
			OnStateChange: func(state services.CallState) {
				log.Infow("call state", "state", state.String())
			},
			OnError: func(err error) {
				log.Errorw("call error", "error", err)
			},
			OnQuality: func(q domain.NetworkQuality) {
				log.Infow("network quality", "level", q.String())
				if collector != nil {
					collector.QualityChanged(q)
				}
			},
			OnDegraded: func(degraded bool) {
				log.Warnw("transcript mode changed", "degraded", degraded)
				if collector != nil {
					collector.TranscriptDegraded(degraded)
				}
			},
			OnTranscript: func(t domain.LiveTranscript) {
				log.Debugw("transcript updated", "final_len", len(t.FinalText), "partial", t.HasPartial())
			},
		},
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.Start(ctx, micTrack, cameraTrack); err != nil {
		log.Fatalw("failed to start call", "error", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infow("received shutdown signal", "signal", sig)

	orch.Teardown()
	cancel()
	log.Info("call agent stopped")
}
