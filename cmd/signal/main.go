package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httphandlers "github.com/dowhatkennydoes/distancedoc-sub000/internal/handlers/http"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/infrastructure/middleware"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/infrastructure/monitoring"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/infrastructure/repositories"
	signalrelay "github.com/dowhatkennydoes/distancedoc-sub000/internal/infrastructure/signal"
	"github.com/dowhatkennydoes/distancedoc-sub000/pkg/config"
	"github.com/dowhatkennydoes/distancedoc-sub000/pkg/logger"
	"github.com/dowhatkennydoes/distancedoc-sub000/pkg/tracing"
)

func main() {
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/distancedoc/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
		cfg.ApplyEnv()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "distancedoc-signal",
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	repoFactory := repositories.NewFactory(cfg, log)
	defer repoFactory.Close()
	sessions := repoFactory.CreateSessionRepository()

	collector := monitoring.NewCollector()

	relay := signalrelay.NewRelayServer(sessions, collector, signalrelay.RelayOptions{
		PingInterval:      cfg.Signal.PingInterval,
		PongTimeout:       cfg.Signal.PongTimeout,
		MessagesPerSecond: cfg.RateLimiting.MessagesPerSecond,
		Burst:             cfg.RateLimiting.Burst,
	}, log)

	sessionHandler := httphandlers.NewSessionHandler(sessions, cfg, log)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	api := router.Group("/api/v1")
	sessionHandler.RegisterRoutes(api)

	ws := router.Group("/ws")
	ws.Use(middleware.NewConnectionRateLimitMiddleware(cfg))
	ws.Use(middleware.OptionalAuthMiddleware(cfg.Auth.JWTSecret))
	ws.GET("", func(c *gin.Context) {
		relay.HandleWebSocket(c.Writer, c.Request)
	})

	router.GET("/health", gin.WrapF(relay.HealthCheck))

	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddCheck("session_registry", func(ctx context.Context) error {
		_, err := sessions.IsPresent(ctx, "session_healthcheck", "participant_healthcheck")
		return err
	}, 2*time.Second)
	router.GET("/ready", func(c *gin.Context) {
		status := healthChecker.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Signal.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting signaling relay", "address", cfg.Signal.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("relay server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Signal.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during relay shutdown", "error", err)
		srv.Close()
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracer", "error", err)
	}
	log.Info("signaling relay stopped")
}
