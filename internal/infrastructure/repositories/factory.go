package repositories

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/ports"
	"github.com/dowhatkennydoes/distancedoc-sub000/internal/infrastructure/repositories/memory"
	redisrepo "github.com/dowhatkennydoes/distancedoc-sub000/internal/infrastructure/repositories/redis"
	"github.com/dowhatkennydoes/distancedoc-sub000/pkg/config"
)

// Factory creates the session registry, preferring Redis when enabled
// and reachable and falling back to in-memory otherwise.
type Factory struct {
	useRedis    bool
	redisClient *redis.Client
	cfg         *config.Config
	logger      *zap.SugaredLogger
}

// NewFactory creates a repository factory.
func NewFactory(cfg *config.Config, logger *zap.SugaredLogger) *Factory {
	factory := &Factory{cfg: cfg, logger: logger}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory registry", "error", err)
		} else {
			factory.useRedis = true
			factory.redisClient = client
		}
	}

	if factory.useRedis {
		logger.Info("using Redis session registry")
	} else {
		logger.Info("using memory session registry")
	}
	return factory
}

// CreateSessionRepository returns the configured session registry.
func (f *Factory) CreateSessionRepository() ports.SessionRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewSessionRepository(f.redisClient, f.cfg.Signal.PendingBuffer)
	}
	return memory.NewSessionRepository(f.cfg.Signal.PendingBuffer)
}

// Close releases the Redis connection if one was opened.
func (f *Factory) Close() error {
	if f.redisClient != nil {
		return f.redisClient.Close()
	}
	return nil
}
