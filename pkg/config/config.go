package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Signal struct {
		Address         string        `yaml:"address"`
		URL             string        `yaml:"url"` // relay URL used by the agent
		PingInterval    time.Duration `yaml:"ping_interval"`
		PongTimeout     time.Duration `yaml:"pong_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		PendingBuffer   int           `yaml:"pending_buffer"` // queued messages per absent participant
	} `yaml:"signal"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
		TraversalEndpoint string        `yaml:"traversal_endpoint"` // fetched once and cached
		TraversalCacheTTL time.Duration `yaml:"traversal_cache_ttl"`
		CandidateQueueCap int           `yaml:"candidate_queue_cap"`
	} `yaml:"webrtc"`

	Quality struct {
		SampleInterval time.Duration `yaml:"sample_interval"`
		Persistence    int           `yaml:"persistence"` // consecutive samples before a level change notifies
	} `yaml:"quality"`

	Audio struct {
		ChunkDuration time.Duration `yaml:"chunk_duration"`
		IngestURL     string        `yaml:"ingest_url"`
		SendTimeout   time.Duration `yaml:"send_timeout"`
	} `yaml:"audio"`

	Transcript struct {
		BaseURL           string        `yaml:"base_url"`
		PollInterval      time.Duration `yaml:"poll_interval"`
		DegradedThreshold int           `yaml:"degraded_threshold"`
	} `yaml:"transcript"`

	Call struct {
		DisconnectGrace time.Duration `yaml:"disconnect_grace"`
	} `yaml:"call"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled              bool    `yaml:"enabled"`
		ConnectionsPerMinute int     `yaml:"connections_per_minute"`
		MessagesPerSecond    float64 `yaml:"messages_per_second"`
		Burst                int     `yaml:"burst"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Signal.Address == "" {
		return fmt.Errorf("signal.address must not be empty")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= 0 {
		return fmt.Errorf("signal.pong_timeout must be > 0")
	}
	if c.Signal.PendingBuffer <= 0 {
		return fmt.Errorf("signal.pending_buffer must be > 0")
	}
	if c.WebRTC.TraversalCacheTTL <= 0 {
		return fmt.Errorf("webrtc.traversal_cache_ttl must be > 0")
	}
	if c.WebRTC.CandidateQueueCap <= 0 {
		return fmt.Errorf("webrtc.candidate_queue_cap must be > 0")
	}
	if c.Quality.SampleInterval < 2*time.Second || c.Quality.SampleInterval > 5*time.Second {
		return fmt.Errorf("quality.sample_interval must be between 2s and 5s")
	}
	if c.Quality.Persistence < 1 {
		return fmt.Errorf("quality.persistence must be >= 1")
	}
	if c.Audio.ChunkDuration < 200*time.Millisecond || c.Audio.ChunkDuration > 300*time.Millisecond {
		return fmt.Errorf("audio.chunk_duration must be between 200ms and 300ms")
	}
	if c.Transcript.PollInterval <= 0 {
		return fmt.Errorf("transcript.poll_interval must be > 0")
	}
	if c.Transcript.DegradedThreshold <= 0 {
		return fmt.Errorf("transcript.degraded_threshold must be > 0")
	}
	if c.Call.DisconnectGrace <= 0 {
		return fmt.Errorf("call.disconnect_grace must be > 0")
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.RateLimiting.Enabled {
		if c.RateLimiting.ConnectionsPerMinute <= 0 {
			return fmt.Errorf("rate_limiting.connections_per_minute must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
	}
	return nil
}

// Load reads configuration from a YAML file, applies defaults and env
// overrides. A missing file yields the defaults.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.ApplyEnv()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Signal.Address = ":8081"
	cfg.Signal.URL = "ws://localhost:8081/ws"
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.ShutdownTimeout = 30 * time.Second
	cfg.Signal.PendingBuffer = 128

	cfg.WebRTC.TraversalCacheTTL = 1 * time.Hour
	cfg.WebRTC.CandidateQueueCap = 64

	cfg.Quality.SampleInterval = 3 * time.Second
	cfg.Quality.Persistence = 2

	cfg.Audio.ChunkDuration = 250 * time.Millisecond
	cfg.Audio.SendTimeout = 2 * time.Second

	cfg.Transcript.PollInterval = 2 * time.Second
	cfg.Transcript.DegradedThreshold = 5

	cfg.Call.DisconnectGrace = 10 * time.Second

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9090

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Auth.JWTSecret = "change-me-in-production"

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.ConnectionsPerMinute = 60
	cfg.RateLimiting.MessagesPerSecond = 50
	cfg.RateLimiting.Burst = 100

	return cfg
}

// ApplyEnv overrides configuration from DISTANCEDOC_* environment variables.
func (c *Config) ApplyEnv() {
	if addr := os.Getenv("DISTANCEDOC_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if addr := os.Getenv("DISTANCEDOC_SIGNAL_ADDRESS"); addr != "" {
		c.Signal.Address = addr
	}
	if url := os.Getenv("DISTANCEDOC_SIGNAL_URL"); url != "" {
		c.Signal.URL = url
	}
	if level := os.Getenv("DISTANCEDOC_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("DISTANCEDOC_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if url := os.Getenv("DISTANCEDOC_TRANSCRIPT_URL"); url != "" {
		c.Transcript.BaseURL = url
	}
	if url := os.Getenv("DISTANCEDOC_AUDIO_INGEST_URL"); url != "" {
		c.Audio.IngestURL = url
	}
}
