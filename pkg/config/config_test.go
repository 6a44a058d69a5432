package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty signal address", func(c *Config) { c.Signal.Address = "" }},
		{"sample interval too short", func(c *Config) { c.Quality.SampleInterval = time.Second }},
		{"sample interval too long", func(c *Config) { c.Quality.SampleInterval = 10 * time.Second }},
		{"chunk duration too short", func(c *Config) { c.Audio.ChunkDuration = 100 * time.Millisecond }},
		{"chunk duration too long", func(c *Config) { c.Audio.ChunkDuration = time.Second }},
		{"zero persistence", func(c *Config) { c.Quality.Persistence = 0 }},
		{"zero degraded threshold", func(c *Config) { c.Transcript.DegradedThreshold = 0 }},
		{"zero candidate queue", func(c *Config) { c.WebRTC.CandidateQueueCap = 0 }},
		{"zero pending buffer", func(c *Config) { c.Signal.PendingBuffer = 0 }},
		{"empty jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"redis enabled without address", func(c *Config) { c.Redis.Enabled = true; c.Redis.Address = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSampleIntervalBounds(t *testing.T) {
	cfg := DefaultConfig()

	cfg.Quality.SampleInterval = 2 * time.Second
	assert.NoError(t, cfg.Validate())

	cfg.Quality.SampleInterval = 5 * time.Second
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.Signal.Address)
	assert.Equal(t, 250*time.Millisecond, cfg.Audio.ChunkDuration)
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
signal:
  address: ":9999"
quality:
  sample_interval: 4s
  persistence: 3
audio:
  chunk_duration: 200ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Signal.Address)
	assert.Equal(t, 4*time.Second, cfg.Quality.SampleInterval)
	assert.Equal(t, 3, cfg.Quality.Persistence)
	assert.Equal(t, 200*time.Millisecond, cfg.Audio.ChunkDuration)
	// Unset sections keep defaults.
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestLoadRejectsInvalidYAMLValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
quality:
  sample_interval: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DISTANCEDOC_SIGNAL_URL", "ws://relay.internal:8081/ws")
	t.Setenv("DISTANCEDOC_LOG_LEVEL", "debug")
	t.Setenv("DISTANCEDOC_JWT_SECRET", "test-secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "ws://relay.internal:8081/ws", cfg.Signal.URL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "test-secret", cfg.Auth.JWTSecret)
}
