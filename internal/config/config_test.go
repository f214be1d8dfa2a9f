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
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1", cfg.Server.ListenAddr)
	assert.Equal(t, 8089, cfg.Server.HTTPPort)
	assert.Equal(t, 48, cfg.Player.CacheCapacity)
	assert.Equal(t, 0.125, cfg.Player.MinRate)
	assert.Equal(t, 16.0, cfg.Player.MaxRate)
	assert.Equal(t, 5*time.Millisecond, cfg.Player.MinTick)
	assert.True(t, cfg.Player.ResetIndexOnFarSeek)
	assert.Equal(t, "memory", cfg.Registry.Backend)
	assert.Equal(t, 10*time.Second, cfg.Decoder.ProbeTimeout)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reel.yaml")

	configContent := `
server:
  http_port: 9001

logging:
  level: "debug"
  format: "json"

player:
  cache_capacity: 12
  max_rate: 4
  min_tick: 10ms
`
	require.NoError(t, os.WriteFile(path, []byte(configContent), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.HTTPPort)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 12, cfg.Player.CacheCapacity)
	assert.Equal(t, 4.0, cfg.Player.MaxRate)
	assert.Equal(t, 10*time.Millisecond, cfg.Player.MinTick)
	// Untouched keys keep their defaults.
	assert.Equal(t, int64(48), cfg.Player.ProximityWindow)
}

func TestLoadConfigWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8089, cfg.Server.HTTPPort)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("REEL_PLAYER_CACHE_CAPACITY", "7")
	t.Setenv("REEL_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Player.CacheCapacity)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("player:\n  cache_capacity: 0\n"), 0o644))

	cfg, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache_capacity")
	assert.Nil(t, cfg)
}
