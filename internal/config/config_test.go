package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "retro.db", cfg.Database.Path)
	assert.Equal(t, 5, cfg.Analysis.DefaultSprintCount)
	assert.Equal(t, "none", cfg.Cache.Provider)
	assert.True(t, cfg.Clients.Metrics.MockFallback)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  address: ":9000"
database:
  path: /tmp/retro-test.db
analysis:
  defaultSprintCount: 8
cache:
  provider: memory
tasks:
  workers: 4
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, "/tmp/retro-test.db", cfg.Database.Path)
	assert.Equal(t, 8, cfg.Analysis.DefaultSprintCount)
	assert.Equal(t, "memory", cfg.Cache.Provider)
	assert.Equal(t, 4, cfg.Tasks.Workers)
	// Untouched sections keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.Clients.Metrics.Timeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RETRO_SERVER_ADDRESS", ":7777")
	t.Setenv("RETRO_METRICS_BASE_URL", "http://metrics.local")
	t.Setenv("RETRO_CACHE_PROVIDER", "memory")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.Server.Address)
	assert.Equal(t, "http://metrics.local", cfg.Clients.Metrics.BaseURL)
	assert.Equal(t, "memory", cfg.Cache.Provider)
}

func TestValidate(t *testing.T) {
	t.Run("unknown cache provider", func(t *testing.T) {
		t.Setenv("RETRO_CACHE_PROVIDER", "memcached")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown cache provider")
	})

	t.Run("valkey requires addr", func(t *testing.T) {
		t.Setenv("RETRO_CACHE_PROVIDER", "valkey")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "requires cache.addr")
	})

	t.Run("sprint count too small", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("analysis:\n  defaultSprintCount: 1\n"), 0o600))
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "defaultSprintCount")
	})
}
