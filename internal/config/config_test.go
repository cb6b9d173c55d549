package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapdeskhq/zapdesk/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, config.DefaultPGDatabase, cfg.Postgres.Database)
	assert.Equal(t, config.DefaultCountryCode, cfg.Delivery.DefaultCountryCode)
	assert.Equal(t, config.DefaultAudioTargetKB, cfg.Media.AudioTargetKB)
	assert.Equal(t, 30*time.Second, cfg.Gateway.Timeout())
	assert.Equal(t, 3*time.Second, cfg.Delivery.RestartPollDelay())
}

func TestLoadHonorsConfigPathEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
addr = ":9090"
`), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestLoadExplicitPathBeatsConfigPathEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "env.toml")
	require.NoError(t, os.WriteFile(envPath, []byte("[server]\naddr = \":9090\"\n"), 0o600))
	flagPath := filepath.Join(dir, "flag.toml")
	require.NoError(t, os.WriteFile(flagPath, []byte("[server]\naddr = \":7070\"\n"), 0o600))
	t.Setenv("CONFIG_PATH", envPath)

	cfg, err := config.Load(flagPath)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
}

func TestLoadOverridesFromFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[log]
level = "debug"
format = "json"

[gateway]
base_url = "http://gw.internal:8088"
ws_base_url = "ws://gw.internal:8088"
api_key = "global-key"
timeout_seconds = 5

[delivery]
default_country_code = "54"
restart_poll_seconds = 1

[media]
audio_target_kb = 256
quality = 0.5
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "http://gw.internal:8088", cfg.Gateway.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Gateway.Timeout())
	assert.Equal(t, "54", cfg.Delivery.DefaultCountryCode)
	assert.Equal(t, time.Second, cfg.Delivery.RestartPollDelay())
	assert.Equal(t, 256, cfg.Media.AudioTargetKB)
	assert.InDelta(t, 0.5, cfg.Media.Quality, 1e-9)
	// Untouched sections keep their defaults.
	assert.Equal(t, config.DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, config.DefaultVideoTargetMB, cfg.Media.VideoTargetMB)
}
