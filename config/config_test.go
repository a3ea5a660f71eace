package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mutablelogic/mcp-streamhttp/config"
)

func TestLoad_MissingPathReturnsDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_ParsesDurationsAndOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcpserver.toml")
	body := `
[server]
host = "0.0.0.0"
port = 9090
enable_legacy_sse = true

[session]
ttl = "2m"
keepalive_interval = "5s"
strict_lifecycle = true

[storage]
backend = "redis"

[storage.redis]
addr = "redis.internal:6379"

[auth]
enabled = true
cookie_name = "session"

[rate_limit]
enabled = true
burst = 5
refill_per_second = 1
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Server.EnableLegacySSE)
	assert.Equal(t, 2*time.Minute, cfg.Session.TTL.Duration())
	assert.Equal(t, 5*time.Second, cfg.Session.KeepaliveInterval.Duration())
	assert.True(t, cfg.Session.StrictLifecycle)
	assert.Equal(t, config.BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "redis.internal:6379", cfg.Storage.Redis.Addr)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "session", cfg.Auth.CookieName)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 5.0, cfg.RateLimit.Burst)
}

func TestLoad_InvalidDurationFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcpserver.toml")
	require.NoError(t, os.WriteFile(path, []byte("[session]\nttl = \"not-a-duration\"\n"), 0o600))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestDefault_UsesFiveMinuteSessionTTL(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, 5*time.Minute, cfg.Session.TTL.Duration())
	assert.Equal(t, config.BackendMemory, cfg.Storage.Backend)
	assert.False(t, cfg.Auth.Enabled)
	assert.False(t, cfg.RateLimit.Enabled)
}
