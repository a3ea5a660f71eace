// Package config loads the mcpserver runtime configuration from a TOML
// file, adapted from the teacher's sibling example (Tutu-Engine-tutuengine's
// internal/daemon.Config) since the teacher itself ships no config file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Backend names a pluggable storage implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendSQLite   Backend = "sqlite"
	BackendRedis    Backend = "redis"
	BackendPostgres Backend = "postgres"
	BackendDynamo   Backend = "dynamodb"
)

// Config is the top-level mcpserver configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Session   SessionConfig   `toml:"session"`
	Storage   StorageConfig   `toml:"storage"`
	CORS      CORSConfig      `toml:"cors"`
	Auth      AuthConfig      `toml:"auth"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Logging   LoggingConfig   `toml:"logging"`
}

// ServerConfig controls the listen address and transport surface.
type ServerConfig struct {
	Host             string `toml:"host"`
	Port             int    `toml:"port"`
	URI              string `toml:"uri"`
	EnableLegacySSE  bool   `toml:"enable_legacy_sse"`
	EnableMetrics    bool   `toml:"enable_metrics"`
}

// SessionConfig controls session lifecycle defaults.
type SessionConfig struct {
	TTL               duration `toml:"ttl"`
	KeepaliveInterval duration `toml:"keepalive_interval"`
	EventBufferSize   int      `toml:"event_buffer_size"`
	StrictLifecycle   bool     `toml:"strict_lifecycle"`
	ResourcesSubscribe bool    `toml:"resources_subscribe"`
	Logging           bool     `toml:"logging_capability"`
}

// StorageConfig selects and configures the event/session storage backend.
type StorageConfig struct {
	Backend  Backend `toml:"backend"`
	SQLite   SQLiteConfig `toml:"sqlite"`
	Redis    RedisConfig  `toml:"redis"`
}

// SQLiteConfig configures the embedded SQL backend.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// RedisConfig configures the Redis-backed backend.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// CORSConfig mirrors transport/httpmcp.CORSOptions for TOML loading.
type CORSConfig struct {
	AllowedOrigins   []string `toml:"allowed_origins"`
	AllowCredentials bool     `toml:"allow_credentials"`
	UseTopDomain     bool     `toml:"use_top_domain"`
}

// AuthConfig gates dispatcher calls behind a BFF grant cookie, reusing the
// teacher's durable grant store (transport/server/auth.Store).
type AuthConfig struct {
	Enabled    bool   `toml:"enabled"`
	CookieName string `toml:"cookie_name"`
	Backend    Backend `toml:"backend"`
}

// RateLimitConfig bounds dispatcher calls per session with a token bucket.
type RateLimitConfig struct {
	Enabled         bool    `toml:"enabled"`
	Burst           float64 `toml:"burst"`
	RefillPerSecond float64 `toml:"refill_per_second"`
}

// LoggingConfig controls the process-wide Logger.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// duration lets TOML configs express durations as strings ("30s") the way
// time.ParseDuration does, since encoding/toml has no native duration type.
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = duration(parsed)
	return nil
}

func (d duration) Duration() time.Duration { return time.Duration(d) }

// Default returns the baseline configuration used when no file is supplied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:          "127.0.0.1",
			Port:          8080,
			URI:           "/mcp",
			EnableMetrics: true,
		},
		Session: SessionConfig{
			TTL:               duration(5 * time.Minute),
			KeepaliveInterval: duration(15 * time.Second),
			EventBufferSize:   64,
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
			SQLite:  SQLiteConfig{Path: "mcpserver.db"},
			Redis:   RedisConfig{Addr: "127.0.0.1:6379"},
		},
		Auth: AuthConfig{
			CookieName: "mcp_grant",
			Backend:    BackendMemory,
		},
		RateLimit: RateLimitConfig{
			Burst:           20,
			RefillPerSecond: 10,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path as TOML over the defaults. A missing file is not an
// error: the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
