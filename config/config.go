// Package config loads the game server configuration from defaults, an
// optional YAML file and GAMESERVER_-prefixed environment variables, in
// increasing order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved configuration consumed by the server core.
type Config struct {
	Server    ServerConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Login     LoginConfig
	Cache     CacheConfig
	Metrics   MetricsConfig
	Log       LogConfig
}

// ServerConfig covers the TCP listener and per-connection transport limits.
type ServerConfig struct {
	Host              string
	Port              int
	MaxConnections    int
	MaxMessageBytes   int
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	OutboundQueueSize int
	TCPNoDelay        bool
	KeepAlive         bool
}

// Addr returns the listen address in "host:port" form.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IdleReadTimeout is the read deadline applied between frames: twice the
// heartbeat interval, so one missed heartbeat is tolerated.
func (c ServerConfig) IdleReadTimeout() time.Duration {
	return 2 * c.HeartbeatInterval
}

// SessionConfig covers the session registry and its idle sweep.
type SessionConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// RateLimitConfig bounds the inbound message rate per connection.
type RateLimitConfig struct {
	Enabled           bool
	MessagesPerSecond float64
	Burst             int
}

// LoginConfig bounds login validation concurrency and profile caching.
type LoginConfig struct {
	MaxConcurrent   int64
	ProfileCacheTTL time.Duration
}

// CacheConfig selects the cache backend used by the profile provider.
type CacheConfig struct {
	Backend string // "memory" or "redis"
	Redis   RedisConfig
}

// RedisConfig holds connection settings for the redis cache backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MetricsConfig covers the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Port    int
	Path    string
}

// LogConfig covers structured logging output.
type LogConfig struct {
	Level   string
	Console bool
}

// Load builds a Config from defaults, the optional config file at path (an
// empty path skips the file entirely) and environment variables prefixed
// with GAMESERVER_ (e.g. GAMESERVER_SERVER_PORT=9000).
//
// Parameters:
//   - path: Path to a YAML config file, or "" for defaults plus env only
//
// Returns:
//   - The validated configuration, or an error describing what is wrong
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GAMESERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config file error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
