package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.MaxConnections < 1 {
		return errors.New("server.maxConnections must be positive")
	}

	if c.Server.MaxMessageBytes < 64 {
		return errors.New("server.maxMessageBytes must be at least 64")
	}

	if c.Server.HeartbeatInterval <= 0 {
		return errors.New("server.heartbeatInterval must be positive")
	}

	if c.Server.OutboundQueueSize < 1 {
		return errors.New("server.outboundQueueSize must be positive")
	}

	if c.Session.IdleTimeout <= 0 {
		return errors.New("session.idleTimeout must be positive")
	}

	if c.Session.SweepInterval <= 0 {
		return errors.New("session.sweepInterval must be positive")
	}

	if c.Server.HeartbeatInterval >= c.Session.IdleTimeout {
		return errors.New("server.heartbeatInterval must be less than session.idleTimeout")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.MessagesPerSecond <= 0 {
			return errors.New("ratelimit.messagesPerSecond must be positive")
		}
		if c.RateLimit.Burst < 1 {
			return errors.New("ratelimit.burst must be positive")
		}
	}

	if c.Login.MaxConcurrent < 1 {
		return errors.New("login.maxConcurrent must be positive")
	}

	switch strings.ToLower(c.Cache.Backend) {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return errors.New("cache.redis.addr must be set for the redis backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %q (must be \"memory\" or \"redis\")", c.Cache.Backend)
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path must start with /: %q", c.Metrics.Path)
		}
	}

	return nil
}
