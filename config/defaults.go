package config

import "github.com/spf13/viper"

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8888)
	v.SetDefault("server.maxConnections", 10000)
	v.SetDefault("server.maxMessageBytes", 1024*1024) // 1 MiB
	v.SetDefault("server.heartbeatInterval", "30s")
	v.SetDefault("server.writeTimeout", "10s")
	v.SetDefault("server.outboundQueueSize", 256)
	v.SetDefault("server.tcpNoDelay", true)
	v.SetDefault("server.keepAlive", true)

	// Session
	v.SetDefault("session.idleTimeout", "300s")
	v.SetDefault("session.sweepInterval", "60s")

	// Rate limiting
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.messagesPerSecond", 100)
	v.SetDefault("ratelimit.burst", 200)

	// Login
	v.SetDefault("login.maxConcurrent", 64)
	v.SetDefault("login.profileCacheTTL", "5m")

	// Cache
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)

	// Metrics
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	// Logging
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", false)
}
