// The gameserver command runs the TCP game server: it loads configuration,
// wires the session registry, handlers and transport together, and shuts
// everything down cleanly on SIGINT/SIGTERM.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cyberinferno/game-server/cacher"
	"github.com/cyberinferno/game-server/config"
	"github.com/cyberinferno/game-server/handler"
	"github.com/cyberinferno/game-server/logger"
	"github.com/cyberinferno/game-server/metrics"
	"github.com/cyberinferno/game-server/protocol"
	"github.com/cyberinferno/game-server/server"
	"github.com/cyberinferno/game-server/session"
)

const serviceName = "gameserver"

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := buildLogger(cfg.Log)
	log.Info("starting game server",
		logger.Field{Key: "addr", Value: cfg.Server.Addr()},
		logger.Field{Key: "heartbeatInterval", Value: cfg.Server.HeartbeatInterval.String()},
		logger.Field{Key: "idleTimeout", Value: cfg.Session.IdleTimeout.String()})

	if cfg.Metrics.Enabled {
		metrics.Serve(cfg.Metrics.Port, cfg.Metrics.Path, log)
	}

	registry := session.NewRegistry(cfg.Session.IdleTimeout, cfg.Session.SweepInterval, log)

	profiles, err := buildProfileCache(cfg.Cache)
	if err != nil {
		log.Error("failed to build profile cache", logger.Field{Key: "error", Value: err})
		os.Exit(1)
	}

	handlers := handler.Table{
		protocol.TypeLogin: handler.NewLoginHandler(
			registry,
			handler.PolicyValidator{},
			profiles,
			handler.DefaultProfileProvider(),
			cfg.Login.MaxConcurrent,
			cfg.Login.ProfileCacheTTL,
			log,
		),
		protocol.TypeChat: handler.NewChatHandler(registry, log),
	}

	srv := server.New(server.Options{
		Addr:              cfg.Server.Addr(),
		MaxConnections:    cfg.Server.MaxConnections,
		MaxMessageBytes:   cfg.Server.MaxMessageBytes,
		IdleReadTimeout:   cfg.Server.IdleReadTimeout(),
		WriteTimeout:      cfg.Server.WriteTimeout,
		OutboundQueueSize: cfg.Server.OutboundQueueSize,
		TCPNoDelay:        cfg.Server.TCPNoDelay,
		KeepAlive:         cfg.Server.KeepAlive,
		RateLimitEnabled:  cfg.RateLimit.Enabled,
		MessagesPerSecond: cfg.RateLimit.MessagesPerSecond,
		RateLimitBurst:    cfg.RateLimit.Burst,
	}, registry, handlers, log)

	if err := srv.Start(); err != nil {
		log.Error("failed to start server", logger.Field{Key: "error", Value: err})
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutdown signal received", logger.Field{Key: "signal", Value: sig.String()})

	srv.Stop()
	registry.Shutdown()
	log.Info("game server exited")
}

func buildLogger(cfg config.LogConfig) logger.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if cfg.Console {
		return logger.NewConsole(serviceName, level)
	}

	return logger.New(os.Stdout, serviceName, level)
}

func buildProfileCache(cfg config.CacheConfig) (cacher.Cacher[handler.Profile], error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return cacher.NewRedisCacher[handler.Profile](client), nil
	case "memory":
		return cacher.NewMemoryCacher[handler.Profile](5*time.Minute, 10*time.Minute), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %q", cfg.Backend)
	}
}
