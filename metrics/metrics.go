// Package metrics exposes Prometheus instrumentation for the game server.
// Collectors are registered with promauto at init time; Serve publishes them
// over HTTP on a dedicated port.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cyberinferno/game-server/logger"
)

var (
	// Connection metrics
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gameserver_connections_active",
		Help: "The current number of open client connections.",
	})
	TotalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gameserver_connections_total",
		Help: "The total number of client connections accepted.",
	})
	RejectedConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gameserver_connections_rejected_total",
		Help: "The total number of connections rejected at the accept limit.",
	})

	// Session metrics
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gameserver_sessions_active",
		Help: "The current number of registered sessions.",
	})
	PlayersOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gameserver_players_online",
		Help: "The current number of authenticated players.",
	})
	DuplicateLoginEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gameserver_duplicate_login_evictions_total",
		Help: "The total number of sessions evicted by a duplicate login.",
	})
	SessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gameserver_sessions_swept_total",
		Help: "The total number of idle sessions removed by the sweep.",
	})

	// Message metrics
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gameserver_messages_received_total",
		Help: "The total number of frames received from clients.",
	})
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gameserver_messages_sent_total",
		Help: "The total number of frames written to clients.",
	})
	MessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gameserver_messages_dropped_total",
		Help: "The total number of inbound or outbound messages dropped.",
	}, []string{"reason"})

	// Handler metrics
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gameserver_logins_total",
		Help: "The total number of login attempts by result.",
	}, []string{"result"})
	ChatMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gameserver_chat_messages_total",
		Help: "The total number of chat messages processed by channel.",
	}, []string{"channel"})
)

// Drop reasons for MessagesDropped.
const (
	ReasonDecode       = "decode"
	ReasonNoHandler    = "no_handler"
	ReasonRateLimit    = "rate_limit"
	ReasonBackpressure = "backpressure"
)

// Serve starts an HTTP server exposing the Prometheus registry on the given
// port and path. It runs in a background goroutine; listen failures are
// logged, not fatal, so a busy metrics port never takes the game server down.
//
// Parameters:
//   - port: TCP port for the metrics endpoint
//   - path: URL path (e.g. "/metrics")
//   - log: Logger for startup and failure reporting
func Serve(port int, path string, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("metrics server starting", logger.Field{Key: "addr", Value: srv.Addr}, logger.Field{Key: "path", Value: path})

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", logger.Field{Key: "error", Value: err})
		}
	}()
}
