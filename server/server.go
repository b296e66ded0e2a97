// Package server implements the TCP front of the game server: the accept
// loop and the per-connection pipeline that turns the byte stream into typed
// messages and routes them to handlers.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/game-server/handler"
	"github.com/cyberinferno/game-server/logger"
	"github.com/cyberinferno/game-server/metrics"
	"github.com/cyberinferno/game-server/session"
)

// Options holds the transport settings consumed by the server. Resolved
// values come from the config package; the server never reads configuration
// sources itself.
type Options struct {
	Addr              string
	MaxConnections    int
	MaxMessageBytes   int
	IdleReadTimeout   time.Duration // 2x heartbeat interval
	WriteTimeout      time.Duration
	OutboundQueueSize int
	TCPNoDelay        bool
	KeepAlive         bool

	RateLimitEnabled  bool
	MessagesPerSecond float64
	RateLimitBurst    int
}

// Server accepts game client connections and runs one pipeline goroutine
// pair (reader and writer) per connection. Sessions live in the registry;
// decoded messages are routed through the handler table, except heartbeats,
// which are echoed on a fast path.
type Server struct {
	log      logger.Logger
	opts     Options
	registry *session.Registry
	handlers handler.Table

	listener net.Listener
	running  atomic.Bool
	active   atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Server. Call Start to begin accepting connections.
//
// Parameters:
//   - opts: Transport settings
//   - registry: Session registry shared with the handlers
//   - handlers: Dispatch table built at startup
//   - log: Logger
//
// Returns:
//   - The new Server
func New(opts Options, registry *session.Registry, handlers handler.Table, log logger.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		log:      log.With(logger.Field{Key: "component", Value: "server"}),
		opts:     opts,
		registry: registry,
		handlers: handlers,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start binds the listener and begins the accept loop in a goroutine.
//
// Returns:
//   - An error if the server is already running or listening fails
func (s *Server) Start() error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("server failed to listen on %s: %w", s.opts.Addr, err)
	}

	s.listener = ln
	s.running.Store(true)
	s.log.Info("game server started", logger.Field{Key: "addr", Value: ln.Addr().String()})

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listen address. Useful when Options.Addr requested
// an ephemeral port.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.opts.Addr
	}

	return s.listener.Addr().String()
}

// ActiveConnections returns the number of currently open connections.
func (s *Server) ActiveConnections() int64 {
	return s.active.Load()
}

// Stop closes the listener and signals every connection pipeline to exit.
// Sessions themselves are closed by the registry's Shutdown; Stop only tears
// down the transport side. Safe to call when not running.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.cancel()
	s.wg.Wait()
	s.log.Info("game server stopped")
}

// acceptLoop accepts connections until the server stops. Connections beyond
// MaxConnections are closed immediately; existing clients are unaffected.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		nc, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}

			s.log.Error("accept error", logger.Field{Key: "error", Value: err})
			continue
		}

		if s.opts.MaxConnections > 0 && s.active.Load() >= int64(s.opts.MaxConnections) {
			s.log.Warn("connection limit reached, rejecting",
				logger.Field{Key: "remote", Value: nc.RemoteAddr().String()},
				logger.Field{Key: "limit", Value: s.opts.MaxConnections})
			metrics.RejectedConnections.Inc()
			_ = nc.Close()
			continue
		}

		s.configureSocket(nc)
		s.active.Add(1)
		metrics.ActiveConnections.Inc()
		metrics.TotalConnections.Inc()

		c := newConn(nc, s)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.serve(s.ctx)
		}()
	}
}

func (s *Server) configureSocket(nc net.Conn) {
	tcp, ok := nc.(*net.TCPConn)
	if !ok {
		return
	}

	_ = tcp.SetNoDelay(s.opts.TCPNoDelay)
	_ = tcp.SetKeepAlive(s.opts.KeepAlive)
}
