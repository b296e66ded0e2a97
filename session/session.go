// Package session tracks the server-side state of each live client
// connection: identity, authentication, activity, and the registry that owns
// all of them. Sessions are shared mutable objects touched concurrently by
// the connection pipeline, message handlers, and the idle sweep; all
// accessors here are safe without external locking.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/game-server/logger"
	"github.com/cyberinferno/game-server/protocol"
)

// State is a session's lifecycle state.
type State int32

const (
	StateConnected State = iota
	StateAuthenticated
	StateInGame
	StateClosed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateAuthenticated:
		return "Authenticated"
	case StateInGame:
		return "InGame"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Conn is the transport handle owned by a session for the lifetime of its
// connection. The server package provides the real implementation; tests
// substitute fakes.
type Conn interface {
	// WriteMessage enqueues a message on the connection's outbound path.
	// It must not block; write failures surface through the side channel
	// (logs and metrics), not the caller.
	WriteMessage(msg protocol.Message) error

	// Close closes the underlying connection. Safe to call multiple times.
	Close() error

	// RemoteAddr returns the peer address, for diagnostics.
	RemoteAddr() string
}

// nextSessionID generates process-unique, monotonically increasing session
// ids. Ids are never reused within a process lifetime.
var nextSessionID atomic.Uint64

// Session is the server-side record of one live client connection.
type Session struct {
	id        uint64
	conn      Conn
	createdAt time.Time
	log       logger.Logger

	state      atomic.Int32
	lastActive atomic.Int64 // unix nanos, monotonically non-decreasing

	mu         sync.RWMutex
	playerID   string
	playerName string
	authed     bool

	closeOnce sync.Once
}

// New creates a Session for an accepted connection. The session starts in
// StateConnected with LastActive set to the creation time.
//
// Parameters:
//   - conn: The transport handle, owned exclusively by this session
//   - log: Logger; the session derives a scoped logger carrying its id
//
// Returns:
//   - The new Session
func New(conn Conn, log logger.Logger) *Session {
	now := time.Now()
	s := &Session{
		id:        nextSessionID.Add(1),
		conn:      conn,
		createdAt: now,
	}
	s.log = log.With(logger.Field{Key: "session", Value: s.id})
	s.lastActive.Store(now.UnixNano())
	s.state.Store(int32(StateConnected))
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() uint64 { return s.id }

// RemoteAddr returns the peer address of the session's connection.
func (s *Session) RemoteAddr() string { return s.conn.RemoteAddr() }

// CreatedAt returns the session's creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// State returns the session's current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// LastActive returns the time of the last inbound message.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// Touch updates LastActive to the current time. The stored value never goes
// backwards, even if the wall clock does.
func (s *Session) Touch() {
	now := time.Now().UnixNano()
	for {
		cur := s.lastActive.Load()
		if now <= cur || s.lastActive.CompareAndSwap(cur, now) {
			return
		}
	}
}

// IsIdle reports whether the session has received nothing for longer than
// the given timeout.
func (s *Session) IsIdle(timeout time.Duration) bool {
	return time.Since(s.LastActive()) > timeout
}

// PlayerID returns the bound player id, or "" before authentication.
func (s *Session) PlayerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playerID
}

// PlayerName returns the bound display name, or "" before authentication.
func (s *Session) PlayerName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playerName
}

// Authenticated reports whether a player is bound to the session.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authed
}

// bind installs the player identity and marks the session authenticated.
// Only the Registry calls this, under its bind lock.
func (s *Session) bind(playerID, playerName string) {
	s.mu.Lock()
	s.playerID = playerID
	s.playerName = playerName
	s.authed = true
	s.mu.Unlock()
	s.state.Store(int32(StateAuthenticated))
}

// unbind clears the player identity and authentication flag.
func (s *Session) unbind() {
	s.mu.Lock()
	s.playerID = ""
	s.playerName = ""
	s.authed = false
	s.mu.Unlock()
	s.state.Store(int32(StateConnected))
}

// Send delivers a message to the client on the session's connection. It is
// fire-and-forget: failures are logged, never returned, so handlers are not
// coupled to transport outcomes.
func (s *Session) Send(msg protocol.Message) {
	if s.State() == StateClosed {
		s.log.Warn("dropping message for closed session", logger.Field{Key: "type", Value: msg.Type().String()})
		return
	}

	if err := s.conn.WriteMessage(msg); err != nil {
		s.log.Error("failed to send message",
			logger.Field{Key: "type", Value: msg.Type().String()},
			logger.Field{Key: "error", Value: err})
	}
}

// Close closes the session's connection and moves it to StateClosed. It is
// idempotent and safe to call concurrently from the pipeline, the sweep, and
// duplicate-login eviction; only the first call takes effect.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		if err := s.conn.Close(); err != nil {
			s.log.Debug("connection close", logger.Field{Key: "error", Value: err})
		}
	})
}
