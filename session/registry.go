package session

import (
	"context"
	"sync"
	"time"

	"github.com/cyberinferno/game-server/logger"
	"github.com/cyberinferno/game-server/metrics"
	"github.com/cyberinferno/game-server/safemap"
)

// Registry is the process-wide store of live sessions. It maintains two
// mappings, session id to session and player id to session, and runs a
// background sweep that evicts sessions idle for longer than the timeout.
//
// All operations are safe for concurrent use. BindPlayer's check-evict-install
// sequence is atomic per player id: of two racing logins for the same player,
// exactly one binding survives.
type Registry struct {
	log      logger.Logger
	sessions *safemap.Map[uint64, *Session]
	players  *safemap.Map[string, *Session]

	// bindMu serializes BindPlayer, UnbindPlayer and Remove so the two maps
	// never disagree about which session owns a player id.
	bindMu sync.Mutex

	idleTimeout   time.Duration
	sweepInterval time.Duration

	cancelSweep context.CancelFunc
	sweepDone   chan struct{}
}

// NewRegistry creates a Registry and starts its sweep goroutine. A
// sweepInterval of zero or less disables the sweep, which tests use to drive
// eviction deterministically via SweepOnce.
//
// Parameters:
//   - idleTimeout: Sessions quiet for longer than this are evicted
//   - sweepInterval: How often the sweep runs
//   - log: Logger for registry events
//
// Returns:
//   - The new Registry; call Shutdown to release it
func NewRegistry(idleTimeout, sweepInterval time.Duration, log logger.Logger) *Registry {
	r := &Registry{
		log:           log.With(logger.Field{Key: "component", Value: "registry"}),
		sessions:      safemap.New[uint64, *Session](),
		players:       safemap.New[string, *Session](),
		idleTimeout:   idleTimeout,
		sweepInterval: sweepInterval,
		sweepDone:     make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancelSweep = cancel
	if sweepInterval > 0 {
		go r.sweepLoop(ctx)
		r.log.Info("session sweep started", logger.Field{Key: "interval", Value: sweepInterval.String()})
	} else {
		close(r.sweepDone)
	}

	return r
}

// Add registers a session under its id. It never fails.
func (r *Registry) Add(s *Session) {
	r.sessions.Store(s.ID(), s)
	metrics.ActiveSessions.Set(float64(r.sessions.Len()))
	r.log.Info("session added",
		logger.Field{Key: "session", Value: s.ID()},
		logger.Field{Key: "total", Value: r.sessions.Len()})
}

// Remove deletes a session from the id map and, if it holds a player id,
// from the player map. The removed session is returned so the caller can
// finish cleanup (e.g. closing the connection).
//
// Parameters:
//   - id: The session id to remove
//
// Returns:
//   - The removed session and true, or nil and false if absent
func (r *Registry) Remove(id uint64) (*Session, bool) {
	r.bindMu.Lock()
	defer r.bindMu.Unlock()
	return r.removeLocked(id)
}

// removeLocked removes from both maps; caller must hold bindMu. The player
// map entry is only removed if it still points at this session, so a newer
// binding installed by a duplicate login is never clobbered.
func (r *Registry) removeLocked(id uint64) (*Session, bool) {
	s, ok := r.sessions.Delete(id)
	if !ok {
		return nil, false
	}

	if pid := s.PlayerID(); pid != "" {
		if cur, found := r.players.Load(pid); found && cur.ID() == id {
			r.players.Delete(pid)
		}
	}

	metrics.ActiveSessions.Set(float64(r.sessions.Len()))
	metrics.PlayersOnline.Set(float64(r.players.Len()))
	r.log.Info("session removed",
		logger.Field{Key: "session", Value: id},
		logger.Field{Key: "total", Value: r.sessions.Len()})
	return s, true
}

// Get returns the session with the given id, if registered.
func (r *Registry) Get(id uint64) (*Session, bool) {
	return r.sessions.Load(id)
}

// GetByPlayerID returns the session bound to the given player id, if any.
func (r *Registry) GetByPlayerID(playerID string) (*Session, bool) {
	return r.players.Load(playerID)
}

// BindPlayer binds a player identity to a session and marks it
// authenticated. If another live session already holds the player id, that
// session is force-closed and removed before the new binding is installed
// (duplicate-login eviction). The whole sequence is atomic per player id.
//
// Parameters:
//   - s: The session that just authenticated
//   - playerID: The player id to bind
//   - playerName: The player display name
func (r *Registry) BindPlayer(s *Session, playerID, playerName string) {
	r.bindMu.Lock()
	defer r.bindMu.Unlock()

	if existing, ok := r.players.Load(playerID); ok && existing.ID() != s.ID() {
		r.log.Warn("player already logged in, evicting previous session",
			logger.Field{Key: "player", Value: playerID},
			logger.Field{Key: "evicted", Value: existing.ID()},
			logger.Field{Key: "session", Value: s.ID()})
		existing.Close()
		r.removeLocked(existing.ID())
		metrics.DuplicateLoginEvictions.Inc()
	}

	s.bind(playerID, playerName)
	r.players.Store(playerID, s)
	metrics.PlayersOnline.Set(float64(r.players.Len()))
	r.log.Info("player bound to session",
		logger.Field{Key: "player", Value: playerID},
		logger.Field{Key: "session", Value: s.ID()})
}

// UnbindPlayer removes the player-map entry and clears the session's player
// identity and authentication flag, if such a binding exists.
func (r *Registry) UnbindPlayer(playerID string) {
	r.bindMu.Lock()
	defer r.bindMu.Unlock()

	s, ok := r.players.Delete(playerID)
	if !ok {
		return
	}

	s.unbind()
	metrics.PlayersOnline.Set(float64(r.players.Len()))
	r.log.Info("player unbound from session",
		logger.Field{Key: "player", Value: playerID},
		logger.Field{Key: "session", Value: s.ID()})
}

// Range calls f for every registered session until f returns false.
func (r *Registry) Range(f func(s *Session) bool) {
	r.sessions.Range(func(_ uint64, s *Session) bool {
		return f(s)
	})
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	return r.sessions.Len()
}

// OnlineCount returns the number of sessions bound to a player.
func (r *Registry) OnlineCount() int {
	return r.players.Len()
}

// sweepLoop runs the periodic idle sweep until the registry shuts down.
func (r *Registry) sweepLoop(ctx context.Context) {
	defer close(r.sweepDone)

	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.SweepOnce()
		}
	}
}

// SweepOnce evicts every session idle for longer than the timeout. A failure
// on one session never aborts the sweep for the others.
//
// Returns:
//   - The number of sessions evicted
func (r *Registry) SweepOnce() int {
	swept := 0
	r.Range(func(s *Session) bool {
		if !s.IsIdle(r.idleTimeout) {
			return true
		}

		r.log.Info("evicting idle session",
			logger.Field{Key: "session", Value: s.ID()},
			logger.Field{Key: "lastActive", Value: s.LastActive()})
		r.evict(s)
		swept++
		return true
	})

	if swept > 0 {
		metrics.SessionsSwept.Add(float64(swept))
		r.log.Info("sweep finished", logger.Field{Key: "evicted", Value: swept})
	}

	return swept
}

// evict closes and removes one session, containing any panic so a broken
// connection cannot take the sweep down with it.
func (r *Registry) evict(s *Session) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic while evicting session",
				logger.Field{Key: "session", Value: s.ID()},
				logger.Field{Key: "panic", Value: rec})
		}
	}()

	s.Close()
	r.Remove(s.ID())
}

// Shutdown stops the sweep, closes every live session and clears both maps.
// It waits briefly for an in-flight sweep pass to finish before proceeding.
func (r *Registry) Shutdown() {
	r.log.Info("registry shutting down")

	r.cancelSweep()
	select {
	case <-r.sweepDone:
	case <-time.After(5 * time.Second):
		r.log.Warn("timed out waiting for sweep to stop")
	}

	r.Range(func(s *Session) bool {
		s.Close()
		return true
	})
	r.sessions.Clear()
	r.players.Clear()
	metrics.ActiveSessions.Set(0)
	metrics.PlayersOnline.Set(0)

	r.log.Info("registry shutdown complete")
}
