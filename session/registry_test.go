package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/game-server/logger"
)

// newTestRegistry returns a registry with the sweep disabled so tests drive
// eviction explicitly via SweepOnce.
func newTestRegistry(idleTimeout time.Duration) *Registry {
	return NewRegistry(idleTimeout, 0, logger.Nop())
}

func TestAddRemoveGet(t *testing.T) {
	t.Run("added session is retrievable by id", func(t *testing.T) {
		r := newTestRegistry(time.Minute)
		defer r.Shutdown()

		s, _ := newTestSession()
		r.Add(s)

		got, ok := r.Get(s.ID())
		require.True(t, ok)
		assert.Same(t, s, got)
		assert.Equal(t, 1, r.Count())
	})

	t.Run("remove returns the session for caller cleanup", func(t *testing.T) {
		r := newTestRegistry(time.Minute)
		defer r.Shutdown()

		s, _ := newTestSession()
		r.Add(s)

		removed, ok := r.Remove(s.ID())
		require.True(t, ok)
		assert.Same(t, s, removed)

		_, found := r.Get(s.ID())
		assert.False(t, found)
	})

	t.Run("remove of absent id reports false", func(t *testing.T) {
		r := newTestRegistry(time.Minute)
		defer r.Shutdown()

		_, ok := r.Remove(9999999)
		assert.False(t, ok)
	})

	t.Run("remove also clears the player mapping", func(t *testing.T) {
		r := newTestRegistry(time.Minute)
		defer r.Shutdown()

		s, _ := newTestSession()
		r.Add(s)
		r.BindPlayer(s, "player_carol", "carol")

		r.Remove(s.ID())

		_, found := r.GetByPlayerID("player_carol")
		assert.False(t, found)
		assert.Equal(t, 0, r.OnlineCount())
	})
}

func TestBindPlayer(t *testing.T) {
	t.Run("bind authenticates and indexes by player id", func(t *testing.T) {
		r := newTestRegistry(time.Minute)
		defer r.Shutdown()

		s, _ := newTestSession()
		r.Add(s)
		r.BindPlayer(s, "player_alice", "alice")

		got, ok := r.GetByPlayerID("player_alice")
		require.True(t, ok)
		assert.Same(t, s, got)
		assert.True(t, s.Authenticated())
		assert.Equal(t, 1, r.OnlineCount())
	})

	t.Run("duplicate login evicts the previous session", func(t *testing.T) {
		r := newTestRegistry(time.Minute)
		defer r.Shutdown()

		first, firstConn := newTestSession()
		second, _ := newTestSession()
		r.Add(first)
		r.Add(second)

		r.BindPlayer(first, "player_carol", "carol")
		r.BindPlayer(second, "player_carol", "carol")

		// The first session is closed and gone from the registry.
		assert.Equal(t, StateClosed, first.State())
		assert.Equal(t, 1, firstConn.closeCount())
		_, found := r.Get(first.ID())
		assert.False(t, found)

		// Only the second remains bound.
		got, ok := r.GetByPlayerID("player_carol")
		require.True(t, ok)
		assert.Same(t, second, got)
		assert.Equal(t, 1, r.Count())
	})

	t.Run("rebinding the same session is not an eviction", func(t *testing.T) {
		r := newTestRegistry(time.Minute)
		defer r.Shutdown()

		s, fc := newTestSession()
		r.Add(s)
		r.BindPlayer(s, "player_alice", "alice")
		r.BindPlayer(s, "player_alice", "alice")

		assert.Equal(t, 0, fc.closeCount())
		assert.Equal(t, 1, r.Count())
	})

	t.Run("concurrent binds for one player leave exactly one survivor", func(t *testing.T) {
		r := newTestRegistry(time.Minute)
		defer r.Shutdown()

		const n = 50
		sessions := make([]*Session, n)
		for i := range sessions {
			s, _ := newTestSession()
			sessions[i] = s
			r.Add(s)
		}

		var wg sync.WaitGroup
		wg.Add(n)
		for _, s := range sessions {
			go func(s *Session) {
				defer wg.Done()
				r.BindPlayer(s, "player_dave", "dave")
			}(s)
		}
		wg.Wait()

		// Exactly one non-closed session holds the player id.
		survivors := 0
		r.Range(func(s *Session) bool {
			if s.PlayerID() == "player_dave" && s.State() != StateClosed {
				survivors++
			}
			return true
		})
		assert.Equal(t, 1, survivors)
		assert.Equal(t, 1, r.Count())

		winner, ok := r.GetByPlayerID("player_dave")
		require.True(t, ok)
		assert.NotEqual(t, StateClosed, winner.State())
	})
}

func TestUnbindPlayer(t *testing.T) {
	t.Run("clears the binding and the session identity", func(t *testing.T) {
		r := newTestRegistry(time.Minute)
		defer r.Shutdown()

		s, _ := newTestSession()
		r.Add(s)
		r.BindPlayer(s, "player_alice", "alice")

		r.UnbindPlayer("player_alice")

		_, found := r.GetByPlayerID("player_alice")
		assert.False(t, found)
		assert.False(t, s.Authenticated())
		assert.Empty(t, s.PlayerID())
	})

	t.Run("unbind of unknown player is a no-op", func(t *testing.T) {
		r := newTestRegistry(time.Minute)
		defer r.Shutdown()

		assert.NotPanics(t, func() {
			r.UnbindPlayer("player_ghost")
		})
	})
}

func TestSweep(t *testing.T) {
	t.Run("evicts sessions idle past the timeout", func(t *testing.T) {
		r := newTestRegistry(5 * time.Millisecond)
		defer r.Shutdown()

		idle, idleConn := newTestSession()
		r.Add(idle)

		time.Sleep(10 * time.Millisecond)

		active, _ := newTestSession()
		r.Add(active)
		active.Touch()

		swept := r.SweepOnce()

		assert.Equal(t, 1, swept)
		assert.Equal(t, StateClosed, idle.State())
		assert.Equal(t, 1, idleConn.closeCount())

		_, found := r.Get(idle.ID())
		assert.False(t, found)
		_, found = r.Get(active.ID())
		assert.True(t, found)
	})

	t.Run("periodic sweep evicts without explicit calls", func(t *testing.T) {
		r := NewRegistry(5*time.Millisecond, 10*time.Millisecond, logger.Nop())
		defer r.Shutdown()

		s, _ := newTestSession()
		r.Add(s)

		assert.Eventually(t, func() bool {
			_, found := r.Get(s.ID())
			return !found
		}, time.Second, 5*time.Millisecond)
	})
}

func TestShutdown(t *testing.T) {
	t.Run("closes every session and clears both maps", func(t *testing.T) {
		r := newTestRegistry(time.Minute)

		conns := make([]*fakeConn, 5)
		for i := range conns {
			s, fc := newTestSession()
			conns[i] = fc
			r.Add(s)
			r.BindPlayer(s, fmt.Sprintf("player_%d", i), fmt.Sprintf("p%d", i))
		}

		r.Shutdown()

		for _, fc := range conns {
			assert.Equal(t, 1, fc.closeCount())
		}
		assert.Equal(t, 0, r.Count())
		assert.Equal(t, 0, r.OnlineCount())
	})
}
