package handler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/game-server/cacher"
	"github.com/cyberinferno/game-server/logger"
	"github.com/cyberinferno/game-server/protocol"
	"github.com/cyberinferno/game-server/session"
)

// fakeConn records messages written to a session.
type fakeConn struct {
	mu     sync.Mutex
	sent   []protocol.Message
	closes int
}

func (f *fakeConn) WriteMessage(msg protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeConn) RemoteAddr() string { return "fake:0" }

func (f *fakeConn) lastMessage() protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeConn) messages() []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Message, len(f.sent))
	copy(out, f.sent)
	return out
}

func newRegistry(t *testing.T) *session.Registry {
	t.Helper()
	r := session.NewRegistry(time.Minute, 0, logger.Nop())
	t.Cleanup(r.Shutdown)
	return r
}

func newSession(r *session.Registry) (*session.Session, *fakeConn) {
	fc := &fakeConn{}
	s := session.New(fc, logger.Nop())
	r.Add(s)
	return s, fc
}

func newLoginHandler(r *session.Registry, validator Validator, maxConcurrent int64) *LoginHandler {
	if validator == nil {
		validator = PolicyValidator{}
	}
	profiles := cacher.NewMemoryCacher[Profile](time.Minute, time.Minute)
	return NewLoginHandler(r, validator, profiles, DefaultProfileProvider(), maxConcurrent, time.Minute, logger.Nop())
}

type validatorFunc func(ctx context.Context, username, password string) (bool, error)

func (f validatorFunc) Validate(ctx context.Context, username, password string) (bool, error) {
	return f(ctx, username, password)
}

func loginResponse(t *testing.T, msg protocol.Message) *protocol.LoginResponse {
	t.Helper()
	resp, ok := msg.(*protocol.LoginResponse)
	require.True(t, ok, "expected LoginResponse, got %T", msg)
	return resp
}

func TestPolicyValidator(t *testing.T) {
	t.Run("accepts non-empty username and password of six characters", func(t *testing.T) {
		ok, err := PolicyValidator{}.Validate(context.Background(), "alice", "secret1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("rejects whitespace-only username", func(t *testing.T) {
		ok, err := PolicyValidator{}.Validate(context.Background(), "   ", "secret1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("rejects short password", func(t *testing.T) {
		ok, err := PolicyValidator{}.Validate(context.Background(), "bob", "123")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestLoginHandler(t *testing.T) {
	t.Run("successful login binds player and acknowledges", func(t *testing.T) {
		r := newRegistry(t)
		h := newLoginHandler(r, nil, 8)
		s, fc := newSession(r)

		err := h.Handle(context.Background(), s, protocol.NewLogin("alice", "secret1"))
		require.NoError(t, err)

		resp := loginResponse(t, fc.lastMessage())
		assert.True(t, resp.Success)
		assert.Equal(t, "player_alice", resp.PlayerID)
		assert.Equal(t, "alice", resp.PlayerName)
		assert.Equal(t, "Login successful", resp.Message)

		assert.True(t, s.Authenticated())
		bound, ok := r.GetByPlayerID("player_alice")
		require.True(t, ok)
		assert.Same(t, s, bound)
	})

	t.Run("short password fails validation", func(t *testing.T) {
		r := newRegistry(t)
		h := newLoginHandler(r, nil, 8)
		s, fc := newSession(r)

		err := h.Handle(context.Background(), s, protocol.NewLogin("bob", "123"))
		require.NoError(t, err)

		resp := loginResponse(t, fc.lastMessage())
		assert.False(t, resp.Success)
		assert.Equal(t, "Invalid username or password", resp.Message)
		assert.False(t, s.Authenticated())
	})

	t.Run("empty username fails validation", func(t *testing.T) {
		r := newRegistry(t)
		h := newLoginHandler(r, nil, 8)
		s, fc := newSession(r)

		err := h.Handle(context.Background(), s, protocol.NewLogin("  ", "secret1"))
		require.NoError(t, err)

		resp := loginResponse(t, fc.lastMessage())
		assert.False(t, resp.Success)
		assert.Equal(t, "Invalid username or password", resp.Message)
	})

	t.Run("validator error yields internal server error response", func(t *testing.T) {
		r := newRegistry(t)
		failing := validatorFunc(func(context.Context, string, string) (bool, error) {
			return false, assert.AnError
		})
		h := newLoginHandler(r, failing, 8)
		s, fc := newSession(r)

		err := h.Handle(context.Background(), s, protocol.NewLogin("alice", "secret1"))
		require.NoError(t, err)

		resp := loginResponse(t, fc.lastMessage())
		assert.False(t, resp.Success)
		assert.Equal(t, "Internal server error", resp.Message)
		assert.False(t, s.Authenticated())
	})

	t.Run("second login for the same player evicts the first session", func(t *testing.T) {
		r := newRegistry(t)
		h := newLoginHandler(r, nil, 8)
		first, firstConn := newSession(r)
		second, secondConn := newSession(r)

		require.NoError(t, h.Handle(context.Background(), first, protocol.NewLogin("carol", "secret1")))
		require.NoError(t, h.Handle(context.Background(), second, protocol.NewLogin("carol", "secret1")))

		assert.Equal(t, 1, firstConn.closes)
		_, found := r.Get(first.ID())
		assert.False(t, found)

		resp := loginResponse(t, secondConn.lastMessage())
		assert.True(t, resp.Success)

		bound, ok := r.GetByPlayerID("player_carol")
		require.True(t, ok)
		assert.Same(t, second, bound)
	})

	t.Run("saturated validation capacity rejects with busy response", func(t *testing.T) {
		r := newRegistry(t)

		entered := make(chan struct{})
		release := make(chan struct{})
		blocking := validatorFunc(func(context.Context, string, string) (bool, error) {
			close(entered)
			<-release
			return true, nil
		})
		h := newLoginHandler(r, blocking, 1)

		busyS, _ := newSession(r)
		rejectedS, rejectedConn := newSession(r)

		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = h.Handle(context.Background(), busyS, protocol.NewLogin("alice", "secret1"))
		}()
		<-entered

		err := h.Handle(context.Background(), rejectedS, protocol.NewLogin("bob", "secret1"))
		require.NoError(t, err)

		resp := loginResponse(t, rejectedConn.lastMessage())
		assert.False(t, resp.Success)
		assert.Equal(t, "Server busy, try again later", resp.Message)
		assert.False(t, rejectedS.Authenticated())

		close(release)
		<-done
	})

	t.Run("rejects message of the wrong type", func(t *testing.T) {
		r := newRegistry(t)
		h := newLoginHandler(r, nil, 8)
		s, _ := newSession(r)

		err := h.Handle(context.Background(), s, protocol.NewHeartbeat())
		assert.Error(t, err)
	})
}
