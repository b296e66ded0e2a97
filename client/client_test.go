package client

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/game-server/protocol"
)

// startSink listens on an ephemeral port and accepts connections without
// ever reading or writing.
func startSink(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer func() { _ = conn.Close() }()
		}
	}()

	return ln.Addr().String()
}

func TestClientLifecycle(t *testing.T) {
	t.Run("connect after close is refused", func(t *testing.T) {
		c := New(DefaultConfig(startSink(t)))
		require.NoError(t, c.Close())

		assert.Error(t, c.Connect())
		assert.Equal(t, Closed, c.State())
	})

	t.Run("close is idempotent", func(t *testing.T) {
		c := New(DefaultConfig(startSink(t)))
		require.NoError(t, c.Connect())

		assert.NoError(t, c.Close())
		assert.NoError(t, c.Close())
		assert.Equal(t, Closed, c.State())
	})

	t.Run("send on a disconnected client fails", func(t *testing.T) {
		c := New(DefaultConfig(startSink(t)))
		assert.Error(t, c.Send(protocol.NewHeartbeat()))
	})

	t.Run("close racing connect leaves the client closed", func(t *testing.T) {
		addr := startSink(t)

		// Whatever the interleaving, Close must win: the client ends up
		// Closed and a dial that lands afterwards is discarded, never
		// installed as a live connection.
		for i := 0; i < 50; i++ {
			c := New(DefaultConfig(addr))

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				_ = c.Connect()
			}()
			go func() {
				defer wg.Done()
				_ = c.Close()
			}()
			wg.Wait()

			assert.Equal(t, Closed, c.State())
			assert.Error(t, c.Send(protocol.NewHeartbeat()))
		}
	})
}
