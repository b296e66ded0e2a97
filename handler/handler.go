// Package handler contains the business handlers messages are routed to:
// login (session binding) and chat (channel-based delivery). Handlers are
// registered in an explicit dispatch table built at startup; there is no
// ambient registry.
package handler

import (
	"context"

	"github.com/cyberinferno/game-server/protocol"
	"github.com/cyberinferno/game-server/session"
)

// Handler processes one decoded message for a session. Implementations must
// be safe for concurrent use: the same handler instance is invoked from
// every connection's pipeline goroutine.
//
// A returned error means the message could not be processed; the pipeline
// logs it and keeps the connection open. Handlers answer user-facing
// failures themselves with response messages and return nil.
type Handler interface {
	Handle(ctx context.Context, s *session.Session, msg protocol.Message) error
}

// Table maps message type codes to their handlers. Built once at startup and
// passed into the server; the heartbeat fast path never consults it.
type Table map[protocol.MessageType]Handler
