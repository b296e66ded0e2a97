package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/cyberinferno/game-server/logger"
	"github.com/cyberinferno/game-server/metrics"
	"github.com/cyberinferno/game-server/protocol"
	"github.com/cyberinferno/game-server/session"
)

// ChatHandler routes chat messages by channel. Sender identity always comes
// from the authenticated session, never from the client-supplied fields.
type ChatHandler struct {
	registry *session.Registry
	log      logger.Logger
}

// NewChatHandler creates a ChatHandler backed by the given registry.
func NewChatHandler(registry *session.Registry, log logger.Logger) *ChatHandler {
	return &ChatHandler{
		registry: registry,
		log:      log.With(logger.Field{Key: "handler", Value: "chat"}),
	}
}

// Handle implements Handler.
func (h *ChatHandler) Handle(_ context.Context, s *session.Session, msg protocol.Message) error {
	chat, ok := msg.(*protocol.Chat)
	if !ok {
		return fmt.Errorf("chat handler received %s", msg.Type())
	}

	if !s.Authenticated() {
		h.log.Warn("unauthenticated session tried to chat",
			logger.Field{Key: "session", Value: s.ID()})
		h.respond(s, false, "Please login first")
		return nil
	}

	chat.SenderID = s.PlayerID()
	chat.SenderName = s.PlayerName()
	metrics.ChatMessages.WithLabelValues(string(chat.Channel)).Inc()

	h.log.Info("processing chat message",
		logger.Field{Key: "from", Value: chat.SenderName},
		logger.Field{Key: "channel", Value: string(chat.Channel)})

	switch chat.Channel {
	case protocol.ChannelWorld:
		h.handleWorld(s, chat)
	case protocol.ChannelPrivate:
		h.handlePrivate(s, chat)
	case protocol.ChannelGuild:
		// Placeholder contract: guild membership is a future collaborator.
		h.respond(s, false, "Guild chat not implemented yet")
	case protocol.ChannelTeam:
		// Placeholder contract: team membership is a future collaborator.
		h.respond(s, false, "Team chat not implemented yet")
	default:
		h.log.Warn("unsupported chat channel",
			logger.Field{Key: "channel", Value: string(chat.Channel)})
		h.respond(s, false, "Unsupported chat channel")
	}

	return nil
}

// handleWorld delivers the message to every authenticated session except the
// sender and acknowledges with the delivery count.
func (h *ChatHandler) handleWorld(sender *session.Session, chat *protocol.Chat) {
	sent := 0
	h.registry.Range(func(s *session.Session) bool {
		if s.Authenticated() && s.ID() != sender.ID() {
			s.Send(chat)
			sent++
		}
		return true
	})

	h.respond(sender, true, fmt.Sprintf("Message sent to %d players", sent))
	h.log.Info("world chat broadcast",
		logger.Field{Key: "from", Value: chat.SenderName},
		logger.Field{Key: "recipients", Value: sent})
}

// handlePrivate delivers the message to exactly one player by id.
func (h *ChatHandler) handlePrivate(sender *session.Session, chat *protocol.Chat) {
	receiverID := strings.TrimSpace(chat.ReceiverID)
	if receiverID == "" {
		h.respond(sender, false, "Receiver ID is required for private chat")
		return
	}

	receiver, ok := h.registry.GetByPlayerID(receiverID)
	if !ok || !receiver.Authenticated() {
		h.respond(sender, false, "Player not found or offline: "+receiverID)
		return
	}

	receiver.Send(chat)
	h.respond(sender, true, "Private message sent to "+receiver.PlayerName())
	h.log.Info("private chat delivered",
		logger.Field{Key: "from", Value: chat.SenderName},
		logger.Field{Key: "to", Value: receiver.PlayerName()})
}

func (h *ChatHandler) respond(s *session.Session, success bool, message string) {
	s.Send(protocol.NewChatResponse(success, message))
}
