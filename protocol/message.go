// Package protocol defines the typed messages exchanged with game clients
// and the codec that maps them onto the wire format. Every message variant
// carries exactly one numeric type code; the code is the sole discriminator
// used for both wire decoding and in-process routing.
package protocol

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType is the numeric code identifying a message variant on the wire.
type MessageType int32

const (
	TypeLogin         MessageType = 1001
	TypeLoginResponse MessageType = 1002
	TypeChat          MessageType = 2001
	TypeChatResponse  MessageType = 2002
	TypeHeartbeat     MessageType = 9001
	TypeError         MessageType = 9999
)

// String returns the human label for the type code.
func (t MessageType) String() string {
	switch t {
	case TypeLogin:
		return "LOGIN"
	case TypeLoginResponse:
		return "LOGIN_RESPONSE"
	case TypeChat:
		return "CHAT"
	case TypeChatResponse:
		return "CHAT_RESPONSE"
	case TypeHeartbeat:
		return "HEARTBEAT"
	case TypeError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(t))
	}
}

// Message is the interface implemented by all wire message variants.
type Message interface {
	// Type returns the variant's message type code.
	Type() MessageType
}

// Envelope holds the identity fields common to every message. It is embedded
// in each variant, serialized as part of the JSON body, and assigned at
// construction time by the New* constructors.
type Envelope struct {
	// MessageID is unique per message; it is not globally ordered.
	MessageID string `json:"messageId"`
	// Timestamp is the creation time in unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

func newEnvelope() Envelope {
	return Envelope{
		MessageID: uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
	}
}

// ChatChannel is the delivery scope of a chat message.
type ChatChannel string

const (
	ChannelWorld   ChatChannel = "WORLD"
	ChannelPrivate ChatChannel = "PRIVATE"
	ChannelGuild   ChatChannel = "GUILD"
	ChannelTeam    ChatChannel = "TEAM"
)

// Login is a client's authentication request.
type Login struct {
	Envelope
	Username      string `json:"username"`
	Password      string `json:"password"`
	ClientVersion string `json:"clientVersion,omitempty"`
}

// NewLogin creates a Login message with a fresh envelope.
func NewLogin(username, password string) *Login {
	return &Login{
		Envelope: newEnvelope(),
		Username: username,
		Password: password,
	}
}

// Type implements Message.
func (m *Login) Type() MessageType { return TypeLogin }

// LoginResponse is the server's answer to a Login message.
type LoginResponse struct {
	Envelope
	Success    bool   `json:"success"`
	PlayerID   string `json:"playerId,omitempty"`
	PlayerName string `json:"playerName,omitempty"`
	Message    string `json:"message"`
}

// NewLoginResponse creates a LoginResponse with a fresh envelope.
func NewLoginResponse(success bool, playerID, playerName, message string) *LoginResponse {
	return &LoginResponse{
		Envelope:   newEnvelope(),
		Success:    success,
		PlayerID:   playerID,
		PlayerName: playerName,
		Message:    message,
	}
}

// Type implements Message.
func (m *LoginResponse) Type() MessageType { return TypeLoginResponse }

// Chat is a chat message. SenderID and SenderName are assigned by the server
// from the sending session; client-supplied values are overwritten.
type Chat struct {
	Envelope
	SenderID   string      `json:"senderId,omitempty"`
	SenderName string      `json:"senderName,omitempty"`
	ReceiverID string      `json:"receiverId,omitempty"`
	Content    string      `json:"content"`
	Channel    ChatChannel `json:"channel"`
}

// NewChat creates a Chat message with a fresh envelope.
func NewChat(content string, channel ChatChannel) *Chat {
	return &Chat{
		Envelope: newEnvelope(),
		Content:  content,
		Channel:  channel,
	}
}

// Type implements Message.
func (m *Chat) Type() MessageType { return TypeChat }

// ChatResponse is the server's acknowledgement or rejection of a Chat message.
type ChatResponse struct {
	Envelope
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// NewChatResponse creates a ChatResponse with a fresh envelope.
func NewChatResponse(success bool, message string) *ChatResponse {
	return &ChatResponse{
		Envelope: newEnvelope(),
		Success:  success,
		Message:  message,
	}
}

// Type implements Message.
func (m *ChatResponse) Type() MessageType { return TypeChatResponse }

// Heartbeat keeps the connection alive. Clients stamp ClientTimestamp; the
// server echoes it back with ServerTimestamp filled in.
type Heartbeat struct {
	Envelope
	ClientTimestamp int64 `json:"clientTimestamp,omitempty"`
	ServerTimestamp int64 `json:"serverTimestamp,omitempty"`
}

// NewHeartbeat creates a client-side Heartbeat stamped with the current time.
func NewHeartbeat() *Heartbeat {
	return &Heartbeat{
		Envelope:        newEnvelope(),
		ClientTimestamp: time.Now().UnixMilli(),
	}
}

// NewHeartbeatEcho creates the server's reply to a received Heartbeat,
// echoing the client timestamp and stamping the server time.
func NewHeartbeatEcho(clientTimestamp int64) *Heartbeat {
	return &Heartbeat{
		Envelope:        newEnvelope(),
		ClientTimestamp: clientTimestamp,
		ServerTimestamp: time.Now().UnixMilli(),
	}
}

// Type implements Message.
func (m *Heartbeat) Type() MessageType { return TypeHeartbeat }

// Error is a generic error envelope. The server reserves the type code but
// no current handler emits it; it exists so clients can decode it.
type Error struct {
	Envelope
	Message string `json:"message"`
}

// NewError creates an Error message with a fresh envelope.
func NewError(message string) *Error {
	return &Error{
		Envelope: newEnvelope(),
		Message:  message,
	}
}

// Type implements Message.
func (m *Error) Type() MessageType { return TypeError }
