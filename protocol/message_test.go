package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageType(t *testing.T) {
	t.Run("each variant declares its registered type code", func(t *testing.T) {
		assert.Equal(t, MessageType(1001), NewLogin("u", "p").Type())
		assert.Equal(t, MessageType(1002), NewLoginResponse(true, "", "", "").Type())
		assert.Equal(t, MessageType(2001), NewChat("", ChannelWorld).Type())
		assert.Equal(t, MessageType(2002), NewChatResponse(true, "").Type())
		assert.Equal(t, MessageType(9001), NewHeartbeat().Type())
		assert.Equal(t, MessageType(9999), NewError("").Type())
	})

	t.Run("known codes have labels", func(t *testing.T) {
		assert.Equal(t, "LOGIN", TypeLogin.String())
		assert.Equal(t, "CHAT_RESPONSE", TypeChatResponse.String())
		assert.Equal(t, "HEARTBEAT", TypeHeartbeat.String())
	})

	t.Run("unknown codes print their numeric value", func(t *testing.T) {
		assert.Equal(t, "UNKNOWN(1234)", MessageType(1234).String())
	})
}

func TestEnvelope(t *testing.T) {
	t.Run("constructors assign unique message ids", func(t *testing.T) {
		a := NewHeartbeat()
		b := NewHeartbeat()

		assert.NotEmpty(t, a.MessageID)
		assert.NotEmpty(t, b.MessageID)
		assert.NotEqual(t, a.MessageID, b.MessageID)
	})

	t.Run("constructors stamp a creation timestamp", func(t *testing.T) {
		msg := NewChat("hi", ChannelWorld)
		assert.NotZero(t, msg.Timestamp)
	})
}
