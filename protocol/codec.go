package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// typeCodeSize is the length of the type code that starts every payload.
const typeCodeSize = 4

var (
	// ErrShortPayload is returned by Decode when the payload is too short to
	// contain a type code.
	ErrShortPayload = errors.New("payload shorter than type code")

	// ErrUnknownType is returned by Decode when the type code does not map to
	// a registered message variant. Callers drop the frame and continue.
	ErrUnknownType = errors.New("unknown message type")
)

// decoders is the closed registry mapping type codes to decode functions.
// Adding a variant means adding a constructor here; there is no runtime
// type discovery.
var decoders = map[MessageType]func([]byte) (Message, error){
	TypeLogin:         decodeJSON[*Login],
	TypeLoginResponse: decodeJSON[*LoginResponse],
	TypeChat:          decodeJSON[*Chat],
	TypeChatResponse:  decodeJSON[*ChatResponse],
	TypeHeartbeat:     decodeJSON[*Heartbeat],
	TypeError:         decodeJSON[*Error],
}

func decodeJSON[T Message](body []byte) (Message, error) {
	var msg T
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("decode %T: %w", msg, err)
	}

	return msg, nil
}

// Encode serializes a message into its payload form: a 4-byte big-endian
// type code followed by the UTF-8 JSON body. The transport prepends the
// length prefix; Encode does not.
//
// Parameters:
//   - msg: The message to serialize
//
// Returns:
//   - The payload bytes, or an error if JSON serialization fails
func Encode(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}

	out := make([]byte, typeCodeSize+len(body))
	binary.BigEndian.PutUint32(out[:typeCodeSize], uint32(msg.Type()))
	copy(out[typeCodeSize:], body)
	return out, nil
}

// Decode parses a payload (length prefix already stripped by the transport)
// into a typed message. Unknown type codes and malformed bodies produce an
// error; the connection pipeline treats both as drop-and-continue, never as
// fatal.
//
// Parameters:
//   - payload: One frame's payload: type code plus JSON body
//
// Returns:
//   - The decoded message, or an error if the payload is malformed
func Decode(payload []byte) (Message, error) {
	if len(payload) < typeCodeSize {
		return nil, ErrShortPayload
	}

	code := MessageType(int32(binary.BigEndian.Uint32(payload[:typeCodeSize])))
	decode, ok := decoders[code]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, int32(code))
	}

	return decode(payload[typeCodeSize:])
}
