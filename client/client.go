// Package client provides an event-driven game client speaking the server's
// wire protocol. The integration tests drive it against a live server; it
// also serves as the reference implementation for client authors.
package client

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cyberinferno/game-server/protocol"
)

// State represents the client's connection state.
type State int32

const (
	Disconnected State = iota // Not connected
	Connecting                // Dial in progress
	Connected                 // Connected and reading
	Closed                    // Closed; the client must not be reused
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// StateHandler is called when the connection state changes. A non-nil error
// explains an involuntary transition. Invoked from client goroutines;
// implementations must be safe for concurrent use.
type StateHandler func(state State, err error)

// MessageHandler is called with each decoded server message, from the
// client's reader goroutine.
type MessageHandler func(msg protocol.Message)

// ErrorHandler is called when a frame cannot be decoded.
type ErrorHandler func(err error)

// Config holds connection settings for the game client.
type Config struct {
	// Address is the server's "host:port".
	Address string
	// ConnectTimeout bounds the dial; 0 means no timeout.
	ConnectTimeout time.Duration
	// WriteTimeout bounds a single send; 0 means no timeout.
	WriteTimeout time.Duration
	// MaxMessageBytes bounds inbound frame payloads.
	MaxMessageBytes int
}

// DefaultConfig returns a Config with defaults for the given address:
// 10s connect timeout, 10s write timeout, 1 MiB frame limit.
func DefaultConfig(address string) Config {
	return Config{
		Address:         address,
		ConnectTimeout:  10 * time.Second,
		WriteTimeout:    10 * time.Second,
		MaxMessageBytes: 1024 * 1024,
	}
}

// Client is an event-driven game protocol client. Register handlers, call
// Connect, then use Send or the Login/Chat/Heartbeat helpers. Safe for
// concurrent use.
type Client struct {
	config Config

	mu    sync.Mutex
	conn  net.Conn
	state State

	onState   StateHandler
	onMessage MessageHandler
	onError   ErrorHandler

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a game client in the Disconnected state.
func New(config Config) *Client {
	return &Client{
		config: config,
		state:  Disconnected,
		done:   make(chan struct{}),
	}
}

// OnState registers the state-change handler. Repeated calls replace the
// previous handler; nil clears it.
func (c *Client) OnState(handler StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = handler
}

// OnMessage registers the handler for decoded server messages.
func (c *Client) OnMessage(handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = handler
}

// OnError registers the handler for decode failures.
func (c *Client) OnError(handler ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = handler
}

// Connect dials the server and starts the reader goroutine.
//
// Returns:
//   - An error if the client is closed, already connected, or the dial fails
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return fmt.Errorf("client is closed")
	}
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return fmt.Errorf("already connected or connecting")
	}
	c.state = Connecting
	c.mu.Unlock()
	c.notifyState(Connecting, nil)

	conn, err := net.DialTimeout("tcp", c.config.Address, c.config.ConnectTimeout)
	if err != nil {
		c.mu.Lock()
		c.state = Disconnected
		c.mu.Unlock()
		c.notifyState(Disconnected, err)
		return fmt.Errorf("dial %s: %w", c.config.Address, err)
	}

	c.mu.Lock()
	if c.state == Closed {
		// Close ran while the dial was in flight; it never saw this
		// socket, so it is ours to clean up.
		c.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("client is closed")
	}
	c.conn = conn
	c.state = Connected
	c.mu.Unlock()
	c.notifyState(Connected, nil)

	c.wg.Add(1)
	go c.readLoop(conn)
	return nil
}

// Close shuts the client down and closes the connection. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return nil
	}
	c.state = Closed
	conn := c.conn
	c.conn = nil
	close(c.done)
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}

	c.wg.Wait()
	c.notifyState(Closed, nil)
	return err
}

// Send frames and writes a message to the server.
//
// Parameters:
//   - msg: The message to send
//
// Returns:
//   - An error if the client is not connected or the write fails
func (c *Client) Send(msg protocol.Message) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != Connected || conn == nil {
		return fmt.Errorf("not connected")
	}

	payload, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(payload)))
	copy(frame[4:], payload)

	if c.config.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}

	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}

// Login sends a Login message with the given credentials.
func (c *Client) Login(username, password, clientVersion string) error {
	msg := protocol.NewLogin(username, password)
	msg.ClientVersion = clientVersion
	return c.Send(msg)
}

// Chat sends a world chat message.
func (c *Client) Chat(content string) error {
	return c.Send(protocol.NewChat(content, protocol.ChannelWorld))
}

// PrivateChat sends a private chat message to one player.
func (c *Client) PrivateChat(receiverID, content string) error {
	msg := protocol.NewChat(content, protocol.ChannelPrivate)
	msg.ReceiverID = receiverID
	return c.Send(msg)
}

// Heartbeat sends a heartbeat stamped with the current time.
func (c *Client) Heartbeat() error {
	return c.Send(protocol.NewHeartbeat())
}

// State returns the client's current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// readLoop reads length-prefixed frames until the connection ends, decoding
// each payload and invoking the message handler.
func (c *Client) readLoop(conn net.Conn) {
	defer c.wg.Done()

	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			c.handleDisconnect(err)
			return
		}

		length := binary.BigEndian.Uint32(header)
		if length < 4 || int(length) > c.config.MaxMessageBytes {
			c.handleDisconnect(fmt.Errorf("invalid frame length %d", length))
			return
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(conn, payload); err != nil {
			c.handleDisconnect(err)
			return
		}

		msg, err := protocol.Decode(payload)
		if err != nil {
			c.notifyError(err)
			continue
		}

		c.notifyMessage(msg)
	}
}

// handleDisconnect moves the client to Disconnected unless Close already ran.
func (c *Client) handleDisconnect(err error) {
	select {
	case <-c.done:
		return
	default:
	}

	c.mu.Lock()
	if c.state == Connected {
		c.state = Disconnected
		if c.conn != nil {
			_ = c.conn.Close()
			c.conn = nil
		}
	}
	c.mu.Unlock()
	c.notifyState(Disconnected, err)
}

func (c *Client) notifyState(state State, err error) {
	c.mu.Lock()
	handler := c.onState
	c.mu.Unlock()

	if handler != nil {
		handler(state, err)
	}
}

func (c *Client) notifyMessage(msg protocol.Message) {
	c.mu.Lock()
	handler := c.onMessage
	c.mu.Unlock()

	if handler != nil {
		handler(msg)
	}
}

func (c *Client) notifyError(err error) {
	c.mu.Lock()
	handler := c.onError
	c.mu.Unlock()

	if handler != nil {
		handler(err)
	}
}
