package server

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/cyberinferno/game-server/logger"
	"github.com/cyberinferno/game-server/metrics"
	"github.com/cyberinferno/game-server/protocol"
	"github.com/cyberinferno/game-server/session"
)

const lengthPrefixSize = 4

// conn is the per-connection pipeline. It owns the socket, runs the framed
// read loop and the outbound write pump, and implements session.Conn so the
// session layer can send and close without knowing about TCP.
type conn struct {
	nc  net.Conn
	srv *Server
	log logger.Logger

	sess *session.Session

	out       chan []byte
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	limiter *rate.Limiter
}

func newConn(nc net.Conn, srv *Server) *conn {
	c := &conn{
		nc:   nc,
		srv:  srv,
		log:  srv.log.With(logger.Field{Key: "remote", Value: nc.RemoteAddr().String()}),
		out:  make(chan []byte, srv.opts.OutboundQueueSize),
		done: make(chan struct{}),
	}

	if srv.opts.RateLimitEnabled {
		c.limiter = rate.NewLimiter(rate.Limit(srv.opts.MessagesPerSecond), srv.opts.RateLimitBurst)
	}

	return c
}

// WriteMessage implements session.Conn: it frames and enqueues a message on
// the outbound queue without blocking. Per-connection write order is FIFO
// because a single write pump drains the queue. A full queue drops the
// message rather than stalling the caller.
func (c *conn) WriteMessage(msg protocol.Message) error {
	if c.closed.Load() {
		return fmt.Errorf("connection closed")
	}

	payload, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	frame := make([]byte, lengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(frame[:lengthPrefixSize], uint32(len(payload)))
	copy(frame[lengthPrefixSize:], payload)

	select {
	case c.out <- frame:
		return nil
	case <-c.done:
		return fmt.Errorf("connection closed")
	default:
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonBackpressure).Inc()
		return fmt.Errorf("outbound queue full, message dropped")
	}
}

// Close implements session.Conn. Idempotent; safe from the pipeline, the
// sweep, and duplicate-login eviction concurrently.
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		_ = c.nc.Close()
	})

	return nil
}

// RemoteAddr implements session.Conn.
func (c *conn) RemoteAddr() string {
	return c.nc.RemoteAddr().String()
}

// serve runs the connection's lifecycle: register a session, pump writes,
// read frames until the connection dies, then clean up. Only transport
// errors end the loop; decode failures, unknown types, rate-limit drops and
// handler errors all leave the connection open.
func (c *conn) serve(ctx context.Context) {
	c.sess = session.New(c, c.srv.log)
	c.log = c.log.With(logger.Field{Key: "session", Value: c.sess.ID()})
	c.srv.registry.Add(c.sess)
	c.log.Info("client connected")

	go c.writeLoop()

	// Unblock a pending read when the server stops: the read loop only
	// checks ctx between frames, so a socket mid-read must be closed from
	// outside for Stop to return before the read deadline.
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.done:
		}
	}()

	defer func() {
		c.sess.Close()
		c.srv.registry.Remove(c.sess.ID())
		c.srv.active.Add(-1)
		metrics.ActiveConnections.Dec()
		c.log.Info("client disconnected",
			logger.Field{Key: "player", Value: c.sess.PlayerID()})
	}()

	header := make([]byte, lengthPrefixSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		payload, err := c.readFrame(header)
		if err != nil {
			c.logReadEnd(err)
			return
		}
		if payload == nil {
			// Frame dropped by the rate limiter.
			continue
		}

		c.sess.Touch()
		metrics.MessagesReceived.Inc()

		msg, err := protocol.Decode(payload)
		if err != nil {
			metrics.MessagesDropped.WithLabelValues(metrics.ReasonDecode).Inc()
			c.log.Warn("dropping malformed frame", logger.Field{Key: "error", Value: err})
			continue
		}

		c.dispatch(ctx, msg)
	}
}

// readFrame reads one length-prefixed frame. It returns (nil, nil) when the
// rate limiter discards the frame. Oversized or undersized lengths are
// protocol violations and close the connection.
func (c *conn) readFrame(header []byte) ([]byte, error) {
	deadline := time.Now().Add(c.srv.opts.IdleReadTimeout)
	if err := c.nc.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(c.nc, header); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header)
	if length < lengthPrefixSize {
		return nil, fmt.Errorf("frame length %d below minimum", length)
	}
	if int(length) > c.srv.opts.MaxMessageBytes {
		return nil, fmt.Errorf("frame length %d exceeds limit %d", length, c.srv.opts.MaxMessageBytes)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.nc, payload); err != nil {
		return nil, err
	}

	if c.limiter != nil && !c.limiter.Allow() {
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonRateLimit).Inc()
		c.log.Warn("inbound rate limit exceeded, dropping frame")
		return nil, nil
	}

	return payload, nil
}

// dispatch routes one decoded message. Heartbeats are echoed on the fast
// path; everything else goes through the handler table. A handler panic or
// error is contained to this message.
func (c *conn) dispatch(ctx context.Context, msg protocol.Message) {
	if hb, ok := msg.(*protocol.Heartbeat); ok {
		c.log.Debug("heartbeat received")
		c.sess.Send(protocol.NewHeartbeatEcho(hb.ClientTimestamp))
		return
	}

	h, ok := c.srv.handlers[msg.Type()]
	if !ok {
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonNoHandler).Inc()
		c.log.Warn("no handler for message type",
			logger.Field{Key: "type", Value: msg.Type().String()})
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error("handler panic",
				logger.Field{Key: "type", Value: msg.Type().String()},
				logger.Field{Key: "panic", Value: rec})
		}
	}()

	if err := h.Handle(ctx, c.sess, msg); err != nil {
		c.log.Error("handler error",
			logger.Field{Key: "type", Value: msg.Type().String()},
			logger.Field{Key: "error", Value: err})
	}
}

// writeLoop drains the outbound queue onto the socket. A write failure
// closes the connection; the read side then unwinds the session.
func (c *conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.out:
			if c.srv.opts.WriteTimeout > 0 {
				_ = c.nc.SetWriteDeadline(time.Now().Add(c.srv.opts.WriteTimeout))
			}

			if _, err := c.nc.Write(frame); err != nil {
				if !c.closed.Load() {
					c.log.Error("write failed, closing connection",
						logger.Field{Key: "error", Value: err})
				}
				_ = c.Close()
				return
			}

			metrics.MessagesSent.Inc()
		}
	}
}

// logReadEnd records why the read loop ended, at a severity matching the
// cause. Idle timeouts and peer closes are normal lifecycle events.
func (c *conn) logReadEnd(err error) {
	var netErr net.Error
	switch {
	case c.closed.Load():
		// Closed locally (stop, sweep, or eviction); nothing to report.
	case errors.As(err, &netErr) && netErr.Timeout():
		c.log.Info("idle timeout, closing connection")
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		c.log.Info("peer closed connection")
	default:
		c.log.Error("read failed, closing connection", logger.Field{Key: "error", Value: err})
	}
}
