package ws

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/cory-johannsen/roomserver/internal/codec"
)

// ErrConnClosed is returned by Send after the connection's queue is closed.
var ErrConnClosed = errors.New("ws: connection closed")

// ErrSendBufferFull is returned by Send when the writer has fallen behind.
var ErrSendBufferFull = errors.New("ws: send buffer full")

// Conn is one participant connection as seen by a room. Send encodes on the
// caller's goroutine and queues the frame for the socket writer.
type Conn struct {
	sessionID string
	codec     codec.Codec
	frames    chan []byte

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string
}

// NewConn creates a Conn for sessionID.
//
// Precondition: sessionID must be non-empty; c must be non-nil.
// Postcondition: Returns a Conn with an open frame queue of at least one slot.
func NewConn(sessionID string, c codec.Codec, buffer int) *Conn {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Conn{
		sessionID: sessionID,
		codec:     c,
		frames:    make(chan []byte, buffer),
		closeCode: websocket.CloseNormalClosure,
	}
}

// ID is the connection identity; it equals the session id.
func (c *Conn) ID() string { return c.sessionID }

// SessionID returns the session the connection is bound to.
func (c *Conn) SessionID() string { return c.sessionID }

// Send encodes event and queues it without blocking.
//
// Postcondition: Returns ErrConnClosed after Close and ErrSendBufferFull when
// the queue has no free slot; the frame is dropped in both cases.
func (c *Conn) Send(event string, payload any) error {
	frame, err := c.codec.Encode(event, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: %s", ErrConnClosed, c.sessionID)
	}
	select {
	case c.frames <- frame:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrSendBufferFull, c.sessionID)
	}
}

// Frames returns the queue the socket writer drains.
func (c *Conn) Frames() <-chan []byte { return c.frames }

// Close closes the queue with a normal closure.
func (c *Conn) Close() { c.CloseWith(websocket.CloseNormalClosure, "") }

// CloseWith closes the queue; the writer flushes what is queued and then
// sends a close frame carrying code and reason. Only the first call counts.
func (c *Conn) CloseWith(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.frames)
}

// IsClosed reports whether the queue has been closed.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) closeMessage() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.FormatCloseMessage(c.closeCode, c.closeReason)
}
