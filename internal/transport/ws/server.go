// Package ws carries room traffic over websockets.
//
// A connection opens with a join frame {"type":"join","data":{...}}. A join
// naming a session that is awaiting reconnection resumes it; any other join
// is admitted under a fresh session id. Every later frame is an inbound room
// command except "leave", which departs with consent.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomserver/internal/codec"
	"github.com/cory-johannsen/roomserver/internal/room"
	"github.com/cory-johannsen/roomserver/internal/room/state"
)

// Frame types handled by the transport itself.
const (
	FrameJoin   = "join"
	FrameLeave  = "leave"
	EventJoined = "joined"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultReadTimeout      = 60 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultSendBuffer       = 256
	DefaultMaxMessageSize   = 64 * 1024
)

// ErrBadHandshake is returned when the first frame is not a valid join.
var ErrBadHandshake = errors.New("ws: expected join frame")

// Rooms is the room surface the transport drives.
type Rooms interface {
	Join(ctx context.Context, roomID string, c room.Client, profile state.Profile) error
	Reconnect(ctx context.Context, roomID string, c room.Client) error
	Deliver(roomID string, c room.Client, command string, data []byte) error
	Leave(roomID string, c room.Client, consented bool) error
}

// Config holds websocket timing and sizing.
type Config struct {
	// ReadTimeout is how long a silent peer is kept; pings go out at 9/10 of it.
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	SendBuffer       int
	MaxMessageSize   int64
}

func (c Config) withDefaults() Config {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	return c
}

// JoinRequest is the payload of the opening frame.
type JoinRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	state.Profile
}

// Joined is sent once the connection is seated.
type Joined struct {
	SessionID string `json:"sessionId"`
	RoomID    string `json:"roomId"`
}

// Server upgrades HTTP requests into room connections.
type Server struct {
	rooms    Rooms
	codec    codec.Codec
	cfg      Config
	upgrader websocket.Upgrader
	newID    func() string
	logger   *zap.Logger

	mu      sync.Mutex
	sockets map[*websocket.Conn]struct{}
	closing bool
	active  sync.WaitGroup
}

// NewServer creates a Server.
//
// Precondition: rooms, c and logger must be non-nil.
func NewServer(rooms Rooms, c codec.Codec, cfg Config, logger *zap.Logger) *Server {
	return &Server{
		rooms: rooms,
		codec: c,
		cfg:   cfg.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		newID:   uuid.NewString,
		sockets: make(map[*websocket.Conn]struct{}),
		logger:  logger,
	}
}

// ServeRoom upgrades r and runs the connection against roomID until either
// side goes away.
func (s *Server) ServeRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	if !s.track(ws) {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		_ = ws.Close()
		return
	}
	defer s.untrack(ws)

	logger := s.logger.With(zap.String("room_id", roomID), zap.String("remote", r.RemoteAddr))
	req, err := s.handshake(ws)
	if err != nil {
		logger.Info("handshake rejected", zap.Error(err))
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected join"),
			time.Now().Add(time.Second))
		return
	}

	c, err := s.attach(r.Context(), roomID, req)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(ws, c)
	}()
	if err != nil {
		logger.Info("join rejected", zap.String("session_id", c.SessionID()), zap.Error(err))
		c.CloseWith(closeCodeFor(err), closeReasonFor(err))
		<-writerDone
		return
	}
	logger = logger.With(zap.String("session_id", c.SessionID()))
	if err := c.Send(EventJoined, Joined{SessionID: c.SessionID(), RoomID: roomID}); err != nil {
		logger.Warn("joined notice dropped", zap.Error(err))
	}
	logger.Info("connection seated")

	departed := s.readPump(ws, c, roomID, logger)
	if !departed {
		if err := s.rooms.Leave(roomID, c, false); err != nil {
			logger.Debug("leave after disconnect not delivered", zap.Error(err))
		}
	}
	c.Close()
	<-writerDone
	logger.Info("connection closed", zap.Bool("departed", departed))
}

// Shutdown closes every open socket and waits for their handlers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for ws := range s.sockets {
		_ = ws.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ws: waiting for connections: %w", ctx.Err())
	}
}

func (s *Server) track(ws *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sockets[ws] = struct{}{}
	s.active.Add(1)
	return true
}

func (s *Server) untrack(ws *websocket.Conn) {
	s.mu.Lock()
	delete(s.sockets, ws)
	s.mu.Unlock()
	_ = ws.Close()
	s.active.Done()
}

func (s *Server) handshake(ws *websocket.Conn) (JoinRequest, error) {
	ws.SetReadLimit(s.cfg.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	_, msg, err := ws.ReadMessage()
	if err != nil {
		return JoinRequest{}, fmt.Errorf("reading join frame: %w", err)
	}
	in, err := codec.DecodeInbound(msg)
	if err != nil {
		return JoinRequest{}, fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}
	if in.Type != FrameJoin {
		return JoinRequest{}, fmt.Errorf("%w: got %q", ErrBadHandshake, in.Type)
	}
	var req JoinRequest
	if len(in.Data) > 0 {
		if err := json.Unmarshal(in.Data, &req); err != nil {
			return JoinRequest{}, fmt.Errorf("%w: %v", ErrBadHandshake, err)
		}
	}
	return req, nil
}

// attach seats the connection. A session id that is not awaiting
// reconnection falls through to a fresh join.
//
// Postcondition: Always returns a non-nil Conn, even alongside an error, so
// anything the room queued for it can still be flushed.
func (s *Server) attach(ctx context.Context, roomID string, req JoinRequest) (*Conn, error) {
	if req.SessionID != "" {
		c := NewConn(req.SessionID, s.codec, s.cfg.SendBuffer)
		err := s.rooms.Reconnect(ctx, roomID, c)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, room.ErrNotReconnecting) {
			return c, err
		}
	}
	c := NewConn(s.newID(), s.codec, s.cfg.SendBuffer)
	return c, s.rooms.Join(ctx, roomID, c, req.Profile)
}

// readPump forwards frames until the peer leaves or the socket fails. It
// reports whether the room has already been told about the departure.
func (s *Server) readPump(ws *websocket.Conn, c *Conn, roomID string, logger *zap.Logger) bool {
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read failed", zap.Error(err))
			}
			return false
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		in, err := codec.DecodeInbound(msg)
		if err != nil {
			logger.Debug("dropping malformed frame", zap.Error(err))
			continue
		}
		if in.Type == FrameLeave {
			if err := s.rooms.Leave(roomID, c, true); err != nil {
				logger.Debug("leave not delivered", zap.Error(err))
			}
			return true
		}
		if err := s.rooms.Deliver(roomID, c, in.Type, in.Data); err != nil {
			logger.Info("room unavailable; closing connection", zap.Error(err))
			return true
		}
	}
}

// writePump drains c onto the socket and keeps the peer alive with pings.
// A write failure closes the socket so the reader unblocks.
func (s *Server) writePump(ws *websocket.Conn, c *Conn) {
	ticker := time.NewTicker(s.cfg.ReadTimeout * 9 / 10)
	defer ticker.Stop()
	frameType := s.codec.FrameType()

	for {
		select {
		case frame, ok := <-c.Frames():
			_ = ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, c.closeMessage())
				return
			}
			if err := ws.WriteMessage(frameType, frame); err != nil {
				_ = ws.Close()
				s.drain(c)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = ws.Close()
				s.drain(c)
				return
			}
		}
	}
}

// drain discards queued frames until c is closed.
func (s *Server) drain(c *Conn) {
	for range c.Frames() {
	}
}

func closeCodeFor(err error) int {
	switch {
	case errors.Is(err, room.ErrRoomFull):
		return websocket.CloseTryAgainLater
	case errors.Is(err, room.ErrAccountInUse):
		return websocket.ClosePolicyViolation
	default:
		return websocket.CloseNormalClosure
	}
}

func closeReasonFor(err error) string {
	switch {
	case errors.Is(err, room.ErrRoomFull):
		return "room full"
	case errors.Is(err, room.ErrAccountInUse):
		return "account in use"
	default:
		return "room unavailable"
	}
}
