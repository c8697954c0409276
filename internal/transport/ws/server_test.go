package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/roomserver/internal/codec"
	"github.com/cory-johannsen/roomserver/internal/room"
	"github.com/cory-johannsen/roomserver/internal/room/state"
)

type departure struct {
	sessionID string
	consented bool
}

type fakeRooms struct {
	mu           sync.Mutex
	joinErr      error
	reconnecting map[string]bool
	joined       []state.Profile
	reconnected  []string
	delivered    []string
	departures   []departure
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{reconnecting: make(map[string]bool)}
}

func (f *fakeRooms) Join(_ context.Context, _ string, c room.Client, p state.Profile) error {
	f.mu.Lock()
	err := f.joinErr
	f.mu.Unlock()
	if errors.Is(err, room.ErrAccountInUse) {
		_ = c.Send(room.EventWalletNotPassed, nil)
		return err
	}
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.joined = append(f.joined, p)
	f.mu.Unlock()
	return c.Send(room.EventState, map[string]any{"sessionId": c.SessionID()})
}

func (f *fakeRooms) Reconnect(_ context.Context, _ string, c room.Client) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.reconnecting[c.SessionID()] {
		return fmt.Errorf("%w: %q", room.ErrNotReconnecting, c.SessionID())
	}
	delete(f.reconnecting, c.SessionID())
	f.reconnected = append(f.reconnected, c.SessionID())
	return nil
}

func (f *fakeRooms) Deliver(_ string, c room.Client, command string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, command+":"+string(data))
	if command == room.CmdPing {
		return c.Send(room.EventPing, 42)
	}
	return nil
}

func (f *fakeRooms) Leave(_ string, c room.Client, consented bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.departures = append(f.departures, departure{sessionID: c.SessionID(), consented: consented})
	return nil
}

func (f *fakeRooms) snapshot() (joined []state.Profile, reconnected, delivered []string, departures []departure) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]state.Profile(nil), f.joined...),
		append([]string(nil), f.reconnected...),
		append([]string(nil), f.delivered...),
		append([]departure(nil), f.departures...)
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, rooms Rooms) (*Server, string) {
	t.Helper()
	c, err := codec.New(codec.JSON)
	require.NoError(t, err)
	s := NewServer(rooms, c, Config{HandshakeTimeout: time.Second}, zaptest.NewLogger(t))
	n := 0
	var idMu sync.Mutex
	s.newID = func() string {
		idMu.Lock()
		defer idMu.Unlock()
		n++
		return fmt.Sprintf("sid-%d", n)
	}
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.ServeRoom(w, r, "r1")
	}))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, s.Shutdown(ctx))
		hs.Close()
	})
	return s, "ws" + strings.TrimPrefix(hs.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func next(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(msg, &f))
	return f
}

func closeCode(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.True(t, errors.As(err, &ce), "expected close frame, got %v", err)
		return ce.Code
	}
}

func TestServeRoom_FreshJoin(t *testing.T) {
	rooms := newFakeRooms()
	_, url := newTestServer(t, rooms)
	conn := dial(t, url)

	send(t, conn, `{"type":"join","data":{"account":"acct","name":"Ann","appearance":{"hat":"red"}}}`)
	assert.Equal(t, room.EventState, next(t, conn).Type)
	joined := next(t, conn)
	require.Equal(t, EventJoined, joined.Type)
	assert.JSONEq(t, `{"sessionId":"sid-1","roomId":"r1"}`, string(joined.Data))

	profiles, _, _, _ := rooms.snapshot()
	require.Len(t, profiles, 1)
	assert.Equal(t, "acct", profiles[0].Account)
	assert.Equal(t, "red", profiles[0].Appearance["hat"])
}

func TestServeRoom_DeliversCommands(t *testing.T) {
	rooms := newFakeRooms()
	_, url := newTestServer(t, rooms)
	conn := dial(t, url)
	send(t, conn, `{"type":"join","data":{"account":"a"}}`)
	next(t, conn)
	next(t, conn)

	send(t, conn, `not json`)
	send(t, conn, `{"type":"createEntity","data":{"creationId":"c"}}`)
	send(t, conn, `{"type":"ping"}`)
	pong := next(t, conn)
	assert.Equal(t, room.EventPing, pong.Type)
	assert.Equal(t, "42", string(pong.Data))

	_, _, delivered, _ := rooms.snapshot()
	assert.Equal(t, []string{`createEntity:{"creationId":"c"}`, "ping:"}, delivered)
}

func TestServeRoom_LeaveFrameIsConsented(t *testing.T) {
	rooms := newFakeRooms()
	_, url := newTestServer(t, rooms)
	conn := dial(t, url)
	send(t, conn, `{"type":"join","data":{"account":"a"}}`)
	next(t, conn)
	next(t, conn)

	send(t, conn, `{"type":"leave"}`)
	assert.Equal(t, websocket.CloseNormalClosure, closeCode(t, conn))
	_, _, _, departures := rooms.snapshot()
	assert.Equal(t, []departure{{sessionID: "sid-1", consented: true}}, departures)
}

func TestServeRoom_DropIsNotConsented(t *testing.T) {
	rooms := newFakeRooms()
	_, url := newTestServer(t, rooms)
	conn := dial(t, url)
	send(t, conn, `{"type":"join","data":{"account":"a"}}`)
	next(t, conn)
	next(t, conn)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		_, _, _, departures := rooms.snapshot()
		return len(departures) == 1 && !departures[0].consented
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServeRoom_ResumesAwaitingSession(t *testing.T) {
	rooms := newFakeRooms()
	rooms.reconnecting["old"] = true
	_, url := newTestServer(t, rooms)
	conn := dial(t, url)

	send(t, conn, `{"type":"join","data":{"sessionId":"old","account":"a"}}`)
	joined := next(t, conn)
	require.Equal(t, EventJoined, joined.Type)
	assert.JSONEq(t, `{"sessionId":"old","roomId":"r1"}`, string(joined.Data))

	profiles, reconnected, _, _ := rooms.snapshot()
	assert.Empty(t, profiles)
	assert.Equal(t, []string{"old"}, reconnected)
}

func TestServeRoom_UnknownSessionJoinsFresh(t *testing.T) {
	rooms := newFakeRooms()
	_, url := newTestServer(t, rooms)
	conn := dial(t, url)

	send(t, conn, `{"type":"join","data":{"sessionId":"stale","account":"a"}}`)
	next(t, conn)
	joined := next(t, conn)
	assert.JSONEq(t, `{"sessionId":"sid-1","roomId":"r1"}`, string(joined.Data))
}

func TestServeRoom_RejectsNonJoinHandshake(t *testing.T) {
	rooms := newFakeRooms()
	_, url := newTestServer(t, rooms)
	conn := dial(t, url)

	send(t, conn, `{"type":"ping"}`)
	assert.Equal(t, websocket.ClosePolicyViolation, closeCode(t, conn))
	profiles, _, delivered, _ := rooms.snapshot()
	assert.Empty(t, profiles)
	assert.Empty(t, delivered)
}

func TestServeRoom_AccountInUseFlushesNotice(t *testing.T) {
	rooms := newFakeRooms()
	rooms.joinErr = fmt.Errorf("%w: %q", room.ErrAccountInUse, "a")
	_, url := newTestServer(t, rooms)
	conn := dial(t, url)

	send(t, conn, `{"type":"join","data":{"account":"a"}}`)
	assert.Equal(t, room.EventWalletNotPassed, next(t, conn).Type)
	assert.Equal(t, websocket.ClosePolicyViolation, closeCode(t, conn))
	_, _, _, departures := rooms.snapshot()
	assert.Empty(t, departures)
}

func TestServeRoom_FullRoom(t *testing.T) {
	rooms := newFakeRooms()
	rooms.joinErr = room.ErrRoomFull
	_, url := newTestServer(t, rooms)
	conn := dial(t, url)

	send(t, conn, `{"type":"join","data":{"account":"a"}}`)
	assert.Equal(t, websocket.CloseTryAgainLater, closeCode(t, conn))
}

func TestShutdown_ClosesLiveConnections(t *testing.T) {
	rooms := newFakeRooms()
	s, url := newTestServer(t, rooms)
	conn := dial(t, url)
	send(t, conn, `{"type":"join","data":{"account":"a"}}`)
	next(t, conn)
	next(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	_, _, _, departures := rooms.snapshot()
	assert.Equal(t, []departure{{sessionID: "sid-1", consented: false}}, departures)
}
