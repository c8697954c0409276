package builtin_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/roomserver/internal/logic"
	"github.com/cory-johannsen/roomserver/internal/logic/builtin"
	"github.com/cory-johannsen/roomserver/internal/room"
	"github.com/cory-johannsen/roomserver/internal/room/schema"
	"github.com/cory-johannsen/roomserver/internal/room/state"
)

type nopClient struct{ sid string }

func (c nopClient) ID() string            { return c.sid }
func (c nopClient) SessionID() string     { return c.sid }
func (c nopClient) Send(string, any) error { return nil }

func newSpinnerRoom(t *testing.T, opts logic.Options) (*room.Room, room.Client) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	reg := logic.NewRegistry()
	require.NoError(t, builtin.Register(reg))
	mod, err := reg.Resolve(builtin.SpinnerName, logger)
	require.NoError(t, err)
	validator, err := schema.NewValidator()
	require.NoError(t, err)

	r := room.New("spin-room", room.DefaultConfig(), opts, room.Deps{
		Host:      logic.NewHost(builtin.SpinnerName, mod, logger),
		Validator: validator,
		Scheduler: room.SystemScheduler{},
		Logger:    logger,
	})
	c := nopClient{sid: "s1"}
	_, err = r.Join(c, state.Profile{Account: "a"})
	require.NoError(t, err)
	return r, c
}

func spinEntity(t *testing.T, r *room.Room, c room.Client, speed any) *state.Entity {
	t.Helper()
	require.True(t, r.HandleMessage(c, room.CmdCreateEntity, json.RawMessage(`{"attributes":{}}`)))
	keys := r.State().Entities.Keys()
	e, _ := r.State().Entities.Get(keys[len(keys)-1])
	req := map[string]any{"method": "spin", "entityId": e.ID}
	if speed != nil {
		req["speed"] = speed
	}
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	require.True(t, r.HandleMessage(c, room.CmdCustomMethod, payload))
	return e
}

func TestRegister_Twice(t *testing.T) {
	reg := logic.NewRegistry()
	require.NoError(t, builtin.Register(reg))
	assert.Error(t, builtin.Register(reg))
	assert.Equal(t, []string{builtin.SpinnerName}, reg.Names())
}

func TestSpinner_TurnsEntity(t *testing.T) {
	r, c := newSpinnerRoom(t, nil)
	e := spinEntity(t, r, c, 180)
	assert.Equal(t, "180", e.Attributes[builtin.SpinAttribute])

	r.Tick(500 * time.Millisecond) // 90 degrees
	assert.InDelta(t, math.Sin(math.Pi/4), e.Rotation.Y, 1e-9)
	assert.InDelta(t, math.Cos(math.Pi/4), e.Rotation.W, 1e-9)
	assert.Equal(t, float64(500), e.Timestamp)
}

func TestSpinner_DefaultSpeedFromOptions(t *testing.T) {
	r, c := newSpinnerRoom(t, logic.Options{"spinSpeed": 45})
	e := spinEntity(t, r, c, nil)
	assert.Equal(t, "45", e.Attributes[builtin.SpinAttribute])
}

func TestSpinner_Stop(t *testing.T) {
	r, c := newSpinnerRoom(t, nil)
	e := spinEntity(t, r, c, nil)
	r.Tick(time.Second)
	turned := e.Rotation

	payload, err := json.Marshal(map[string]any{"method": "stop", "entityId": e.ID})
	require.NoError(t, err)
	require.True(t, r.HandleMessage(c, room.CmdCustomMethod, payload))
	r.Tick(time.Second)
	assert.Equal(t, turned, e.Rotation)
}

func TestSpinner_IgnoresStillEntities(t *testing.T) {
	r, c := newSpinnerRoom(t, nil)
	require.True(t, r.HandleMessage(c, room.CmdCreateEntity, json.RawMessage(`{"attributes":{"spin":"fast"}}`)))
	e, _ := r.State().Entities.Get(r.State().Entities.Keys()[0])
	r.Tick(time.Second)
	assert.Equal(t, state.IdentityQuat, e.Rotation)
	assert.Equal(t, float64(0), e.Timestamp)
}

func TestSpinner_UnknownEntityErrors(t *testing.T) {
	logger := zaptest.NewLogger(t)
	mod, err := builtin.NewSpinner(logger)
	require.NoError(t, err)
	r, c := newSpinnerRoom(t, nil)
	err = mod.(logic.CustomMethodHandler).ProcessCustomMethod(r, c, map[string]any{"method": "spin", "entityId": "ghost"})
	assert.Error(t, err)
}

func TestSpinner_InvalidOption(t *testing.T) {
	mod, err := builtin.NewSpinner(zaptest.NewLogger(t))
	require.NoError(t, err)
	err = mod.(logic.Initializer).Initialize(nil, logic.Options{"spinSpeed": "quick"})
	assert.Error(t, err)
}

func TestProperty_RotationStaysUnit(t *testing.T) {
	r, c := newSpinnerRoom(t, nil)
	e := spinEntity(t, r, c, 33.3)
	rapid.Check(t, func(rt *rapid.T) {
		ms := rapid.IntRange(1, 5000).Draw(rt, "ms")
		r.Tick(time.Duration(ms) * time.Millisecond)
		q := e.Rotation
		norm := q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W
		if math.Abs(norm-1) > 1e-9 {
			rt.Fatalf("rotation not unit: %+v", q)
		}
	})
}
