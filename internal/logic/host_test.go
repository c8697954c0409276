package logic_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/roomserver/internal/logic"
)

type tickOnly struct{ ticks int }

func (m *tickOnly) ProcessTick(logic.Room, time.Duration) error {
	m.ticks++
	return nil
}

type panicky struct{}

func (panicky) Initialize(logic.Room, logic.Options) error { panic("boom") }
func (panicky) ProcessDeparture(logic.Room) error          { return errors.New("departure failed") }

func newObservedHost(t *testing.T, m logic.Module) (*logic.Host, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return logic.NewHost("test", m, zap.New(core)), logs
}

func TestHost_NilModuleIsNoOp(t *testing.T) {
	h, logs := newObservedHost(t, nil)
	assert.False(t, h.Loaded())
	h.Initialize(nil, nil)
	h.ProcessTick(nil, time.Millisecond)
	h.ProcessCustomMethod(nil, nil, nil)
	h.ProcessDeparture(nil)
	require.NoError(t, h.Close())
	for _, e := range logs.All() {
		assert.Equal(t, zap.DebugLevel, e.Level)
	}
}

func TestHost_PartialModule(t *testing.T) {
	m := &tickOnly{}
	h, _ := newObservedHost(t, m)
	h.Initialize(nil, nil)
	h.ProcessTick(nil, 50*time.Millisecond)
	h.ProcessTick(nil, 50*time.Millisecond)
	h.ProcessDeparture(nil)
	assert.Equal(t, 2, m.ticks)
}

func TestHost_PanicAndErrorAreContained(t *testing.T) {
	h, logs := newObservedHost(t, panicky{})
	assert.NotPanics(t, func() { h.Initialize(nil, nil) })
	assert.NotPanics(t, func() { h.ProcessDeparture(nil) })

	warns := logs.FilterLevelExact(zap.WarnLevel).All()
	require.Len(t, warns, 2)
	assert.Equal(t, "logic hook panicked", warns[0].Message)
	assert.Equal(t, "logic hook failed", warns[1].Message)
}

func TestRegistry_ResolveAndDuplicate(t *testing.T) {
	reg := logic.NewRegistry()
	require.NoError(t, reg.Register("ticker", func(*zap.Logger) (logic.Module, error) { return &tickOnly{}, nil }))
	assert.Error(t, reg.Register("ticker", func(*zap.Logger) (logic.Module, error) { return nil, nil }))
	assert.Error(t, reg.Register("", func(*zap.Logger) (logic.Module, error) { return nil, nil }))

	logger := zaptest.NewLogger(t)
	m1, err := reg.Resolve("ticker", logger)
	require.NoError(t, err)
	m2, err := reg.Resolve("ticker", logger)
	require.NoError(t, err)
	assert.NotSame(t, m1, m2, "each room gets its own instance")

	none, err := reg.Resolve("", logger)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = reg.Resolve("missing", logger)
	assert.True(t, errors.Is(err, logic.ErrUnknownLogic))
	assert.Equal(t, []string{"ticker"}, reg.Names())
}
