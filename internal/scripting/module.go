package scripting

import (
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomserver/internal/logic"
)

// Global function names a script may define. Each is optional.
const (
	HookInitialize   = "initialize"
	HookTick         = "process_tick"
	HookCustomMethod = "process_custom_method"
	HookDeparture    = "process_departure"
)

var (
	_ logic.Initializer         = (*Module)(nil)
	_ logic.Ticker              = (*Module)(nil)
	_ logic.CustomMethodHandler = (*Module)(nil)
	_ logic.DepartureHandler    = (*Module)(nil)
)

// Module adapts one script VM to the logic hook interfaces. It is owned by a
// single room and only called from that room's goroutine.
type Module struct {
	name    string
	sandbox *Sandbox
	current logic.Room
	logger  *zap.Logger
}

// newModule loads proto into a fresh sandbox with the room API installed.
//
// Postcondition: On error no VM is leaked.
func newModule(name string, proto *lua.FunctionProto, instLimit int, logger *zap.Logger) (*Module, error) {
	m := &Module{
		name:    name,
		sandbox: NewSandbox(instLimit),
		logger:  logger.With(zap.String("script", name)),
	}
	m.registerRoomAPI(m.sandbox.L)
	if err := m.sandbox.Load(proto); err != nil {
		m.sandbox.Close()
		return nil, err
	}
	return m, nil
}

// Name returns the script name.
func (m *Module) Name() string { return m.name }

// Initialize calls initialize(options).
func (m *Module) Initialize(r logic.Room, opts logic.Options) error {
	return m.invoke(r, HookInitialize, toLua(m.sandbox.L, map[string]any(opts)))
}

// ProcessTick calls process_tick(elapsed_ms).
func (m *Module) ProcessTick(r logic.Room, elapsed time.Duration) error {
	ms := float64(elapsed) / float64(time.Millisecond)
	return m.invoke(r, HookTick, lua.LNumber(ms))
}

// ProcessCustomMethod calls process_custom_method(client, request) where
// client is {id = ..., session_id = ...}.
func (m *Module) ProcessCustomMethod(r logic.Room, c logic.Client, request map[string]any) error {
	L := m.sandbox.L
	client := L.NewTable()
	client.RawSetString("id", lua.LString(c.ID()))
	client.RawSetString("session_id", lua.LString(c.SessionID()))
	return m.invoke(r, HookCustomMethod, client, toLua(L, request))
}

// ProcessDeparture calls process_departure().
func (m *Module) ProcessDeparture(r logic.Room) error {
	return m.invoke(r, HookDeparture)
}

// Close releases the VM.
func (m *Module) Close() error {
	m.sandbox.Close()
	return nil
}

func (m *Module) invoke(r logic.Room, hook string, args ...lua.LValue) error {
	m.current = r
	defer func() { m.current = nil }()
	found, err := m.sandbox.Call(hook, args...)
	if !found && hook != HookTick {
		m.logger.Debug("script hook not defined", zap.String("hook", hook))
	}
	return err
}
