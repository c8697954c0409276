// Package scripting hosts room behavior modules written in Lua. Each room
// gets its own sandboxed GopherLua VM; scripts are compiled once and shared
// between VMs as bytecode.
package scripting

import (
	"context"
	"fmt"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the opcode budget for one hook call when no
// override is configured.
const DefaultInstructionLimit = 100_000

// countingContext cancels itself after Done() has been called limit times.
// GopherLua's mainLoopWithContext calls Done() once per opcode, making this
// an exact instruction budget.
type countingContext struct {
	context.Context
	cancel    context.CancelFunc
	remaining *atomic.Int64
}

func (c *countingContext) Done() <-chan struct{} {
	if c.remaining.Add(-1) <= 0 {
		c.cancel()
	}
	return c.Context.Done()
}

// newCountingContext returns a context that cancels after limit calls to Done().
//
// Precondition: limit > 0.
func newCountingContext(limit int) (context.Context, context.CancelFunc) {
	base, cancel := context.WithCancel(context.Background())
	rem := &atomic.Int64{}
	rem.Store(int64(limit))
	return &countingContext{Context: base, cancel: cancel, remaining: rem}, cancel
}

// Sandbox is a restricted Lua VM that runs every entry point under a fresh
// opcode budget. Not safe for concurrent use.
type Sandbox struct {
	L     *lua.LState
	limit int
}

// NewSandbox creates a VM with only base, table, string and math loaded and
// the file/loader globals removed.
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
// Postcondition: The caller owns the Sandbox and must call Close.
func NewSandbox(instLimit int) *Sandbox {
	if instLimit <= 0 {
		instLimit = DefaultInstructionLimit
	}
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "collectgarbage", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	return &Sandbox{L: L, limit: instLimit}
}

// Limit returns the per-call opcode budget.
func (s *Sandbox) Limit() int { return s.limit }

// Load executes a compiled chunk, defining its globals in the VM.
func (s *Sandbox) Load(proto *lua.FunctionProto) error {
	fn := s.L.NewFunctionFromProto(proto)
	return s.call(fn, 0)
}

// DoString compiles and runs src under the budget.
func (s *Sandbox) DoString(src string) error {
	fn, err := s.L.LoadString(src)
	if err != nil {
		return fmt.Errorf("scripting: compiling chunk: %w", err)
	}
	return s.call(fn, 0)
}

// Call invokes the global function name with args and discards results.
//
// Postcondition: Returns (false, nil) when name is not a function.
func (s *Sandbox) Call(name string, args ...lua.LValue) (bool, error) {
	fn, ok := s.L.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return false, nil
	}
	if err := s.call(fn, 0, args...); err != nil {
		return true, fmt.Errorf("scripting: %s: %w", name, err)
	}
	return true, nil
}

// Close releases the VM.
func (s *Sandbox) Close() {
	s.L.Close()
}

func (s *Sandbox) call(fn *lua.LFunction, nret int, args ...lua.LValue) error {
	ctx, cancel := newCountingContext(s.limit)
	defer cancel()
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()
	return s.L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, args...)
}
