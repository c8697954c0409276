package logic

import (
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// Hook names used in diagnostics.
const (
	HookInitialize   = "Initialize"
	HookTick         = "ProcessTick"
	HookCustomMethod = "ProcessCustomMethod"
	HookDeparture    = "ProcessDeparture"
)

// Host owns one room's module and guards every hook invocation.
//
// A Host with a nil module is valid; every call is then a logged no-op.
type Host struct {
	name   string
	module Module
	logger *zap.Logger
}

// NewHost wraps module (which may be nil) loaded under name.
//
// Precondition: logger must be non-nil.
func NewHost(name string, module Module, logger *zap.Logger) *Host {
	return &Host{
		name:   name,
		module: module,
		logger: logger.With(zap.String("logic", name)),
	}
}

// Name returns the module name, or "" when no module is loaded.
func (h *Host) Name() string {
	return h.name
}

// Loaded reports whether a module is present.
func (h *Host) Loaded() bool {
	return h.module != nil
}

// Initialize calls the module's Initialize hook.
func (h *Host) Initialize(r Room, opts Options) {
	m, ok := h.module.(Initializer)
	if !ok {
		h.missing(HookInitialize)
		return
	}
	h.guard(HookInitialize, func() error { return m.Initialize(r, opts) })
}

// ProcessTick calls the module's per-tick hook.
func (h *Host) ProcessTick(r Room, elapsed time.Duration) {
	m, ok := h.module.(Ticker)
	if !ok {
		return
	}
	h.guard(HookTick, func() error { return m.ProcessTick(r, elapsed) })
}

// ProcessCustomMethod forwards a customMethod request.
func (h *Host) ProcessCustomMethod(r Room, c Client, request map[string]any) {
	m, ok := h.module.(CustomMethodHandler)
	if !ok {
		h.missing(HookCustomMethod)
		return
	}
	h.guard(HookCustomMethod, func() error { return m.ProcessCustomMethod(r, c, request) })
}

// ProcessDeparture runs after a connection's purge.
func (h *Host) ProcessDeparture(r Room) {
	m, ok := h.module.(DepartureHandler)
	if !ok {
		h.missing(HookDeparture)
		return
	}
	h.guard(HookDeparture, func() error { return m.ProcessDeparture(r) })
}

// Close releases module resources if the module implements io.Closer.
func (h *Host) Close() error {
	if c, ok := h.module.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// guard runs fn, converting a returned error or a panic into a Warn log.
func (h *Host) guard(hook string, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Warn("logic hook panicked",
				zap.String("hook", hook),
				zap.String("panic", fmt.Sprint(rec)),
			)
		}
	}()
	if err := fn(); err != nil {
		h.logger.Warn("logic hook failed",
			zap.String("hook", hook),
			zap.Error(err),
		)
	}
}

func (h *Host) missing(hook string) {
	h.logger.Debug("logic hook not implemented", zap.String("hook", hook))
}
