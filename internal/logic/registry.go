package logic

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrUnknownLogic is returned when a module name has no registered factory.
var ErrUnknownLogic = errors.New("logic: unknown module")

// Factory builds a fresh Module instance for one room.
type Factory func(logger *zap.Logger) (Module, error)

// Registry resolves module names to factories. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds name to f.
//
// Precondition: name must be non-empty; f must be non-nil.
// Postcondition: Returns an error if name is already registered.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return errors.New("logic: module name must not be empty")
	}
	if f == nil {
		return fmt.Errorf("logic: nil factory for %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("logic: module %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Resolve instantiates the module registered under name. An empty name
// resolves to no module (nil, nil).
//
// Postcondition: Returns ErrUnknownLogic (wrapped) for unregistered names.
func (r *Registry) Resolve(name string, logger *zap.Logger) (Module, error) {
	if name == "" {
		return nil, nil
	}
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLogic, name)
	}
	m, err := f(logger)
	if err != nil {
		return nil, fmt.Errorf("logic: instantiating %q: %w", name, err)
	}
	return m, nil
}

// Names returns the registered module names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
