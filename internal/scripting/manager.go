package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomserver/internal/logic"
)

// Manager compiles behavior scripts once and instantiates a fresh VM per room.
//
// Manager is safe for concurrent NewModule calls; compiled bytecode is
// immutable and shared between VMs.
type Manager struct {
	mu        sync.RWMutex
	protos    map[string]*lua.FunctionProto
	instLimit int
	logger    *zap.Logger
}

// NewManager creates a Manager with no scripts.
//
// Precondition: instLimit >= 0 (0 uses DefaultInstructionLimit); logger must be non-nil.
func NewManager(instLimit int, logger *zap.Logger) *Manager {
	return &Manager{
		protos:    make(map[string]*lua.FunctionProto),
		instLimit: instLimit,
		logger:    logger,
	}
}

// LoadDir compiles every *.lua file in dir, naming each script after its
// file name without the extension.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns the loaded names in lexicographic order; on a
// compile error nothing from dir is registered.
func (m *Manager) LoadDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scripting: reading script dir %q: %w", dir, err)
	}

	compiled := make(map[string]*lua.FunctionProto)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("scripting: reading %q: %w", path, err)
		}
		name := strings.TrimSuffix(e.Name(), ".lua")
		proto, err := compile(name, string(src))
		if err != nil {
			return nil, err
		}
		compiled[name] = proto
	}

	m.mu.Lock()
	for name, proto := range compiled {
		m.protos[name] = proto
	}
	m.mu.Unlock()

	names := sortedKeys(compiled)
	m.logger.Info("behavior scripts loaded",
		zap.String("dir", dir),
		zap.Strings("scripts", names),
	)
	return names, nil
}

// LoadSource compiles src under name, replacing any script with that name.
func (m *Manager) LoadSource(name, src string) error {
	proto, err := compile(name, src)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.protos[name] = proto
	m.mu.Unlock()
	return nil
}

// Names returns the loaded script names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.protos)
}

// NewModule runs script name in a fresh sandbox.
//
// Postcondition: Returns logic.ErrUnknownLogic (wrapped) if name was never loaded.
func (m *Manager) NewModule(name string, logger *zap.Logger) (*Module, error) {
	m.mu.RLock()
	proto, ok := m.protos[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: script %q", logic.ErrUnknownLogic, name)
	}
	mod, err := newModule(name, proto, m.instLimit, logger)
	if err != nil {
		return nil, fmt.Errorf("scripting: running %q: %w", name, err)
	}
	return mod, nil
}

// Register adds a factory for every loaded script to reg.
//
// Postcondition: Returns the first registration error, e.g. a name clash
// with a built-in module.
func (m *Manager) Register(reg *logic.Registry) error {
	for _, name := range m.Names() {
		script := name
		err := reg.Register(script, func(logger *zap.Logger) (logic.Module, error) {
			mod, err := m.NewModule(script, logger)
			if err != nil {
				return nil, err
			}
			return mod, nil
		})
		if err != nil {
			return fmt.Errorf("scripting: registering %q: %w", script, err)
		}
	}
	return nil
}

func compile(name, src string) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, fmt.Errorf("scripting: parsing %q: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("scripting: compiling %q: %w", name, err)
	}
	return proto, nil
}
