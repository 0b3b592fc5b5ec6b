package lambda

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrExportNotFound is returned when a module has no export of the requested name.
var ErrExportNotFound = errors.New("export not found")

// ErrModuleNotRegistered is returned by StaticLoader for unknown modules.
var ErrModuleNotRegistered = errors.New("module not registered")

// Module is a compiled module loaded for one rebuild cycle.
type Module interface {
	// Name returns the logical module name.
	Name() string
	// Lookup returns the named export as a handler.
	Lookup(export string) (Handler, error)
	// Close releases the module's resources. Handlers obtained from the
	// module must not be invoked after Close.
	Close() error
}

// Loader loads a module from its build artifacts.
type Loader interface {
	Load(ctx context.Context, name string, files []string) (Module, error)
}

// ModuleFactory builds the exports of an in-process module. It is called once
// per Load, so each rebuild cycle gets fresh handler values.
type ModuleFactory func(files []string) (map[string]Handler, error)

// StaticLoader serves in-process modules registered by name.
type StaticLoader struct {
	mu        sync.Mutex
	factories map[string]ModuleFactory
	loads     map[string]int
}

// NewStaticLoader creates an empty StaticLoader.
func NewStaticLoader() *StaticLoader {
	return &StaticLoader{
		factories: make(map[string]ModuleFactory),
		loads:     make(map[string]int),
	}
}

// Register adds or replaces a module.
func (l *StaticLoader) Register(name string, factory ModuleFactory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.factories[name] = factory
}

// RegisterExports registers a module with a fixed export set.
func (l *StaticLoader) RegisterExports(name string, exports map[string]Handler) {
	l.Register(name, func([]string) (map[string]Handler, error) {
		return exports, nil
	})
}

// Loads returns how many times a module has been loaded.
func (l *StaticLoader) Loads(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[name]
}

// Load implements Loader.
func (l *StaticLoader) Load(_ context.Context, name string, files []string) (Module, error) {
	l.mu.Lock()
	factory, ok := l.factories[name]
	if ok {
		l.loads[name]++
	}
	l.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotRegistered, name)
	}

	exports, err := factory(files)
	if err != nil {
		return nil, fmt.Errorf("loading module %s: %w", name, err)
	}
	return &staticModule{name: name, exports: exports}, nil
}

type staticModule struct {
	name    string
	exports map[string]Handler
}

func (m *staticModule) Name() string { return m.name }

func (m *staticModule) Lookup(export string) (Handler, error) {
	h, ok := m.exports[export]
	if !ok || h == nil {
		return nil, fmt.Errorf("%w: %s.%s (available: %v)", ErrExportNotFound, m.name, export, exportNames(m.exports))
	}
	return h, nil
}

func (m *staticModule) Close() error { return nil }

func exportNames(exports map[string]Handler) []string {
	names := make([]string, 0, len(exports))
	for name := range exports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
