package capability

import (
	"slices"
	"sync"

	"github.com/tetratelabs/wazero/api"
)

// Module is a named set of capabilities registered under one namespace.
// It is built incrementally and treated as read-only once added to a Registry.
type Module struct {
	entries map[string]Capability
	mu      sync.RWMutex
}

// NewModule creates an empty capability module.
func NewModule() *Module {
	return &Module{entries: make(map[string]Capability)}
}

// Define registers c under name, replacing any previous entry.
func (m *Module) Define(name string, c Capability) *Module {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[name] = c
	return m
}

// DefineFunc registers a host function under name.
func (m *Module) DefineFunc(name string, fn api.GoModuleFunc, params, results []api.ValueType) *Module {
	return m.Define(name, Func(NewSignature(params, results), fn))
}

// Get returns the capability registered under name.
func (m *Module) Get(name string) (Capability, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.entries[name]
	return c, ok
}

// Names returns the registered entry names in sorted order.
func (m *Module) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of entries.
func (m *Module) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Instrument returns a new module whose handlers are wrapped by wrap.
// The receiver is left unchanged.
func (m *Module) Instrument(wrap func(name string, h api.GoModuleFunc) api.GoModuleFunc) *Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := &Module{entries: make(map[string]Capability, len(m.entries))}
	for name, c := range m.entries {
		out.entries[name] = c.WithHandler(wrap(name, c.handler))
	}
	return out
}
