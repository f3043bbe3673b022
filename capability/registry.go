package capability

import (
	"maps"
	"slices"
	"sync"

	"github.com/ededitor/edhost/errors"
	"go.uber.org/zap"
)

// Import is one function import declared by a module.
type Import struct {
	Namespace string
	Name      string
	Signature Signature
}

// String returns "namespace.name".
func (i Import) String() string {
	return i.Namespace + "." + i.Name
}

// Registry maps namespace names to capability modules.
type Registry struct {
	modules map[string]*Module
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]*Module)}
}

// Add registers m under name. A later Add with the same name wins.
func (r *Registry) Add(name string, m *Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[name] = m
}

// Namespace returns the module registered under name.
func (r *Registry) Namespace(name string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// Namespaces returns the registered namespace names in sorted order.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.modules))
}

// Clone returns a registry with the same namespace bindings. Modules are shared.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &Registry{modules: maps.Clone(r.modules)}
}

// Resolve returns one capability per import, in declared order. It fails on
// the first import, in declared order, whose namespace or entry is absent or
// whose signature differs. Nothing is returned on failure.
func (r *Registry) Resolve(imports []Import) ([]Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Capability, 0, len(imports))
	for _, imp := range imports {
		m, ok := r.modules[imp.Namespace]
		if !ok {
			return nil, errors.MissingNamespace(imp.Namespace, imp.Name)
		}
		c, ok := m.Get(imp.Name)
		if !ok {
			return nil, errors.MissingCapability(imp.Namespace, imp.Name)
		}
		if !c.sig.Equal(imp.Signature) {
			return nil, errors.SignatureMismatch(imp.Namespace, imp.Name,
				imp.Signature.String(), c.sig.String())
		}
		out = append(out, c)
	}

	Logger().Debug("resolved imports", zap.Int("count", len(out)))
	return out, nil
}
