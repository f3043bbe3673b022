package capability

import (
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Origin identifies the compilation context that owns the instance behind a
// forwarded capability. Host-implemented capabilities have no origin.
type Origin interface {
	Runtime() wazero.Runtime
}

// Capability is a callable a module may import: a fixed signature plus a
// handler that reads arguments from and writes results to the wazero stack.
type Capability struct {
	handler api.GoModuleFunc
	origin  Origin
	sig     Signature
}

// Func creates a host capability.
func Func(sig Signature, handler api.GoModuleFunc) Capability {
	return Capability{sig: sig, handler: handler}
}

// Forwarded creates a capability that calls into an instance owned by origin.
func Forwarded(sig Signature, handler api.GoModuleFunc, origin Origin) Capability {
	return Capability{sig: sig, handler: handler, origin: origin}
}

// Signature returns the capability's core signature.
func (c Capability) Signature() Signature { return c.sig }

// Handler returns the function invoked when a guest calls the capability.
func (c Capability) Handler() api.GoModuleFunc { return c.handler }

// Origin returns the owning context of a forwarded capability, or nil.
func (c Capability) Origin() Origin { return c.origin }

// IsZero reports whether c has no handler.
func (c Capability) IsZero() bool { return c.handler == nil }

// WithHandler returns a copy of c with its handler replaced.
func (c Capability) WithHandler(h api.GoModuleFunc) Capability {
	c.handler = h
	return c
}
