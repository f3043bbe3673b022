package handles

import (
	"slices"

	"github.com/ededitor/edhost/capability"
	"github.com/tetratelabs/wazero/api"
)

// Op is one operation a proxy forwards into its sub-units. The set of shapes
// is closed: every argument and result is an i32.
type Op struct {
	name    string
	args    int
	returns bool
}

// Void is an operation taking and returning nothing.
func Void(name string) Op { return Op{name: name} }

// Returning is an operation returning one i32.
func Returning(name string) Op { return Op{name: name, returns: true} }

// Args is an operation taking n i32 arguments and returning nothing.
func Args(name string, n int) Op { return Op{name: name, args: n} }

// ArgsReturning is an operation taking n i32 arguments and returning one i32.
func ArgsReturning(name string, n int) Op { return Op{name: name, args: n, returns: true} }

// Name returns the sub-unit export the operation calls.
func (o Op) Name() string { return o.name }

// Arity returns the number of arguments, excluding the handle.
func (o Op) Arity() int { return o.args }

// Returns reports whether the operation produces a result.
func (o Op) Returns() bool { return o.returns }

// Signature is the shape the sub-unit's export must have.
func (o Op) Signature() capability.Signature {
	var results []api.ValueType
	if o.returns {
		results = []api.ValueType{api.ValueTypeI32}
	}
	return capability.NewSignature(slices.Repeat([]api.ValueType{api.ValueTypeI32}, o.args), results)
}

// ProxySignature is the shape of invoke_<name>: the handle followed by the
// operation's arguments.
func (o Op) ProxySignature() capability.Signature {
	sig := o.Signature()
	sig.Params = append([]api.ValueType{api.ValueTypeI32}, sig.Params...)
	return sig
}

// ProxyName is the capability name the operation is exposed under.
func (o Op) ProxyName() string { return "invoke_" + o.name }
