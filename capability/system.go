package capability

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"
)

const (
	// SystemNamespace is always available to every unit.
	SystemNamespace = "sys"

	// WASINamespace carries proc_exit for modules built by WASI toolchains.
	WASINamespace = "wasi_snapshot_preview1"
)

var exitSignature = MustSignatureOf([]wit.Type{wit.U32{}}, nil)

// System returns the fixed system namespace: exit(code).
func System() *Module {
	return NewModule().Define("exit", Func(exitSignature, exit))
}

// WASIExit returns a namespace providing only wasi proc_exit.
func WASIExit() *Module {
	return NewModule().Define("proc_exit", Func(exitSignature, exit))
}

// WithSystem returns a clone of r carrying the system namespace. A
// caller-supplied sys namespace is replaced. proc_exit is added only when
// the caller registered no WASI namespace of its own.
func WithSystem(r *Registry) *Registry {
	out := r.Clone()
	out.Add(SystemNamespace, System())
	if _, ok := out.Namespace(WASINamespace); !ok {
		out.Add(WASINamespace, WASIExit())
	}
	return out
}

// exit closes the calling module and unwinds the outermost call with the code.
func exit(ctx context.Context, mod api.Module, stack []uint64) {
	code := api.DecodeU32(stack[0])
	Logger().Debug("guest exit", zap.String("module", mod.Name()), zap.Uint32("code", code))
	_ = mod.CloseWithExitCode(ctx, code)
	panic(sys.NewExitError(code))
}
