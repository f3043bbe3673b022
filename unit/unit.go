package unit

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"

	"github.com/ededitor/edhost/capability"
	"github.com/ededitor/edhost/errors"
	"github.com/ededitor/edhost/marshal"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"
)

// MemoryExport is the export name a unit's linear memory must use.
const MemoryExport = "memory"

// Unit is one instance of a module inside a Context.
// Unit is NOT safe for concurrent use.
type Unit struct {
	owner *Context
	mod   api.Module
	exit  *sys.ExitError
	hosts []api.Module
	name  string
}

// New creates an empty unit owned by c.
func New(c *Context, name string) *Unit {
	return &Unit{owner: c, name: name}
}

// Name returns the unit's diagnostic name.
func (u *Unit) Name() string {
	return u.name
}

// Context returns the owning compilation context.
func (u *Unit) Context() *Context {
	return u.owner
}

// Initialized reports whether Initialize has succeeded.
func (u *Unit) Initialized() bool {
	return u.mod != nil
}

// Closed reports whether the instance was closed, by Close or by a guest exit.
func (u *Unit) Closed() bool {
	return u.mod != nil && u.mod.IsClosed()
}

// ExitErr returns the exit error of a guest that closed itself, or nil.
func (u *Unit) ExitErr() *sys.ExitError {
	return u.exit
}

// Initialize compiles src, resolves its imports against reg plus the system
// namespace and instantiates it. The module's start section runs as part of
// instantiation; an exported _start is not called. A guest exit during start
// is returned as *sys.ExitError.
func (u *Unit) Initialize(ctx context.Context, src Source, reg *capability.Registry) error {
	if u.mod != nil {
		return errors.New(errors.PhaseInstance, errors.KindAlreadyInitialized).
			Unit(u.name).
			Detail("unit already has a live instance").
			Build()
	}
	if reg == nil {
		reg = capability.NewRegistry()
	}

	compiled, err := u.owner.compile(ctx, src)
	if err != nil {
		return withUnit(err, u.name)
	}

	imports, err := declaredImports(compiled)
	if err != nil {
		return withUnit(err, u.name)
	}

	caps, err := capability.WithSystem(reg).Resolve(imports)
	if err != nil {
		return withUnit(err, u.name)
	}

	for i, c := range caps {
		if o := c.Origin(); o != nil && o != capability.Origin(u.owner) {
			return errors.New(errors.PhaseLinking, errors.KindContextMismatch).
				Import(imports[i].Namespace, imports[i].Name).
				Unit(u.name).
				Detail("capability forwards into a unit of another compilation context").
				Build()
		}
	}

	hosts, err := u.instantiateHosts(ctx, imports, caps)
	if err != nil {
		return err
	}

	resolver := func(name string) api.Module {
		return hosts[name]
	}
	cfg := wazero.NewModuleConfig().
		WithName(u.name).
		WithStartFunctions()

	mod, err := u.owner.runtime.InstantiateModule(experimental.WithImportResolver(ctx, resolver), compiled, cfg)
	if err != nil {
		for _, h := range hosts {
			_ = h.Close(ctx)
		}
		var exitErr *sys.ExitError
		if stderrors.As(err, &exitErr) {
			return exitErr
		}
		return errors.New(errors.PhaseInstance, errors.KindInstantiation).
			Unit(u.name).
			Cause(err).
			Detail("instantiate module").
			Build()
	}

	u.mod = mod
	for _, ns := range sortedKeys(hosts) {
		u.hosts = append(u.hosts, hosts[ns])
	}

	Logger().Debug("unit initialized",
		zap.String("unit", u.name),
		zap.String("source", src.Name()),
		zap.Int("imports", len(imports)),
		zap.Int("namespaces", len(hosts)))
	return nil
}

// instantiateHosts builds one anonymous host module per imported namespace.
// Anonymous modules let every unit bind the same namespace name to its own
// capabilities inside the shared runtime.
func (u *Unit) instantiateHosts(ctx context.Context, imports []capability.Import, caps []capability.Capability) (map[string]api.Module, error) {
	r := u.owner.runtime
	builders := make(map[string]wazero.HostModuleBuilder)
	defined := make(map[string]bool)
	var order []string

	for i, imp := range imports {
		b, ok := builders[imp.Namespace]
		if !ok {
			b = r.NewHostModuleBuilder(imp.Namespace)
			builders[imp.Namespace] = b
			order = append(order, imp.Namespace)
		}
		key := imp.String()
		if defined[key] {
			continue
		}
		defined[key] = true
		sig := caps[i].Signature()
		b.NewFunctionBuilder().
			WithGoModuleFunction(caps[i].Handler(), sig.Params, sig.Results).
			WithName(imp.Name).
			Export(imp.Name)
	}

	hosts := make(map[string]api.Module, len(order))
	fail := func(ns string, err error) (map[string]api.Module, error) {
		for _, h := range hosts {
			_ = h.Close(ctx)
		}
		return nil, errors.New(errors.PhaseInstance, errors.KindInstantiation).
			Import(ns, "").
			Unit(u.name).
			Cause(err).
			Detail("build host module").
			Build()
	}

	for _, ns := range order {
		compiled, err := builders[ns].Compile(ctx)
		if err != nil {
			return fail(ns, err)
		}
		mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
		if err != nil {
			return fail(ns, err)
		}
		hosts[ns] = mod
	}
	return hosts, nil
}

// Export returns the function exported under name.
func (u *Unit) Export(name string) (*Func, error) {
	if u.mod == nil {
		return nil, errors.ExportNotFound(u.name, name)
	}
	if err := u.live(); err != nil {
		return nil, err
	}
	fn := u.mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.ExportNotFound(u.name, name)
	}
	return &Func{
		fn:   fn,
		name: name,
		unit: u,
		sig:  capability.SignatureFromDefinition(fn.Definition()),
	}, nil
}

// live fails once the instance is closed, returning the guest's exit error
// when it closed itself.
func (u *Unit) live() error {
	if u.mod == nil {
		return errors.NotInitialized(u.name)
	}
	if !u.mod.IsClosed() {
		return nil
	}
	if u.exit != nil {
		return u.exit
	}
	return errors.New(errors.PhaseRuntime, errors.KindNotInitialized).
		Unit(u.name).
		Detail("unit is closed").
		Build()
}

// observe records the exit error of a call that closed the instance.
func (u *Unit) observe(err error) {
	var exitErr *sys.ExitError
	if err != nil && u.mod.IsClosed() && stderrors.As(err, &exitErr) && u.exit == nil {
		u.exit = exitErr
	}
}

// HasExport reports whether the unit exports a function called name.
func (u *Unit) HasExport(name string) bool {
	if u.live() != nil {
		return false
	}
	_, ok := u.mod.ExportedFunctionDefinitions()[name]
	return ok
}

// ExportModule converts every exported function into a capability that
// forwards into this unit. Memories, tables and globals are not included.
// A failing forwarded call panics so the error unwinds out of the outermost
// guest call that reached it.
func (u *Unit) ExportModule() (*capability.Module, error) {
	if err := u.live(); err != nil {
		return nil, err
	}

	m := capability.NewModule()
	for name, def := range u.mod.ExportedFunctionDefinitions() {
		m.Define(name, capability.Forwarded(
			capability.SignatureFromDefinition(def),
			u.forward(name),
			u.owner,
		))
	}
	return m, nil
}

func (u *Unit) forward(name string) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		if err := u.live(); err != nil {
			panic(err)
		}
		// A fresh api.Function per call keeps re-entrant calls into the
		// same export from sharing a call engine.
		err := u.mod.ExportedFunction(name).CallWithStack(ctx, stack)
		if err != nil {
			u.observe(err)
			panic(err)
		}
	}
}

// ReadMemory returns a copy of [offset, offset+length) of the unit's memory.
func (u *Unit) ReadMemory(offset, length uint32) ([]byte, error) {
	mem, err := u.memory()
	if err != nil {
		return nil, err
	}
	return marshal.Copy(mem, offset, length)
}

// MemoryView returns a transient view over the unit's memory. The view must
// not outlive the host call that requested it.
func (u *Unit) MemoryView(offset, length uint32) (marshal.View, error) {
	mem, err := u.memory()
	if err != nil {
		return marshal.View{}, err
	}
	return marshal.NewView(mem, offset, length)
}

// ReadString reads a NUL-terminated string of at most limit bytes.
func (u *Unit) ReadString(offset, limit uint32) (string, error) {
	mem, err := u.memory()
	if err != nil {
		return "", err
	}
	return marshal.CString(mem, offset, limit)
}

// MemorySize returns the current size of the unit's memory in bytes.
func (u *Unit) MemorySize() (uint32, error) {
	mem, err := u.memory()
	if err != nil {
		return 0, err
	}
	return mem.Size(), nil
}

func (u *Unit) memory() (api.Memory, error) {
	if err := u.live(); err != nil {
		return nil, err
	}
	mem := u.mod.ExportedMemory(MemoryExport)
	if mem == nil {
		return nil, errors.New(errors.PhaseMemory, errors.KindNoMemoryExport).
			Unit(u.name).
			Detail("unit does not export %q", MemoryExport).
			Build()
	}
	return mem, nil
}

// Close releases the instance and its host modules. Close is idempotent.
func (u *Unit) Close(ctx context.Context) error {
	var firstErr error
	if u.mod != nil {
		if err := u.mod.Close(ctx); err != nil {
			firstErr = err
		}
	}
	for _, h := range u.hosts {
		if err := h.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	u.hosts = nil
	return firstErr
}

// Func is a function exported by a live unit.
type Func struct {
	fn   api.Function
	unit *Unit
	name string
	sig  capability.Signature
}

// Call invokes the function. A guest exit is returned as *sys.ExitError,
// and every later call into the exited unit returns the same error.
func (f *Func) Call(ctx context.Context, args ...uint64) ([]uint64, error) {
	if err := f.unit.live(); err != nil {
		return nil, err
	}
	res, err := f.fn.Call(ctx, args...)
	f.unit.observe(err)
	return res, err
}

// CallWithStack invokes the function with params and results sharing stack.
func (f *Func) CallWithStack(ctx context.Context, stack []uint64) error {
	if err := f.unit.live(); err != nil {
		return err
	}
	err := f.fn.CallWithStack(ctx, stack)
	f.unit.observe(err)
	return err
}

// Name returns the export name.
func (f *Func) Name() string { return f.name }

// Unit returns the name of the unit that exports the function.
func (f *Func) Unit() string { return f.unit.name }

// Signature returns the function's core signature.
func (f *Func) Signature() capability.Signature { return f.sig }

func withUnit(err error, name string) error {
	var e *errors.Error
	if stderrors.As(err, &e) && e.Unit == "" {
		e.Unit = name
	}
	return err
}

func sortedKeys(m map[string]api.Module) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// String implements fmt.Stringer.
func (u *Unit) String() string {
	return fmt.Sprintf("unit(%s)", u.name)
}
