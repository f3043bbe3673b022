package unit

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ededitor/edhost/capability"
	"github.com/ededitor/edhost/errors"
	wb "github.com/ededitor/edhost/internal/wasmbuild"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
)

var (
	i32  = api.ValueTypeI32
	none []api.ValueType
	one  = []api.ValueType{i32}
	two  = []api.ValueType{i32, i32}
)

const pageSize = 65536

// mathWasm exports add, mul, a memory and a global.
func mathWasm() []byte {
	m := wb.New()
	add := m.Func(two, one, wb.LocalGet(0), wb.LocalGet(1), wb.I32Add())
	mul := m.Func(two, one, wb.LocalGet(0), wb.LocalGet(1), wb.I32Mul())
	g := m.Global(i32, false, 1)
	m.Memory(1, 1).ExportMemory("memory")
	m.Export("add", add).Export("mul", mul).ExportGlobal("version", g)
	return m.Build()
}

// appWasm imports math.add and exports run() = add(2, 3).
func appWasm() []byte {
	m := wb.New()
	add := m.Import("math", "add", two, one)
	run := m.Func(none, one, wb.I32Const(2), wb.I32Const(3), wb.Call(add))
	m.Export("run", run)
	return m.Build()
}

// exitWasm exports quit() calling sys.exit(code) and ping() returning 1.
func exitWasm(code int32) []byte {
	m := wb.New()
	exit := m.Import("sys", "exit", one, none)
	quit := m.Func(none, none, wb.I32Const(code), wb.Call(exit))
	ping := m.Func(none, one, wb.I32Const(1))
	m.Export("quit", quit).Export("ping", ping)
	return m.Build()
}

func newContext(t *testing.T) *Context {
	t.Helper()
	ctx := context.Background()
	c, err := NewContext(ctx, &Config{Name: t.Name()})
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(func() { c.Close(ctx) })
	return c
}

func mustInit(t *testing.T, c *Context, name string, bin []byte, reg *capability.Registry) *Unit {
	t.Helper()
	u := New(c, name)
	if err := u.Initialize(context.Background(), Bytes(name, bin), reg); err != nil {
		t.Fatalf("Initialize %s: %v", name, err)
	}
	return u
}

func call(t *testing.T, u *Unit, name string, args ...uint64) []uint64 {
	t.Helper()
	fn, err := u.Export(name)
	if err != nil {
		t.Fatalf("Export %s: %v", name, err)
	}
	res, err := fn.Call(context.Background(), args...)
	if err != nil {
		t.Fatalf("Call %s: %v", name, err)
	}
	return res
}

func TestCompositionRoundTrip(t *testing.T) {
	c := newContext(t)
	math := mustInit(t, c, "math", mathWasm(), nil)

	exports, err := math.ExportModule()
	if err != nil {
		t.Fatalf("ExportModule: %v", err)
	}
	reg := capability.NewRegistry()
	reg.Add("math", exports)

	app := mustInit(t, c, "app", appWasm(), reg)
	if got := api.DecodeI32(call(t, app, "run")[0]); got != 5 {
		t.Errorf("run() = %d, want 5", got)
	}
}

func TestExportModuleFunctionsOnly(t *testing.T) {
	c := newContext(t)
	math := mustInit(t, c, "math", mathWasm(), nil)

	exports, err := math.ExportModule()
	if err != nil {
		t.Fatalf("ExportModule: %v", err)
	}
	names := exports.Names()
	if len(names) != 2 || names[0] != "add" || names[1] != "mul" {
		t.Errorf("exported capabilities = %v, want [add mul]", names)
	}
	add, _ := exports.Get("add")
	if add.Origin() != capability.Origin(c) {
		t.Error("forwarded capability should carry its context as origin")
	}
	if add.Signature().String() != "(i32, i32) -> (i32)" {
		t.Errorf("add signature = %s", add.Signature())
	}
}

func TestExportModuleNotInitialized(t *testing.T) {
	c := newContext(t)
	_, err := New(c, "empty").ExportModule()
	if !stderrors.Is(err, errors.ErrNotInitialized) {
		t.Errorf("err = %v, want not_initialized", err)
	}
}

func TestReadMemoryBoundary(t *testing.T) {
	c := newContext(t)
	math := mustInit(t, c, "math", mathWasm(), nil)

	size, err := math.MemorySize()
	if err != nil || size != pageSize {
		t.Fatalf("MemorySize = %d, %v", size, err)
	}

	if _, err := math.ReadMemory(pageSize-4, 4); err != nil {
		t.Errorf("read ending at memory size should succeed: %v", err)
	}
	if _, err := math.ReadMemory(pageSize-4, 5); !stderrors.Is(err, errors.ErrOutOfBounds) {
		t.Errorf("read one past the end: err = %v, want out_of_bounds", err)
	}
	if _, err := math.ReadMemory(0xFFFFFFF0, 0x20); !stderrors.Is(err, errors.ErrOutOfBounds) {
		t.Errorf("wrapping range: err = %v, want out_of_bounds", err)
	}

	view, err := math.MemoryView(0, 16)
	if err != nil || view.Len() != 16 {
		t.Errorf("MemoryView = %d, %v", view.Len(), err)
	}
}

func TestReadMemoryErrors(t *testing.T) {
	c := newContext(t)

	if _, err := New(c, "empty").ReadMemory(0, 1); !stderrors.Is(err, errors.ErrNotInitialized) {
		t.Errorf("uninitialized: err = %v", err)
	}

	app := mustInit(t, c, "nomem", exitWasm(0), nil)
	_, err := app.ReadMemory(0, 1)
	if !stderrors.Is(err, errors.ErrNoMemoryExport) {
		t.Errorf("no memory: err = %v", err)
	}
}

func TestSystemExit(t *testing.T) {
	c := newContext(t)
	u := mustInit(t, c, "quitter", exitWasm(7), nil)

	quit, _ := u.Export("quit")
	ping, _ := u.Export("ping")
	_, err := quit.Call(context.Background())

	var exitErr *sys.ExitError
	if !stderrors.As(err, &exitErr) {
		t.Fatalf("err = %v, want *sys.ExitError", err)
	}
	if exitErr.ExitCode() != 7 {
		t.Errorf("exit code = %d, want 7", exitErr.ExitCode())
	}
	if code, ok := errors.ExitCode(err); !ok || code != 7 {
		t.Errorf("ExitCode = %d, %v", code, ok)
	}

	_, err = ping.Call(context.Background())
	if code, ok := errors.ExitCode(err); !ok || code != 7 {
		t.Errorf("calls after exit should fail with the exit error, got %v", err)
	}
	if _, err := u.Export("ping"); err == nil {
		t.Error("Export after exit should fail")
	}
	if !u.Closed() || u.ExitErr() == nil {
		t.Error("unit should report itself closed by exit")
	}
}

func TestExitThroughComposition(t *testing.T) {
	c := newContext(t)
	inner := mustInit(t, c, "inner", exitWasm(9), nil)
	exports, _ := inner.ExportModule()

	m := wb.New()
	quit := m.Import("inner", "quit", none, none)
	run := m.Func(none, none, wb.Call(quit))
	m.Export("run", run)

	reg := capability.NewRegistry()
	reg.Add("inner", exports)
	outer := mustInit(t, c, "outer", m.Build(), reg)

	run2, _ := outer.Export("run")
	_, err := run2.Call(context.Background())
	if code, ok := errors.ExitCode(err); !ok || code != 9 {
		t.Errorf("ExitCode = %d, %v; err = %v", code, ok, err)
	}
}

func TestForwardedTrapPropagates(t *testing.T) {
	c := newContext(t)

	m := wb.New()
	boom := m.Func(none, none, wb.Unreachable())
	m.Export("boom", boom)
	inner := mustInit(t, c, "inner", m.Build(), nil)
	exports, _ := inner.ExportModule()

	o := wb.New()
	imp := o.Import("inner", "boom", none, none)
	run := o.Func(none, none, wb.Call(imp))
	o.Export("run", run)
	reg := capability.NewRegistry()
	reg.Add("inner", exports)
	outer := mustInit(t, c, "outer", o.Build(), reg)

	fn, _ := outer.Export("run")
	if _, err := fn.Call(context.Background()); err == nil {
		t.Error("trap in forwarded call should fail the outer call")
	}
}

func TestStartSectionExit(t *testing.T) {
	c := newContext(t)

	m := wb.New()
	exit := m.Import("sys", "exit", one, none)
	start := m.Func(none, none, wb.I32Const(3), wb.Call(exit))
	m.Start(start)

	err := New(c, "early").Initialize(context.Background(), Bytes("early", m.Build()), nil)
	var exitErr *sys.ExitError
	if !stderrors.As(err, &exitErr) || exitErr.ExitCode() != 3 {
		t.Errorf("err = %v, want exit code 3", err)
	}
}

func TestStartExportNotCalled(t *testing.T) {
	c := newContext(t)

	called := false
	reg := capability.NewRegistry()
	reg.Add("env", capability.NewModule().DefineFunc("hit", func(context.Context, api.Module, []uint64) {
		called = true
	}, nil, nil))

	m := wb.New()
	hit := m.Import("env", "hit", none, none)
	start := m.Func(none, none, wb.Call(hit))
	m.Export("_start", start)

	u := mustInit(t, c, "wasi", m.Build(), reg)
	if called {
		t.Error("_start must not run during Initialize")
	}
	call(t, u, "_start")
	if !called {
		t.Error("_start should be callable as an export")
	}
}

func TestLinkErrorNamesUnit(t *testing.T) {
	c := newContext(t)
	u := New(c, "app")
	err := u.Initialize(context.Background(), Bytes("app", appWasm()), capability.NewRegistry())

	if !stderrors.Is(err, errors.ErrMissingNamespace) {
		t.Fatalf("err = %v, want missing_namespace", err)
	}
	var e *errors.Error
	stderrors.As(err, &e)
	if e.Unit != "app" || e.Namespace != "math" || e.Name != "add" {
		t.Errorf("error = %+v", e)
	}
	if u.Initialized() {
		t.Error("failed Initialize must leave the unit empty")
	}
}

func TestLinkErrorSignature(t *testing.T) {
	c := newContext(t)
	reg := capability.NewRegistry()
	reg.Add("math", capability.NewModule().DefineFunc("add",
		func(context.Context, api.Module, []uint64) {}, one, one))

	err := New(c, "app").Initialize(context.Background(), Bytes("app", appWasm()), reg)
	if !stderrors.Is(err, errors.ErrSignatureMismatch) {
		t.Errorf("err = %v, want signature_mismatch", err)
	}
}

func TestContextMismatch(t *testing.T) {
	a := newContext(t)
	b := newContext(t)

	math := mustInit(t, a, "math", mathWasm(), nil)
	exports, _ := math.ExportModule()
	reg := capability.NewRegistry()
	reg.Add("math", exports)

	err := New(b, "app").Initialize(context.Background(), Bytes("app", appWasm()), reg)
	if !stderrors.Is(err, errors.ErrContextMismatch) {
		t.Errorf("err = %v, want context_mismatch", err)
	}
	if !errors.IsLink(err) {
		t.Error("context mismatch should be a link error")
	}
}

func TestCompileFailed(t *testing.T) {
	c := newContext(t)
	err := New(c, "junk").Initialize(context.Background(), Bytes("junk", []byte("not wasm")), nil)
	if !stderrors.Is(err, errors.ErrCompileFailed) {
		t.Errorf("err = %v, want compile_failed", err)
	}
}

func TestAlreadyInitialized(t *testing.T) {
	c := newContext(t)
	u := mustInit(t, c, "math", mathWasm(), nil)
	err := u.Initialize(context.Background(), Bytes("math", mathWasm()), nil)
	if !stderrors.Is(err, errors.ErrAlreadyInitialized) {
		t.Errorf("err = %v, want already_initialized", err)
	}
}

func TestExportNotFound(t *testing.T) {
	c := newContext(t)

	if _, err := New(c, "empty").Export("add"); !stderrors.Is(err, errors.ErrExportNotFound) {
		t.Errorf("uninitialized: err = %v", err)
	}

	u := mustInit(t, c, "math", mathWasm(), nil)
	_, err := u.Export("sub")
	if !stderrors.Is(err, errors.ErrExportNotFound) {
		t.Fatalf("err = %v", err)
	}
	var e *errors.Error
	stderrors.As(err, &e)
	if e.Name != "sub" || e.Unit != "math" {
		t.Errorf("error should name export and unit: %+v", e)
	}
	if _, err := u.Export("version"); err == nil {
		t.Error("a global export is not a function")
	}
	if !u.HasExport("add") || u.HasExport("memory") {
		t.Error("HasExport should report function exports only")
	}
}

func TestUnsupportedMemoryImport(t *testing.T) {
	c := newContext(t)
	m := wb.New()
	m.ImportMemory("env", "memory", 1)

	err := New(c, "shared").Initialize(context.Background(), Bytes("shared", m.Build()), nil)
	if !stderrors.Is(err, errors.ErrUnsupportedImport) {
		t.Errorf("err = %v, want unsupported_import", err)
	}
}

func TestSameNamespacePerUnit(t *testing.T) {
	c := newContext(t)

	peer := func(v int32) *capability.Registry {
		reg := capability.NewRegistry()
		reg.Add("peer", capability.NewModule().DefineFunc("value",
			func(_ context.Context, _ api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(v)
			}, none, one))
		return reg
	}

	m := wb.New()
	value := m.Import("peer", "value", none, one)
	get := m.Func(none, one, wb.Call(value))
	m.Export("get", get)
	bin := m.Build()

	a := mustInit(t, c, "a", bin, peer(10))
	b := mustInit(t, c, "b", bin, peer(20))

	if got := api.DecodeI32(call(t, a, "get")[0]); got != 10 {
		t.Errorf("a.get() = %d, want 10", got)
	}
	if got := api.DecodeI32(call(t, b, "get")[0]); got != 20 {
		t.Errorf("b.get() = %d, want 20", got)
	}
	if len(c.modules) != 1 {
		t.Errorf("identical sources should compile once, cache has %d", len(c.modules))
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "math.wasm")
	if err := os.WriteFile(path, mathWasm(), 0o644); err != nil {
		t.Fatal(err)
	}

	src := File(path)
	if src.Name() != "math" || src.Path() != path {
		t.Errorf("Name = %q, Path = %q", src.Name(), src.Path())
	}

	c := newContext(t)
	u := New(c, "math")
	if err := u.Initialize(context.Background(), src, nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	missing := New(c, "missing").Initialize(context.Background(), File(filepath.Join(dir, "nope.wasm")), nil)
	if !stderrors.Is(missing, errors.ErrCompileFailed) {
		t.Errorf("missing file: err = %v", missing)
	}
}

func TestInspect(t *testing.T) {
	c := newContext(t)
	shape, err := Inspect(context.Background(), c, Bytes("app", appWasm()))
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(shape.Imports) != 1 || shape.Imports[0].String() != "math.add" {
		t.Errorf("Imports = %+v", shape.Imports)
	}
	if len(shape.Exports) != 1 || shape.Exports[0].Name != "run" {
		t.Errorf("Exports = %+v", shape.Exports)
	}

	shape, err = Inspect(context.Background(), c, Bytes("math", mathWasm()))
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(shape.Memories) != 1 || shape.Memories[0] != "memory" {
		t.Errorf("Memories = %v", shape.Memories)
	}
}

func TestClose(t *testing.T) {
	c := newContext(t)
	u := mustInit(t, c, "math", mathWasm(), nil)
	if err := u.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := u.Close(context.Background()); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := u.Export("add"); err == nil {
		t.Error("Export from a closed unit should fail")
	}
	if _, err := u.ReadMemory(0, 1); err == nil {
		t.Error("ReadMemory from a closed unit should fail")
	}
	if !u.Closed() || u.ExitErr() != nil {
		t.Error("Close is not a guest exit")
	}
}

func TestCompilationCacheDir(t *testing.T) {
	ctx := context.Background()
	c, err := NewContext(ctx, &Config{CacheDir: t.TempDir(), MemoryLimitPages: 4})
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	defer c.Close(ctx)

	mustInit(t, c, "math", mathWasm(), nil)
}
