// Package wasmbuild assembles small WebAssembly core modules in memory.
//
// It covers the subset of the binary format the host's tests and generated
// demo modules need: function imports, a single memory, mutable globals,
// data segments, exports and a start function.
package wasmbuild

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

const (
	kindFunc   = 0x00
	kindMemory = 0x02
	kindGlobal = 0x03
)

// Module is a builder for a single core module. Imports must be declared
// before any function is defined so function indices stay stable.
type Module struct {
	types     [][]byte
	typeIndex map[string]uint32
	imports   []importEntry
	funcs     []funcEntry
	globals   []globalEntry
	exports   []exportEntry
	data      []dataSegment
	memory    *memoryDef
	start     *uint32
	numFuncs  uint32
}

type importEntry struct {
	module string
	name   string
	kind   byte
	desc   []byte
}

type funcEntry struct {
	locals  []api.ValueType
	body    []byte
	typeIdx uint32
}

type globalEntry struct {
	init    int64
	valType api.ValueType
	mutable bool
}

type exportEntry struct {
	name  string
	kind  byte
	index uint32
}

type dataSegment struct {
	bytes  []byte
	offset uint32
}

type memoryDef struct {
	min uint32
	max *uint32
}

// New creates an empty module builder.
func New() *Module {
	return &Module{typeIndex: make(map[string]uint32)}
}

func (m *Module) typeOf(params, results []api.ValueType) uint32 {
	var t []byte
	t = append(t, 0x60)
	t = append(t, EncodeULEB128(uint32(len(params)))...)
	for _, p := range params {
		t = append(t, ValType(p))
	}
	t = append(t, EncodeULEB128(uint32(len(results)))...)
	for _, r := range results {
		t = append(t, ValType(r))
	}
	key := string(t)
	if idx, ok := m.typeIndex[key]; ok {
		return idx
	}
	idx := uint32(len(m.types))
	m.types = append(m.types, t)
	m.typeIndex[key] = idx
	return idx
}

// Import declares a function import and returns its function index.
func (m *Module) Import(module, field string, params, results []api.ValueType) uint32 {
	if len(m.funcs) > 0 {
		panic(fmt.Sprintf("wasmbuild: import %s.%s declared after a defined function", module, field))
	}
	idx := m.typeOf(params, results)
	m.imports = append(m.imports, importEntry{
		module: module,
		name:   field,
		kind:   kindFunc,
		desc:   EncodeULEB128(idx),
	})
	m.numFuncs++
	return m.numFuncs - 1
}

// ImportMemory declares an imported memory with the given minimum pages.
func (m *Module) ImportMemory(module, field string, minPages uint32) {
	desc := []byte{0x00}
	desc = append(desc, EncodeULEB128(minPages)...)
	m.imports = append(m.imports, importEntry{
		module: module,
		name:   field,
		kind:   kindMemory,
		desc:   desc,
	})
}

// Func defines a function with no extra locals and returns its index.
// The trailing end opcode is appended by Build.
func (m *Module) Func(params, results []api.ValueType, body ...[]byte) uint32 {
	return m.FuncWithLocals(params, results, nil, body...)
}

// FuncWithLocals defines a function whose locals follow its parameters.
func (m *Module) FuncWithLocals(params, results, locals []api.ValueType, body ...[]byte) uint32 {
	var code []byte
	for _, b := range body {
		code = append(code, b...)
	}
	m.funcs = append(m.funcs, funcEntry{
		typeIdx: m.typeOf(params, results),
		locals:  locals,
		body:    code,
	})
	m.numFuncs++
	return m.numFuncs - 1
}

// Export exports a function under name.
func (m *Module) Export(name string, fn uint32) *Module {
	m.exports = append(m.exports, exportEntry{name: name, kind: kindFunc, index: fn})
	return m
}

// Memory defines the module's memory. Pass max as 0 for no upper bound.
func (m *Module) Memory(minPages, maxPages uint32) *Module {
	m.memory = &memoryDef{min: minPages}
	if maxPages > 0 {
		m.memory.max = &maxPages
	}
	return m
}

// ExportMemory exports the defined memory under name.
func (m *Module) ExportMemory(name string) *Module {
	m.exports = append(m.exports, exportEntry{name: name, kind: kindMemory})
	return m
}

// Global defines a global initialized to a constant and returns its index.
func (m *Module) Global(t api.ValueType, mutable bool, init int64) uint32 {
	m.globals = append(m.globals, globalEntry{valType: t, mutable: mutable, init: init})
	return uint32(len(m.globals) - 1)
}

// ExportGlobal exports a global under name.
func (m *Module) ExportGlobal(name string, idx uint32) *Module {
	m.exports = append(m.exports, exportEntry{name: name, kind: kindGlobal, index: idx})
	return m
}

// Data places bytes at a constant offset of memory 0.
func (m *Module) Data(offset uint32, b []byte) *Module {
	m.data = append(m.data, dataSegment{offset: offset, bytes: b})
	return m
}

// Start marks fn as the module's start function.
func (m *Module) Start(fn uint32) *Module {
	m.start = &fn
	return m
}

// Build generates the module bytes.
func (m *Module) Build() []byte {
	var wasm []byte

	// Magic and version
	wasm = append(wasm, 0x00, 0x61, 0x73, 0x6d)
	wasm = append(wasm, 0x01, 0x00, 0x00, 0x00)

	if len(m.types) > 0 {
		var body []byte
		for _, t := range m.types {
			body = append(body, t...)
		}
		wasm = append(wasm, section(0x01, vector(len(m.types), body))...)
	}

	if len(m.imports) > 0 {
		var body []byte
		for _, imp := range m.imports {
			body = append(body, name(imp.module)...)
			body = append(body, name(imp.name)...)
			body = append(body, imp.kind)
			body = append(body, imp.desc...)
		}
		wasm = append(wasm, section(0x02, vector(len(m.imports), body))...)
	}

	if len(m.funcs) > 0 {
		var body []byte
		for _, f := range m.funcs {
			body = append(body, EncodeULEB128(f.typeIdx)...)
		}
		wasm = append(wasm, section(0x03, vector(len(m.funcs), body))...)
	}

	if m.memory != nil {
		var body []byte
		if m.memory.max != nil {
			body = append(body, 0x01)
			body = append(body, EncodeULEB128(m.memory.min)...)
			body = append(body, EncodeULEB128(*m.memory.max)...)
		} else {
			body = append(body, 0x00)
			body = append(body, EncodeULEB128(m.memory.min)...)
		}
		wasm = append(wasm, section(0x05, vector(1, body))...)
	}

	if len(m.globals) > 0 {
		var body []byte
		for _, g := range m.globals {
			body = append(body, ValType(g.valType))
			if g.mutable {
				body = append(body, 0x01)
			} else {
				body = append(body, 0x00)
			}
			body = append(body, constExpr(g.valType, g.init)...)
		}
		wasm = append(wasm, section(0x06, vector(len(m.globals), body))...)
	}

	if len(m.exports) > 0 {
		var body []byte
		for _, e := range m.exports {
			body = append(body, name(e.name)...)
			body = append(body, e.kind)
			body = append(body, EncodeULEB128(e.index)...)
		}
		wasm = append(wasm, section(0x07, vector(len(m.exports), body))...)
	}

	if m.start != nil {
		wasm = append(wasm, section(0x08, EncodeULEB128(*m.start))...)
	}

	if len(m.funcs) > 0 {
		var body []byte
		for _, f := range m.funcs {
			fn := localDecls(f.locals)
			fn = append(fn, f.body...)
			fn = append(fn, 0x0b)
			body = append(body, EncodeULEB128(uint32(len(fn)))...)
			body = append(body, fn...)
		}
		wasm = append(wasm, section(0x0a, vector(len(m.funcs), body))...)
	}

	if len(m.data) > 0 {
		var body []byte
		for _, d := range m.data {
			body = append(body, 0x00)
			body = append(body, I32Const(int32(d.offset))...)
			body = append(body, 0x0b)
			body = append(body, EncodeULEB128(uint32(len(d.bytes)))...)
			body = append(body, d.bytes...)
		}
		wasm = append(wasm, section(0x0b, vector(len(m.data), body))...)
	}

	return wasm
}

// localDecls groups consecutive locals of the same type.
func localDecls(locals []api.ValueType) []byte {
	type run struct {
		t api.ValueType
		n uint32
	}
	var runs []run
	for _, l := range locals {
		if len(runs) > 0 && runs[len(runs)-1].t == l {
			runs[len(runs)-1].n++
			continue
		}
		runs = append(runs, run{t: l, n: 1})
	}
	out := EncodeULEB128(uint32(len(runs)))
	for _, r := range runs {
		out = append(out, EncodeULEB128(r.n)...)
		out = append(out, ValType(r.t))
	}
	return out
}

func constExpr(t api.ValueType, v int64) []byte {
	var out []byte
	switch t {
	case api.ValueTypeI64:
		out = append(out, 0x42)
		out = append(out, EncodeSLEB128(v)...)
	case api.ValueTypeF32:
		out = append(out, F32Const(float32(v))...)
	case api.ValueTypeF64:
		out = append(out, F64Const(float64(v))...)
	default:
		out = append(out, I32Const(int32(v))...)
	}
	return append(out, 0x0b)
}
