package unit

import (
	"context"
	"slices"

	"github.com/ededitor/edhost/capability"
	"github.com/ededitor/edhost/errors"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Shape describes a module's declared imports and exports.
type Shape struct {
	Name             string
	Imports          []capability.Import
	Exports          []ExportShape
	Memories         []string
	ImportedMemories []string
}

// ExportShape is one exported function.
type ExportShape struct {
	Name      string
	Signature capability.Signature
}

// Inspect compiles src in c and reports its shape without instantiating it.
func Inspect(ctx context.Context, c *Context, src Source) (*Shape, error) {
	compiled, err := c.compile(ctx, src)
	if err != nil {
		return nil, err
	}

	shape := &Shape{Name: src.Name()}
	for _, def := range compiled.ImportedFunctions() {
		ns, name, _ := def.Import()
		shape.Imports = append(shape.Imports, capability.Import{
			Namespace: ns,
			Name:      name,
			Signature: capability.SignatureFromDefinition(def),
		})
	}
	for _, mem := range compiled.ImportedMemories() {
		ns, name, _ := mem.Import()
		shape.ImportedMemories = append(shape.ImportedMemories, ns+"."+name)
	}

	exports := compiled.ExportedFunctions()
	for _, name := range sortedDefs(exports) {
		shape.Exports = append(shape.Exports, ExportShape{
			Name:      name,
			Signature: capability.SignatureFromDefinition(exports[name]),
		})
	}
	for name := range compiled.ExportedMemories() {
		shape.Memories = append(shape.Memories, name)
	}
	slices.Sort(shape.Memories)
	return shape, nil
}

// declaredImports returns the function imports in declared order. Imported
// memories cannot be satisfied by capabilities and are rejected.
func declaredImports(compiled wazero.CompiledModule) ([]capability.Import, error) {
	if mems := compiled.ImportedMemories(); len(mems) > 0 {
		ns, name, _ := mems[0].Import()
		return nil, errors.New(errors.PhaseLinking, errors.KindUnsupportedImport).
			Import(ns, name).
			Detail("memory imports cannot be satisfied by capabilities").
			Build()
	}

	defs := compiled.ImportedFunctions()
	imports := make([]capability.Import, 0, len(defs))
	for _, def := range defs {
		ns, name, _ := def.Import()
		imports = append(imports, capability.Import{
			Namespace: ns,
			Name:      name,
			Signature: capability.SignatureFromDefinition(def),
		})
	}
	return imports, nil
}

func sortedDefs(m map[string]api.FunctionDefinition) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
