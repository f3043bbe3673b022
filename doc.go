// Package edhost hosts sandboxed WebAssembly core modules and wires them
// together through named capabilities.
//
// A module never sees host memory or another module's memory. Everything it
// may do is granted by the capabilities that satisfy its declared imports:
// host functions, functions exported by other live modules, or a handle
// table that lets it create and drive sub-modules of its own.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	edhost/              Root package with the MemoryReader interface
//	├── capability/      Capabilities, capability modules and the registry
//	├── unit/            Compilation context and live units
//	├── handles/         Handle table and sub-unit proxy
//	├── marshal/         Bounds-checked guest memory copies
//	├── render/          Headless presentation surface and render namespace
//	├── input/           Input events and dispatch into entry points
//	├── hostlog/         Guest logging namespace
//	├── scene/           Scene file loading, validation and schema
//	├── driver/          Builds units from a scene and runs the frame loop
//	├── errors/          Structured error types for debugging
//	└── cmd/edhost/      Command line driver
//
// # Quick Start
//
// Compose two modules so one calls the other's exports:
//
//	c, _ := unit.NewContext(ctx, &unit.Config{})
//	defer c.Close(ctx)
//
//	math := unit.New(c, "math")
//	if err := math.Initialize(ctx, unit.Bytes("math", mathWasm), capability.NewRegistry()); err != nil {
//	    log.Fatal(err)
//	}
//
//	exports, _ := math.ExportModule()
//	reg := capability.NewRegistry()
//	reg.Add("math", exports)
//
//	app := unit.New(c, "app")
//	if err := app.Initialize(ctx, unit.Bytes("app", appWasm), reg); err != nil {
//	    log.Fatal(err)
//	}
//
//	run, _ := app.Export("run")
//	result, _ := run.Call(ctx)
//
// # System Namespace
//
// Every unit may import sys.exit(i32). Calling it closes the unit and unwinds
// the outermost call with a wazero *sys.ExitError carrying the code.
//
// # Thread Safety
//
// Context, Registry and the handle Table are safe for concurrent use. Unit is
// NOT thread-safe and should be driven by a single goroutine.
package edhost
