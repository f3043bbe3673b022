// Package errors provides structured error types for the unit host.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// Link errors carry the namespace and entry name of the first unmet import so
// callers can report exactly which capability a module was missing.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLinking, errors.KindMissingCapability).
//		Import("render", "drawImage").
//		Unit("canvas").
//		Detail("no such entry").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.MissingNamespace("render", "drawImage")
//	err := errors.OutOfBounds(offset, length, size)
//
// All errors implement the standard error interface and support errors.Is/As.
// A guest that exits is not reported through this package: the wazero
// *sys.ExitError travels unchanged and ExitCode extracts its code.
package errors
