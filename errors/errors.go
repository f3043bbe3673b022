package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/sys"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseCompile  Phase = "compile"  // module compilation
	PhaseLinking  Phase = "linking"  // import resolution
	PhaseInstance Phase = "instance" // instantiation and start
	PhaseRuntime  Phase = "runtime"  // calls into a live unit
	PhaseMemory   Phase = "memory"   // guest memory access
	PhaseHandle   Phase = "handle"   // handle table operations
	PhaseConfig   Phase = "config"   // scene and engine configuration
)

// Kind categorizes the error
type Kind string

const (
	KindCompileFailed      Kind = "compile_failed"
	KindMissingNamespace   Kind = "missing_namespace"
	KindMissingCapability  Kind = "missing_capability"
	KindSignatureMismatch  Kind = "signature_mismatch"
	KindUnsupportedImport  Kind = "unsupported_import"
	KindContextMismatch    Kind = "context_mismatch"
	KindInstantiation      Kind = "instantiation"
	KindExportNotFound     Kind = "export_not_found"
	KindOutOfBounds        Kind = "out_of_bounds"
	KindNoMemoryExport     Kind = "no_memory_export"
	KindNotInitialized     Kind = "not_initialized"
	KindAlreadyInitialized Kind = "already_initialized"
	KindInvalidHandle      Kind = "invalid_handle"
	KindInvalidInput       Kind = "invalid_input"
)

// Prototype values for errors.Is comparisons.
var (
	ErrCompileFailed      = &Error{Phase: PhaseCompile, Kind: KindCompileFailed}
	ErrMissingNamespace   = &Error{Phase: PhaseLinking, Kind: KindMissingNamespace}
	ErrMissingCapability  = &Error{Phase: PhaseLinking, Kind: KindMissingCapability}
	ErrSignatureMismatch  = &Error{Phase: PhaseLinking, Kind: KindSignatureMismatch}
	ErrUnsupportedImport  = &Error{Phase: PhaseLinking, Kind: KindUnsupportedImport}
	ErrContextMismatch    = &Error{Phase: PhaseLinking, Kind: KindContextMismatch}
	ErrInstantiation      = &Error{Phase: PhaseInstance, Kind: KindInstantiation}
	ErrExportNotFound     = &Error{Phase: PhaseRuntime, Kind: KindExportNotFound}
	ErrOutOfBounds        = &Error{Phase: PhaseMemory, Kind: KindOutOfBounds}
	ErrNoMemoryExport     = &Error{Phase: PhaseMemory, Kind: KindNoMemoryExport}
	ErrNotInitialized     = &Error{Phase: PhaseRuntime, Kind: KindNotInitialized}
	ErrAlreadyInitialized = &Error{Phase: PhaseInstance, Kind: KindAlreadyInitialized}
	ErrInvalidHandle      = &Error{Phase: PhaseHandle, Kind: KindInvalidHandle}
)

// Error is the structured error type used throughout the host
type Error struct {
	Value     any
	Cause     error
	Phase     Phase
	Kind      Kind
	Unit      string
	Namespace string
	Name      string
	Detail    string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Namespace != "" || e.Name != "" {
		b.WriteString(" ")
		b.WriteString(e.Namespace)
		if e.Name != "" {
			b.WriteByte('.')
			b.WriteString(e.Name)
		}
	}

	if e.Unit != "" {
		b.WriteString(" in unit ")
		b.WriteString(e.Unit)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// IsLink reports whether err is an import resolution failure.
func IsLink(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Phase == PhaseLinking
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Unit sets the diagnostic unit name
func (b *Builder) Unit(name string) *Builder {
	b.err.Unit = name
	return b
}

// Import sets the namespace and entry the error refers to
func (b *Builder) Import(namespace, name string) *Builder {
	b.err.Namespace = namespace
	b.err.Name = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// CompileFailed creates a compilation error for the named source
func CompileFailed(unit string, cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindCompileFailed,
		Unit:   unit,
		Detail: "compile module",
		Cause:  cause,
	}
}

// MissingNamespace creates a link error for an import whose namespace is absent
func MissingNamespace(namespace, name string) *Error {
	return &Error{
		Phase:     PhaseLinking,
		Kind:      KindMissingNamespace,
		Namespace: namespace,
		Name:      name,
		Detail:    fmt.Sprintf("namespace %q is not registered", namespace),
	}
}

// MissingCapability creates a link error for an import absent from its namespace
func MissingCapability(namespace, name string) *Error {
	return &Error{
		Phase:     PhaseLinking,
		Kind:      KindMissingCapability,
		Namespace: namespace,
		Name:      name,
		Detail:    fmt.Sprintf("namespace %q has no entry %q", namespace, name),
	}
}

// SignatureMismatch creates a link error for a capability with the wrong shape
func SignatureMismatch(namespace, name, want, got string) *Error {
	return &Error{
		Phase:     PhaseLinking,
		Kind:      KindSignatureMismatch,
		Namespace: namespace,
		Name:      name,
		Detail:    fmt.Sprintf("import declares %s, capability provides %s", want, got),
	}
}

// ExportNotFound creates an error for a missing export
func ExportNotFound(unit, name string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindExportNotFound,
		Unit:   unit,
		Name:   name,
		Detail: fmt.Sprintf("unit %q has no function export %q", unit, name),
	}
}

// OutOfBounds creates a guest memory range error
func OutOfBounds(offset, length uint32, size uint64) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindOutOfBounds,
		Value:  offset,
		Detail: fmt.Sprintf("range [%d, %d) exceeds memory size %d", offset, uint64(offset)+uint64(length), size),
	}
}

// NotInitialized creates an error for operations on a unit with no instance
func NotInitialized(unit string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindNotInitialized,
		Unit:   unit,
		Detail: "unit has not been initialized",
	}
}

// InvalidHandle creates a handle table lookup error
func InvalidHandle(h uint32, size int) *Error {
	return &Error{
		Phase:  PhaseHandle,
		Kind:   KindInvalidHandle,
		Value:  h,
		Detail: fmt.Sprintf("handle %d not in table of %d", h, size),
	}
}

// InvalidInput creates a configuration error
func InvalidInput(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}

// ExitCode reports the guest exit code carried anywhere in err's chain.
func ExitCode(err error) (uint32, bool) {
	var exit *sys.ExitError
	if errors.As(err, &exit) {
		return exit.ExitCode(), true
	}
	return 0, false
}
