package input

import (
	"context"
	"fmt"

	"github.com/ededitor/edhost/capability"
	"github.com/ededitor/edhost/errors"
	"github.com/ededitor/edhost/unit"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// Entry point names, in lookup order.
var (
	MouseEntryPoints = []string{"mouseEvent", "onMouseEvent"}
	KeyEntryPoints   = []string{"keyEvent"}
)

var (
	mouseSig = capability.NewSignature([]api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}, nil)
	keySig   = capability.NewSignature([]api.ValueType{api.ValueTypeI32}, nil)
)

type target struct {
	mouse *unit.Func
	key   *unit.Func
	unit  string
}

// Dispatcher forwards events to the entry points of bound units, in bind
// order. It is driven from a single goroutine.
type Dispatcher struct {
	targets []target
}

// NewDispatcher creates a dispatcher with no targets.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Bind looks up u's input entry points. Units exporting none are skipped and
// Bind reports false. An entry point with the wrong signature is an error.
func (d *Dispatcher) Bind(u *unit.Unit) (bool, error) {
	mouse, err := lookup(u, MouseEntryPoints, mouseSig)
	if err != nil {
		return false, err
	}
	key, err := lookup(u, KeyEntryPoints, keySig)
	if err != nil {
		return false, err
	}
	if mouse == nil && key == nil {
		return false, nil
	}
	d.targets = append(d.targets, target{unit: u.Name(), mouse: mouse, key: key})
	Logger().Debug("input bound",
		zap.String("unit", u.Name()),
		zap.Bool("mouse", mouse != nil),
		zap.Bool("key", key != nil))
	return true, nil
}

func lookup(u *unit.Unit, names []string, want capability.Signature) (*unit.Func, error) {
	for _, name := range names {
		if !u.HasExport(name) {
			continue
		}
		fn, err := u.Export(name)
		if err != nil {
			return nil, err
		}
		if got := fn.Signature(); !got.Equal(want) {
			e := errors.SignatureMismatch(u.Name(), name, want.String(), got.String())
			e.Unit = u.Name()
			return nil, e
		}
		return fn, nil
	}
	return nil, nil
}

// Len returns the number of bound units.
func (d *Dispatcher) Len() int {
	return len(d.targets)
}

// Dispatch delivers e to every bound unit that handles its kind. A guest
// exit is returned unwrapped.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) error {
	for _, t := range d.targets {
		var err error
		switch {
		case e.Kind.IsMouse() && t.mouse != nil:
			_, err = t.mouse.Call(ctx, api.EncodeI32(int32(e.Kind)), api.EncodeI32(e.X), api.EncodeI32(e.Y))
		case e.Kind == KeyDown && t.key != nil:
			_, err = t.key.Call(ctx, api.EncodeI32(e.Key))
		}
		if _, exited := errors.ExitCode(err); exited {
			return err
		}
		if err != nil {
			return fmt.Errorf("dispatch %s event to %s: %w", e.Kind, t.unit, err)
		}
	}
	return nil
}

// DispatchAll delivers events in order and stops at the first failure.
func (d *Dispatcher) DispatchAll(ctx context.Context, events []Event) error {
	for _, e := range events {
		if err := d.Dispatch(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
