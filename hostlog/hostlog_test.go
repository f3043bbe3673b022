package hostlog

import (
	"bytes"
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/ededitor/edhost/capability"
	"github.com/ededitor/edhost/errors"
	"github.com/ededitor/edhost/internal/demo"
	wb "github.com/ededitor/edhost/internal/wasmbuild"
	"github.com/ededitor/edhost/unit"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func load(t *testing.T, name string, wasm []byte, log *zap.Logger, out *bytes.Buffer) *unit.Unit {
	t.Helper()
	ctx := context.Background()
	c, err := unit.NewContext(ctx, &unit.Config{Name: t.Name()})
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(func() { c.Close(ctx) })

	u := unit.New(c, name)
	reg := capability.NewRegistry()
	reg.Add(NamespaceName, Namespace(u, log, out))
	if err := u.Initialize(ctx, unit.Bytes(name, wasm), reg); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return u
}

func call(u *unit.Unit, name string, args ...uint64) error {
	fn, err := u.Export(name)
	if err != nil {
		return err
	}
	_, err = fn.Call(context.Background(), args...)
	return err
}

func TestFizzBuzz(t *testing.T) {
	var out bytes.Buffer
	u := load(t, "fizzbuzz", demo.FizzBuzz(), nil, &out)

	if err := call(u, "fizzbuzz", 15); err != nil {
		t.Fatalf("fizzbuzz: %v", err)
	}

	want := []string{"1", "2", "fizz", "4", "buzz", "fizz", "7", "8", "fizz", "buzz", "11", "fizz", "13", "14", "FizzBuzz"}
	got := strings.Split(strings.TrimSpace(out.String()), "\n")
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("output = %v\nwant %v", got, want)
	}
}

func TestPrintLogsAtDebug(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	var out bytes.Buffer
	u := load(t, "hello", demo.Hello(), zap.New(core), &out)

	if err := call(u, "prog", api.EncodeI32(-9)); err != nil {
		t.Fatalf("prog: %v", err)
	}
	if out.String() != "1\n2\n-9\n" {
		t.Errorf("output = %q", out.String())
	}
	if logs.FilterMessage("guest output").Len() != 3 {
		t.Errorf("logged %d entries", logs.Len())
	}
}

func TestLogOutOfBounds(t *testing.T) {
	m := wb.New()
	log := m.Import("env", "log", []api.ValueType{api.ValueTypeI32}, nil)
	m.Memory(1, 1).ExportMemory("memory")
	m.Export("bad", m.Func(nil, nil, wb.I32Const(70000), wb.Call(log)))

	var out bytes.Buffer
	u := load(t, "bad", m.Build(), nil, &out)
	if err := call(u, "bad"); !stderrors.Is(err, errors.ErrOutOfBounds) {
		t.Fatalf("expected out_of_bounds, got %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
}
