package handles

import (
	"context"
	"fmt"

	"github.com/ededitor/edhost/capability"
	"github.com/ededitor/edhost/errors"
	"github.com/ededitor/edhost/unit"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// ConstructName is the capability that creates a new sub-unit.
const ConstructName = "construct"

// BindFunc returns the registry a new sub-unit is initialized against. It
// runs after the handle is reserved and before the unit is initialized, so
// the registry may close over the unit's own handle.
type BindFunc func(h Handle, u *unit.Unit) (*capability.Registry, error)

// ProxyConfig configures a Proxy.
type ProxyConfig struct {
	// Context owns every sub-unit. Required.
	Context *unit.Context

	// Table stores the sub-units. A new table is created when nil.
	Table *Table

	// Bind supplies each sub-unit's registry. An empty registry is used when nil.
	Bind BindFunc

	// Name prefixes sub-unit names as "<name>#<handle>". Defaults to the
	// source name.
	Name string

	// Source is compiled once and instantiated for every sub-unit.
	Source unit.Source

	// Ops lists the operations exposed as invoke_<op>. The first
	// declaration of a name wins.
	Ops []Op
}

// Proxy lets a guest create and drive sub-units through integer handles.
type Proxy struct {
	ctx   *unit.Context
	table *Table
	bind  BindFunc
	ops   map[string]Op
	order []Op
	name  string
	src   unit.Source
}

// NewProxy creates a proxy. Sub-units are only created by Construct.
func NewProxy(cfg ProxyConfig) *Proxy {
	p := &Proxy{
		ctx:   cfg.Context,
		table: cfg.Table,
		bind:  cfg.Bind,
		ops:   make(map[string]Op, len(cfg.Ops)),
		name:  cfg.Name,
		src:   cfg.Source,
	}
	if p.table == nil {
		p.table = NewTable()
	}
	if p.name == "" {
		p.name = cfg.Source.Name()
	}
	for _, op := range cfg.Ops {
		if _, dup := p.ops[op.name]; dup {
			continue
		}
		p.ops[op.name] = op
		p.order = append(p.order, op)
	}
	return p
}

// Table returns the proxy's handle table.
func (p *Proxy) Table() *Table {
	return p.table
}

// Name returns the sub-unit name prefix.
func (p *Proxy) Name() string {
	return p.name
}

// Construct reserves the next handle, binds and initializes a new sub-unit
// and publishes it under that handle. A failed construct gives the handle
// back, so handles stay dense.
func (p *Proxy) Construct(ctx context.Context) (Handle, error) {
	h, err := p.table.Reserve()
	if err != nil {
		return 0, err
	}

	u := unit.New(p.ctx, fmt.Sprintf("%s#%d", p.name, h))

	reg := capability.NewRegistry()
	if p.bind != nil {
		if reg, err = p.bind(h, u); err != nil {
			p.table.Cancel(h)
			return 0, fmt.Errorf("bind %s: %w", u.Name(), err)
		}
	}

	if err := u.Initialize(ctx, p.src, reg); err != nil {
		p.table.Cancel(h)
		Logger().Debug("sub-unit initialization failed",
			zap.String("unit", u.Name()),
			zap.Error(err))
		return 0, err
	}

	if err := p.table.Fill(h, u); err != nil {
		_ = u.Close(ctx)
		return 0, err
	}

	Logger().Debug("sub-unit constructed",
		zap.String("unit", u.Name()),
		zap.Uint32("handle", uint32(h)))
	return h, nil
}

// Invoke calls op on the sub-unit addressed by h and returns its result, or
// 0 for operations without one.
func (p *Proxy) Invoke(ctx context.Context, h Handle, op string, args ...int32) (int32, error) {
	o, ok := p.ops[op]
	if !ok {
		return 0, errors.New(errors.PhaseHandle, errors.KindInvalidInput).
			Import(p.name, op).
			Detail("operation %q is not declared by proxy %q", op, p.name).
			Build()
	}
	if len(args) != o.args {
		return 0, errors.New(errors.PhaseHandle, errors.KindInvalidInput).
			Import(p.name, op).
			Detail("operation %q takes %d arguments, got %d", op, o.args, len(args)).
			Build()
	}

	stack := make([]uint64, max(o.args, 1))
	for i, a := range args {
		stack[i] = api.EncodeI32(a)
	}
	if err := p.call(ctx, h, o, stack); err != nil {
		return 0, err
	}
	if !o.returns {
		return 0, nil
	}
	return api.DecodeI32(stack[0]), nil
}

// call forwards stack to the sub-unit's export. stack holds the operation's
// arguments and receives its result.
func (p *Proxy) call(ctx context.Context, h Handle, o Op, stack []uint64) error {
	u, err := p.table.Lookup(h)
	if err != nil {
		return err
	}
	fn, err := u.Export(o.name)
	if err != nil {
		return err
	}
	if want := o.Signature(); !fn.Signature().Equal(want) {
		e := errors.SignatureMismatch(u.Name(), o.name, want.String(), fn.Signature().String())
		e.Unit = u.Name()
		return e
	}
	return fn.CallWithStack(ctx, stack)
}

// Module returns the capability module a parent unit imports: construct and
// one invoke_<op> per operation. Failures inside these capabilities are
// fatal to the calling guest and surface from its outermost call.
func (p *Proxy) Module() *capability.Module {
	m := capability.NewModule()

	m.Define(ConstructName, capability.Forwarded(
		capability.NewSignature(nil, []api.ValueType{api.ValueTypeI32}),
		func(ctx context.Context, _ api.Module, stack []uint64) {
			h, err := p.Construct(ctx)
			if err != nil {
				panic(err)
			}
			stack[0] = api.EncodeU32(uint32(h))
		},
		p.ctx,
	))

	for _, op := range p.order {
		m.Define(op.ProxyName(), capability.Forwarded(op.ProxySignature(), p.invoker(op), p.ctx))
	}
	return m
}

func (p *Proxy) invoker(o Op) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		h := Handle(api.DecodeU32(stack[0]))
		sub := make([]uint64, max(o.args, 1))
		copy(sub, stack[1:1+o.args])
		if err := p.call(ctx, h, o, sub); err != nil {
			panic(err)
		}
		if o.returns {
			stack[0] = sub[0]
		}
	}
}
