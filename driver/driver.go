// Package driver hosts the units of a scene and runs its tick loop.
//
// Units are created in scene order. Every import namespace is bound to the
// provider the scene names: host namespaces are built per unit, unit
// bindings forward into the exports of an earlier unit and handles bindings
// hand out the construct/invoke_<op> module of a proxy. Each tick drains the
// input queue into the units' entry points, calls update on every unit that
// exports it and swaps the finished frame to the presenter.
//
// A guest exit ends the scene. Tick and Run return the *sys.ExitError
// unchanged so callers can turn it into a process exit code.
package driver

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ededitor/edhost/capability"
	"github.com/ededitor/edhost/errors"
	"github.com/ededitor/edhost/handles"
	"github.com/ededitor/edhost/hostlog"
	"github.com/ededitor/edhost/input"
	"github.com/ededitor/edhost/render"
	"github.com/ededitor/edhost/scene"
	"github.com/ededitor/edhost/unit"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Entry point names the driver calls.
const (
	InitEntry   = "init"
	UpdateEntry = "update"
)

var entrySig = capability.NewSignature(nil, nil)

// Options configures a Driver.
type Options struct {
	// Logger receives driver and guest output logs. Defaults to a no-op logger.
	Logger *zap.Logger

	// Presenter receives every swapped frame. Frames are dropped when nil.
	Presenter render.Presenter

	// Metrics registers the driver's collectors. A private registry is used
	// when nil.
	Metrics prometheus.Registerer

	// Stdout receives env namespace output. Defaults to os.Stdout.
	Stdout io.Writer
}

// Driver runs one scene.
// Driver is NOT safe for concurrent use, except for Queue and Surface.
type Driver struct {
	scene      *scene.Scene
	log        *zap.Logger
	presenter  render.Presenter
	stdout     io.Writer
	ctx        *unit.Context
	byName     map[string]*unit.Unit
	proxies    map[string]*handles.Proxy
	surface    *render.Surface
	queue      *input.Queue
	dispatcher *input.Dispatcher
	metrics    *metrics
	main       *unit.Unit
	units      []*unit.Unit
	updates    []*unit.Func
	tables     []*handles.Table
	ticks      int
}

// New compiles and initializes every unit of s. On failure everything
// created so far is closed.
func New(ctx context.Context, s *scene.Scene, opts Options) (_ *Driver, err error) {
	if err := scene.Validate(s); err != nil {
		return nil, err
	}

	d := &Driver{
		scene:      s,
		log:        opts.Logger,
		presenter:  opts.Presenter,
		stdout:     opts.Stdout,
		byName:     make(map[string]*unit.Unit),
		proxies:    make(map[string]*handles.Proxy),
		surface:    render.NewSurface(),
		queue:      input.NewQueue(),
		dispatcher: input.NewDispatcher(),
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	if d.stdout == nil {
		d.stdout = os.Stdout
	}

	if d.metrics, err = newMetrics(opts.Metrics); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	d.ctx, err = unit.NewContext(ctx, &unit.Config{
		Name:             s.Name,
		CacheDir:         s.CacheDir,
		MemoryLimitPages: s.Memory,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = d.Close(ctx)
		}
	}()

	for _, spec := range s.Units {
		if spec.IsProxy() {
			d.addProxy(spec)
			continue
		}
		if err := d.addUnit(ctx, spec); err != nil {
			return nil, err
		}
	}

	if err := d.bindEntryPoints(); err != nil {
		return nil, err
	}

	d.log.Info("scene loaded",
		zap.String("scene", s.Name),
		zap.Int("units", len(d.units)),
		zap.Int("proxies", len(d.proxies)),
		zap.String("main", s.Main))
	return d, nil
}

func (d *Driver) addUnit(ctx context.Context, spec scene.UnitSpec) error {
	u := unit.New(d.ctx, spec.Name)
	reg, err := d.registry(u, spec.Imports)
	if err != nil {
		return err
	}
	if err := u.Initialize(ctx, unit.File(spec.Source), reg); err != nil {
		_ = u.Close(ctx)
		return callErr(spec.Name, "initialize", err)
	}
	d.units = append(d.units, u)
	d.byName[spec.Name] = u

	d.log.Debug("unit ready", zap.String("unit", spec.Name), zap.String("source", spec.Source))
	return nil
}

func (d *Driver) addProxy(spec scene.UnitSpec) {
	hs := spec.Handles
	ops := make([]handles.Op, 0, len(hs.Ops))
	for _, o := range hs.Ops {
		if o.Returns {
			ops = append(ops, handles.ArgsReturning(o.Name, o.Args))
		} else {
			ops = append(ops, handles.Args(o.Name, o.Args))
		}
	}

	table := handles.NewTable()
	table.Subscribe(d.metrics)
	d.tables = append(d.tables, table)

	d.proxies[spec.Name] = handles.NewProxy(handles.ProxyConfig{
		Context: d.ctx,
		Table:   table,
		Name:    spec.Name,
		Source:  unit.File(hs.Source),
		Ops:     ops,
		Bind: func(_ handles.Handle, u *unit.Unit) (*capability.Registry, error) {
			return d.registry(u, hs.Imports)
		},
	})
	d.log.Debug("proxy ready", zap.String("proxy", spec.Name), zap.Int("ops", len(ops)))
}

// registry builds the capabilities u imports. Host namespaces read from u's
// own memory.
func (d *Driver) registry(u *unit.Unit, imports map[string]scene.Binding) (*capability.Registry, error) {
	reg := capability.NewRegistry()
	for ns, b := range imports {
		kind, target, err := b.Parse()
		if err != nil {
			return nil, errors.InvalidInput(fmt.Sprintf("unit %q import %q", u.Name(), ns), err)
		}

		var mod *capability.Module
		switch kind {
		case scene.BindHost:
			mod = d.hostNamespace(u, target)
		case scene.BindUnit:
			dep, ok := d.byName[target]
			if !ok {
				return nil, errors.InvalidInput(fmt.Sprintf("unit %q import %q: no unit %q", u.Name(), ns, target), nil)
			}
			if mod, err = dep.ExportModule(); err != nil {
				return nil, err
			}
		case scene.BindHandles:
			p, ok := d.proxies[target]
			if !ok {
				return nil, errors.InvalidInput(fmt.Sprintf("unit %q import %q: no proxy %q", u.Name(), ns, target), nil)
			}
			mod = p.Module()
		}
		reg.Add(ns, d.metrics.instrument(ns, mod))
	}
	return reg, nil
}

func (d *Driver) hostNamespace(u *unit.Unit, name string) *capability.Module {
	if name == scene.HostEnv {
		return hostlog.Namespace(u, d.log.Named(u.Name()), d.stdout)
	}
	r := d.scene.Render
	return render.Namespace(u, d.surface,
		render.WithImageSize(r.ImageWidth, r.ImageHeight),
		render.WithTextLimit(r.TextLimit))
}

// bindEntryPoints requires update on the main unit, registers input targets
// and orders update calls: units receiving input first, then the rest, each
// in scene order.
func (d *Driver) bindEntryPoints() error {
	d.main = d.byName[d.scene.Main]
	if !d.main.HasExport(UpdateEntry) {
		return errors.ExportNotFound(d.main.Name(), UpdateEntry)
	}

	var inputs, rest []*unit.Func
	for _, u := range d.units {
		bound, err := d.dispatcher.Bind(u)
		if err != nil {
			return err
		}
		if !u.HasExport(UpdateEntry) {
			continue
		}
		fn, err := entry(u, UpdateEntry)
		if err != nil {
			return err
		}
		if bound {
			inputs = append(inputs, fn)
		} else {
			rest = append(rest, fn)
		}
	}
	d.updates = append(inputs, rest...)
	return nil
}

func entry(u *unit.Unit, name string) (*unit.Func, error) {
	fn, err := u.Export(name)
	if err != nil {
		return nil, err
	}
	if got := fn.Signature(); !got.Equal(entrySig) {
		e := errors.SignatureMismatch(u.Name(), name, entrySig.String(), got.String())
		e.Unit = u.Name()
		return nil, e
	}
	return fn, nil
}

// Init calls init on every unit that exports it, in scene order.
func (d *Driver) Init(ctx context.Context) error {
	for _, u := range d.units {
		if !u.HasExport(InitEntry) {
			continue
		}
		fn, err := entry(u, InitEntry)
		if err != nil {
			return err
		}
		if _, err := fn.Call(ctx); err != nil {
			return callErr(u.Name(), InitEntry, err)
		}
	}
	return nil
}

// Tick runs one frame.
func (d *Driver) Tick(ctx context.Context) error {
	start := time.Now()

	if err := d.dispatcher.DispatchAll(ctx, d.queue.Drain()); err != nil {
		return err
	}
	for _, fn := range d.updates {
		if _, err := fn.Call(ctx); err != nil {
			return callErr(fn.Unit(), UpdateEntry, err)
		}
	}

	frame := d.surface.Swap()
	if d.presenter != nil {
		if err := d.presenter.Present(frame); err != nil {
			return fmt.Errorf("present frame %d: %w", frame.Seq, err)
		}
	}

	d.ticks++
	d.metrics.ticks.Inc()
	d.metrics.tickSeconds.Observe(time.Since(start).Seconds())
	return nil
}

// Run ticks at the scene rate until ctx is done or the scene's tick budget
// is spent. Cancellation is not an error.
func (d *Driver) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(d.scene.Tick)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := d.Tick(ctx); err != nil {
			return err
		}
		if d.scene.Ticks > 0 && d.ticks >= d.scene.Ticks {
			d.log.Info("tick budget reached", zap.Int("ticks", d.ticks))
			return nil
		}
		select {
		case <-ctx.Done():
			d.log.Info("scene stopped", zap.Int("ticks", d.ticks))
			return nil
		case <-ticker.C:
		}
	}
}

// Queue returns the input queue drained at the start of every tick.
func (d *Driver) Queue() *input.Queue { return d.queue }

// Surface returns the shared render surface.
func (d *Driver) Surface() *render.Surface { return d.surface }

// Canvas returns the placement of the main unit's canvas.
func (d *Driver) Canvas() input.Canvas {
	c := d.scene.Canvas
	return input.Canvas{X: c.X, Y: c.Y, Width: c.Width, Height: c.Height}
}

// Scene returns the scene being run.
func (d *Driver) Scene() *scene.Scene { return d.scene }

// Ticks returns the number of completed ticks.
func (d *Driver) Ticks() int { return d.ticks }

// Unit returns the unit called name.
func (d *Driver) Unit(name string) (*unit.Unit, bool) {
	u, ok := d.byName[name]
	return u, ok
}

// Proxy returns the handle proxy called name.
func (d *Driver) Proxy(name string) (*handles.Proxy, bool) {
	p, ok := d.proxies[name]
	return p, ok
}

// Close releases sub-units, units in reverse order and the compilation
// context.
func (d *Driver) Close(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, t := range d.tables {
		keep(t.Close(ctx))
	}
	for i := len(d.units) - 1; i >= 0; i-- {
		keep(d.units[i].Close(ctx))
	}
	if d.ctx != nil {
		keep(d.ctx.Close(ctx))
	}
	return firstErr
}

// callErr annotates err with the entry point that failed. Guest exits are
// returned unchanged.
func callErr(unitName, entryName string, err error) error {
	if _, exited := errors.ExitCode(err); exited {
		return err
	}
	return fmt.Errorf("%s.%s: %w", unitName, entryName, err)
}
