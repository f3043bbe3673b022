package driver

import (
	"context"
	stderrors "errors"

	"github.com/ededitor/edhost/capability"
	"github.com/ededitor/edhost/handles"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tetratelabs/wazero/api"
)

const metricsNamespace = "edhost"

type metrics struct {
	ticks       prometheus.Counter
	calls       *prometheus.CounterVec
	handles     prometheus.Gauge
	tickSeconds prometheus.Histogram
}

func newMetrics(r prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ticks_total",
			Help:      "number of completed ticks",
		}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "capability_calls_total",
			Help:      "number of capability calls made by guests",
		}, []string{"namespace", "name"}),
		handles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "handles",
			Help:      "number of live sub-units across all handle tables",
		}),
		tickSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "tick_seconds",
			Help:      "time spent in one tick",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
	}
	if r == nil {
		r = prometheus.NewRegistry()
	}
	err := stderrors.Join(
		r.Register(m.ticks),
		r.Register(m.calls),
		r.Register(m.handles),
		r.Register(m.tickSeconds),
	)
	return m, err
}

// instrument counts every call of mod's capabilities under namespace ns.
func (m *metrics) instrument(ns string, mod *capability.Module) *capability.Module {
	return mod.Instrument(func(name string, h api.GoModuleFunc) api.GoModuleFunc {
		c := m.calls.WithLabelValues(ns, name)
		return func(ctx context.Context, caller api.Module, stack []uint64) {
			c.Inc()
			h(ctx, caller, stack)
		}
	})
}

// OnHandleEvent tracks live sub-units.
func (m *metrics) OnHandleEvent(e handles.Event) {
	switch e.Type {
	case handles.EventAllocated:
		m.handles.Inc()
	case handles.EventReleased:
		m.handles.Dec()
	}
}
