package config

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/spanz"
	"github.com/zoobzio/spanz/listeners"
	"github.com/zoobzio/spanz/propagation"
	"github.com/zoobzio/spanz/sampling"
	"go.uber.org/zap"
)

// Deps are the runtime collaborators Build wires into the tracer.
type Deps struct {
	Clock      clockz.Clock
	Logger     *zap.Logger
	Registerer prometheus.Registerer
}

// Assembly is a Config turned into live components.
type Assembly struct {
	Sampler   spanz.Sampler
	Collector *spanz.Collector
	Registry  *listeners.Registry

	// configured holds the listeners built from Config.Listeners; fixed
	// holds metrics and the collector, which always run last.
	mu         sync.Mutex
	configured []spanz.SpanListener
	fixed      []spanz.SpanListener

	options []spanz.Option
}

// Build validates cfg and constructs its sampler, propagators, listeners
// and collector.
func Build(cfg Config, deps Deps) (*Assembly, error) {
	if deps.Clock == nil {
		deps.Clock = clockz.RealClock
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	sampler, err := sampling.New(cfg.Sampler, sampling.WithClock(deps.Clock))
	if err != nil {
		return nil, fmt.Errorf("sampler: %w", err)
	}

	a := &Assembly{
		Sampler:  sampler,
		Registry: listeners.NewRegistry(listeners.Deps{Clock: deps.Clock, Registerer: deps.Registerer}),
	}

	if a.configured, err = a.Registry.BuildAll(cfg.Listeners); err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		m, err := listeners.NewMetrics(listeners.MetricsConfig{Namespace: cfg.Metrics.Namespace}, deps.Registerer)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		a.fixed = append(a.fixed, m)
	}

	if cfg.Collector.Enabled {
		report, err := sampling.New(cfg.ReportSampler, sampling.WithClock(deps.Clock))
		if err != nil {
			return nil, fmt.Errorf("report sampler: %w", err)
		}
		a.Collector = spanz.NewCollector(cfg.Collector.BufferSize, report)
		a.Collector.SetSyncMode(cfg.Collector.Sync)
		a.fixed = append(a.fixed, a.Collector)
	}

	a.options = []spanz.Option{
		spanz.WithClock(deps.Clock),
		spanz.WithLogger(deps.Logger),
		spanz.WithPropagator(spanz.TextMap, propagation.NewTextMap(propagation.WithKeys(cfg.Propagation))),
		spanz.WithPropagator(spanz.HTTPHeaders, propagation.NewHTTPHeaders(propagation.WithKeys(cfg.Propagation))),
		spanz.WithListeners(a.chain()...),
	}
	if sampler != nil {
		a.options = append(a.options, spanz.WithSampler(sampler))
	}
	return a, nil
}

// Listeners returns the full chain in dispatch order.
func (a *Assembly) Listeners() []spanz.SpanListener {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chain()
}

func (a *Assembly) chain() []spanz.SpanListener {
	chain := make([]spanz.SpanListener, 0, len(a.configured)+len(a.fixed))
	chain = append(chain, a.configured...)
	return append(chain, a.fixed...)
}

// Options returns the tracer options for the assembly.
func (a *Assembly) Options() []spanz.Option {
	return append([]spanz.Option(nil), a.options...)
}

// NewTracer creates a tracer from the assembly.
func (a *Assembly) NewTracer(extra ...spanz.Option) *spanz.Tracer {
	return spanz.New(append(a.Options(), extra...)...)
}

// Rebuild replaces the configured listeners with those described by ds and
// installs the new chain on recorder. Metrics and the collector are kept.
func (a *Assembly) Rebuild(recorder *spanz.Recorder, ds []listeners.Descriptor) error {
	built, err := a.Registry.BuildAll(ds)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.configured = built
	recorder.SetSpanListeners(a.chain())
	return nil
}

// Close releases the collector, if one was built.
func (a *Assembly) Close() {
	if a.Collector != nil {
		a.Collector.Close()
	}
}
