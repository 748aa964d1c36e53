package listeners

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/spanz"
)

// ErrUnknownListener is returned for a descriptor whose type is not registered.
var ErrUnknownListener = errors.New("listeners: unknown listener type")

// Registered type names of the built-in listeners.
const (
	TypeTagInjector     = "TagInjectorSpanListener"
	TypeErrorInjector   = "ErrorInjectorSpanListener"
	TypeLatencyInjector = "LatencyInjectorSpanListener"
	TypeSecurityAware   = "SecurityAwareSpanListener"
	TypeFiltering       = "FilteringSpanListener"
	TypeMetrics         = "MetricsSpanListener"
)

// Descriptor names a listener and its options. Listener, Filters and All are
// only read for FilteringSpanListener.
type Descriptor struct {
	Type     string         `koanf:"type" mapstructure:"type"`
	Config   map[string]any `koanf:"config" mapstructure:"config"`
	Listener *Descriptor    `koanf:"listener" mapstructure:"listener"`
	Filters  []FilterConfig `koanf:"filters" mapstructure:"filters"`
	All      bool           `koanf:"all" mapstructure:"all"`
}

// Deps are shared resources handed to factories.
type Deps struct {
	Clock      clockz.Clock
	Registerer prometheus.Registerer
}

// Factory builds a listener from a descriptor.
type Factory func(r *Registry, d Descriptor) (spanz.SpanListener, error)

// Registry maps type names onto factories.
// Safe for concurrent use by multiple goroutines.
type Registry struct {
	deps      Deps
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry holding the built-in listeners.
func NewRegistry(deps Deps) *Registry {
	if deps.Clock == nil {
		deps.Clock = clockz.RealClock
	}
	r := &Registry{deps: deps, factories: make(map[string]Factory)}
	r.Register(TypeTagInjector, buildTagInjector)
	r.Register(TypeErrorInjector, buildErrorInjector)
	r.Register(TypeLatencyInjector, buildLatencyInjector)
	r.Register(TypeSecurityAware, buildSecurityAware)
	r.Register(TypeFiltering, buildFiltering)
	r.Register(TypeMetrics, buildMetrics)
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Types returns the registered names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Deps returns the shared resources.
func (r *Registry) Deps() Deps {
	return r.deps
}

// Build creates the listener described by d.
func (r *Registry) Build(d Descriptor) (spanz.SpanListener, error) {
	r.mu.RLock()
	f, ok := r.factories[d.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownListener, d.Type)
	}
	l, err := f(r, d)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", d.Type, err)
	}
	return l, nil
}

// BuildAll creates listeners in order.
func (r *Registry) BuildAll(ds []Descriptor) ([]spanz.SpanListener, error) {
	out := make([]spanz.SpanListener, 0, len(ds))
	for i, d := range ds {
		l, err := r.Build(d)
		if err != nil {
			return nil, fmt.Errorf("listener %d: %w", i, err)
		}
		out = append(out, l)
	}
	return out, nil
}

// Decode decodes raw options into out, accepting duration strings and
// weakly typed scalars.
func Decode(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

func buildTagInjector(_ *Registry, d Descriptor) (spanz.SpanListener, error) {
	var cfg TagInjectorConfig
	if err := Decode(d.Config, &cfg); err != nil {
		return nil, err
	}
	return NewTagInjector(cfg), nil
}

func buildErrorInjector(_ *Registry, d Descriptor) (spanz.SpanListener, error) {
	var cfg ErrorInjectorConfig
	if err := Decode(d.Config, &cfg); err != nil {
		return nil, err
	}
	l, err := NewErrorInjector(cfg)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func buildLatencyInjector(r *Registry, d Descriptor) (spanz.SpanListener, error) {
	var cfg LatencyInjectorConfig
	if err := Decode(d.Config, &cfg); err != nil {
		return nil, err
	}
	l, err := NewLatencyInjector(cfg, r.deps.Clock)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func buildSecurityAware(_ *Registry, d Descriptor) (spanz.SpanListener, error) {
	var cfg SecurityAwareConfig
	if err := Decode(d.Config, &cfg); err != nil {
		return nil, err
	}
	return NewSecurityAware(cfg), nil
}

func buildFiltering(r *Registry, d Descriptor) (spanz.SpanListener, error) {
	if d.Listener == nil {
		return nil, errors.New("filtering listener needs an inner listener")
	}
	inner, err := r.Build(*d.Listener)
	if err != nil {
		return nil, err
	}
	filterer := &SpanFilterer{All: d.All}
	for _, fc := range d.Filters {
		filterer.Filters = append(filterer.Filters, fc.Build())
	}
	return NewFiltering(inner, filterer), nil
}

func buildMetrics(r *Registry, d Descriptor) (spanz.SpanListener, error) {
	var cfg MetricsConfig
	if err := Decode(d.Config, &cfg); err != nil {
		return nil, err
	}
	l, err := NewMetrics(cfg, r.deps.Registerer)
	if err != nil {
		return nil, err
	}
	return l, nil
}
