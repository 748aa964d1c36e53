// Package sampling provides the trace and report samplers used by spanz.
//
// Trace samplers run once per root span; the decision is stored in the
// span's SpanContext and inherited by every child. Report samplers
// (DurationAware, ErrorAware) judge finished spans and are meant for the
// Collector.
package sampling

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/spanz"
)

// ErrUnknownSampler is returned by New for an unregistered sampler type.
var ErrUnknownSampler = errors.New("sampling: unknown sampler type")

// Sampler type names accepted by New.
const (
	TypeAlways    = "always"
	TypeNever     = "never"
	TypeCount     = "count"
	TypeTime      = "time"
	TypeDuration  = "duration"
	TypeError     = "error"
	TypeComposite = "composite"
)

// Config describes a sampler. Only the section matching Type is read.
type Config struct {
	Type      string          `koanf:"type" mapstructure:"type"`
	Count     CountConfig     `koanf:"count" mapstructure:"count"`
	Time      TimeConfig      `koanf:"time" mapstructure:"time"`
	Duration  DurationConfig  `koanf:"duration" mapstructure:"duration"`
	Composite CompositeConfig `koanf:"composite" mapstructure:"composite"`
}

// CountConfig configures CountAware.
type CountConfig struct {
	Frequency int `koanf:"frequency" mapstructure:"frequency"`
}

// TimeConfig configures TimeAware.
type TimeConfig struct {
	Window time.Duration `koanf:"window" mapstructure:"window"`
}

// DurationConfig configures DurationAware.
type DurationConfig struct {
	Threshold  time.Duration `koanf:"threshold" mapstructure:"threshold"`
	LongerThan bool          `koanf:"longer_than" mapstructure:"longer_than"`
}

// CompositeConfig configures Composite.
type CompositeConfig struct {
	Operator string   `koanf:"operator" mapstructure:"operator"`
	Samplers []Config `koanf:"samplers" mapstructure:"samplers"`
}

type options struct {
	clock clockz.Clock
}

// Option configures New.
type Option func(*options)

// WithClock sets the clock handed to time based samplers.
func WithClock(clock clockz.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// New builds the sampler described by cfg. An empty type yields a nil
// sampler, which the tracer and the collector treat as "keep everything".
func New(cfg Config, opts ...Option) (spanz.Sampler, error) {
	o := options{clock: clockz.RealClock}
	for _, opt := range opts {
		opt(&o)
	}
	return build(cfg, o)
}

func build(cfg Config, o options) (spanz.Sampler, error) {
	switch strings.ToLower(cfg.Type) {
	case "":
		return nil, nil
	case TypeAlways:
		return Always(), nil
	case TypeNever:
		return Never(), nil
	case TypeCount:
		if cfg.Count.Frequency <= 0 {
			return nil, fmt.Errorf("count sampler: frequency must be positive, got %d", cfg.Count.Frequency)
		}
		return NewCountAware(cfg.Count.Frequency), nil
	case TypeTime:
		return NewTimeAware(cfg.Time.Window, o.clock), nil
	case TypeDuration:
		return NewDurationAware(cfg.Duration.Threshold, cfg.Duration.LongerThan), nil
	case TypeError:
		return NewErrorAware(), nil
	case TypeComposite:
		op, err := ParseOperator(cfg.Composite.Operator)
		if err != nil {
			return nil, err
		}
		children := make([]spanz.Sampler, 0, len(cfg.Composite.Samplers))
		for i, child := range cfg.Composite.Samplers {
			s, err := build(child, o)
			if err != nil {
				return nil, fmt.Errorf("composite sampler %d: %w", i, err)
			}
			if s != nil {
				children = append(children, s)
			}
		}
		return NewComposite(op, children...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSampler, cfg.Type)
	}
}

// Always samples everything.
func Always() spanz.Sampler {
	return spanz.SamplerFunc(func(*spanz.Span) bool { return true })
}

// Never samples nothing.
func Never() spanz.Sampler {
	return spanz.SamplerFunc(func(*spanz.Span) bool { return false })
}
