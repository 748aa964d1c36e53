// Package propagation moves a spanz.SpanContext in and out of text carriers.
//
// Carriers may be any go.opentelemetry.io/otel/propagation.TextMapCarrier
// (MapCarrier, HeaderCarrier), a plain map[string]string or an http.Header.
package propagation

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/zoobzio/spanz"
	otelprop "go.opentelemetry.io/otel/propagation"
)

// Keys names the carrier entries.
type Keys struct {
	TraceID       string `koanf:"trace_id_key" mapstructure:"trace_id_key"`
	SpanID        string `koanf:"span_id_key" mapstructure:"span_id_key"`
	TransactionID string `koanf:"transaction_id_key" mapstructure:"transaction_id_key"`
	Sampled       string `koanf:"sampled_key" mapstructure:"sampled_key"`
	BaggagePrefix string `koanf:"baggage_prefix" mapstructure:"baggage_prefix"`
}

// DefaultKeys are used for every key left empty.
var DefaultKeys = Keys{
	TraceID:       "x-spanz-trace-id",
	SpanID:        "x-spanz-span-id",
	TransactionID: "x-spanz-transaction-id",
	Sampled:       "x-spanz-sampled",
	BaggagePrefix: "x-spanz-baggage-",
}

func (k Keys) withDefaults() Keys {
	if k.TraceID == "" {
		k.TraceID = DefaultKeys.TraceID
	}
	if k.SpanID == "" {
		k.SpanID = DefaultKeys.SpanID
	}
	if k.TransactionID == "" {
		k.TransactionID = DefaultKeys.TransactionID
	}
	if k.Sampled == "" {
		k.Sampled = DefaultKeys.Sampled
	}
	if k.BaggagePrefix == "" {
		k.BaggagePrefix = DefaultKeys.BaggagePrefix
	}
	return k
}

// Option configures a Propagator.
type Option func(*Propagator)

// WithKeys overrides the carrier keys.
func WithKeys(keys Keys) Option {
	return func(p *Propagator) {
		p.keys = keys.withDefaults()
	}
}

// Propagator implements spanz.Propagator over text carriers.
type Propagator struct {
	keys Keys
	// fold matches keys case-insensitively and lowercases baggage keys.
	fold bool
}

// NewTextMap creates the exact-match text map propagator.
func NewTextMap(opts ...Option) *Propagator {
	p := &Propagator{keys: DefaultKeys}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewHTTPHeaders creates the header flavor: keys match case-insensitively
// and extracted baggage keys are lowercased.
func NewHTTPHeaders(opts ...Option) *Propagator {
	p := NewTextMap(opts...)
	p.fold = true
	return p
}

// Keys returns the carrier keys in use.
func (p *Propagator) Keys() Keys {
	return p.keys
}

// Inject writes sc into carrier.
func (p *Propagator) Inject(sc *spanz.SpanContext, carrier any) error {
	if sc == nil {
		return spanz.ErrNilSpanContext
	}
	c, err := carrierOf(carrier)
	if err != nil {
		return err
	}

	c.Set(p.keys.TraceID, sc.TraceID)
	c.Set(p.keys.SpanID, sc.SpanID)
	if sc.TransactionID != "" {
		c.Set(p.keys.TransactionID, sc.TransactionID)
	}
	if sc.Sampled {
		c.Set(p.keys.Sampled, "1")
	} else {
		c.Set(p.keys.Sampled, "0")
	}
	sc.ForEachBaggageItem(func(k, v string) bool {
		c.Set(p.keys.BaggagePrefix+k, v)
		return true
	})
	return nil
}

// Extract reads a SpanContext from carrier. It returns nil, nil when the
// carrier holds no trace id.
func (p *Propagator) Extract(carrier any) (*spanz.SpanContext, error) {
	c, err := carrierOf(carrier)
	if err != nil {
		return nil, err
	}

	traceID := p.get(c, p.keys.TraceID)
	if traceID == "" {
		return nil, nil
	}
	sc := spanz.NewSpanContext(
		traceID,
		p.get(c, p.keys.SpanID),
		"",
		p.get(c, p.keys.TransactionID),
		p.get(c, p.keys.Sampled) != "0",
	)

	prefix := p.keys.BaggagePrefix
	for _, k := range c.Keys() {
		if p.fold {
			if len(k) > len(prefix) && strings.EqualFold(k[:len(prefix)], prefix) {
				sc.SetBaggageItem(strings.ToLower(k[len(prefix):]), c.Get(k))
			}
			continue
		}
		if len(k) > len(prefix) && strings.HasPrefix(k, prefix) {
			sc.SetBaggageItem(k[len(prefix):], c.Get(k))
		}
	}
	return sc, nil
}

func (p *Propagator) get(c otelprop.TextMapCarrier, key string) string {
	if v := c.Get(key); v != "" || !p.fold {
		return v
	}
	for _, k := range c.Keys() {
		if strings.EqualFold(k, key) {
			return c.Get(k)
		}
	}
	return ""
}

func carrierOf(carrier any) (otelprop.TextMapCarrier, error) {
	switch c := carrier.(type) {
	case otelprop.TextMapCarrier:
		return c, nil
	case map[string]string:
		if c == nil {
			return nil, fmt.Errorf("nil map: %w", spanz.ErrInvalidCarrier)
		}
		return otelprop.MapCarrier(c), nil
	case http.Header:
		if c == nil {
			return nil, fmt.Errorf("nil header: %w", spanz.ErrInvalidCarrier)
		}
		return otelprop.HeaderCarrier(c), nil
	default:
		return nil, fmt.Errorf("%T: %w", carrier, spanz.ErrInvalidCarrier)
	}
}
