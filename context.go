package spanz

import (
	"context"
	"sync"
)

// bundleKeyType is a private type for context keys to avoid collisions.
type bundleKeyType string

const (
	bundleKey bundleKeyType = "spanz"
	scopeKey  bundleKeyType = "spanz.scope"
)

// contextBundle holds both tracer and span to reduce context allocations.
type contextBundle struct {
	tracer *Tracer
	span   *Span
}

// SpanContext is the identity a span carries: trace, span and transaction
// ids, the sampling decision and baggage.
// Identity fields are fixed once the context is created; baggage stays mutable.
type SpanContext struct {
	TraceID       string `json:"trace_id"`
	SpanID        string `json:"span_id"`
	ParentID      string `json:"parent_id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Sampled       bool   `json:"sampled"`

	baggage map[string]string
	mu      sync.RWMutex
}

// NewSpanContext creates a context with the given identity and an empty baggage map.
func NewSpanContext(traceID, spanID, parentID, transactionID string, sampled bool) *SpanContext {
	return &SpanContext{
		TraceID:       traceID,
		SpanID:        spanID,
		ParentID:      parentID,
		TransactionID: transactionID,
		Sampled:       sampled,
	}
}

// SetBaggageItem stores a baggage entry that travels with the trace.
func (c *SpanContext) SetBaggageItem(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.baggage == nil {
		c.baggage = make(map[string]string)
	}
	c.baggage[key] = value
}

// BaggageItem returns a baggage entry.
func (c *SpanContext) BaggageItem(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.baggage[key]
	return v, ok
}

// ForEachBaggageItem calls fn for every baggage entry until fn returns false.
func (c *SpanContext) ForEachBaggageItem(fn func(key, value string) bool) {
	for k, v := range c.Baggage() {
		if !fn(k, v) {
			return
		}
	}
}

// Baggage returns a copy of the baggage map.
func (c *SpanContext) Baggage() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.baggage))
	for k, v := range c.baggage {
		out[k] = v
	}
	return out
}

// child derives the context of a child span: same trace and transaction,
// inherited sampling decision and a copy of the baggage.
func (c *SpanContext) child(spanID string) *SpanContext {
	return &SpanContext{
		TraceID:       c.TraceID,
		SpanID:        spanID,
		ParentID:      c.SpanID,
		TransactionID: c.TransactionID,
		Sampled:       c.Sampled,
		baggage:       c.Baggage(),
	}
}

// ContextWithSpan returns a copy of parent carrying span.
func ContextWithSpan(parent context.Context, span *Span) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	bundle := &contextBundle{span: span}
	if span != nil {
		bundle.tracer = span.tracer
	}
	return context.WithValue(parent, bundleKey, bundle)
}

// SpanFromContext extracts the current span from a context.
// Returns nil if no span is present.
func SpanFromContext(ctx context.Context) *Span {
	if ctx == nil {
		return nil
	}
	if bundle, ok := ctx.Value(bundleKey).(*contextBundle); ok {
		return bundle.span
	}
	return nil
}

// TracerFromContext returns the tracer of the span carried by ctx, or nil.
func TracerFromContext(ctx context.Context) *Tracer {
	if ctx == nil {
		return nil
	}
	if bundle, ok := ctx.Value(bundleKey).(*contextBundle); ok {
		return bundle.tracer
	}
	return nil
}
