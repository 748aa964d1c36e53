package spanz

import (
	"context"
	"fmt"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Tracer is the facade instrumented code talks to. It owns one Recorder,
// one Sampler and a Propagator per carrier format.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	recorder    *Recorder
	sampler     Sampler
	propagators map[Format]Propagator
	clock       clockz.Clock
	logger      *zap.Logger
	ids         *idSource
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithClock sets the clock used for span timing.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(t *Tracer) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithSampler sets the trace sampler. Without one every trace is sampled.
func WithSampler(s Sampler) Option {
	return func(t *Tracer) {
		t.sampler = s
	}
}

// WithPropagator registers p for the given carrier format.
func WithPropagator(format Format, p Propagator) Option {
	return func(t *Tracer) {
		t.propagators[format] = p
	}
}

// WithLogger sets the logger used by the tracer and its recorder.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithListeners registers listeners in order.
func WithListeners(ls ...SpanListener) Option {
	return func(t *Tracer) {
		for _, l := range ls {
			t.recorder.AddSpanListener(l)
		}
	}
}

// New creates a tracer. Call Destroy when it is no longer needed.
func New(opts ...Option) *Tracer {
	t := &Tracer{
		propagators: make(map[Format]Propagator),
		clock:       clockz.RealClock,
		logger:      zap.NewNop(),
		recorder:    NewRecorder(nil),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.recorder.logger = t.logger
	t.ids = &idSource{clock: t.clock}
	return t
}

// Recorder returns the tracer's recorder.
func (t *Tracer) Recorder() *Recorder {
	return t.recorder
}

// Sampler returns the trace sampler, possibly nil.
func (t *Tracer) Sampler() Sampler {
	return t.sampler
}

// Clock returns the tracer's clock.
func (t *Tracer) Clock() clockz.Clock {
	return t.clock
}

// Logger returns the tracer's logger.
func (t *Tracer) Logger() *zap.Logger {
	return t.logger
}

type spanOptions struct {
	tags       map[Tag]any
	start      time.Time
	parentSpan *Span
	parentCtx  *SpanContext
	domainName string
	className  string
	skipActive bool
}

// SpanOption configures a span at start.
type SpanOption func(*spanOptions)

// ChildOf makes the span a child of parent instead of the active span.
func ChildOf(parent *Span) SpanOption {
	return func(o *spanOptions) {
		o.parentSpan = parent
	}
}

// ChildOfContext continues a trace from an extracted, usually remote, context.
func ChildOfContext(parent *SpanContext) SpanOption {
	return func(o *spanOptions) {
		o.parentCtx = parent
	}
}

// WithTags sets initial tags.
func WithTags(tags map[Tag]any) SpanOption {
	return func(o *spanOptions) {
		o.tags = tags
	}
}

// WithStartTime overrides the start time.
func WithStartTime(t time.Time) SpanOption {
	return func(o *spanOptions) {
		o.start = t
	}
}

// WithDomainName sets the span's domain.
func WithDomainName(name string) SpanOption {
	return func(o *spanOptions) {
		o.domainName = name
	}
}

// WithClassName sets the span's class.
func WithClassName(name string) SpanOption {
	return func(o *spanOptions) {
		o.className = name
	}
}

// WithoutActiveSpanHandling keeps the span off the active stack; it will
// not become the implicit parent of spans started after it.
func WithoutActiveSpanHandling() SpanOption {
	return func(o *spanOptions) {
		o.skipActive = true
	}
}

// StartSpan creates a span and fires START.
// The parent is, in order: an explicit ChildOf/ChildOfContext option, the
// span carried by ctx, then the active span of the scope carried by ctx.
// A root span gets a fresh trace and transaction and asks the sampler once.
func (t *Tracer) StartSpan(ctx context.Context, operation Key, opts ...SpanOption) (context.Context, *Span) {
	// Handle nil context by creating a new one.
	if ctx == nil {
		ctx = context.Background()
	}

	var o spanOptions
	for _, opt := range opts {
		opt(&o)
	}

	parent := o.parentCtx
	if parent == nil {
		parentSpan := o.parentSpan
		if parentSpan == nil {
			parentSpan = SpanFromContext(ctx)
		}
		if parentSpan == nil {
			parentSpan = t.recorder.ActiveSpan(ctx)
		}
		if parentSpan != nil {
			parent = parentSpan.context
		}
	}

	start := o.start
	if start.IsZero() {
		start = t.clock.Now()
	}

	span := &Span{
		tracer:        t,
		scope:         ScopeFromContext(ctx),
		operationName: operation,
		domainName:    o.domainName,
		className:     o.className,
		startTime:     start,
		skipActive:    o.skipActive,
	}

	if parent != nil {
		span.context = parent.child(t.ids.spanID())
	} else {
		span.context = NewSpanContext(t.ids.traceID(), t.ids.spanID(), "", t.ids.transactionID(), true)
		span.context.Sampled = t.sampler == nil || t.sampler.IsSampled(span)
	}
	span.AddTags(o.tags)

	if err := t.recorder.Record(span, EventStart, nil); err != nil {
		t.logger.Error("listener rejected span start",
			zap.String("operation", operation),
			zap.Error(err),
		)
	}

	return ContextWithSpan(ctx, span), span
}

// Fork opens a new causality branch for work scheduled from ctx. Without a
// scope in ctx the branch is linked to the tracer's root scope.
func (t *Tracer) Fork(ctx context.Context) (context.Context, *ExecutionScope) {
	return t.recorder.Fork(ctx)
}

// Go runs fn on a new goroutine inside a scope forked with Fork. The scope's
// stack is released when fn returns.
func (t *Tracer) Go(ctx context.Context, fn func(ctx context.Context)) {
	child, scope := t.recorder.Fork(ctx)
	run(child, scope, fn)
}

// WasTracingStopped reports whether the scope of ctx, falling back to the
// root scope, or any of its ancestors stopped tracing.
func (t *Tracer) WasTracingStopped(ctx context.Context) bool {
	return t.recorder.WasTracingStopped(ctx)
}

// ActiveSpan returns the active span of the scope carried by ctx.
func (t *Tracer) ActiveSpan(ctx context.Context) *Span {
	return t.recorder.ActiveSpan(ctx)
}

// Inject writes sc into carrier using the propagator registered for format.
func (t *Tracer) Inject(sc *SpanContext, format Format, carrier any) error {
	if sc == nil {
		return ErrNilSpanContext
	}
	p, ok := t.propagators[format]
	if !ok {
		return fmt.Errorf("inject %s: %w", format, ErrUnsupportedFormat)
	}
	return p.Inject(sc, carrier)
}

// Extract reads a SpanContext from carrier. It returns nil, nil when the
// carrier holds no trace.
func (t *Tracer) Extract(format Format, carrier any) (*SpanContext, error) {
	p, ok := t.propagators[format]
	if !ok {
		return nil, fmt.Errorf("extract %s: %w", format, ErrUnsupportedFormat)
	}
	return p.Extract(carrier)
}

// Destroy clears all recorded state and stops background id generation.
func (t *Tracer) Destroy() {
	t.recorder.Destroy()
	t.ids.close()
}
