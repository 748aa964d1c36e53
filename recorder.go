package spanz

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Recorder drives span lifecycle events through the ordered listener chain.
// It owns the root active-span stack, the list of recorded spans and the
// order counter. Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order groups state by lock
type Recorder struct {
	root   *ExecutionScope
	logger *zap.Logger

	mu        sync.Mutex
	spans     []*Span
	nextOrder int

	listenersLock sync.RWMutex
	listeners     []SpanListener
	panicHook     func(l SpanListener, event Event, r any)

	aggregateLock sync.RWMutex
	aggregate     map[Tag]any
}

// NewRecorder creates an empty recorder. A nil logger discards output.
func NewRecorder(logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		root:      NewExecutionScope(nil),
		logger:    logger,
		nextOrder: 1,
	}
}

// Record fires event for span. For START the span is pushed on its scope's
// active stack, numbered and appended to the span list; for FINISH it is
// popped. Then every listener sees the event in registration order.
//
// inv may be nil. Its continuation runs exactly once: by the first listener
// that claims it, or by the Recorder after the chain when nobody did.
// The first deliberate error raised by a listener is returned after the
// whole chain ran.
func (r *Recorder) Record(span *Span, event Event, inv *Invocation) error {
	if inv == nil {
		inv = &Invocation{}
	}

	switch event {
	case EventStart:
		if !span.skipActive {
			r.scopeOf(span).push(span)
		}
		r.mu.Lock()
		span.mu.Lock()
		span.order = r.nextOrder
		span.mu.Unlock()
		r.nextOrder++
		r.spans = append(r.spans, span)
		r.mu.Unlock()
	case EventFinish:
		r.release(span)
	}

	shouldInvoke := true
	var deliberate error
	for _, l := range r.SpanListeners() {
		inv.AlreadyCalled = !shouldInvoke
		claimed, err := r.safeDispatch(l, event, span, inv)
		if err != nil {
			if IsDeliberate(err) {
				if deliberate == nil {
					deliberate = err
				}
			} else {
				r.logger.Error("span listener failed",
					zap.String("event", event.String()),
					zap.String("operation", span.OperationName()),
					zap.String("span_id", span.context.SpanID),
					zap.Error(err),
				)
			}
		}
		// Sticky: once claimed, the continuation stays claimed.
		if shouldInvoke {
			shouldInvoke = !claimed
		}
	}

	if event == EventFinish {
		span.seal()
	}
	if shouldInvoke {
		inv.Invoke(inv.Args)
	}
	return deliberate
}

func (r *Recorder) safeDispatch(l SpanListener, event Event, span *Span, inv *Invocation) (claimed bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			claimed, err = false, nil
			r.logger.Error("span listener panicked",
				zap.String("event", event.String()),
				zap.String("operation", span.OperationName()),
				zap.Any("panic", rec),
			)
			r.listenersLock.RLock()
			hook := r.panicHook
			r.listenersLock.RUnlock()
			if hook != nil {
				hook(l, event, rec)
			}
		}
	}()
	return dispatch(l, event, span, inv)
}

// release takes a finishing span off its active stack.
func (r *Recorder) release(span *Span) {
	if span.skipActive {
		return
	}
	removed, nested := r.scopeOf(span).pop(span)
	if removed == nil || !nested {
		r.logger.Warn("span finished out of order",
			zap.String("operation", span.OperationName()),
			zap.String("span_id", span.context.SpanID),
		)
	}
}

func (r *Recorder) scopeOf(span *Span) *ExecutionScope {
	if span.scope != nil {
		return span.scope
	}
	return r.root
}

func (r *Recorder) scopeFor(ctx context.Context) *ExecutionScope {
	if scope := ScopeFromContext(ctx); scope != nil {
		return scope
	}
	return r.root
}

// Scope returns the scope carried by ctx, or the root scope when ctx carries
// none.
func (r *Recorder) Scope(ctx context.Context) *ExecutionScope {
	return r.scopeFor(ctx)
}

// Fork opens a new causality branch below Scope(ctx). A context without a
// scope branches off the root, so the branch nests under the span active
// there.
func (r *Recorder) Fork(ctx context.Context) (context.Context, *ExecutionScope) {
	if ctx == nil {
		ctx = context.Background()
	}
	scope := NewExecutionScope(r.scopeFor(ctx))
	return ContextWithScope(ctx, scope), scope
}

// WasTracingStopped reports whether Scope(ctx) or an ancestor stopped tracing.
func (r *Recorder) WasTracingStopped(ctx context.Context) bool {
	return r.scopeFor(ctx).WasTracingStopped()
}

// ActiveSpan returns the top of the active stack of the scope in ctx.
func (r *Recorder) ActiveSpan(ctx context.Context) *Span {
	return r.scopeFor(ctx).peek()
}

// SetActiveSpan pushes span on the active stack of the scope in ctx.
func (r *Recorder) SetActiveSpan(ctx context.Context, span *Span) {
	r.scopeFor(ctx).push(span)
}

// RemoveActiveSpan pops and returns the top of the active stack of the scope in ctx.
func (r *Recorder) RemoveActiveSpan(ctx context.Context) *Span {
	removed, _ := r.scopeFor(ctx).pop(nil)
	return removed
}

// SpanList returns the recorded spans in START order.
func (r *Recorder) SpanList() []*Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Span(nil), r.spans...)
}

// AddSpanListener appends l to the chain.
func (r *Recorder) AddSpanListener(l SpanListener) {
	if l == nil {
		return
	}
	r.listenersLock.Lock()
	defer r.listenersLock.Unlock()
	next := make([]SpanListener, 0, len(r.listeners)+1)
	next = append(next, r.listeners...)
	r.listeners = append(next, l)
}

// SetSpanListeners replaces the whole chain.
func (r *Recorder) SetSpanListeners(ls []SpanListener) {
	next := make([]SpanListener, 0, len(ls))
	for _, l := range ls {
		if l != nil {
			next = append(next, l)
		}
	}
	r.listenersLock.Lock()
	defer r.listenersLock.Unlock()
	r.listeners = next
}

// SpanListeners returns the current chain. The slice is never mutated in
// place, so an event already in flight keeps the chain it started with.
func (r *Recorder) SpanListeners() []SpanListener {
	r.listenersLock.RLock()
	defer r.listenersLock.RUnlock()
	return r.listeners
}

// SetPanicHook sets a function to be called when a listener panics.
func (r *Recorder) SetPanicHook(hook func(l SpanListener, event Event, r any)) {
	r.listenersLock.Lock()
	defer r.listenersLock.Unlock()
	r.panicHook = hook
}

// SetAggregateTag records a tag that applies to the whole recorder rather
// than a single span, e.g. security.violated.
func (r *Recorder) SetAggregateTag(key Tag, value any) {
	r.aggregateLock.Lock()
	defer r.aggregateLock.Unlock()
	if r.aggregate == nil {
		r.aggregate = make(map[Tag]any)
	}
	r.aggregate[key] = value
}

// AggregateTags returns a copy of the recorder-wide tags.
func (r *Recorder) AggregateTags() map[Tag]any {
	r.aggregateLock.RLock()
	defer r.aggregateLock.RUnlock()
	out := make(map[Tag]any, len(r.aggregate))
	for k, v := range r.aggregate {
		out[k] = v
	}
	return out
}

// Destroy clears the root stack, the span list and aggregate tags, and
// resets the order counter. Listeners stay registered.
func (r *Recorder) Destroy() {
	r.root.reset()

	r.mu.Lock()
	r.spans = nil
	r.nextOrder = 1
	r.mu.Unlock()

	r.aggregateLock.Lock()
	r.aggregate = nil
	r.aggregateLock.Unlock()
}
