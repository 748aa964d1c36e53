package spanz

// SpanListener observes span lifecycle events.
//
// Each hook reports whether it claimed the continuation carried by inv, that
// is, whether it invoked it or took responsibility for invoking it later.
// inv is never nil but may carry no continuation. A hook must not invoke the
// continuation when inv.AlreadyCalled is true.
//
// A returned error that satisfies Deliberate is propagated to the caller of
// the event. Any other error, like a panic, is logged and ignored.
type SpanListener interface {
	OnSpanStarted(span *Span, inv *Invocation) (bool, error)
	OnSpanInitialized(span *Span, inv *Invocation) (bool, error)
	OnSpanFinished(span *Span, inv *Invocation) (bool, error)
}

// NopListener implements every hook as a no-op. Embed it to implement only
// the hooks you need.
type NopListener struct{}

// OnSpanStarted does nothing.
func (NopListener) OnSpanStarted(*Span, *Invocation) (bool, error) { return false, nil }

// OnSpanInitialized does nothing.
func (NopListener) OnSpanInitialized(*Span, *Invocation) (bool, error) { return false, nil }

// OnSpanFinished does nothing.
func (NopListener) OnSpanFinished(*Span, *Invocation) (bool, error) { return false, nil }

// FinishFunc adapts a plain function into a listener that only sees FINISH.
type FinishFunc func(span *Span)

// OnSpanStarted does nothing.
func (FinishFunc) OnSpanStarted(*Span, *Invocation) (bool, error) { return false, nil }

// OnSpanInitialized does nothing.
func (FinishFunc) OnSpanInitialized(*Span, *Invocation) (bool, error) { return false, nil }

// OnSpanFinished calls f.
func (f FinishFunc) OnSpanFinished(span *Span, _ *Invocation) (bool, error) {
	f(span)
	return false, nil
}

// dispatch routes an event to the matching hook.
func dispatch(l SpanListener, event Event, span *Span, inv *Invocation) (bool, error) {
	switch event {
	case EventStart:
		return l.OnSpanStarted(span, inv)
	case EventInitialize:
		return l.OnSpanInitialized(span, inv)
	case EventFinish:
		return l.OnSpanFinished(span, inv)
	default:
		return false, nil
	}
}
