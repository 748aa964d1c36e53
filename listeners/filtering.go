package listeners

import "github.com/zoobzio/spanz"

// Filtering forwards events to an inner listener only for spans accepted by
// its filterer. Rejected spans are reported as not claimed.
type Filtering struct {
	inner    spanz.SpanListener
	filterer *SpanFilterer
}

// NewFiltering wraps inner. A nil filterer accepts everything.
func NewFiltering(inner spanz.SpanListener, filterer *SpanFilterer) *Filtering {
	if filterer == nil {
		filterer = &SpanFilterer{}
	}
	return &Filtering{inner: inner, filterer: filterer}
}

// Inner returns the wrapped listener.
func (f *Filtering) Inner() spanz.SpanListener {
	return f.inner
}

// OnSpanStarted implements spanz.SpanListener.
func (f *Filtering) OnSpanStarted(span *spanz.Span, inv *spanz.Invocation) (bool, error) {
	if !f.filterer.Accept(span) {
		return false, nil
	}
	return f.inner.OnSpanStarted(span, inv)
}

// OnSpanInitialized implements spanz.SpanListener.
func (f *Filtering) OnSpanInitialized(span *spanz.Span, inv *spanz.Invocation) (bool, error) {
	if !f.filterer.Accept(span) {
		return false, nil
	}
	return f.inner.OnSpanInitialized(span, inv)
}

// OnSpanFinished implements spanz.SpanListener.
func (f *Filtering) OnSpanFinished(span *spanz.Span, inv *spanz.Invocation) (bool, error) {
	if !f.filterer.Accept(span) {
		return false, nil
	}
	return f.inner.OnSpanFinished(span, inv)
}
