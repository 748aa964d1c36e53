package listeners

import (
	"math/rand/v2"

	"github.com/zoobzio/spanz"
)

// ErrorInjectorConfig configures ErrorInjector.
type ErrorInjectorConfig struct {
	InjectPercentage float64 `mapstructure:"inject_percentage"`
	InjectOn         string  `mapstructure:"inject_on"`
	ErrorType        string  `mapstructure:"error_type"`
	ErrorMessage     string  `mapstructure:"error_message"`
}

// ErrorInjector fails a configurable share of spans with a *spanz.ChaosError.
//
// When the span carries a continuation the error is handed to it as the first
// argument and the continuation is claimed; if an earlier listener already
// claimed it the error is only tagged. Without a continuation the error is
// returned from the event, which surfaces it to the instrumented caller.
type ErrorInjector struct {
	percentage float64
	phase      spanz.Event
	errType    string
	message    string
	draw       func() float64
}

// ErrorInjectorOption configures an ErrorInjector.
type ErrorInjectorOption func(*ErrorInjector)

// WithDraw replaces the uniform [0,100) random source.
func WithDraw(draw func() float64) ErrorInjectorOption {
	return func(e *ErrorInjector) {
		e.draw = draw
	}
}

// NewErrorInjector creates an ErrorInjector. The phase defaults to initialize.
func NewErrorInjector(cfg ErrorInjectorConfig, opts ...ErrorInjectorOption) (*ErrorInjector, error) {
	p, err := phase(cfg.InjectOn, spanz.EventInitialize)
	if err != nil {
		return nil, err
	}
	e := &ErrorInjector{
		percentage: cfg.InjectPercentage,
		phase:      p,
		errType:    cfg.ErrorType,
		message:    cfg.ErrorMessage,
		draw:       func() float64 { return rand.Float64() * 100 },
	}
	if e.message == "" {
		e.message = "error injected by spanz"
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// OnSpanStarted implements spanz.SpanListener.
func (*ErrorInjector) OnSpanStarted(*spanz.Span, *spanz.Invocation) (bool, error) {
	return false, nil
}

// OnSpanInitialized implements spanz.SpanListener.
func (e *ErrorInjector) OnSpanInitialized(span *spanz.Span, inv *spanz.Invocation) (bool, error) {
	if e.phase != spanz.EventInitialize {
		return false, nil
	}
	return e.inject(span, inv)
}

// OnSpanFinished implements spanz.SpanListener.
func (e *ErrorInjector) OnSpanFinished(span *spanz.Span, inv *spanz.Invocation) (bool, error) {
	if e.phase != spanz.EventFinish {
		return false, nil
	}
	return e.inject(span, inv)
}

func (e *ErrorInjector) inject(span *spanz.Span, inv *spanz.Invocation) (bool, error) {
	if !(e.percentage > 100-e.draw()) {
		return false, nil
	}
	err := &spanz.ChaosError{Type: e.errType, Message: e.message}
	span.SetErrorTag(err)

	if inv.HasContinuation() {
		if inv.AlreadyCalled {
			return false, nil
		}
		inv.Invoke(withError(err, inv.Args))
		return true, nil
	}
	return false, err
}
