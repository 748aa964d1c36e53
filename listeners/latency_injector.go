package listeners

import (
	"math/rand/v2"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/spanz"
)

// LatencyInjectorConfig configures LatencyInjector.
type LatencyInjectorConfig struct {
	Delay          time.Duration `mapstructure:"delay"`
	InjectOn       string        `mapstructure:"inject_on"`
	RandomizeDelay bool          `mapstructure:"randomize_delay"`
}

// LatencyInjector delays a span's completion.
//
// With a continuation the delay is cooperative: the span's finish time is
// moved to the end of the delay right away, and the continuation is claimed
// and fired from a timer. Without one the calling goroutine sleeps.
type LatencyInjector struct {
	spanz.NopListener
	delay     time.Duration
	phase     spanz.Event
	randomize bool
	clock     clockz.Clock
}

// NewLatencyInjector creates a LatencyInjector. The phase defaults to
// initialize. A nil clock means the real clock.
func NewLatencyInjector(cfg LatencyInjectorConfig, clock clockz.Clock) (*LatencyInjector, error) {
	p, err := phase(cfg.InjectOn, spanz.EventInitialize)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockz.RealClock
	}
	return &LatencyInjector{
		delay:     cfg.Delay,
		phase:     p,
		randomize: cfg.RandomizeDelay,
		clock:     clock,
	}, nil
}

// OnSpanInitialized implements spanz.SpanListener.
func (l *LatencyInjector) OnSpanInitialized(span *spanz.Span, inv *spanz.Invocation) (bool, error) {
	if l.phase != spanz.EventInitialize {
		return false, nil
	}
	return l.inject(span, inv), nil
}

// OnSpanFinished implements spanz.SpanListener.
func (l *LatencyInjector) OnSpanFinished(span *spanz.Span, inv *spanz.Invocation) (bool, error) {
	if l.phase != spanz.EventFinish {
		return false, nil
	}
	return l.inject(span, inv), nil
}

func (l *LatencyInjector) next() time.Duration {
	if l.randomize && l.delay > 0 {
		return time.Duration(rand.Int64N(int64(l.delay)))
	}
	return l.delay
}

func (l *LatencyInjector) inject(span *spanz.Span, inv *spanz.Invocation) bool {
	d := l.next()

	if inv.HasContinuation() && !inv.AlreadyCalled {
		// Listeners later in the chain snapshot the span before the timer
		// fires, so the finish time moves now.
		timer := l.clock.After(d)
		span.SetFinishTime(l.clock.Now().Add(d))
		go func() {
			<-timer
			inv.Invoke(inv.Args)
		}()
		return true
	}

	l.clock.Sleep(d)
	span.SetFinishTime(l.clock.Now())
	return false
}
