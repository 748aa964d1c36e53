// Package spanz provides an in-process tracing engine with a pluggable listener chain.
//
// spanz records hierarchical, timed spans for nested operations, propagates
// trace identity across process boundaries and goroutines, samples whole
// traces, and lets an ordered chain of listeners observe, mutate, delay or
// veto span lifecycle transitions.
//
// Core Components:
//   - Tracer: Facade owning a Recorder, a Sampler and Propagators.
//   - Span: A single timed unit of work with tags and logs.
//   - SpanContext: Trace identity plus baggage.
//   - Recorder: Active-span stacks, the span list and the listener chain.
//   - ExecutionScope: Causality tree used to detect "tracing stopped".
//   - Collector: Buffers finished spans and rolls them up per resource.
//
// Basic Usage:
//
//	tracer := spanz.New(spanz.WithSampler(sampling.NewCountAware(1)))
//	defer tracer.Destroy()
//
//	ctx, span := tracer.StartSpan(ctx, "db.query")
//	span.SetTag("operation.type", "READ")
//	defer span.Close()
//
//	// Give fault-injection and security listeners a chance to act
//	// before the real work runs.
//	if err := span.Initialized(); err != nil {
//		return err
//	}
//
// Lifecycle:
//
// Every span fires START when created, an optional INITIALIZE when the
// caller is about to run the wrapped operation, and FINISH when closed.
// Listeners see each event in registration order. A continuation handed to
// CloseWithCallback is invoked exactly once: by the single listener that
// claims it, or by the Recorder when nobody does.
//
// Thread Safety:
//
// Tracer, Recorder, Span and SpanContext are safe for concurrent use.
// Listeners are invoked synchronously on the goroutine that fired the event.
//
// Context Propagation:
//
// Spans are linked through context.Context and through the active-span stack
// of the ExecutionScope carried by the context. Use Fork or Go to give a
// goroutine its own causality branch.
package spanz

import "fmt"

// Key represents a span operation name.
type Key = string

// Tag represents a span tag key.
type Tag = string

// Canonical tags produced by the engine.
const (
	TagError            Tag = "error"
	TagErrorKind        Tag = "error.kind"
	TagErrorMessage     Tag = "error.message"
	TagErrorCode        Tag = "error.code"
	TagErrorStack       Tag = "error.stack"
	TagSecurityBlocked  Tag = "security.blocked"
	TagSecurityViolated Tag = "security.violated"

	// TagOperationType names the kind of work a span does (READ, WRITE, ...).
	// It is the operation part of the resource rollup key.
	TagOperationType Tag = "operation.type"

	// TagTopologyVertex marks spans that represent a call to an external
	// system. Security listeners only inspect these.
	TagTopologyVertex Tag = "topology.vertex"
)

// Event is a span lifecycle transition.
type Event int

// Lifecycle events, in the order a span passes through them.
const (
	EventStart Event = iota + 1
	EventInitialize
	EventFinish
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventInitialize:
		return "initialize"
	case EventFinish:
		return "finish"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// ParseEvent maps a configured phase name onto an Event.
func ParseEvent(name string) (Event, error) {
	switch name {
	case "start", "onSpanStarted":
		return EventStart, nil
	case "initialize", "initialized", "onSpanInitialized":
		return EventInitialize, nil
	case "finish", "finished", "onSpanFinished":
		return EventFinish, nil
	default:
		return 0, fmt.Errorf("unknown span event %q", name)
	}
}
