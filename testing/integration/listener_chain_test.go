package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/spanz"
	"github.com/zoobzio/spanz/config"
	"github.com/zoobzio/spanz/listeners"
)

type completion struct {
	mu   sync.Mutex
	args [][]any
	done chan struct{}
}

func newCompletion() *completion {
	return &completion{done: make(chan struct{}, 8)}
}

func (c *completion) continuation() spanz.Continuation {
	return func(_ any, args []any) {
		c.mu.Lock()
		c.args = append(c.args, args)
		c.mu.Unlock()
		c.done <- struct{}{}
	}
}

func (c *completion) calls() [][]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]any(nil), c.args...)
}

func onlyClass(class string, inner spanz.SpanListener) spanz.SpanListener {
	return listeners.NewFiltering(inner, &listeners.SpanFilterer{
		Filters: []listeners.SpanFilter{&listeners.StandardSpanFilter{ClassName: class}},
	})
}

// TestChaosOnDatabaseFinish injects a failure into database spans only and
// checks the driver's callback receives it exactly once.
func TestChaosOnDatabaseFinish(t *testing.T) {
	chaos, err := listeners.NewErrorInjector(listeners.ErrorInjectorConfig{
		InjectPercentage: 100,
		InjectOn:         "finish",
		ErrorType:        "ECONNRESET",
	}, listeners.WithDraw(func() float64 { return 50 }))
	if err != nil {
		t.Fatal(err)
	}
	tracer, collector := NewTestTracer(t, spanz.WithListeners(onlyClass("POSTGRESQL", chaos)))
	ctx, _ := spanz.Fork(context.Background())

	_, query := tracer.StartSpan(ctx, "orders", spanz.WithClassName("POSTGRESQL"))
	db := newCompletion()
	if err := query.CloseWithCallback("pg", db.continuation(), nil, "rows"); err != nil {
		t.Fatalf("Expected the continuation to absorb the error, got %v", err)
	}

	_, call := tracer.StartSpan(ctx, "inventory", spanz.WithClassName("HTTP"))
	web := newCompletion()
	if err := call.CloseWithCallback("http", web.continuation(), nil, "body"); err != nil {
		t.Fatal(err)
	}

	dbCalls := db.calls()
	if len(dbCalls) != 1 {
		t.Fatalf("Expected one database completion, got %d", len(dbCalls))
	}
	var chaosErr *spanz.ChaosError
	if err, _ := dbCalls[0][0].(error); !errors.As(err, &chaosErr) || chaosErr.Type != "ECONNRESET" {
		t.Errorf("Expected an injected ECONNRESET, got %v", dbCalls[0])
	}
	if dbCalls[0][1] != "rows" {
		t.Errorf("Expected the remaining arguments to be kept, got %v", dbCalls[0])
	}

	webCalls := web.calls()
	if len(webCalls) != 1 || webCalls[0][0] != nil {
		t.Errorf("Expected an untouched HTTP completion, got %v", webCalls)
	}

	NewSpanMatcher(t, collector.AssertSpanNamed("orders")).
		HasTag(spanz.TagError, true).
		HasTag(spanz.TagErrorKind, "ECONNRESET")
	stats, _ := collector.Rollup().Get(spanz.ResourceKey{Type: "POSTGRESQL", Name: "orders"})
	if stats.ErrorCount != 1 {
		t.Errorf("Expected one failed query in the rollup, got %+v", stats)
	}
}

// TestChaosWithoutContinuationSurfaces returns the injected error to a
// synchronous caller.
func TestChaosWithoutContinuationSurfaces(t *testing.T) {
	chaos, err := listeners.NewErrorInjector(listeners.ErrorInjectorConfig{InjectPercentage: 100},
		listeners.WithDraw(func() float64 { return 99 }))
	if err != nil {
		t.Fatal(err)
	}
	tracer, _ := NewTestTracer(t, spanz.WithListeners(chaos))

	_, span := tracer.StartSpan(context.Background(), "op")
	if err := span.Initialized(); !spanz.IsChaos(err) {
		t.Errorf("Expected a chaos error from Initialized, got %v", err)
	}
	if err := span.Close(); err != nil {
		t.Errorf("Expected a clean close, got %v", err)
	}
}

// TestLatencyDefersCompletion delays the driver callback by the configured
// amount on a fake clock, moving the span's finish time with it.
func TestLatencyDefersCompletion(t *testing.T) {
	clock := clockz.NewFakeClock()
	latency, err := listeners.NewLatencyInjector(listeners.LatencyInjectorConfig{
		Delay:    30 * time.Millisecond,
		InjectOn: "finish",
	}, clock)
	if err != nil {
		t.Fatal(err)
	}
	tracer, collector := NewTestTracer(t, spanz.WithClock(clock), spanz.WithListeners(latency))

	_, span := tracer.StartSpan(context.Background(), "slow")
	done := newCompletion()
	if err := span.CloseWithCallback(nil, done.continuation()); err != nil {
		t.Fatal(err)
	}
	if len(done.calls()) != 0 {
		t.Fatal("Expected the completion to wait for the delay")
	}

	clock.Advance(30 * time.Millisecond)
	clock.BlockUntilReady()
	select {
	case <-done.done:
	case <-time.After(time.Second):
		t.Fatal("Expected the completion after the delay")
	}

	if span.Duration() != 30*time.Millisecond {
		t.Errorf("Expected the finish time to move by the delay, got %v", span.Duration())
	}
	if data := collector.AssertSpanNamed("slow"); data != nil && data.Duration != 30*time.Millisecond {
		t.Errorf("Expected the collector to see the delayed duration, got %v", data.Duration)
	}
}

// TestSecurityBlocksConfiguredHosts builds the chain from configuration and
// runs calls through mock services.
func TestSecurityBlocksConfiguredHosts(t *testing.T) {
	cfg := config.Default()
	cfg.Collector = config.CollectorConfig{Enabled: true, Sync: true, BufferSize: 64}
	cfg.Listeners = []listeners.Descriptor{
		{Type: listeners.TypeTagInjector, Config: map[string]any{"tags": map[string]any{"env": "staging"}}},
		{Type: listeners.TypeSecurityAware, Config: map[string]any{
			"block":     true,
			"whitelist": []any{map[string]any{"class_name": "POSTGRESQL"}},
		}},
	}
	a, err := config.Build(cfg, config.Deps{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(a.Close)
	tracer := a.NewTracer()
	t.Cleanup(tracer.Destroy)

	db := NewMockService(tracer, "POSTGRESQL", "orders")
	partner := NewMockService(tracer, "HTTP", "partner.example.com")

	ctx, _ := spanz.Fork(context.Background())
	if err := db.Call(ctx, "READ"); err != nil {
		t.Errorf("Expected whitelisted call to pass, got %v", err)
	}
	err = partner.Call(ctx, "POST")
	var secErr *spanz.SecurityError
	if !errors.As(err, &secErr) {
		t.Fatalf("Expected a security error, got %v", err)
	}
	if partner.Requests() != 0 {
		t.Error("Expected the blocked call never to reach the service")
	}
	if db.Requests() != 1 {
		t.Error("Expected the database call to go through")
	}

	if v := tracer.Recorder().AggregateTags()[spanz.TagSecurityViolated]; v != true {
		t.Error("Expected the violation to be recorded process-wide")
	}

	spans := a.Collector.Export()
	if len(spans) != 2 {
		t.Fatalf("Expected 2 spans, got %d", len(spans))
	}
	for i := range spans {
		NewSpanMatcher(t, &spans[i]).HasTag("env", "staging")
	}
	stats, _ := a.Collector.Rollup().Get(spanz.ResourceKey{Type: "HTTP", Name: "partner.example.com", Operation: "POST"})
	if stats.BlockedCount != 1 || stats.ViolatedCount != 1 {
		t.Errorf("Expected one blocked call, got %+v", stats)
	}
}

// TestFailingListenerDoesNotBreakChain installs a panicking listener ahead of
// the collector; tracing keeps working.
func TestFailingListenerDoesNotBreakChain(t *testing.T) {
	tracer, collector := NewTestTracer(t)
	tracer.Recorder().SetSpanListeners(append(
		[]spanz.SpanListener{panicking{}},
		tracer.Recorder().SpanListeners()...,
	))

	_, span := tracer.StartSpan(context.Background(), "op")
	done := newCompletion()
	if err := span.CloseWithCallback(nil, done.continuation()); err != nil {
		t.Fatalf("Expected the panic to be contained, got %v", err)
	}
	if len(done.calls()) != 1 {
		t.Error("Expected the continuation to run once")
	}
	collector.AssertSpanCount(1)
}

type panicking struct{ spanz.NopListener }

func (panicking) OnSpanFinished(*spanz.Span, *spanz.Invocation) (bool, error) {
	panic("listener bug")
}
