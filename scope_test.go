package spanz

import (
	"context"
	"sync"
	"testing"
)

func TestScopeStopTracingIsInherited(t *testing.T) {
	root := NewExecutionScope(nil)
	child := NewExecutionScope(root)
	grandchild := NewExecutionScope(child)
	sibling := NewExecutionScope(root)

	child.StopTracing()

	if root.WasTracingStopped() {
		t.Error("Expected root to be unaffected")
	}
	if !child.WasTracingStopped() || !grandchild.WasTracingStopped() {
		t.Error("Expected child and its descendants to report tracing stopped")
	}
	if sibling.WasTracingStopped() {
		t.Error("Expected sibling branch to be unaffected")
	}
	if grandchild.Parent() != child {
		t.Error("Expected parent link")
	}
}

func TestWasTracingStoppedFromContext(t *testing.T) {
	ctx := context.Background()
	if WasTracingStopped(ctx) {
		t.Fatal("Expected no scope to mean tracing runs")
	}

	ctx, scope := Fork(ctx)
	childCtx, _ := Fork(ctx)
	scope.StopTracing()

	if !WasTracingStopped(childCtx) {
		t.Error("Expected forked branch to inherit the stop")
	}
}

func TestForkSnapshotsActiveStack(t *testing.T) {
	tracer := New()
	defer tracer.Destroy()

	ctx, _ := Fork(context.Background())
	_, parent := tracer.StartSpan(ctx, "parent")

	branch, _ := Fork(ctx)
	_, inBranch := tracer.StartSpan(branch, "branch-child")
	if inBranch.Context().ParentID != parent.Context().SpanID {
		t.Error("Expected span in forked scope to nest under the span active at fork time")
	}
	if tracer.ActiveSpan(ctx) != parent {
		t.Error("Expected branch activity not to leak into the parent scope")
	}

	inBranch.Close()
	if tracer.ActiveSpan(branch) != parent {
		t.Error("Expected branch stack to fall back to the snapshot")
	}
	parent.Close()
}

func TestGoRunsInForkedScope(t *testing.T) {
	tracer := New()
	defer tracer.Destroy()

	ctx, _ := Fork(context.Background())
	_, parent := tracer.StartSpan(ctx, "request")
	defer parent.Close()

	var wg sync.WaitGroup
	results := make([]*Span, 4)
	for i := range results {
		wg.Add(1)
		i := i
		Go(ctx, func(ctx context.Context) {
			defer wg.Done()
			_, span := tracer.StartSpan(ctx, "worker")
			results[i] = span
			span.Close()
		})
	}
	wg.Wait()

	for _, span := range results {
		if span.Context().ParentID != parent.Context().SpanID {
			t.Error("Expected worker span to nest under the request span")
		}
	}
	if tracer.ActiveSpan(ctx) != parent {
		t.Error("Expected workers not to disturb the request scope")
	}
}

func TestScopePop(t *testing.T) {
	tracer := New()
	defer tracer.Destroy()

	scope := NewExecutionScope(nil)
	a := &Span{tracer: tracer}
	b := &Span{tracer: tracer}
	c := &Span{tracer: tracer}
	scope.push(a)
	scope.push(b)
	scope.push(c)

	if removed, nested := scope.pop(c); removed != c || !nested {
		t.Error("Expected top pop to be nested")
	}
	if removed, nested := scope.pop(a); removed != a || nested {
		t.Error("Expected misnested pop to remove a and report it")
	}
	if scope.peek() != b {
		t.Error("Expected b to remain")
	}
	if removed, _ := scope.pop(a); removed != nil {
		t.Error("Expected pop of an absent span to remove nothing")
	}
}

func TestTracerGoNestsUnderRootActiveSpan(t *testing.T) {
	tracer := New()
	defer tracer.Destroy()

	bg := context.Background()
	_, outer := tracer.StartSpan(bg, "outer")
	defer outer.Close()

	done := make(chan *Span, 1)
	tracer.Go(bg, func(ctx context.Context) {
		_, inner := tracer.StartSpan(ctx, "inner")
		inner.Close()
		done <- inner
	})
	inner := <-done

	if inner.Context().TraceID != outer.Context().TraceID {
		t.Error("Expected the goroutine to stay in the outer trace")
	}
	if inner.Context().ParentID != outer.Context().SpanID {
		t.Error("Expected the goroutine span to nest under the root active span")
	}
	if tracer.ActiveSpan(bg) != outer {
		t.Error("Expected the goroutine not to disturb the root stack")
	}
}

func TestTracerForkInheritsRootStop(t *testing.T) {
	tracer := New()
	defer tracer.Destroy()

	bg := context.Background()
	ctx, scope := tracer.Fork(bg)
	if scope.Parent() != tracer.Recorder().Scope(bg) {
		t.Fatal("Expected a context without scope to fork off the root scope")
	}
	if tracer.WasTracingStopped(ctx) {
		t.Fatal("Expected tracing to run")
	}

	tracer.Recorder().Scope(bg).StopTracing()
	if !tracer.WasTracingStopped(ctx) || !tracer.WasTracingStopped(bg) {
		t.Error("Expected a stop on the root scope to reach the branch")
	}
	if !WasTracingStopped(ctx) {
		t.Error("Expected the package helper to follow the branch to the root")
	}
}

func TestForkFollowsSpanInContext(t *testing.T) {
	tracer := New()
	defer tracer.Destroy()

	spanCtx, outer := tracer.StartSpan(context.Background(), "outer")
	defer outer.Close()

	branch, _ := Fork(spanCtx)
	_, inner := tracer.StartSpan(branch, "inner")
	if inner.Context().ParentID != outer.Context().SpanID {
		t.Error("Expected a span-carrying context to fork below that span's scope")
	}
	inner.Close()

	detached, scope := Fork(context.Background())
	if scope.Parent() != nil {
		t.Error("Expected a bare context to fork a detached branch")
	}
	_, other := tracer.StartSpan(detached, "other")
	if other.Context().TraceID == outer.Context().TraceID {
		t.Error("Expected a detached branch to start a new trace")
	}
	other.Close()
}
