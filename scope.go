package spanz

import (
	"context"
	"sync"
	"sync/atomic"
)

// ExecutionScope is a node in the causality tree of a process. Each scope
// owns the active-span stack of its branch and a "tracing stopped" flag that
// descendants inherit.
//
// Go has no runtime hook for asynchronous causality, so scopes travel
// explicitly in context.Context: Fork links a new scope to the one found in
// the context at the moment the work is scheduled.
type ExecutionScope struct {
	parent  *ExecutionScope
	stopped atomic.Bool

	mu    sync.Mutex
	stack []*Span
}

// NewExecutionScope creates a scope below parent. A nil parent makes a root.
// The new scope starts with a snapshot of the parent's active stack so that
// spans started in the branch nest under the span active when it was forked.
func NewExecutionScope(parent *ExecutionScope) *ExecutionScope {
	s := &ExecutionScope{parent: parent}
	if parent != nil {
		parent.mu.Lock()
		s.stack = append([]*Span(nil), parent.stack...)
		parent.mu.Unlock()
	}
	return s
}

// Parent returns the scope this one was forked from.
func (s *ExecutionScope) Parent() *ExecutionScope {
	return s.parent
}

// StopTracing flags this branch; every descendant reports tracing stopped.
func (s *ExecutionScope) StopTracing() {
	s.stopped.Store(true)
}

// WasTracingStopped reports whether this scope or any ancestor stopped tracing.
func (s *ExecutionScope) WasTracingStopped() bool {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.stopped.Load() {
			return true
		}
	}
	return false
}

func (s *ExecutionScope) push(span *Span) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stack = append(s.stack, span)
}

func (s *ExecutionScope) peek() *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1]
}

// pop removes span from the stack. The top is expected; a misnested span is
// removed from wherever it sits and reported through the second result.
func (s *ExecutionScope) pop(span *Span) (removed *Span, nested bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.stack)
	if n == 0 {
		return nil, true
	}
	if span == nil || s.stack[n-1] == span {
		removed = s.stack[n-1]
		s.stack[n-1] = nil
		s.stack = s.stack[:n-1]
		return removed, true
	}
	for i := n - 2; i >= 0; i-- {
		if s.stack[i] == span {
			copy(s.stack[i:], s.stack[i+1:])
			s.stack[n-1] = nil
			s.stack = s.stack[:n-1]
			return span, false
		}
	}
	return nil, false
}

func (s *ExecutionScope) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stack = nil
}

// ContextWithScope returns a copy of parent carrying scope.
func ContextWithScope(parent context.Context, scope *ExecutionScope) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, scopeKey, scope)
}

// ScopeFromContext returns the scope carried by ctx, or nil.
func ScopeFromContext(ctx context.Context) *ExecutionScope {
	if ctx == nil {
		return nil
	}
	scope, _ := ctx.Value(scopeKey).(*ExecutionScope)
	return scope
}

// parentScope returns the scope carried by ctx. A context that carries only
// a span falls back to the scope that span was started in.
func parentScope(ctx context.Context) *ExecutionScope {
	if scope := ScopeFromContext(ctx); scope != nil {
		return scope
	}
	if span := SpanFromContext(ctx); span != nil && span.tracer != nil {
		return span.tracer.recorder.scopeOf(span)
	}
	return nil
}

// Fork opens a new causality branch below the scope carried by ctx. When ctx
// carries neither a scope nor a span the branch is detached: it starts with
// an empty stack, so spans started in it begin new traces. Use Tracer.Fork to
// branch off the tracer's root scope instead.
func Fork(ctx context.Context) (context.Context, *ExecutionScope) {
	scope := NewExecutionScope(parentScope(ctx))
	return ContextWithScope(ctx, scope), scope
}

// Go runs fn on a new goroutine inside a freshly forked scope. The scope's
// stack is released when fn returns.
func Go(ctx context.Context, fn func(ctx context.Context)) {
	child, scope := Fork(ctx)
	run(child, scope, fn)
}

func run(ctx context.Context, scope *ExecutionScope, fn func(ctx context.Context)) {
	go func() {
		defer scope.reset()
		fn(ctx)
	}()
}

// WasTracingStopped reports whether the scope carried by ctx, or the scope of
// the span it carries, stopped tracing.
func WasTracingStopped(ctx context.Context) bool {
	scope := parentScope(ctx)
	return scope != nil && scope.WasTracingStopped()
}
