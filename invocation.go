package spanz

import "sync/atomic"

// Continuation resumes the instrumented caller once a span's FINISH (or
// INITIALIZE) handling is complete. Target is the opaque value registered
// with the continuation and args are the completion values, by convention
// the error first.
type Continuation func(target any, args []any)

// Invocation carries a deferred completion through the listener chain.
//
// The Recorder sets AlreadyCalled before each listener runs: once a listener
// claims the continuation every later listener sees AlreadyCalled == true and
// must not invoke it again.
type Invocation struct {
	Target       any
	Continuation Continuation
	Args         []any

	// AlreadyCalled is true when an earlier listener in the chain claimed
	// the continuation.
	AlreadyCalled bool

	fired atomic.Bool
}

// NewInvocation bundles a continuation with its target and arguments.
func NewInvocation(target any, cont Continuation, args ...any) *Invocation {
	return &Invocation{Target: target, Continuation: cont, Args: args}
}

// HasContinuation reports whether there is anything to invoke.
func (i *Invocation) HasContinuation() bool {
	return i != nil && i.Continuation != nil
}

// Invoke calls the continuation with args. Only the first call has any
// effect; later calls return false.
func (i *Invocation) Invoke(args []any) bool {
	if !i.HasContinuation() {
		return false
	}
	if !i.fired.CompareAndSwap(false, true) {
		return false
	}
	i.Continuation(i.Target, args)
	return true
}

// Fired reports whether the continuation has run.
func (i *Invocation) Fired() bool {
	return i != nil && i.fired.Load()
}
