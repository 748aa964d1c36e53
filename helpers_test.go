package spanz

import (
	"sync"
)

// trail records hook calls across listeners so ordering can be asserted.
type trail struct {
	mu      sync.Mutex
	entries []string
}

func (t *trail) add(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, s)
}

func (t *trail) list() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.entries...)
}

// probe is a configurable listener for recorder tests.
type probe struct {
	name    string
	trail   *trail
	claim   bool // claim the continuation when available
	invoke  bool // invoke a claimed continuation immediately
	err     error
	panicOn Event

	mu           sync.Mutex
	alreadyCalls []bool
}

func (p *probe) hook(event Event, _ *Span, inv *Invocation) (bool, error) {
	if p.trail != nil {
		p.trail.add(p.name + ":" + event.String())
	}
	p.mu.Lock()
	p.alreadyCalls = append(p.alreadyCalls, inv.AlreadyCalled)
	p.mu.Unlock()

	if p.panicOn == event {
		panic(p.name + " exploded")
	}
	if p.claim && !inv.AlreadyCalled && inv.HasContinuation() {
		if p.invoke {
			inv.Invoke(inv.Args)
		}
		return true, p.err
	}
	return false, p.err
}

func (p *probe) seen() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.alreadyCalls...)
}

func (p *probe) OnSpanStarted(span *Span, inv *Invocation) (bool, error) {
	return p.hook(EventStart, span, inv)
}

func (p *probe) OnSpanInitialized(span *Span, inv *Invocation) (bool, error) {
	return p.hook(EventInitialize, span, inv)
}

func (p *probe) OnSpanFinished(span *Span, inv *Invocation) (bool, error) {
	return p.hook(EventFinish, span, inv)
}

// calls counts continuation invocations.
type calls struct {
	mu   sync.Mutex
	n    int
	args [][]any
}

func (c *calls) continuation() Continuation {
	return func(_ any, args []any) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.n++
		c.args = append(c.args, args)
	}
}

func (c *calls) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
