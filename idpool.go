package spanz

import (
	"crypto/rand"
	"encoding/binary"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel/trace"
)

// IDPool keeps a buffer of pre-generated IDs to amortize crypto/rand overhead.
type IDPool struct {
	factory func() string
	ids     chan string
	stopCh  chan struct{}
	mu      sync.Mutex
	closed  bool
}

// NewIDPool creates a new ID pool with the specified capacity and starts
// refilling it in the background.
func NewIDPool(capacity int, factory func() string) *IDPool {
	pool := &IDPool{
		ids:     make(chan string, capacity),
		factory: factory,
		stopCh:  make(chan struct{}),
	}
	go pool.refill()
	return pool
}

// Get returns a pooled ID, or generates one directly when the pool is drained.
func (p *IDPool) Get() string {
	select {
	case id := <-p.ids:
		return id
	default:
		return p.factory()
	}
}

// Len reports how many IDs are currently buffered.
func (p *IDPool) Len() int {
	return len(p.ids)
}

func (p *IDPool) refill() {
	for {
		select {
		case <-p.stopCh:
			return
		case p.ids <- p.factory():
		}
	}
}

// Close stops the refill goroutine. Safe to call more than once.
func (p *IDPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.stopCh)
		p.closed = true
	}
}

// NewTraceID returns a random, valid W3C trace id in hex. If crypto/rand
// fails the id is derived from clock so it is still unique per call.
func NewTraceID(clock clockz.Clock) string {
	var id trace.TraceID
	if _, err := rand.Read(id[:]); err != nil || !id.IsValid() {
		binary.BigEndian.PutUint64(id[:8], uint64(clock.Now().UnixNano()))
		binary.BigEndian.PutUint64(id[8:], fallbackCounter.next())
	}
	return id.String()
}

// NewSpanID returns a random, valid W3C span id in hex.
func NewSpanID(clock clockz.Clock) string {
	var id trace.SpanID
	if _, err := rand.Read(id[:]); err != nil || !id.IsValid() {
		binary.BigEndian.PutUint64(id[:], uint64(clock.Now().UnixNano())^fallbackCounter.next())
	}
	return id.String()
}

type counter struct {
	mu sync.Mutex
	n  uint64
}

func (c *counter) next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

var fallbackCounter counter

// idSource hands out trace, span and transaction ids for one tracer.
// Pools are created lazily on first use.
type idSource struct {
	clock    clockz.Clock
	once     sync.Once
	traceIDs *IDPool
	spanIDs  *IDPool
}

func (s *idSource) init() {
	s.once.Do(func() {
		// Pool size based on number of CPUs for optimal contention balance.
		size := runtime.NumCPU() * 100
		s.traceIDs = NewIDPool(size, func() string { return NewTraceID(s.clock) })
		s.spanIDs = NewIDPool(size, func() string { return NewSpanID(s.clock) })
	})
}

func (s *idSource) traceID() string {
	s.init()
	return s.traceIDs.Get()
}

func (s *idSource) spanID() string {
	s.init()
	return s.spanIDs.Get()
}

func (*idSource) transactionID() string {
	return uuid.NewString()
}

// close stops both refill goroutines. Closed pools keep serving ids by
// generating them directly.
func (s *idSource) close() {
	s.init()
	s.traceIDs.Close()
	s.spanIDs.Close()
}
