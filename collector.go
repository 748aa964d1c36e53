package spanz

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector buffers finished spans for batch export and feeds the resource
// rollup. It is a SpanListener: register it last so it sees the final state
// other listeners leave on the span.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	NopListener

	spans        []SpanData
	spansCh      chan SpanData
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	reporter     Sampler
	rollup       *Rollup
	mu           sync.Mutex
	closed       atomic.Bool // Track if collector is closed.
	syncMode     atomic.Bool // Bypass channel for synchronous collection.
}

// NewCollector creates a new collector with the specified buffer size.
// reporter, when non-nil, decides which finished spans are kept.
func NewCollector(bufferSize int, reporter Sampler) *Collector {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	c := &Collector{
		spans:    make([]SpanData, 0, 8), // Start with small capacity.
		spansCh:  make(chan SpanData, bufferSize),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		reporter: reporter,
		rollup:   NewRollup(),
	}
	go c.start()
	return c
}

// start runs the collector's main loop, receiving spans from the channel.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining spans before shutdown.
			for {
				select {
				case data := <-c.spansCh:
					c.buffer(data)
				default:
					return // Clean shutdown.
				}
			}
		case data := <-c.spansCh:
			c.buffer(data)
		}
	}
}

// Close shuts down the collector gracefully. Buffered spans stay exportable.
func (c *Collector) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.stopCh)
	select {
	case <-c.done:
		// Clean shutdown completed.
	case <-time.After(100 * time.Millisecond):
	}
}

// OnSpanFinished collects the span. The continuation is left to the rest of
// the chain.
func (c *Collector) OnSpanFinished(span *Span, _ *Invocation) (bool, error) {
	c.Collect(span)
	return false, nil
}

// Collect attempts to buffer a span with backpressure protection.
// If the internal channel is full, the span is dropped and the drop counter is incremented.
// In sync mode, spans are collected directly for deterministic testing.
func (c *Collector) Collect(span *Span) {
	// Nil check to prevent panic in calling goroutine.
	if span == nil {
		c.droppedCount.Add(1)
		return
	}
	if c.reporter != nil && !c.reporter.IsSampled(span) {
		return
	}

	// Snapshot to prevent modifications after collection.
	data := span.Snapshot()

	if c.syncMode.Load() {
		if c.closed.Load() {
			c.droppedCount.Add(1)
			return
		}
		c.buffer(data)
		return
	}
	if c.closed.Load() {
		c.droppedCount.Add(1)
		return
	}

	select {
	case c.spansCh <- data:
		// Successfully queued.
	default:
		// Channel full - drop span to prevent blocking.
		c.droppedCount.Add(1)
	}
}

func (c *Collector) buffer(data SpanData) {
	c.rollup.Observe(data)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Check if buffer needs to grow.
	if len(c.spans) >= cap(c.spans) {
		currentCap := cap(c.spans)
		var newCap int
		if currentCap < 1024 {
			// Double capacity for small buffers.
			newCap = currentCap * 2
		} else {
			// Grow by 50% for large buffers to avoid excessive memory usage.
			newCap = currentCap + currentCap/2
		}
		if newCap < 32 {
			newCap = 32
		}
		grown := make([]SpanData, len(c.spans), newCap)
		copy(grown, c.spans)
		c.spans = grown
	}
	c.spans = append(c.spans, data)
}

// Export returns all buffered spans and clears the internal buffer.
// The returned slice is safe to modify without affecting the collector.
func (c *Collector) Export() []SpanData {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.spans) == 0 {
		return nil
	}

	result := make([]SpanData, len(c.spans))
	copy(result, c.spans)

	// Only shrink if buffer is very oversized to avoid allocation churn.
	if cap(c.spans) > 256 && len(c.spans) < cap(c.spans)/8 {
		newCap := cap(c.spans) / 4
		if newCap < 32 {
			newCap = 32
		}
		c.spans = make([]SpanData, 0, newCap)
	} else {
		clear(c.spans)
		c.spans = c.spans[:0]
	}

	return result
}

// Count returns the current number of buffered spans.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spans)
}

// DroppedCount returns the total number of spans dropped due to backpressure.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// Rollup returns the per-resource aggregate of every collected span.
// Export does not clear it; Reset does.
func (c *Collector) Rollup() *Rollup {
	return c.rollup
}

// SetSyncMode enables synchronous collection for testing.
// When enabled, spans are collected directly without using the channel.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// Reset clears all buffered spans, the rollup and the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	clear(c.spans)
	c.spans = c.spans[:0]
	c.mu.Unlock()

	c.rollup.Reset()
	c.droppedCount.Store(0)
}
