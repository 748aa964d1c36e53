package sampling

import (
	"sync"

	"github.com/zoobzio/spanz"
)

// CountAware samples every freq-th call, starting with the first.
type CountAware struct {
	mu      sync.Mutex
	freq    int
	counter int
}

// NewCountAware creates a CountAware sampler. A frequency below one is
// treated as one.
func NewCountAware(freq int) *CountAware {
	if freq < 1 {
		freq = 1
	}
	return &CountAware{freq: freq}
}

// IsSampled implements spanz.Sampler.
func (c *CountAware) IsSampled(*spanz.Span) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	sampled := c.counter%c.freq == 0
	c.counter++
	return sampled
}
