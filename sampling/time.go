package sampling

import (
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/spanz"
)

// TimeAware samples at most once per window.
type TimeAware struct {
	clock  clockz.Clock
	window time.Duration

	mu     sync.Mutex
	latest time.Time
}

// NewTimeAware creates a TimeAware sampler. A nil clock means the real clock.
func NewTimeAware(window time.Duration, clock clockz.Clock) *TimeAware {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &TimeAware{clock: clock, window: window}
}

// IsSampled implements spanz.Sampler.
func (t *TimeAware) IsSampled(*spanz.Span) bool {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.latest.IsZero() && !now.After(t.latest.Add(t.window)) {
		return false
	}
	t.latest = now
	return true
}
