package sampling

import (
	"time"

	"github.com/zoobzio/spanz"
)

// DurationAware judges finished spans by their duration.
type DurationAware struct {
	threshold  time.Duration
	longerThan bool
}

// NewDurationAware keeps spans longer than threshold when longerThan is set,
// otherwise spans at or under it.
func NewDurationAware(threshold time.Duration, longerThan bool) *DurationAware {
	return &DurationAware{threshold: threshold, longerThan: longerThan}
}

// IsSampled implements spanz.Sampler. A nil span is never sampled.
func (d *DurationAware) IsSampled(span *spanz.Span) bool {
	if span == nil {
		return false
	}
	if d.longerThan {
		return span.Duration() > d.threshold
	}
	return span.Duration() <= d.threshold
}

// ErrorAware keeps spans tagged error=true.
type ErrorAware struct{}

// NewErrorAware creates an ErrorAware sampler.
func NewErrorAware() ErrorAware {
	return ErrorAware{}
}

// IsSampled implements spanz.Sampler.
func (ErrorAware) IsSampled(span *spanz.Span) bool {
	return span != nil && span.HasError()
}
