package spanz

import (
	"sort"
	"sync"
	"time"
)

// ResourceKey identifies a resource: its type (class), name (operation) and
// the kind of operation performed on it.
type ResourceKey struct {
	Type      string `json:"resource_type"`
	Name      string `json:"resource_name"`
	Operation string `json:"resource_operation,omitempty"`
}

// ResourceStats aggregates the finished spans of one resource.
type ResourceStats struct {
	ResourceKey
	Count         int64         `json:"count"`
	ErrorCount    int64         `json:"error_count"`
	BlockedCount  int64         `json:"blocked_count"`
	ViolatedCount int64         `json:"violated_count"`
	TotalDuration time.Duration `json:"total_duration"`
	MaxDuration   time.Duration `json:"max_duration"`
}

// AvgDuration returns the mean duration, or zero when nothing was observed.
func (s ResourceStats) AvgDuration() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Count)
}

// Rollup merges finished spans that share a ResourceKey.
// Safe for concurrent use by multiple goroutines.
type Rollup struct {
	mu        sync.Mutex
	resources map[ResourceKey]*ResourceStats
}

// NewRollup creates an empty rollup.
func NewRollup() *Rollup {
	return &Rollup{resources: make(map[ResourceKey]*ResourceStats)}
}

// KeyOf derives the resource key of a span snapshot.
func KeyOf(data SpanData) ResourceKey {
	key := ResourceKey{Type: data.ClassName, Name: data.OperationName}
	if op, ok := data.Tags[TagOperationType]; ok {
		if s, ok := op.(string); ok {
			key.Operation = s
		}
	}
	return key
}

// Observe merges one finished span.
func (r *Rollup) Observe(data SpanData) {
	key := KeyOf(data)

	r.mu.Lock()
	defer r.mu.Unlock()

	stats, ok := r.resources[key]
	if !ok {
		stats = &ResourceStats{ResourceKey: key}
		r.resources[key] = stats
	}
	stats.Count++
	if flag(data.Tags, TagError) {
		stats.ErrorCount++
	}
	if flag(data.Tags, TagSecurityBlocked) {
		stats.BlockedCount++
	}
	if flag(data.Tags, TagSecurityViolated) {
		stats.ViolatedCount++
	}
	stats.TotalDuration += data.Duration
	if data.Duration > stats.MaxDuration {
		stats.MaxDuration = data.Duration
	}
}

// Get returns the stats of one resource.
func (r *Rollup) Get(key ResourceKey) (ResourceStats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats, ok := r.resources[key]
	if !ok {
		return ResourceStats{}, false
	}
	return *stats, true
}

// Resources returns every resource's stats sorted by type, name and operation.
func (r *Rollup) Resources() []ResourceStats {
	r.mu.Lock()
	out := make([]ResourceStats, 0, len(r.resources))
	for _, stats := range r.resources {
		out = append(out, *stats)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].ResourceKey, out[j].ResourceKey
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Operation < b.Operation
	})
	return out
}

// Reset forgets every resource.
func (r *Rollup) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources = make(map[ResourceKey]*ResourceStats)
}

func flag(tags map[Tag]any, key Tag) bool {
	v, ok := tags[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
