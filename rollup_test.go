package spanz

import (
	"testing"
	"time"
)

func TestRollupMergesByResource(t *testing.T) {
	r := NewRollup()
	read := map[Tag]any{TagOperationType: "READ"}

	r.Observe(SpanData{ClassName: "POSTGRESQL", OperationName: "orders", Tags: read, Duration: 10 * time.Millisecond})
	r.Observe(SpanData{ClassName: "POSTGRESQL", OperationName: "orders", Tags: map[Tag]any{
		TagOperationType: "READ",
		TagError:         true,
	}, Duration: 30 * time.Millisecond})
	r.Observe(SpanData{ClassName: "POSTGRESQL", OperationName: "orders", Tags: map[Tag]any{
		TagOperationType: "WRITE",
	}, Duration: time.Millisecond})

	stats, ok := r.Get(ResourceKey{Type: "POSTGRESQL", Name: "orders", Operation: "READ"})
	if !ok {
		t.Fatal("Expected READ resource")
	}
	if stats.Count != 2 || stats.ErrorCount != 1 {
		t.Errorf("Expected 2 calls and 1 error, got %+v", stats)
	}
	if stats.TotalDuration != 40*time.Millisecond || stats.MaxDuration != 30*time.Millisecond {
		t.Errorf("Unexpected durations %+v", stats)
	}
	if stats.AvgDuration() != 20*time.Millisecond {
		t.Errorf("Expected 20ms average, got %v", stats.AvgDuration())
	}

	resources := r.Resources()
	if len(resources) != 2 {
		t.Fatalf("Expected 2 resources, got %d", len(resources))
	}
	if resources[0].Operation != "READ" || resources[1].Operation != "WRITE" {
		t.Errorf("Expected resources sorted by operation, got %v", resources)
	}
}

func TestRollupSecurityCounts(t *testing.T) {
	r := NewRollup()
	r.Observe(SpanData{ClassName: "HTTP", OperationName: "api.example.com", Tags: map[Tag]any{
		TagSecurityViolated: true,
		TagSecurityBlocked:  true,
	}})
	r.Observe(SpanData{ClassName: "HTTP", OperationName: "api.example.com", Tags: map[Tag]any{
		TagSecurityViolated: true,
	}})

	stats, _ := r.Get(ResourceKey{Type: "HTTP", Name: "api.example.com"})
	if stats.ViolatedCount != 2 || stats.BlockedCount != 1 {
		t.Errorf("Expected 2 violations and 1 block, got %+v", stats)
	}
}

func TestResourceStatsEmptyAverage(t *testing.T) {
	if (ResourceStats{}).AvgDuration() != 0 {
		t.Error("Expected zero average for an empty resource")
	}
}
