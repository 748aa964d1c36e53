// Package benchmarks measures span lifecycle and listener dispatch costs.
package benchmarks

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/spanz"
	"github.com/zoobzio/spanz/sampling"
)

// resetEvery bounds the recorder's span list during long runs.
const resetEvery = 10000

// BenchmarkSpanCreationRate measures raw span creation throughput.
func BenchmarkSpanCreationRate(b *testing.B) {
	tracer := spanz.New()
	defer tracer.Destroy()
	ctx, _ := spanz.Fork(context.Background())

	b.ReportAllocs()
	b.ResetTimer()
	start := time.Now()
	for i := 0; i < b.N; i++ {
		_, span := tracer.StartSpan(ctx, "rate-span")
		_ = span.Close()
		if i%resetEvery == resetEvery-1 {
			tracer.Destroy()
		}
	}
	b.ReportMetric(float64(b.N)/time.Since(start).Seconds(), "spans/sec")
}

// BenchmarkSpanCreationRateParallel creates spans from many goroutines, each
// in its own scope.
func BenchmarkSpanCreationRateParallel(b *testing.B) {
	tracer := spanz.New()
	defer tracer.Destroy()
	var counter atomic.Int64

	b.ReportAllocs()
	b.ResetTimer()
	start := time.Now()
	b.RunParallel(func(pb *testing.PB) {
		ctx, _ := spanz.Fork(context.Background())
		for pb.Next() {
			_, span := tracer.StartSpan(ctx, "parallel-rate-span")
			_ = span.Close()
			counter.Add(1)
		}
	})
	b.ReportMetric(float64(counter.Load())/time.Since(start).Seconds(), "spans/sec")
}

// BenchmarkNestedSpans measures parent resolution at increasing depth.
func BenchmarkNestedSpans(b *testing.B) {
	for _, depth := range []int{1, 5, 20} {
		b.Run(fmt.Sprintf("depth-%d", depth), func(b *testing.B) {
			tracer := spanz.New()
			defer tracer.Destroy()
			spans := make([]*spanz.Span, depth)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				ctx := context.Background()
				for d := 0; d < depth; d++ {
					ctx, spans[d] = tracer.StartSpan(ctx, "nested", spanz.WithoutActiveSpanHandling())
				}
				for d := depth - 1; d >= 0; d-- {
					_ = spans[d].Close()
				}
				if i%resetEvery == resetEvery-1 {
					tracer.Destroy()
				}
			}
		})
	}
}

// BenchmarkSpanTagging measures tag writes on a live span.
func BenchmarkSpanTagging(b *testing.B) {
	tracer := spanz.New()
	defer tracer.Destroy()
	_, span := tracer.StartSpan(context.Background(), "tagged", spanz.WithoutActiveSpanHandling())
	keys := []spanz.Tag{"db.statement", "db.instance", "peer.host", "peer.port"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		span.SetTag(keys[i%len(keys)], i)
	}
}

// BenchmarkUnsampledSpan measures the cost left when the sampler says no.
func BenchmarkUnsampledSpan(b *testing.B) {
	tracer := spanz.New(spanz.WithSampler(sampling.Never()))
	defer tracer.Destroy()
	ctx, _ := spanz.Fork(context.Background())

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, span := tracer.StartSpan(ctx, "unsampled")
		_ = span.Close()
		if i%resetEvery == resetEvery-1 {
			tracer.Destroy()
		}
	}
}

// BenchmarkSnapshot measures SpanData copies of a tagged span.
func BenchmarkSnapshot(b *testing.B) {
	tracer := spanz.New()
	defer tracer.Destroy()
	_, span := tracer.StartSpan(context.Background(), "snapshot", spanz.WithoutActiveSpanHandling())
	for i := 0; i < 10; i++ {
		span.SetTag(fmt.Sprintf("key-%d", i), i)
	}
	_ = span.Close()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = span.Snapshot()
	}
}
