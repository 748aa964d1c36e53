// Package integration exercises spanz end to end: tracer, recorder,
// listeners, propagation and collector together.
package integration

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/spanz"
)

// MockCollector wraps a real collector with test utilities.
// Collection is synchronous so assertions need no waiting.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	exported []spanz.SpanData
	*spanz.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a synchronous collector for testing.
func NewMockCollector(t *testing.T, bufferSize int) *MockCollector {
	collector := spanz.NewCollector(bufferSize, nil)
	collector.SetSyncMode(true)
	return WrapCollector(t, collector)
}

// WrapCollector adds test utilities to an existing collector and closes it
// when the test ends.
func WrapCollector(t *testing.T, collector *spanz.Collector) *MockCollector {
	t.Cleanup(collector.Close)
	return &MockCollector{
		Collector: collector,
		t:         t,
	}
}

// NewTestTracer creates a tracer whose chain ends with a MockCollector.
func NewTestTracer(t *testing.T, opts ...spanz.Option) (*spanz.Tracer, *MockCollector) {
	collector := NewMockCollector(t, 1000)
	tracer := spanz.New(opts...)
	tracer.Recorder().AddSpanListener(collector.Collector)
	t.Cleanup(tracer.Destroy)
	return tracer, collector
}

// Export returns collected spans and clears the buffer.
func (m *MockCollector) Export() []spanz.SpanData {
	m.mu.Lock()
	defer m.mu.Unlock()

	spans := m.Collector.Export()
	m.exported = append(m.exported, spans...)
	return spans
}

// GetAll returns every span collected so far, including exported ones.
func (m *MockCollector) GetAll() []spanz.SpanData {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current := m.Collector.Export(); len(current) > 0 {
		m.exported = append(m.exported, current...)
	}
	all := make([]spanz.SpanData, len(m.exported))
	copy(all, m.exported)
	return all
}

// WaitForSpans waits for the expected number of spans with timeout.
func (m *MockCollector) WaitForSpans(expected int, timeout time.Duration) []spanz.SpanData {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	var spans []spanz.SpanData
	for time.Now().Before(deadline) {
		spans = append(spans, m.Export()...)
		if len(spans) >= expected {
			return spans
		}
		<-ticker.C
	}
	m.t.Errorf("Timeout waiting for spans: expected %d, got %d", expected, len(spans))
	return spans
}

// AssertSpanCount verifies exact span count.
func (m *MockCollector) AssertSpanCount(expected int) {
	if spans := m.Export(); len(spans) != expected {
		m.t.Errorf("Expected %d spans, got %d", expected, len(spans))
	}
}

// AssertSpanNamed returns the span with the given operation name.
func (m *MockCollector) AssertSpanNamed(name string) *spanz.SpanData {
	spans := m.GetAll()
	for i := range spans {
		if spans[i].OperationName == name {
			return &spans[i]
		}
	}
	m.t.Errorf("Span named '%s' not found", name)
	return nil
}

// AssertParentChild verifies a parent-child relationship.
func (m *MockCollector) AssertParentChild(parentName, childName string) {
	spans := m.GetAll()
	var parent, child *spanz.SpanData
	for i := range spans {
		switch spans[i].OperationName {
		case parentName:
			parent = &spans[i]
		case childName:
			child = &spans[i]
		}
	}
	if parent == nil {
		m.t.Errorf("Parent span '%s' not found", parentName)
		return
	}
	if child == nil {
		m.t.Errorf("Child span '%s' not found", childName)
		return
	}
	if child.ParentID != parent.SpanID {
		m.t.Errorf("Parent-child relationship broken: %s is not parent of %s. Child ParentID=%s, Parent SpanID=%s",
			parentName, childName, child.ParentID, parent.SpanID)
	}
	if child.TraceID != parent.TraceID {
		m.t.Errorf("Trace ID mismatch: parent=%s, child=%s", parent.TraceID, child.TraceID)
	}
	if child.TransactionID != parent.TransactionID {
		m.t.Errorf("Transaction ID mismatch: parent=%s, child=%s", parent.TransactionID, child.TransactionID)
	}
}

// SpanTree represents a hierarchical view of spans.
type SpanTree struct {
	Span     spanz.SpanData
	Children []*SpanTree
}

// BuildSpanTree constructs a tree from a flat span list. Children follow
// START order.
func BuildSpanTree(spans []spanz.SpanData) []*SpanTree {
	nodes := make(map[string]*SpanTree, len(spans))
	for i := range spans {
		nodes[spans[i].SpanID] = &SpanTree{Span: spans[i]}
	}

	var roots []*SpanTree
	for i := range spans {
		node := nodes[spans[i].SpanID]
		if parent, ok := nodes[spans[i].ParentID]; ok {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}
	}
	for _, node := range nodes {
		sortByOrder(node.Children)
	}
	sortByOrder(roots)
	return roots
}

func sortByOrder(trees []*SpanTree) {
	for i := 1; i < len(trees); i++ {
		for j := i; j > 0 && trees[j].Span.Order < trees[j-1].Span.Order; j-- {
			trees[j], trees[j-1] = trees[j-1], trees[j]
		}
	}
}

// PrintSpanTree formats a span tree for debugging.
func PrintSpanTree(trees []*SpanTree) string {
	var sb strings.Builder
	for _, tree := range trees {
		printTreeNode(&sb, tree, 0)
	}
	return sb.String()
}

func printTreeNode(sb *strings.Builder, node *SpanTree, depth int) {
	fmt.Fprintf(sb, "%s%s (%.2fms)\n",
		strings.Repeat("  ", depth), node.Span.OperationName, node.Span.Duration.Seconds()*1000)
	for _, child := range node.Children {
		printTreeNode(sb, child, depth+1)
	}
}

// MockService simulates an external dependency called through a traced
// client. Its spans are topology vertices so security listeners see them.
type MockService struct {
	tracer       *spanz.Tracer
	name         string
	class        string
	latency      time.Duration
	mu           sync.Mutex
	requestCount int
	failureRate  float64
}

// NewMockService creates a simulated service of the given class (HTTP,
// POSTGRESQL, ...).
func NewMockService(tracer *spanz.Tracer, class, name string) *MockService {
	return &MockService{tracer: tracer, class: class, name: name}
}

// SetLatency configures response time on the tracer's clock.
func (m *MockService) SetLatency(d time.Duration) {
	m.mu.Lock()
	m.latency = d
	m.mu.Unlock()
}

// SetFailureRate configures error probability (0.0-1.0).
func (m *MockService) SetFailureRate(rate float64) {
	m.mu.Lock()
	m.failureRate = rate
	m.mu.Unlock()
}

// Requests returns how many calls reached the service.
func (m *MockService) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// Call traces one request. A deliberate error raised by the listener chain
// on INITIALIZE aborts the call before it reaches the service.
func (m *MockService) Call(ctx context.Context, operation string) error {
	_, span := m.tracer.StartSpan(ctx, m.name,
		spanz.WithClassName(m.class),
		spanz.WithTags(map[spanz.Tag]any{
			spanz.TagOperationType:  operation,
			spanz.TagTopologyVertex: true,
		}),
	)
	if err := span.Initialized(); spanz.IsDeliberate(err) {
		_ = span.Close()
		return err
	}

	m.mu.Lock()
	m.requestCount++
	count := m.requestCount
	latency := m.latency
	fail := rand.Float64() < m.failureRate
	m.mu.Unlock()

	span.SetTag("request_id", count)
	if latency > 0 {
		m.tracer.Clock().Sleep(latency)
	}

	var err error
	if fail {
		err = fmt.Errorf("%s: simulated failure", m.name)
		span.SetErrorTag(err)
	}
	if closeErr := span.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// SpanMatcher provides fluent assertions for spans.
type SpanMatcher struct {
	t    *testing.T
	span *spanz.SpanData
}

// NewSpanMatcher creates a matcher for span assertions.
func NewSpanMatcher(t *testing.T, span *spanz.SpanData) *SpanMatcher {
	return &SpanMatcher{t: t, span: span}
}

// HasTag verifies the tag exists with value.
func (m *SpanMatcher) HasTag(key spanz.Tag, value any) *SpanMatcher {
	if m.span == nil {
		return m
	}
	if actual, exists := m.span.Tags[key]; !exists {
		m.t.Errorf("Span %s missing tag '%s'", m.span.OperationName, key)
	} else if actual != value {
		m.t.Errorf("Span %s tag '%s': expected '%v', got '%v'", m.span.OperationName, key, value, actual)
	}
	return m
}

// HasParent verifies the parent relationship.
func (m *SpanMatcher) HasParent(parentID string) *SpanMatcher {
	if m.span == nil {
		return m
	}
	if m.span.ParentID != parentID {
		m.t.Errorf("Span %s wrong parent: expected %s, got %s", m.span.OperationName, parentID, m.span.ParentID)
	}
	return m
}

// DurationBetween verifies the duration is in range.
func (m *SpanMatcher) DurationBetween(minDur, maxDur time.Duration) *SpanMatcher {
	if m.span == nil {
		return m
	}
	if m.span.Duration < minDur || m.span.Duration > maxDur {
		m.t.Errorf("Span %s duration %v not in range [%v, %v]", m.span.OperationName, m.span.Duration, minDur, maxDur)
	}
	return m
}

// TraceAnalyzer provides trace-level assertions.
type TraceAnalyzer struct {
	spans  []spanz.SpanData
	byID   map[string]spanz.SpanData
	byName map[string][]spanz.SpanData
	trees  []*SpanTree
}

// NewTraceAnalyzer creates an analyzer for a set of spans.
func NewTraceAnalyzer(spans []spanz.SpanData) *TraceAnalyzer {
	a := &TraceAnalyzer{
		spans:  spans,
		byID:   make(map[string]spanz.SpanData),
		byName: make(map[string][]spanz.SpanData),
	}
	for i := range spans {
		a.byID[spans[i].SpanID] = spans[i]
		a.byName[spans[i].OperationName] = append(a.byName[spans[i].OperationName], spans[i])
	}
	a.trees = BuildSpanTree(spans)
	return a
}

// GetSpan retrieves a span by ID.
func (a *TraceAnalyzer) GetSpan(spanID string) (spanz.SpanData, bool) {
	span, exists := a.byID[spanID]
	return span, exists
}

// GetSpansByName retrieves all spans with the given operation name.
func (a *TraceAnalyzer) GetSpansByName(name string) []spanz.SpanData {
	return a.byName[name]
}

// CountSpans returns total span count.
func (a *TraceAnalyzer) CountSpans() int {
	return len(a.spans)
}

// CountTrees returns the number of root spans.
func (a *TraceAnalyzer) CountTrees() int {
	return len(a.trees)
}

// VerifyChain checks that the named spans form a parent-child chain.
func (a *TraceAnalyzer) VerifyChain(names ...string) error {
	if len(names) < 2 {
		return fmt.Errorf("chain requires at least 2 spans")
	}
	var prev *spanz.SpanData
	for i, name := range names {
		spans := a.GetSpansByName(name)
		if len(spans) == 0 {
			return fmt.Errorf("span '%s' not found", name)
		}
		span := spans[0]
		if prev != nil && span.ParentID != prev.SpanID {
			return fmt.Errorf("broken chain: %s is not child of %s", name, names[i-1])
		}
		prev = &span
	}
	return nil
}

// GetCriticalPath returns the path with the longest summed duration.
func (a *TraceAnalyzer) GetCriticalPath() []spanz.SpanData {
	var maxPath []spanz.SpanData
	var maxDuration time.Duration
	for _, tree := range a.trees {
		path := a.findLongestPath(tree)
		if d := pathDuration(path); d > maxDuration || maxPath == nil {
			maxDuration = d
			maxPath = path
		}
	}
	return maxPath
}

func (a *TraceAnalyzer) findLongestPath(node *SpanTree) []spanz.SpanData {
	path := []spanz.SpanData{node.Span}
	var longest []spanz.SpanData
	var longestDuration time.Duration
	for _, child := range node.Children {
		childPath := a.findLongestPath(child)
		if d := pathDuration(childPath); d > longestDuration || longest == nil {
			longestDuration = d
			longest = childPath
		}
	}
	return append(path, longest...)
}

func pathDuration(path []spanz.SpanData) time.Duration {
	var total time.Duration
	for i := range path {
		total += path[i].Duration
	}
	return total
}
