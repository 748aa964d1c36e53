package spanz

import (
	"errors"
	"reflect"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"
)

// LogRecord is a timestamped set of fields attached to a span.
type LogRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields"`
}

// SpanData is an immutable copy of a span, suitable for export.
//
//nolint:govet // Field order follows the JSON layout
type SpanData struct {
	Tags               map[Tag]any   `json:"tags,omitempty"`
	Logs               []LogRecord   `json:"logs,omitempty"`
	StartTime          time.Time     `json:"start_time"`
	FinishTime         time.Time     `json:"finish_time,omitempty"`
	Duration           time.Duration `json:"duration"`
	TraceID            string        `json:"trace_id"`
	SpanID             string        `json:"span_id"`
	ParentID           string        `json:"parent_id,omitempty"`
	TransactionID      string        `json:"transaction_id,omitempty"`
	OperationName      string        `json:"operation_name"`
	DomainName         string        `json:"domain_name,omitempty"`
	ClassName          string        `json:"class_name,omitempty"`
	ResourceTraceLinks []string      `json:"resource_trace_links,omitempty"`
	Order              int           `json:"order"`
	Sampled            bool          `json:"sampled"`
}

// Span represents a single timed unit of work.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order groups identity before mutable state
type Span struct {
	tracer  *Tracer
	scope   *ExecutionScope
	context *SpanContext

	mu                 sync.RWMutex
	operationName      string
	domainName         string
	className          string
	tags               map[Tag]any
	logs               []LogRecord
	resourceTraceLinks []string
	startTime          time.Time
	finishTime         time.Time
	order              int
	sealed             bool

	// skipActive keeps the span off the active stack.
	skipActive bool
}

// Context returns the span's identity.
func (s *Span) Context() *SpanContext {
	return s.context
}

// Scope returns the causality branch the span was started in.
func (s *Span) Scope() *ExecutionScope {
	return s.scope
}

// Tracer returns the tracer that created the span.
func (s *Span) Tracer() *Tracer {
	return s.tracer
}

// OperationName returns the span's operation name.
func (s *Span) OperationName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.operationName
}

// SetOperationName renames the span.
func (s *Span) SetOperationName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operationName = name
}

// DomainName returns the domain (e.g. "DB", "API") of the span.
func (s *Span) DomainName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.domainName
}

// SetDomainName sets the span's domain.
func (s *Span) SetDomainName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.domainName = name
}

// ClassName returns the class (e.g. "POSTGRESQL", "HTTP") of the span.
func (s *Span) ClassName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.className
}

// SetClassName sets the span's class.
func (s *Span) SetClassName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.className = name
}

// SetTag adds a key-value pair to the span.
// No-op once the span's final state has been recorded.
func (s *Span) SetTag(key Tag, value any) {
	defer s.recoverMutation("set tag")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return
	}
	if s.tags == nil {
		s.tags = make(map[Tag]any)
	}
	s.tags[key] = value
}

// AddTags merges tags into the span; the given values win on collision.
func (s *Span) AddTags(tags map[Tag]any) {
	if len(tags) == 0 {
		return
	}
	defer s.recoverMutation("add tags")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return
	}
	if s.tags == nil {
		s.tags = make(map[Tag]any, len(tags))
	}
	for k, v := range tags {
		s.tags[k] = v
	}
}

// GetTag retrieves a tag value by key.
func (s *Span) GetTag(key Tag) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.tags[key]
	return v, ok
}

// Tags returns a copy of the span's tags.
func (s *Span) Tags() map[Tag]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Tag]any, len(s.tags))
	for k, v := range s.tags {
		out[k] = v
	}
	return out
}

// SetErrorTag normalizes err into the error tag family.
func (s *Span) SetErrorTag(err error) {
	if err == nil {
		return
	}
	tags := map[Tag]any{
		TagError:        true,
		TagErrorKind:    errorKind(err),
		TagErrorMessage: err.Error(),
	}
	var coder interface{ Code() string }
	if errors.As(err, &coder) {
		tags[TagErrorCode] = coder.Code()
	}
	var stacker interface{ Stack() string }
	if errors.As(err, &stacker) {
		tags[TagErrorStack] = stacker.Stack()
	}
	s.AddTags(tags)
}

// HasError reports whether the span carries error=true.
func (s *Span) HasError() bool {
	v, ok := s.GetTag(TagError)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Log appends a timestamped record to the span.
func (s *Span) Log(fields map[string]any) {
	defer s.recoverMutation("log")
	now := s.tracer.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return
	}
	s.logs = append(s.logs, LogRecord{Timestamp: now, Fields: fields})
}

// Logs returns a copy of the span's log records.
func (s *Span) Logs() []LogRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]LogRecord(nil), s.logs...)
}

// ResourceTraceLinks returns the trace links of the resource the span touched.
func (s *Span) ResourceTraceLinks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.resourceTraceLinks...)
}

// SetResourceTraceLinks records trace links for the touched resource.
func (s *Span) SetResourceTraceLinks(links ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resourceTraceLinks = append([]string(nil), links...)
}

// StartTime returns when the span started.
func (s *Span) StartTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startTime
}

// FinishTime returns when the span finished; the zero time means unfinished.
func (s *Span) FinishTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finishTime
}

// SetFinishTime moves the finish time of an already finished span.
// Latency injection uses it to account for an artificial delay.
func (s *Span) SetFinishTime(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finishTime.IsZero() {
		return
	}
	s.finishTime = t
}

// IsFinished reports whether the span has been closed.
func (s *Span) IsFinished() bool {
	return !s.FinishTime().IsZero()
}

// Duration returns finish minus start, or zero for an unfinished span.
func (s *Span) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.finishTime.IsZero() {
		return 0
	}
	return s.finishTime.Sub(s.startTime)
}

// Order returns the position assigned by the Recorder at START.
func (s *Span) Order() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order
}

// Initialized fires INITIALIZE. Call it after tags are populated and before
// the wrapped operation runs; a non-nil error means a listener deliberately
// failed or blocked the operation.
func (s *Span) Initialized() error {
	return s.tracer.recorder.Record(s, EventInitialize, nil)
}

// InitializedWithCallback fires INITIALIZE carrying a continuation through the
// listener chain. The continuation runs exactly once.
func (s *Span) InitializedWithCallback(target any, cont Continuation, args ...any) error {
	return s.tracer.recorder.Record(s, EventInitialize, NewInvocation(target, cont, args...))
}

// Close finishes the span now.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Span) Close() error {
	return s.finish(time.Time{}, nil)
}

// CloseAt finishes the span at t.
func (s *Span) CloseAt(t time.Time) error {
	return s.finish(t, nil)
}

// CloseWithCallback finishes the span and hands the continuation to the
// FINISH listeners instead of invoking it directly.
func (s *Span) CloseWithCallback(target any, cont Continuation, args ...any) error {
	return s.finish(time.Time{}, NewInvocation(target, cont, args...))
}

// CloseWithCallbackAt is CloseWithCallback with an explicit finish time.
func (s *Span) CloseWithCallbackAt(t time.Time, target any, cont Continuation, args ...any) error {
	return s.finish(t, NewInvocation(target, cont, args...))
}

func (s *Span) finish(t time.Time, inv *Invocation) error {
	s.mu.Lock()
	// Prevent double-finishing.
	if !s.finishTime.IsZero() {
		name := s.operationName
		s.mu.Unlock()
		s.tracer.logger.Debug("span already closed",
			zap.String("operation", name),
			zap.String("span_id", s.context.SpanID),
		)
		return nil
	}
	if t.IsZero() {
		t = s.tracer.clock.Now()
	}
	s.finishTime = t
	s.mu.Unlock()

	if !s.context.Sampled {
		s.tracer.recorder.release(s)
		s.seal()
		inv.Invoke(argsOf(inv))
		return nil
	}
	return s.tracer.recorder.Record(s, EventFinish, inv)
}

func (s *Span) seal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true
}

// Snapshot returns an immutable copy of the span.
func (s *Span) Snapshot() SpanData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data := SpanData{
		StartTime:          s.startTime,
		FinishTime:         s.finishTime,
		TraceID:            s.context.TraceID,
		SpanID:             s.context.SpanID,
		ParentID:           s.context.ParentID,
		TransactionID:      s.context.TransactionID,
		OperationName:      s.operationName,
		DomainName:         s.domainName,
		ClassName:          s.className,
		ResourceTraceLinks: append([]string(nil), s.resourceTraceLinks...),
		Order:              s.order,
		Sampled:            s.context.Sampled,
	}
	if !s.finishTime.IsZero() {
		data.Duration = s.finishTime.Sub(s.startTime)
	}
	if s.tags != nil {
		data.Tags = make(map[Tag]any, len(s.tags))
		for k, v := range s.tags {
			data.Tags[k] = v
		}
	}
	if len(s.logs) > 0 {
		data.Logs = append([]LogRecord(nil), s.logs...)
	}
	return data
}

// recoverMutation keeps tagging failures away from the instrumented code.
func (s *Span) recoverMutation(op string) {
	if r := recover(); r != nil {
		s.tracer.logger.Warn("span mutation failed",
			zap.String("op", op),
			zap.Any("panic", r),
		)
	}
}

func argsOf(inv *Invocation) []any {
	if inv == nil {
		return nil
	}
	return inv.Args
}

// errorKind names the failure: an explicit Kind() wins, then the dynamic
// type name. Unexported types fall back to "Error".
func errorKind(err error) string {
	var kinder interface{ Kind() string }
	if errors.As(err, &kinder) {
		return kinder.Kind()
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" || !unicode.IsUpper([]rune(name)[0]) {
		return "Error"
	}
	return name
}
