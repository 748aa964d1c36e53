package spanz

// Sampler decides whether a trace (or, for report-side sampling, a finished
// span) is kept. Root spans consult the tracer's sampler once at creation;
// children inherit the decision.
type Sampler interface {
	IsSampled(span *Span) bool
}

// SamplerFunc adapts a function into a Sampler.
type SamplerFunc func(span *Span) bool

// IsSampled calls f.
func (f SamplerFunc) IsSampled(span *Span) bool {
	return f(span)
}

// Format names a propagation carrier family.
type Format string

// Built-in propagation formats.
const (
	TextMap     Format = "text_map"
	HTTPHeaders Format = "http_headers"
)

// Propagator serializes a SpanContext into and out of a carrier.
// Extract returns a nil context and nil error when the carrier holds no trace.
type Propagator interface {
	Inject(sc *SpanContext, carrier any) error
	Extract(carrier any) (*SpanContext, error)
}
