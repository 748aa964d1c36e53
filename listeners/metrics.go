package listeners

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zoobzio/spanz"
)

// MetricsConfig configures Metrics.
type MetricsConfig struct {
	Namespace string `koanf:"namespace" mapstructure:"namespace"`
}

// Metrics records finished spans as Prometheus series labelled by class and
// operation.
type Metrics struct {
	spanz.NopListener
	spans    *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var metricLabels = []string{"class", "operation"}

// NewMetrics creates the collectors and registers them on reg. Collectors
// already registered under the same names are reused, so a listener chain
// can be rebuilt without restarting the process.
func NewMetrics(cfg MetricsConfig, reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	spans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Name:      "spans_total",
		Help:      "Finished spans.",
	}, metricLabels)
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Name:      "span_errors_total",
		Help:      "Finished spans tagged error=true.",
	}, metricLabels)
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Name:      "span_duration_seconds",
		Help:      "Span duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, metricLabels)

	var err error
	m := &Metrics{}
	if m.spans, err = register(reg, spans); err != nil {
		return nil, err
	}
	if m.errors, err = register(reg, failed); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// OnSpanFinished implements spanz.SpanListener.
func (m *Metrics) OnSpanFinished(span *spanz.Span, _ *spanz.Invocation) (bool, error) {
	labels := prometheus.Labels{"class": span.ClassName(), "operation": span.OperationName()}
	m.spans.With(labels).Inc()
	if span.HasError() {
		m.errors.With(labels).Inc()
	}
	m.duration.With(labels).Observe(span.Duration().Seconds())
	return false, nil
}
