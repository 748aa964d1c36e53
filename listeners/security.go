package listeners

import (
	"github.com/zoobzio/spanz"
)

// Matcher selects spans by class name and tags. ClassName "*" matches any
// class; tag values may be "*" or a list of accepted values.
type Matcher struct {
	ClassName string         `mapstructure:"class_name"`
	Tags      map[string]any `mapstructure:"tags"`
}

func (m Matcher) match(span *spanz.Span) bool {
	return matchName(span.ClassName(), m.ClassName) && matchTags(span.Tags(), m.Tags)
}

// SecurityAwareConfig configures SecurityAware. A nil Whitelist means no
// whitelist; an empty one rejects everything.
type SecurityAwareConfig struct {
	Block     bool      `mapstructure:"block"`
	Whitelist []Matcher `mapstructure:"whitelist"`
	Blacklist []Matcher `mapstructure:"blacklist"`
}

// SecurityAware checks spans that call external systems against a whitelist
// and a blacklist on INITIALIZE.
//
// A violation is always tagged on the span and on the recorder. When Block is
// set the span is also tagged blocked and errored, and a *spanz.SecurityError
// is returned so the caller does not run the operation.
type SecurityAware struct {
	spanz.NopListener
	cfg SecurityAwareConfig
}

// NewSecurityAware creates a SecurityAware listener.
func NewSecurityAware(cfg SecurityAwareConfig) *SecurityAware {
	return &SecurityAware{cfg: cfg}
}

// OnSpanInitialized implements spanz.SpanListener.
func (s *SecurityAware) OnSpanInitialized(span *spanz.Span, _ *spanz.Invocation) (bool, error) {
	if !isVertex(span) || !s.violates(span) {
		return false, nil
	}

	span.SetTag(spanz.TagSecurityViolated, true)
	if tracer := span.Tracer(); tracer != nil {
		tracer.Recorder().SetAggregateTag(spanz.TagSecurityViolated, true)
	}
	if !s.cfg.Block {
		return false, nil
	}

	err := &spanz.SecurityError{ClassName: span.ClassName(), OperationName: span.OperationName()}
	span.SetTag(spanz.TagSecurityBlocked, true)
	span.SetErrorTag(err)
	return false, err
}

func (s *SecurityAware) violates(span *spanz.Span) bool {
	for _, m := range s.cfg.Blacklist {
		if m.match(span) {
			return true
		}
	}
	if s.cfg.Whitelist == nil {
		return false
	}
	for _, m := range s.cfg.Whitelist {
		if m.match(span) {
			return false
		}
	}
	return true
}

func isVertex(span *spanz.Span) bool {
	v, ok := span.GetTag(spanz.TagTopologyVertex)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
