package listeners

import "github.com/zoobzio/spanz"

// TagInjectorConfig configures TagInjector.
type TagInjectorConfig struct {
	Tags map[string]any `mapstructure:"tags"`
}

// TagInjector merges a fixed tag set into every span on INITIALIZE.
// Configured tags win on collision. It never claims the continuation.
type TagInjector struct {
	spanz.NopListener
	tags map[spanz.Tag]any
}

// NewTagInjector creates a TagInjector.
func NewTagInjector(cfg TagInjectorConfig) *TagInjector {
	tags := make(map[spanz.Tag]any, len(cfg.Tags))
	for k, v := range cfg.Tags {
		tags[k] = v
	}
	return &TagInjector{tags: tags}
}

// OnSpanInitialized implements spanz.SpanListener.
func (t *TagInjector) OnSpanInitialized(span *spanz.Span, _ *spanz.Invocation) (bool, error) {
	span.AddTags(t.tags)
	return false, nil
}
