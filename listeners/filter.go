package listeners

import (
	"github.com/zoobzio/spanz"
	"github.com/zoobzio/spanz/sampling"
)

// SpanFilter accepts or rejects a span.
type SpanFilter interface {
	Accept(span *spanz.Span) bool
}

// StandardSpanFilter is a leaf predicate over span attributes. Empty fields
// match anything; Reverse negates the result.
type StandardSpanFilter struct {
	DomainName    string
	ClassName     string
	OperationName string
	Tags          map[string]any
	Reverse       bool
}

// Accept implements SpanFilter.
func (f *StandardSpanFilter) Accept(span *spanz.Span) bool {
	matched := matchName(span.DomainName(), f.DomainName) &&
		matchName(span.ClassName(), f.ClassName) &&
		(f.OperationName == "" || f.OperationName == "*" || span.OperationName() == f.OperationName) &&
		matchTags(span.Tags(), f.Tags)
	if f.Reverse {
		return !matched
	}
	return matched
}

// CompositeSpanFilter combines filters: All means AND, otherwise OR.
type CompositeSpanFilter struct {
	All     bool
	Filters []SpanFilter
}

// Accept implements SpanFilter.
func (f *CompositeSpanFilter) Accept(span *spanz.Span) bool {
	return fold(f.All, f.Filters, span)
}

// SpanFilterer is the root of a filter tree. With no filters it accepts
// every span.
type SpanFilterer struct {
	All     bool
	Filters []SpanFilter
}

// Accept reports whether span passes the filter tree.
func (f *SpanFilterer) Accept(span *spanz.Span) bool {
	if len(f.Filters) == 0 {
		return true
	}
	return fold(f.All, f.Filters, span)
}

func fold(all bool, filters []SpanFilter, span *spanz.Span) bool {
	op := sampling.OR
	if all {
		op = sampling.AND
	}
	return sampling.Fold(op, len(filters), func(i int) bool {
		return filters[i].Accept(span)
	})
}

// FilterConfig describes a filter tree node. Composite nodes read All and
// Filters; leaves read the rest.
type FilterConfig struct {
	Composite     bool           `koanf:"composite" mapstructure:"composite"`
	All           bool           `koanf:"all" mapstructure:"all"`
	Filters       []FilterConfig `koanf:"filters" mapstructure:"filters"`
	DomainName    string         `koanf:"domain_name" mapstructure:"domain_name"`
	ClassName     string         `koanf:"class_name" mapstructure:"class_name"`
	OperationName string         `koanf:"operation_name" mapstructure:"operation_name"`
	Tags          map[string]any `koanf:"tags" mapstructure:"tags"`
	Reverse       bool           `koanf:"reverse" mapstructure:"reverse"`
}

// Build turns the config into a filter.
func (c FilterConfig) Build() SpanFilter {
	if c.Composite {
		children := make([]SpanFilter, 0, len(c.Filters))
		for _, child := range c.Filters {
			children = append(children, child.Build())
		}
		return &CompositeSpanFilter{All: c.All, Filters: children}
	}
	return &StandardSpanFilter{
		DomainName:    c.DomainName,
		ClassName:     c.ClassName,
		OperationName: c.OperationName,
		Tags:          c.Tags,
		Reverse:       c.Reverse,
	}
}
