// Package listeners provides the built-in span listeners: tag, error and
// latency injection, security checks, filtering and Prometheus metrics.
// Listeners are built directly or by type name through a Registry.
package listeners

import (
	"fmt"
	"strings"

	"github.com/zoobzio/spanz"
)

// phase resolves a configured phase name. Empty means def.
func phase(name string, def spanz.Event) (spanz.Event, error) {
	if name == "" {
		return def, nil
	}
	event, err := spanz.ParseEvent(name)
	if err != nil {
		return 0, err
	}
	if event == spanz.EventStart {
		return 0, fmt.Errorf("phase %q is not supported, use initialize or finish", name)
	}
	return event, nil
}

// matchTags reports whether every wanted tag is present on tags. A "*" value
// only requires presence; a slice matches any of its elements.
func matchTags(tags map[spanz.Tag]any, want map[string]any) bool {
	for key, expected := range want {
		got, ok := tags[key]
		if !ok {
			return false
		}
		if !matchValue(got, expected) {
			return false
		}
	}
	return true
}

func matchValue(got, expected any) bool {
	switch e := expected.(type) {
	case []any:
		for _, candidate := range e {
			if matchValue(got, candidate) {
				return true
			}
		}
		return false
	case []string:
		for _, candidate := range e {
			if matchValue(got, candidate) {
				return true
			}
		}
		return false
	case string:
		if e == "*" {
			return true
		}
	}
	return fmt.Sprint(got) == fmt.Sprint(expected)
}

// matchName compares a configured name: empty and "*" match anything.
func matchName(got, want string) bool {
	return want == "" || want == "*" || strings.EqualFold(got, want)
}

// withError returns args with err in the first position.
func withError(err error, args []any) []any {
	out := make([]any, 0, len(args)+1)
	out = append(out, err)
	if len(args) > 1 {
		out = append(out, args[1:]...)
	}
	return out
}
