package sampling

import (
	"fmt"
	"strings"

	"github.com/zoobzio/spanz"
)

// Operator folds child decisions.
type Operator string

// Supported operators.
const (
	OR  Operator = "or"
	AND Operator = "and"
)

// ParseOperator accepts "and"/"or" in any case. Empty means OR.
func ParseOperator(s string) (Operator, error) {
	switch strings.ToLower(s) {
	case "", string(OR):
		return OR, nil
	case string(AND):
		return AND, nil
	default:
		return "", fmt.Errorf("unknown operator %q", s)
	}
}

// Fold combines n decisions with op. AND starts at true, OR at false.
// Every decision is evaluated; there is no short circuit.
func Fold(op Operator, n int, decide func(i int) bool) bool {
	result := op == AND
	for i := 0; i < n; i++ {
		d := decide(i)
		if op == AND {
			result = result && d
		} else {
			result = result || d
		}
	}
	return result
}

// Composite combines samplers with an operator.
type Composite struct {
	op       Operator
	samplers []spanz.Sampler
}

// NewComposite creates a Composite sampler.
func NewComposite(op Operator, samplers ...spanz.Sampler) *Composite {
	return &Composite{op: op, samplers: samplers}
}

// IsSampled implements spanz.Sampler. Each child is consulted, so stateful
// children such as CountAware advance on every call.
func (c *Composite) IsSampled(span *spanz.Span) bool {
	return Fold(c.op, len(c.samplers), func(i int) bool {
		return c.samplers[i].IsSampled(span)
	})
}
