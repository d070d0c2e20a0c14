// Package condition evaluates workflow step predicates against an
// execution's variable bag. Evaluation is pure: no I/O, no state.
package condition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/openfleet/flowcore/types"
)

// Evaluate folds a condition list left-to-right against the variable bag.
// An empty list is true.
//
// The fold carries the combinator across iterations: the accumulator starts
// as true with an AND combinator, each condition is combined using the
// combinator carried over from the PREVIOUS condition, and then the current
// condition's own Logical operator becomes the combinator for the NEXT one.
// A condition's operator therefore governs the following comparison, not
// its own. This off-by-one association is intentional compatibility
// behavior and must not be "fixed" here.
func Evaluate(conditions []types.WorkflowCondition, variables map[string]any) bool {
	if len(conditions) == 0 {
		return true
	}

	result := true
	combinator := types.LogicalAnd
	for _, cond := range conditions {
		value := evaluateOne(cond, variables)
		if combinator == types.LogicalOr {
			result = result || value
		} else {
			result = result && value
		}
		combinator = cond.Logical
	}
	return result
}

// EvaluateOne evaluates a single condition against the variable bag.
func EvaluateOne(cond types.WorkflowCondition, variables map[string]any) bool {
	return evaluateOne(cond, variables)
}

func evaluateOne(cond types.WorkflowCondition, variables map[string]any) bool {
	actual, defined := lookup(variables, cond.Path)

	switch cond.Operator {
	case types.OpEquals:
		if !defined {
			return false
		}
		return looseEqual(actual, cond.Value)
	case types.OpNotEquals:
		if !defined {
			return true
		}
		return !looseEqual(actual, cond.Value)
	case types.OpGreaterThan:
		a, aok := toFloat(actual)
		b, bok := toFloat(cond.Value)
		return defined && aok && bok && a > b
	case types.OpLessThan:
		a, aok := toFloat(actual)
		b, bok := toFloat(cond.Value)
		return defined && aok && bok && a < b
	case types.OpContains:
		if !defined {
			return false
		}
		return strings.Contains(toString(actual), toString(cond.Value))
	case types.OpExists:
		return defined && actual != nil
	default:
		return false
	}
}

// lookup resolves a dot-path into the variable bag. The second return is
// false when any path segment is missing, mirroring an "undefined" lookup.
func lookup(variables map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var current any = variables
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// looseEqual compares two values numerically when both coerce to numbers,
// otherwise by their string forms.
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return toString(a) == toString(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprintf("%v", s)
	}
}
