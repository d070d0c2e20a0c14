package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openfleet/flowcore/types"
)

func cond(path string, op types.ConditionOperator, value any, logical types.LogicalOperator) types.WorkflowCondition {
	return types.WorkflowCondition{Path: path, Operator: op, Value: value, Logical: logical}
}

func TestEvaluate_EmptyListIsTrue(t *testing.T) {
	assert.True(t, Evaluate(nil, map[string]any{}))
}

func TestEvaluateOne_Operators(t *testing.T) {
	vars := map[string]any{
		"f":      10,
		"name":   "hello",
		"truthy": true,
		"nested": map[string]any{"inner": "value"},
	}

	assert.True(t, EvaluateOne(cond("f", types.OpGreaterThan, 5, ""), vars))
	assert.False(t, EvaluateOne(cond("f", types.OpGreaterThan, 10, ""), vars))
	assert.True(t, EvaluateOne(cond("f", types.OpLessThan, 11, ""), vars))
	assert.True(t, EvaluateOne(cond("name", types.OpContains, "lo", ""), vars))
	assert.False(t, EvaluateOne(cond("name", types.OpContains, "xyz", ""), vars))
	assert.True(t, EvaluateOne(cond("f", types.OpEquals, 10.0, ""), vars))
	assert.True(t, EvaluateOne(cond("f", types.OpNotEquals, 9, ""), vars))
	assert.True(t, EvaluateOne(cond("nested.inner", types.OpEquals, "value", ""), vars))
	assert.True(t, EvaluateOne(cond("truthy", types.OpExists, nil, ""), vars))
}

func TestEvaluateOne_UndefinedPath(t *testing.T) {
	vars := map[string]any{"f": nil}

	// Missing path fails exists and fails equality against any defined value.
	assert.False(t, EvaluateOne(cond("missing", types.OpExists, nil, ""), vars))
	assert.False(t, EvaluateOne(cond("missing", types.OpEquals, "x", ""), vars))
	assert.True(t, EvaluateOne(cond("missing", types.OpNotEquals, "x", ""), vars))
	assert.False(t, EvaluateOne(cond("missing.deeper", types.OpEquals, 1, ""), vars))

	// Defined but nil fails exists.
	assert.False(t, EvaluateOne(cond("f", types.OpExists, nil, ""), vars))
}

// The combinator carried into each comparison is the PREVIOUS condition's
// Logical operator, starting from AND. These cases pin that association.
func TestEvaluate_CombinatorCarryOver(t *testing.T) {
	vars := map[string]any{"a": 1, "b": 2}

	// (true AND false) -> false; second condition's own OR is never applied.
	conds := []types.WorkflowCondition{
		cond("a", types.OpEquals, 1, types.LogicalAnd),
		cond("b", types.OpEquals, 99, types.LogicalOr),
	}
	assert.False(t, Evaluate(conds, vars))

	// First condition's OR governs the second comparison:
	// ((true AND false) OR true) -> true.
	conds = []types.WorkflowCondition{
		cond("a", types.OpEquals, 99, types.LogicalOr),
		cond("b", types.OpEquals, 2, types.LogicalAnd),
	}
	assert.True(t, Evaluate(conds, vars))

	// Three conditions: carry chain AND, then OR.
	// ((true AND false) OR true) AND-carry stops here -> true.
	conds = []types.WorkflowCondition{
		cond("a", types.OpEquals, 1, types.LogicalOr),
		cond("b", types.OpEquals, 99, types.LogicalOr),
		cond("b", types.OpEquals, 2, types.LogicalAnd),
	}
	// fold: start true AND true=true (carry->or), true OR false=true
	// (carry->or), true OR true=true.
	assert.True(t, Evaluate(conds, vars))
}

func TestEvaluate_DefaultCombinatorIsAnd(t *testing.T) {
	vars := map[string]any{"a": 1}
	conds := []types.WorkflowCondition{
		cond("a", types.OpEquals, 2, ""),
	}
	assert.False(t, Evaluate(conds, vars))
}
