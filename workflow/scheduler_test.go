package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfleet/flowcore/types"
)

func completedAttempt(stepID string) types.StepExecution {
	now := time.Now()
	return types.StepExecution{
		ID:          "att-" + stepID,
		StepID:      stepID,
		Status:      types.StepCompleted,
		StartedAt:   now,
		CompletedAt: &now,
	}
}

func TestNextStepsHonorsDependencies(t *testing.T) {
	wf := validWorkflow()
	exec := &types.WorkflowExecution{Variables: map[string]any{}}

	ready := NextSteps(wf, exec)
	require.Len(t, ready, 1)
	assert.Equal(t, "a", ready[0].ID)

	exec.StepExecutions = append(exec.StepExecutions, completedAttempt("a"))
	ready = NextSteps(wf, exec)
	require.Len(t, ready, 1)
	assert.Equal(t, "b", ready[0].ID)
}

func TestNextStepsNeverReturnsStepWithIncompleteDeps(t *testing.T) {
	wf := validWorkflow()
	exec := &types.WorkflowExecution{
		Variables: map[string]any{},
		StepExecutions: []types.StepExecution{
			{ID: "att-a", StepID: "a", Status: types.StepFailed, StartedAt: time.Now()},
		},
	}
	for _, step := range NextSteps(wf, exec) {
		assert.NotEqual(t, "b", step.ID)
		assert.NotEqual(t, "c", step.ID)
	}
}

func TestNextStepsFiltersByCondition(t *testing.T) {
	wf := validWorkflow()
	wf.Steps[0].Conditions = []types.WorkflowCondition{
		{Path: "mode", Operator: types.OpEquals, Value: "full"},
	}
	exec := &types.WorkflowExecution{Variables: map[string]any{"mode": "quick"}}
	assert.Empty(t, NextSteps(wf, exec))

	exec.Variables["mode"] = "full"
	ready := NextSteps(wf, exec)
	require.Len(t, ready, 1)
	assert.Equal(t, "a", ready[0].ID)
}

func TestNextStepsSortedByOrder(t *testing.T) {
	wf := &types.Workflow{
		Name: "fanout",
		Steps: []types.WorkflowStep{
			{ID: "z", AgentID: "ag", Order: 9, TimeoutMs: 1000},
			{ID: "m", AgentID: "ag", Order: 5, TimeoutMs: 1000},
			{ID: "a", AgentID: "ag", Order: 1, TimeoutMs: 1000},
		},
	}
	exec := &types.WorkflowExecution{Variables: map[string]any{}}
	ready := NextSteps(wf, exec)
	require.Len(t, ready, 3)
	assert.Equal(t, []string{"a", "m", "z"}, []string{ready[0].ID, ready[1].ID, ready[2].ID})
}

func TestStatusDerivation(t *testing.T) {
	wf := validWorkflow()
	exec := &types.WorkflowExecution{Status: types.ExecutionRunning, Variables: map[string]any{}}

	assert.Equal(t, types.ExecutionRunning, Status(wf, exec, nil))

	exec.StepExecutions = []types.StepExecution{completedAttempt("a")}
	assert.Equal(t, types.ExecutionRunning, Status(wf, exec, nil))

	exec.StepExecutions = append(exec.StepExecutions,
		types.StepExecution{ID: "att-b", StepID: "b", Status: types.StepWaitingApproval, StartedAt: time.Now()})
	assert.Equal(t, types.ExecutionPaused, Status(wf, exec, nil))

	// The gate resolves and a later attempt completes the step: the stale
	// waiting attempt must no longer pause the run.
	exec.StepExecutions = append(exec.StepExecutions, completedAttempt("b"))
	assert.Equal(t, types.ExecutionRunning, Status(wf, exec, nil))

	exec.StepExecutions = append(exec.StepExecutions, completedAttempt("c"))
	assert.Equal(t, types.ExecutionCompleted, Status(wf, exec, nil))
}

func TestStatusFailedShortCircuits(t *testing.T) {
	wf := validWorkflow()
	exec := &types.WorkflowExecution{
		Status:    types.ExecutionRunning,
		Variables: map[string]any{},
		StepExecutions: []types.StepExecution{
			completedAttempt("a"),
			{ID: "att-b", StepID: "b", Status: types.StepFailed, StartedAt: time.Now()},
		},
	}
	assert.True(t, IsComplete(wf, exec, nil))
	assert.Equal(t, types.ExecutionFailed, Status(wf, exec, nil))
}

func TestStatusPreservesTerminal(t *testing.T) {
	wf := validWorkflow()
	exec := &types.WorkflowExecution{Status: types.ExecutionCancelled, Variables: map[string]any{}}
	assert.Equal(t, types.ExecutionCancelled, Status(wf, exec, nil))
}

func TestProgressRounding(t *testing.T) {
	wf := &types.Workflow{
		Name: "four",
		Steps: []types.WorkflowStep{
			{ID: "s1", AgentID: "ag", Order: 1, TimeoutMs: 1000},
			{ID: "s2", AgentID: "ag", Order: 2, TimeoutMs: 1000},
			{ID: "s3", AgentID: "ag", Order: 3, TimeoutMs: 1000},
			{ID: "s4", AgentID: "ag", Order: 4, TimeoutMs: 1000},
		},
	}
	exec := &types.WorkflowExecution{Variables: map[string]any{}}
	assert.Equal(t, 0, Progress(wf, exec, nil))

	exec.StepExecutions = []types.StepExecution{completedAttempt("s1"), completedAttempt("s2")}
	assert.Equal(t, 50, Progress(wf, exec, nil))

	// 1 of 3 rounds to 33, 2 of 3 to 67.
	three := &types.Workflow{Name: "three", Steps: wf.Steps[:3]}
	exec = &types.WorkflowExecution{
		Variables:      map[string]any{},
		StepExecutions: []types.StepExecution{completedAttempt("s1")},
	}
	assert.Equal(t, 33, Progress(three, exec, nil))
	exec.StepExecutions = append(exec.StepExecutions, completedAttempt("s2"))
	assert.Equal(t, 67, Progress(three, exec, nil))
}

func TestProgressEmptyWorkflow(t *testing.T) {
	wf := &types.Workflow{Name: "empty"}
	exec := &types.WorkflowExecution{Variables: map[string]any{}}
	assert.Equal(t, 0, Progress(wf, exec, nil))
}

func TestStatusSkippedStepsCountAsSatisfied(t *testing.T) {
	wf := validWorkflow()
	exec := &types.WorkflowExecution{
		Status:         types.ExecutionRunning,
		Variables:      map[string]any{},
		StepExecutions: []types.StepExecution{completedAttempt("a")},
	}
	skipped := map[string]bool{"b": true, "c": true}

	assert.False(t, IsComplete(wf, exec, nil))
	assert.True(t, IsComplete(wf, exec, skipped))
	assert.Equal(t, types.ExecutionCompleted, Status(wf, exec, skipped))
	assert.Equal(t, 100, Progress(wf, exec, skipped))
}
