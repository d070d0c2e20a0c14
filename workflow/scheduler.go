package workflow

import (
	"math"
	"sort"

	"github.com/openfleet/flowcore/condition"
	"github.com/openfleet/flowcore/types"
)

// NextSteps returns every step not yet completed whose dependencies have
// all completed and whose conditions evaluate true against the execution's
// variables, sorted ascending by order.
func NextSteps(wf *types.Workflow, exec *types.WorkflowExecution) []types.WorkflowStep {
	var ready []types.WorkflowStep
	for _, step := range wf.Steps {
		if exec.StepCompleted(step.ID) {
			continue
		}
		if !depsCompleted(step, exec) {
			continue
		}
		if !condition.Evaluate(step.Conditions, exec.Variables) {
			continue
		}
		ready = append(ready, step)
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].Order < ready[j].Order })
	return ready
}

func depsCompleted(step types.WorkflowStep, exec *types.WorkflowExecution) bool {
	for _, dep := range step.Dependencies {
		if !exec.StepCompleted(dep) {
			return false
		}
	}
	return true
}

// IsComplete reports whether the run can make no further progress: every
// step satisfied, or any step failed. A step is satisfied when it
// completed or when it sits in the skipped set: a skipped step will never
// run, so it cannot hold the run open. skipped may be nil.
func IsComplete(wf *types.Workflow, exec *types.WorkflowExecution, skipped map[string]bool) bool {
	if anyStepFailed(exec) {
		return true
	}
	return satisfiedCount(wf, exec, skipped) == len(wf.Steps)
}

// Status derives the execution's current status. Terminal statuses
// short-circuit; otherwise a complete run resolves to failed or completed,
// a run with a step waiting on approval is paused, and anything else is
// running. skipped may be nil.
func Status(wf *types.Workflow, exec *types.WorkflowExecution, skipped map[string]bool) types.ExecutionStatus {
	switch exec.Status {
	case types.ExecutionCancelled, types.ExecutionCompleted, types.ExecutionFailed:
		return exec.Status
	}
	if IsComplete(wf, exec, skipped) {
		if anyStepFailed(exec) {
			return types.ExecutionFailed
		}
		return types.ExecutionCompleted
	}
	if anyStepWaiting(exec) {
		return types.ExecutionPaused
	}
	return types.ExecutionRunning
}

// Progress returns the satisfied-step percentage, rounded to the nearest
// integer. Skipped steps count: a run that completed with skips reads 100.
func Progress(wf *types.Workflow, exec *types.WorkflowExecution, skipped map[string]bool) int {
	if len(wf.Steps) == 0 {
		return 0
	}
	return int(math.Round(100 * float64(satisfiedCount(wf, exec, skipped)) / float64(len(wf.Steps))))
}

func satisfiedCount(wf *types.Workflow, exec *types.WorkflowExecution, skipped map[string]bool) int {
	n := 0
	for _, step := range wf.Steps {
		if exec.StepCompleted(step.ID) || skipped[step.ID] {
			n++
		}
	}
	return n
}

// anyStepFailed and anyStepWaiting judge each step by its LATEST attempt:
// a waiting_approval attempt superseded by a completed one (after the gate
// resolved) no longer pauses the run.
func anyStepFailed(exec *types.WorkflowExecution) bool {
	return anyLatestAttempt(exec, types.StepFailed)
}

func anyStepWaiting(exec *types.WorkflowExecution) bool {
	return anyLatestAttempt(exec, types.StepWaitingApproval)
}

func anyLatestAttempt(exec *types.WorkflowExecution, status types.StepStatus) bool {
	seen := make(map[string]bool, len(exec.StepExecutions))
	for i := len(exec.StepExecutions) - 1; i >= 0; i-- {
		se := &exec.StepExecutions[i]
		if seen[se.StepID] {
			continue
		}
		seen[se.StepID] = true
		if se.Status == status {
			return true
		}
	}
	return false
}
