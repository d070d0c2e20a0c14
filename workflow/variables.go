package workflow

import (
	"errors"
	"sort"

	"github.com/openfleet/flowcore/types"
)

// Batch control sentinels. They never escape the run loop; executeBatch
// uses them to stop a sequential batch early.
var (
	errStepFailed   = errors.New("step failed")
	errRunPaused    = errors.New("run paused on approval")
	errRunCancelled = errors.New("run cancelled")
)

func sortByOrder(steps []types.WorkflowStep) {
	sort.Slice(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
}

// buildInput projects the step's input mapping out of the variable bag. An
// empty mapping passes the whole bag. Mapped names absent from the bag are
// omitted, not nil-filled.
func buildInput(step types.WorkflowStep, variables map[string]any) map[string]any {
	if len(step.InputMapping) == 0 {
		return copyVars(variables)
	}
	input := make(map[string]any, len(step.InputMapping))
	for _, name := range step.InputMapping {
		if v, ok := variables[name]; ok {
			input[name] = v
		}
	}
	return input
}

// applyOutputs folds the step's outputs into the variable bag. With a
// mapping only the named keys land; without one every output key does.
func applyOutputs(step types.WorkflowStep, output, variables map[string]any) {
	if len(step.OutputMapping) == 0 {
		for k, v := range output {
			variables[k] = v
		}
		return
	}
	for _, name := range step.OutputMapping {
		if v, ok := output[name]; ok {
			variables[name] = v
		}
	}
}

// findAttempt locates a step attempt by its own id. The slice may have been
// reallocated by appends from sibling steps, so the pointer is resolved
// fresh under the run lock every time.
func findAttempt(exec *types.WorkflowExecution, attemptID string) *types.StepExecution {
	for i := range exec.StepExecutions {
		if exec.StepExecutions[i].ID == attemptID {
			return &exec.StepExecutions[i]
		}
	}
	return nil
}

func copyVars(variables map[string]any) map[string]any {
	out := make(map[string]any, len(variables))
	for k, v := range variables {
		out[k] = v
	}
	return out
}
