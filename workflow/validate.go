package workflow

import (
	"fmt"

	"github.com/openfleet/flowcore/types"
)

// ValidateWorkflow accumulates every structural violation in a workflow
// definition rather than failing on the first: missing name, empty step
// list, duplicate step ids, duplicate order values, dangling dependencies,
// non-positive timeouts, missing agent ids, malformed triggers, dependency
// cycles, and output-variable collisions between steps that can run in the
// same parallel batch.
func ValidateWorkflow(wf *types.Workflow) *types.ValidationResult {
	result := types.NewValidationResult()

	if wf.Name == "" {
		result.Add("name", "workflow name is required")
	}
	if len(wf.Steps) == 0 {
		result.Add("steps", "workflow must declare at least one step")
	}

	ids := make(map[string]bool, len(wf.Steps))
	orders := make(map[int]string, len(wf.Steps))
	for i, step := range wf.Steps {
		field := fmt.Sprintf("steps[%d]", i)
		if step.ID == "" {
			result.Add(field+".id", "step id is required")
		} else if ids[step.ID] {
			result.Add(field+".id", "duplicate step id %q", step.ID)
		}
		ids[step.ID] = true

		if owner, taken := orders[step.Order]; taken {
			result.Add(field+".order", "duplicate order %d already used by step %q", step.Order, owner)
		} else {
			orders[step.Order] = step.ID
		}

		if step.AgentID == "" {
			result.Add(field+".agent_id", "step must reference an agent")
		}
		if step.TimeoutMs <= 0 {
			result.Add(field+".timeout_ms", "step timeout must be positive, got %d", step.TimeoutMs)
		}
	}

	// Dependency resolution needs the full id set first.
	for i, step := range wf.Steps {
		field := fmt.Sprintf("steps[%d]", i)
		for _, dep := range step.Dependencies {
			if !ids[dep] {
				result.Add(field+".dependencies", "dependency %q does not match any step id", dep)
			}
		}
	}

	for i, trigger := range wf.Triggers {
		field := fmt.Sprintf("triggers[%d]", i)
		if trigger.Type == "" {
			result.Add(field+".type", "trigger type is required")
		}
		if len(trigger.Config) == 0 && trigger.Type != types.TriggerManual {
			result.Add(field+".config", "trigger config is required for type %q", trigger.Type)
		}
	}

	if cycle := findCycle(wf.Steps); len(cycle) > 0 {
		result.Add("steps", "dependency cycle: %v", cycle)
	}

	validateOutputCollisions(wf.Steps, result)
	return result
}

// findCycle runs Kahn's algorithm over the dependency graph and returns
// the step ids left unprocessed when a cycle prevents completion. Dangling
// dependencies are reported separately and ignored here.
func findCycle(steps []types.WorkflowStep) []string {
	ids := make(map[string]bool, len(steps))
	for _, s := range steps {
		ids[s.ID] = true
	}

	indegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))
	for _, s := range steps {
		indegree[s.ID] += 0
		for _, dep := range s.Dependencies {
			if !ids[dep] {
				continue
			}
			indegree[s.ID]++
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	queue := make([]string, 0, len(steps))
	for _, s := range steps {
		if indegree[s.ID] == 0 {
			queue = append(queue, s.ID)
		}
	}

	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if processed == len(steps) {
		return nil
	}

	var cycle []string
	for _, s := range steps {
		if indegree[s.ID] > 0 {
			cycle = append(cycle, s.ID)
		}
	}
	return cycle
}

// validateOutputCollisions rejects two parallel-eligible steps writing the
// same output variable. Two steps can land in the same batch when neither
// depends (transitively) on the other; resolving the collision at run time
// would make the final value a race, so the definition is rejected instead.
func validateOutputCollisions(steps []types.WorkflowStep, result *types.ValidationResult) {
	ancestors := transitiveDeps(steps)

	for i := 0; i < len(steps); i++ {
		for j := i + 1; j < len(steps); j++ {
			a, b := steps[i], steps[j]
			if ancestors[a.ID][b.ID] || ancestors[b.ID][a.ID] {
				continue // ordered by a dependency; never concurrent
			}
			for _, out := range a.OutputMapping {
				for _, other := range b.OutputMapping {
					if out == other {
						result.Add("steps", "steps %q and %q may run concurrently and both write variable %q", a.ID, b.ID, out)
					}
				}
			}
		}
	}
}

// transitiveDeps computes, per step, the set of step ids it transitively
// depends on.
func transitiveDeps(steps []types.WorkflowStep) map[string]map[string]bool {
	direct := make(map[string][]string, len(steps))
	for _, s := range steps {
		direct[s.ID] = s.Dependencies
	}

	memo := make(map[string]map[string]bool, len(steps))
	var visit func(id string, seen map[string]bool) map[string]bool
	visit = func(id string, seen map[string]bool) map[string]bool {
		if cached, ok := memo[id]; ok {
			return cached
		}
		if seen[id] {
			return map[string]bool{} // cycle; reported elsewhere
		}
		seen[id] = true
		acc := make(map[string]bool)
		for _, dep := range direct[id] {
			acc[dep] = true
			for anc := range visit(dep, seen) {
				acc[anc] = true
			}
		}
		delete(seen, id)
		memo[id] = acc
		return acc
	}
	for _, s := range steps {
		visit(s.ID, make(map[string]bool))
	}
	return memo
}
