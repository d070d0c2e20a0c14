// Package memory is the context/memory collaborator consumed by the step
// dispatcher: prior context entries feed the completion prompt, and every
// finished step attempt is stored back for later dispatches.
package memory

import (
	"context"
	"time"

	"github.com/openfleet/flowcore/types"
)

// Entry is one stored context fragment for an agent.
type Entry struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionContext correlates stored entries with a run.
type ExecutionContext struct {
	ExecutionID    string `json:"execution_id"`
	WorkflowID     string `json:"workflow_id,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// Store is the memory collaborator boundary.
type Store interface {
	// Context returns the ordered context entries for the agent, oldest
	// first.
	Context(ctx context.Context, agentID string, ec ExecutionContext) ([]Entry, error)

	// StoreExecution records one finished step attempt as a context entry
	// for future dispatches of the same agent.
	StoreExecution(ctx context.Context, stepExec *types.StepExecution, ec ExecutionContext) error
}
