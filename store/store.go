// Package store defines the persistence boundary of the engine: one
// repository interface per entity, with in-memory and SQL (gorm)
// implementations selected by configuration. Scheduling and dispatch logic
// never touch a concrete backend.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/openfleet/flowcore/types"
)

// Common errors shared by all backends.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrStoreClosed   = errors.New("store is closed")
)

// Backend selects a repository implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// WorkflowRepository persists workflow definitions.
type WorkflowRepository interface {
	Create(ctx context.Context, wf *types.Workflow) error
	Get(ctx context.Context, id string) (*types.Workflow, error)
	Update(ctx context.Context, wf *types.Workflow) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*types.Workflow, error)
}

// AgentRepository persists agent definitions.
type AgentRepository interface {
	Create(ctx context.Context, agent *types.Agent) error
	Get(ctx context.Context, id string) (*types.Agent, error)
	Update(ctx context.Context, agent *types.Agent) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*types.Agent, error)
}

// ExecutionRepository persists workflow executions.
type ExecutionRepository interface {
	Create(ctx context.Context, exec *types.WorkflowExecution) error
	Get(ctx context.Context, id string) (*types.WorkflowExecution, error)
	Update(ctx context.Context, exec *types.WorkflowExecution) error
	List(ctx context.Context, workflowID string) ([]*types.WorkflowExecution, error)
	// CountActiveByAgent counts non-terminal executions with at least one
	// step attempt dispatched to the given agent. The registry uses this to
	// refuse deleting an agent that a running execution still references.
	CountActiveByAgent(ctx context.Context, agentID string) (int, error)
}

// ApprovalRepository persists approval gates.
type ApprovalRepository interface {
	Create(ctx context.Context, approval *types.Approval) error
	Get(ctx context.Context, id string) (*types.Approval, error)
	Update(ctx context.Context, approval *types.Approval) error
	ListPending(ctx context.Context, executionID string) ([]*types.Approval, error)
	ListExpired(ctx context.Context, now time.Time) ([]*types.Approval, error)
}

// AuditFilter narrows an audit-log query. Zero-valued fields do not
// filter. Limit 0 means no cap.
type AuditFilter struct {
	AgentID        string
	ExecutionID    string
	WorkflowID     string
	OrganizationID string
	UserID         string
	Category       types.LogCategory
	Level          types.LogLevel
	From           time.Time
	To             time.Time
	Offset         int
	Limit          int
}

// Matches reports whether the entry passes every set filter field,
// ignoring offset/limit.
func (f AuditFilter) Matches(e *types.AuditLogEntry) bool {
	switch {
	case f.AgentID != "" && e.AgentID != f.AgentID:
		return false
	case f.ExecutionID != "" && e.ExecutionID != f.ExecutionID:
		return false
	case f.WorkflowID != "" && e.WorkflowID != f.WorkflowID:
		return false
	case f.OrganizationID != "" && e.OrganizationID != f.OrganizationID:
		return false
	case f.UserID != "" && e.UserID != f.UserID:
		return false
	case f.Category != "" && e.Category != f.Category:
		return false
	case f.Level != "" && e.Level != f.Level:
		return false
	case !f.From.IsZero() && e.Timestamp.Before(f.From):
		return false
	case !f.To.IsZero() && e.Timestamp.After(f.To):
		return false
	}
	return true
}

// AuditRepository is the append-only audit log. Entries are immutable;
// there is no update operation by design of the data model.
type AuditRepository interface {
	Append(ctx context.Context, entry *types.AuditLogEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]*types.AuditLogEntry, error)
	// DeleteBefore purges entries older than cutoff and returns the count.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Stores bundles every repository behind one handle.
type Stores struct {
	Workflows  WorkflowRepository
	Agents     AgentRepository
	Executions ExecutionRepository
	Approvals  ApprovalRepository
	Audit      AuditRepository
}
