package types

import "time"

// ExecutionStatus is the lifecycle status of a workflow execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionPaused    ExecutionStatus = "paused"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// StepStatus is the lifecycle status of one step attempt. Transitions only
// move forward: running -> {completed, failed, waiting_approval}.
type StepStatus string

const (
	StepRunning         StepStatus = "running"
	StepCompleted       StepStatus = "completed"
	StepFailed          StepStatus = "failed"
	StepWaitingApproval StepStatus = "waiting_approval"
)

// ConfidenceLevel buckets a [0,1] confidence score.
type ConfidenceLevel string

const (
	ConfidenceLow      ConfidenceLevel = "low"
	ConfidenceMedium   ConfidenceLevel = "medium"
	ConfidenceHigh     ConfidenceLevel = "high"
	ConfidenceVeryHigh ConfidenceLevel = "very_high"
)

// ConfidenceLevelOf maps a clamped score to its level:
// low < 0.4 <= medium < 0.6 <= high < 0.8 <= very_high.
func ConfidenceLevelOf(score float64) ConfidenceLevel {
	switch {
	case score < 0.4:
		return ConfidenceLow
	case score < 0.6:
		return ConfidenceMedium
	case score < 0.8:
		return ConfidenceHigh
	default:
		return ConfidenceVeryHigh
	}
}

// StepExecution is one attempt at one workflow step.
type StepExecution struct {
	ID          string          `json:"id"`
	StepID      string          `json:"step_id"`
	AgentID     string          `json:"agent_id"`
	Status      StepStatus      `json:"status"`
	Input       map[string]any  `json:"input,omitempty"`
	Output      map[string]any  `json:"output,omitempty"`
	Confidence  float64         `json:"confidence"`
	Level       ConfidenceLevel `json:"confidence_level"`
	Usage       TokenUsage      `json:"usage"`
	DurationMs  int64           `json:"duration_ms"`
	RetryCount  int             `json:"retry_count"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// ExecutionLogEntry is one breadcrumb on an execution's internal log.
type ExecutionLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	StepID    string    `json:"step_id,omitempty"`
}

// WorkflowExecution is one run of a workflow: the live variable bag, the
// step attempts produced so far, and any approvals still pending.
type WorkflowExecution struct {
	ID               string              `json:"id" gorm:"primaryKey;type:uuid"`
	WorkflowID       string              `json:"workflow_id" gorm:"type:uuid;index"`
	OrganizationID   string              `json:"organization_id,omitempty" gorm:"type:uuid;index"`
	UserID           string              `json:"user_id,omitempty"`
	Status           ExecutionStatus     `json:"status" gorm:"size:50;index"`
	Variables        map[string]any      `json:"variables" gorm:"type:jsonb;serializer:json"`
	StepExecutions   []StepExecution     `json:"step_executions" gorm:"serializer:json"`
	PendingApprovals []string            `json:"pending_approvals,omitempty" gorm:"serializer:json"`
	Log              []ExecutionLogEntry `json:"log,omitempty" gorm:"serializer:json"`
	Snapshot         *Workflow           `json:"-" gorm:"serializer:json"`
	StartedAt        time.Time           `json:"started_at"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
}

// StepExecutionFor returns the latest attempt recorded for the given step
// id, if any.
func (e *WorkflowExecution) StepExecutionFor(stepID string) (*StepExecution, bool) {
	for i := len(e.StepExecutions) - 1; i >= 0; i-- {
		if e.StepExecutions[i].StepID == stepID {
			return &e.StepExecutions[i], true
		}
	}
	return nil, false
}

// StepCompleted reports whether the given step has a completed attempt.
func (e *WorkflowExecution) StepCompleted(stepID string) bool {
	se, ok := e.StepExecutionFor(stepID)
	return ok && se.Status == StepCompleted
}
