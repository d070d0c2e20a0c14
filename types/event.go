package types

import "time"

// EventType is the closed set of lifecycle event kinds published on the
// event bus. Agent-level and workflow-level events share one variant set
// so subscribers can match exhaustively.
type EventType string

const (
	EventExecutionStarted   EventType = "execution_started"
	EventExecutionCompleted EventType = "execution_completed"
	EventExecutionFailed    EventType = "execution_failed"
	EventExecutionCancelled EventType = "execution_cancelled"
	EventApprovalRequired   EventType = "approval_required"
	EventApprovalGranted    EventType = "approval_granted"
	EventApprovalRejected   EventType = "approval_rejected"
	EventWorkflowStarted    EventType = "workflow_started"
	EventWorkflowCompleted  EventType = "workflow_completed"
	EventWorkflowFailed     EventType = "workflow_failed"
	EventStepStarted        EventType = "step_started"
	EventStepCompleted      EventType = "step_completed"
	EventStepFailed         EventType = "step_failed"
)

// Event is one lifecycle notification with its correlating ids.
type Event struct {
	Type           EventType      `json:"type"`
	AgentID        string         `json:"agent_id,omitempty"`
	ExecutionID    string         `json:"execution_id,omitempty"`
	WorkflowID     string         `json:"workflow_id,omitempty"`
	StepID         string         `json:"step_id,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(kind EventType) Event {
	return Event{Type: kind, Timestamp: time.Now()}
}
