package types

import "time"

// LogLevel grades an audit entry.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogCategory groups audit entries by the emitting component.
type LogCategory string

const (
	CategoryAgent    LogCategory = "agent"
	CategoryWorkflow LogCategory = "workflow"
	CategoryApproval LogCategory = "approval"
	CategorySystem   LogCategory = "system"
)

// AuditLogEntry is an immutable record of one execution-relevant event.
// Entries are append-only and never mutated after creation.
type AuditLogEntry struct {
	ID             string         `json:"id" gorm:"primaryKey;type:uuid"`
	Timestamp      time.Time      `json:"timestamp" gorm:"index"`
	Level          LogLevel       `json:"level" gorm:"size:20;index"`
	Category       LogCategory    `json:"category" gorm:"size:50;index"`
	AgentID        string         `json:"agent_id,omitempty" gorm:"index"`
	ExecutionID    string         `json:"execution_id,omitempty" gorm:"index"`
	StepID         string         `json:"step_id,omitempty"`
	WorkflowID     string         `json:"workflow_id,omitempty" gorm:"index"`
	OrganizationID string         `json:"organization_id,omitempty" gorm:"index"`
	UserID         string         `json:"user_id,omitempty"`
	Message        string         `json:"message" gorm:"type:text"`
	Data           map[string]any `json:"data,omitempty" gorm:"type:jsonb;serializer:json"`
}
