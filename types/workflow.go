package types

import "time"

// ConditionOperator enumerates the comparison operators a workflow
// condition may use.
type ConditionOperator string

const (
	OpEquals      ConditionOperator = "equals"
	OpNotEquals   ConditionOperator = "not_equals"
	OpGreaterThan ConditionOperator = "greater_than"
	OpLessThan    ConditionOperator = "less_than"
	OpContains    ConditionOperator = "contains"
	OpExists      ConditionOperator = "exists"
)

// LogicalOperator combines the results of successive conditions.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and"
	LogicalOr  LogicalOperator = "or"
)

// WorkflowCondition is one boolean predicate over the execution's variable
// bag. Path is a dot-path into the bag. Logical is the combinator applied
// to the NEXT condition in the list, not this one; see the condition
// package for the fold semantics.
type WorkflowCondition struct {
	Path     string            `json:"path"`
	Operator ConditionOperator `json:"operator"`
	Value    any               `json:"value,omitempty"`
	Logical  LogicalOperator   `json:"logical_operator,omitempty"`
}

// EscalationConfig routes an expired approval to a fallback approver.
type EscalationConfig struct {
	Target  string `json:"target"`
	DelayMs int    `json:"delay_ms"`
}

// ApprovalConfig declares the human gate on a step.
type ApprovalConfig struct {
	Approvers    []string          `json:"approvers"`
	MinApprovals int               `json:"min_approvals"`
	TimeoutMs    int               `json:"timeout_ms"`
	Escalation   *EscalationConfig `json:"escalation,omitempty"`
}

// WorkflowStep is one node in a workflow graph: an agent assignment plus
// dependencies, conditions and variable mappings.
type WorkflowStep struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	AgentType        string              `json:"agent_type"`
	AgentID          string              `json:"agent_id"`
	Order            int                 `json:"order"`
	IsParallel       bool                `json:"is_parallel"`
	Dependencies     []string            `json:"dependencies,omitempty"`
	InputMapping     []string            `json:"input_mapping,omitempty"`
	OutputMapping    []string            `json:"output_mapping,omitempty"`
	Conditions       []WorkflowCondition `json:"conditions,omitempty"`
	TimeoutMs        int                 `json:"timeout_ms"`
	Retry            *RetryPolicy        `json:"retry,omitempty"`
	RequiresApproval bool                `json:"requires_approval"`
	Approval         *ApprovalConfig     `json:"approval,omitempty"`
}

// TriggerType enumerates the supported workflow trigger kinds.
type TriggerType string

const (
	TriggerManual   TriggerType = "manual"
	TriggerSchedule TriggerType = "schedule"
	TriggerEvent    TriggerType = "event"
)

// WorkflowTrigger declares when a workflow run starts.
type WorkflowTrigger struct {
	ID     string         `json:"id"`
	Type   TriggerType    `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// Workflow is a versioned directed graph of steps assigned to agents.
// Definitions are immutable by convention: a workflow referenced by an
// in-flight execution is snapshotted into the execution at start.
type Workflow struct {
	ID        string            `json:"id" gorm:"primaryKey;type:uuid"`
	Name      string            `json:"name" gorm:"size:200;not null"`
	Version   int               `json:"version"`
	Steps     []WorkflowStep    `json:"steps" gorm:"serializer:json"`
	Triggers  []WorkflowTrigger `json:"triggers,omitempty" gorm:"serializer:json"`
	Variables map[string]any    `json:"variables,omitempty" gorm:"type:jsonb;serializer:json"`
	CreatedAt time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
}

// Step returns the step with the given id, if present.
func (w *Workflow) Step(id string) (WorkflowStep, bool) {
	for _, s := range w.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return WorkflowStep{}, false
}
