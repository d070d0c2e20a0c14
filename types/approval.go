package types

import "time"

// ApprovalDecision is one approver's state on a gate.
type ApprovalDecision string

const (
	DecisionPending  ApprovalDecision = "pending"
	DecisionApproved ApprovalDecision = "approved"
	DecisionRejected ApprovalDecision = "rejected"
)

// ApprovalStatus is the overall status of an approval gate.
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "pending"
	ApprovalGranted   ApprovalStatus = "granted"
	ApprovalRejected  ApprovalStatus = "rejected"
	ApprovalExpired   ApprovalStatus = "expired"
	ApprovalEscalated ApprovalStatus = "escalated"
)

// ApproverState tracks one required approver's decision.
type ApproverState struct {
	Approver  string           `json:"approver"`
	Decision  ApprovalDecision `json:"decision"`
	Comment   string           `json:"comment,omitempty"`
	DecidedAt *time.Time       `json:"decided_at,omitempty"`
}

// Approval is a human gate tied to one step execution. The step stays in
// waiting_approval until MinApprovals approvers approve, any approver
// rejects, or the gate expires.
type Approval struct {
	ID              string          `json:"id" gorm:"primaryKey;type:uuid"`
	ExecutionID     string          `json:"execution_id" gorm:"type:uuid;index"`
	StepID          string          `json:"step_id" gorm:"size:100"`
	StepExecutionID string          `json:"step_execution_id"`
	Status          ApprovalStatus  `json:"status" gorm:"size:50;index"`
	Approvers       []ApproverState `json:"approvers" gorm:"serializer:json"`
	MinApprovals    int             `json:"min_approvals"`
	ExpiresAt       time.Time       `json:"expires_at"`
	// Escalation, when set, reroutes the gate to a fallback approver on
	// expiry instead of rejecting it outright.
	Escalation *EscalationConfig `json:"escalation,omitempty" gorm:"serializer:json"`
	CreatedAt       time.Time       `json:"created_at" gorm:"autoCreateTime"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
}

// Approved reports whether enough approvers have approved.
func (a *Approval) Approved() bool {
	n := 0
	for _, s := range a.Approvers {
		if s.Decision == DecisionApproved {
			n++
		}
	}
	return n >= a.MinApprovals
}

// RejectedBy reports whether any approver has rejected.
func (a *Approval) RejectedBy() bool {
	for _, s := range a.Approvers {
		if s.Decision == DecisionRejected {
			return true
		}
	}
	return false
}
