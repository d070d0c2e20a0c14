package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

const (
	ErrAgentNotFound           ErrorCode = "AGENT_NOT_FOUND"
	ErrAgentExecutionFailed    ErrorCode = "AGENT_EXECUTION_FAILED"
	ErrWorkflowNotFound        ErrorCode = "WORKFLOW_NOT_FOUND"
	ErrWorkflowExecutionFailed ErrorCode = "WORKFLOW_EXECUTION_FAILED"
	ErrStepExecutionFailed     ErrorCode = "STEP_EXECUTION_FAILED"
	ErrRateLimited             ErrorCode = "RATE_LIMITED"
	ErrValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrApprovalTimeout         ErrorCode = "APPROVAL_TIMEOUT"
	ErrExecutionCancelled      ErrorCode = "EXECUTION_CANCELLED"
	ErrNotFound                ErrorCode = "NOT_FOUND"
	ErrInternal                ErrorCode = "INTERNAL_ERROR"
)

// Error is the single structured error type carried across component
// boundaries. It holds the correlating ids of the failing dispatch so the
// audit sink and callers can attribute the failure without unwrapping.
type Error struct {
	Code        ErrorCode      `json:"code"`
	Message     string         `json:"message"`
	AgentID     string         `json:"agent_id,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	StepID      string         `json:"step_id,omitempty"`
	Retryable   bool           `json:"retryable"`
	Details     map[string]any `json:"details,omitempty"`
	Cause       error          `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithAgent sets the agent id.
func (e *Error) WithAgent(agentID string) *Error {
	e.AgentID = agentID
	return e
}

// WithExecution sets the execution id.
func (e *Error) WithExecution(executionID string) *Error {
	e.ExecutionID = executionID
	return e
}

// WithStep sets the step id.
func (e *Error) WithStep(stepID string) *Error {
	e.StepID = stepID
	return e
}

// WithDetail attaches one structured detail value.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// IsRetryable reports whether err (or any error it wraps) is a retryable
// engine error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// CodeOf extracts the engine error code from err, or ErrInternal when err
// is not a structured engine error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternal
}
