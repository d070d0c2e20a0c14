package types

import "time"

// RetentionMode controls how an agent's conversation context is trimmed
// when it exceeds the persona's window limits.
type RetentionMode string

const (
	// RetentionSliding keeps the most recent entries, dropping the oldest.
	RetentionSliding RetentionMode = "sliding"
	// RetentionFixed keeps the earliest entries up to the limit.
	RetentionFixed RetentionMode = "fixed"
	// RetentionSummary replaces overflowing entries with a summary marker.
	RetentionSummary RetentionMode = "summary"
)

// ContextWindowPolicy bounds the context assembled for an agent dispatch.
type ContextWindowPolicy struct {
	MaxMessages int           `json:"max_messages"`
	MaxTokens   int           `json:"max_tokens"`
	Retention   RetentionMode `json:"retention"`
}

// AgentPersona is the prompt/model/temperature configuration governing an
// agent's behavior.
type AgentPersona struct {
	Model          string              `json:"model"`
	Temperature    float32             `json:"temperature"`
	MaxTokens      int                 `json:"max_tokens"`
	SystemPrompt   string              `json:"system_prompt"`
	AllowedActions []string            `json:"allowed_actions,omitempty"`
	ContextWindow  ContextWindowPolicy `json:"context_window"`
}

// RetryPolicy bounds the exponential-backoff retry loop around a dispatch.
type RetryPolicy struct {
	MaxAttempts       int     `json:"max_attempts"`
	BackoffMs         int     `json:"backoff_ms"`
	BackoffMultiplier float64 `json:"backoff_multiplier"`
	MaxBackoffMs      int     `json:"max_backoff_ms"`
}

// DefaultRetryPolicy returns the retry policy applied when a step or
// capability declares none: three attempts, 1s/2s/4s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BackoffMs:         1000,
		BackoffMultiplier: 2.0,
		MaxBackoffMs:      30000,
	}
}

// AgentCapability is a named, schema-typed unit of work an agent can
// perform.
type AgentCapability struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	InputShape  map[string]any `json:"input_shape,omitempty" gorm:"type:jsonb;serializer:json"`
	OutputShape map[string]any `json:"output_shape,omitempty" gorm:"type:jsonb;serializer:json"`
	Async       bool           `json:"async"`
	TimeoutMs   int            `json:"timeout_ms"`
	Retry       RetryPolicy    `json:"retry" gorm:"serializer:json"`
}

// ConstraintType enumerates the supported agent constraint kinds.
type ConstraintType string

const (
	ConstraintRateLimit        ConstraintType = "rate_limit"
	ConstraintTokenLimit       ConstraintType = "token_limit"
	ConstraintTimeLimit        ConstraintType = "time_limit"
	ConstraintApprovalRequired ConstraintType = "approval_required"
	ConstraintHumanOverride    ConstraintType = "human_override"
)

// AgentConstraint restricts how an agent may be dispatched. Value carries
// the typed payload for the constraint kind; WindowMs applies to rate
// limits only.
type AgentConstraint struct {
	Type     ConstraintType `json:"type"`
	Value    any            `json:"value" gorm:"serializer:json"`
	WindowMs int            `json:"window_ms,omitempty"`
}

// Agent is a configured persona plus capability set that can be dispatched
// to perform one workflow step.
type Agent struct {
	ID            string            `json:"id" gorm:"primaryKey;type:uuid"`
	Name          string            `json:"name" gorm:"size:200;not null"`
	Type          string            `json:"type" gorm:"size:100;index"`
	IsActive      bool              `json:"is_active"`
	Persona       AgentPersona      `json:"persona" gorm:"serializer:json"`
	Capabilities  []AgentCapability `json:"capabilities,omitempty" gorm:"serializer:json"`
	CapabilityIDs []string          `json:"capability_ids,omitempty" gorm:"serializer:json"`
	Constraints   []AgentConstraint `json:"constraints,omitempty" gorm:"serializer:json"`
	CreatedAt     time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
}

// Capability returns the capability with the given id, if present.
func (a *Agent) Capability(id string) (AgentCapability, bool) {
	for _, c := range a.Capabilities {
		if c.ID == id {
			return c, true
		}
	}
	return AgentCapability{}, false
}

// ConstraintOf returns the first constraint of the given type, if present.
func (a *Agent) ConstraintOf(kind ConstraintType) (AgentConstraint, bool) {
	for _, c := range a.Constraints {
		if c.Type == kind {
			return c, true
		}
	}
	return AgentConstraint{}, false
}

// RateLimit interprets a rate_limit constraint as a call budget per
// window. ok is false for other constraint kinds and malformed values.
// Value arrives as float64 when the constraint was decoded from JSON.
func (c AgentConstraint) RateLimit() (calls int, window time.Duration, ok bool) {
	if c.Type != ConstraintRateLimit || c.WindowMs <= 0 {
		return 0, 0, false
	}
	switch v := c.Value.(type) {
	case int:
		calls = v
	case int32:
		calls = int(v)
	case int64:
		calls = int(v)
	case float32:
		calls = int(v)
	case float64:
		calls = int(v)
	default:
		return 0, 0, false
	}
	if calls <= 0 {
		return 0, 0, false
	}
	return calls, time.Duration(c.WindowMs) * time.Millisecond, true
}
