package registry

import (
	"fmt"

	"github.com/openfleet/flowcore/types"
)

// ValidateAgent accumulates every structural violation in an agent
// definition: persona ranges, capability reference resolution and
// per-constraint value shape.
func ValidateAgent(agent *types.Agent) *types.ValidationResult {
	result := types.NewValidationResult()

	if agent.Name == "" {
		result.Add("name", "agent name is required")
	}

	validatePersona(&agent.Persona, result)

	capabilities := make(map[string]bool, len(agent.Capabilities))
	for i, c := range agent.Capabilities {
		field := fmt.Sprintf("capabilities[%d]", i)
		if c.ID == "" {
			result.Add(field+".id", "capability id is required")
		}
		capabilities[c.ID] = true
		if c.TimeoutMs < 0 {
			result.Add(field+".timeout_ms", "capability timeout must not be negative")
		}
	}
	for _, id := range agent.CapabilityIDs {
		if !capabilities[id] {
			result.Add("capability_ids", "capability %q does not resolve to a declared capability", id)
		}
	}

	for i, c := range agent.Constraints {
		validateConstraint(i, c, result)
	}
	return result
}

func validatePersona(p *types.AgentPersona, result *types.ValidationResult) {
	if p.Model == "" {
		result.Add("persona.model", "model name is required")
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		result.Add("persona.temperature", "temperature must be within [0, 2], got %v", p.Temperature)
	}
	if p.MaxTokens <= 0 {
		result.Add("persona.max_tokens", "max tokens must be positive, got %d", p.MaxTokens)
	}
	if p.ContextWindow.MaxMessages < 0 {
		result.Add("persona.context_window.max_messages", "max messages must not be negative")
	}
	if p.ContextWindow.MaxTokens < 0 {
		result.Add("persona.context_window.max_tokens", "max tokens must not be negative")
	}
	switch p.ContextWindow.Retention {
	case "", types.RetentionSliding, types.RetentionFixed, types.RetentionSummary:
	default:
		result.Add("persona.context_window.retention", "unknown retention mode %q", p.ContextWindow.Retention)
	}
}

func validateConstraint(i int, c types.AgentConstraint, result *types.ValidationResult) {
	field := fmt.Sprintf("constraints[%d]", i)
	switch c.Type {
	case types.ConstraintRateLimit:
		if v, ok := numericValue(c.Value); !ok || v <= 0 {
			result.Add(field+".value", "rate_limit constraint needs a positive numeric value")
		}
		if c.WindowMs <= 0 {
			result.Add(field+".window_ms", "rate_limit constraint needs a positive window")
		}
	case types.ConstraintTokenLimit, types.ConstraintTimeLimit:
		if v, ok := numericValue(c.Value); !ok || v <= 0 {
			result.Add(field+".value", "%s constraint needs a positive numeric value", c.Type)
		}
	case types.ConstraintApprovalRequired, types.ConstraintHumanOverride:
		// Boolean-shaped; any value is accepted.
	default:
		result.Add(field+".type", "unknown constraint type %q", c.Type)
	}
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
