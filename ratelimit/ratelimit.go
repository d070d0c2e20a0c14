// Package ratelimit is the per-agent rate limiter collaborator. The
// dispatcher consults it before every completion call and lets it reject
// the dispatch when the agent's quota window is exhausted.
package ratelimit

import (
	"context"
	"time"

	"github.com/openfleet/flowcore/types"
)

// Limiter gates dispatches per (agent, organization).
type Limiter interface {
	// CheckLimit consumes one unit of the agent's quota, returning a
	// retryable RATE_LIMITED error when the window is exhausted.
	CheckLimit(ctx context.Context, agentID, organizationID string) error

	// SetAgentLimit provisions the agent's quota of calls per window.
	// Re-provisioning an unchanged quota is a no-op, so callers may
	// provision on every dispatch.
	SetAgentLimit(agentID string, calls int, window time.Duration)
}

// limitErr builds the structured rejection shared by all implementations.
func limitErr(agentID string) *types.Error {
	return types.NewError(types.ErrRateLimited, "agent rate limit exceeded").
		WithAgent(agentID).
		WithRetryable(true)
}
