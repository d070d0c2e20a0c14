package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter enforces quotas with in-process token buckets, one per
// (agent, organization) pair. Agents without a provisioned limit pass.
type LocalLimiter struct {
	mu       sync.RWMutex
	limits   map[string]rate.Limit // per-agent refill rate
	bursts   map[string]int
	limiters map[string]*rate.Limiter // keyed agent:org
}

// NewLocalLimiter creates an empty local limiter; use SetAgentLimit to
// provision quotas from rate_limit constraints.
func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{
		limits:   make(map[string]rate.Limit),
		bursts:   make(map[string]int),
		limiters: make(map[string]*rate.Limiter),
	}
}

// SetAgentLimit provisions an agent's quota: calls per window. A burst of
// `calls` allows the whole window's quota up front, matching the
// fixed-window semantics of the rate_limit constraint.
func (l *LocalLimiter) SetAgentLimit(agentID string, calls int, window time.Duration) {
	if calls <= 0 || window <= 0 {
		return
	}
	limit := rate.Limit(float64(calls) / window.Seconds())
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limits[agentID] == limit && l.bursts[agentID] == calls {
		return
	}
	l.limits[agentID] = limit
	l.bursts[agentID] = calls
	// A changed quota resets the agent's existing buckets.
	for key := range l.limiters {
		if agentKey(key) == agentID {
			delete(l.limiters, key)
		}
	}
}

// CheckLimit implements Limiter.
func (l *LocalLimiter) CheckLimit(_ context.Context, agentID, organizationID string) error {
	l.mu.RLock()
	limit, provisioned := l.limits[agentID]
	l.mu.RUnlock()
	if !provisioned {
		return nil
	}

	key := agentID + ":" + organizationID
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(limit, l.bursts[agentID])
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	if !limiter.Allow() {
		return limitErr(agentID)
	}
	return nil
}

func agentKey(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i]
		}
	}
	return key
}
