package mocks

import (
	"context"
	"sync"
	"time"
)

// Quota is a provisioned limit recorded by the mock limiter.
type Quota struct {
	Calls  int
	Window time.Duration
}

// Limiter is an in-test ratelimit.Limiter. Err, when set, rejects every
// check; calls are recorded as (agentID, organizationID) pairs and
// provisioned quotas per agent.
type Limiter struct {
	mu     sync.Mutex
	Err    error
	Calls  [][2]string
	Quotas map[string]Quota
}

// CheckLimit implements ratelimit.Limiter.
func (l *Limiter) CheckLimit(_ context.Context, agentID, organizationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = append(l.Calls, [2]string{agentID, organizationID})
	return l.Err
}

// SetAgentLimit implements ratelimit.Limiter.
func (l *Limiter) SetAgentLimit(agentID string, calls int, window time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Quotas == nil {
		l.Quotas = make(map[string]Quota)
	}
	l.Quotas[agentID] = Quota{Calls: calls, Window: window}
}

// QuotaFor returns the provisioned quota for an agent, if any.
func (l *Limiter) QuotaFor(agentID string) (Quota, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	q, ok := l.Quotas[agentID]
	return q, ok
}

// CallCount returns how many checks were made.
func (l *Limiter) CallCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Calls)
}
