package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter enforces quotas with fixed windows in Redis so multiple
// engine instances share one budget per (agent, organization).
type RedisLimiter struct {
	client    *redis.Client
	keyPrefix string

	mu     sync.RWMutex
	quotas map[string]quota

	// now is injectable for tests.
	now func() time.Time
}

type quota struct {
	calls  int
	window time.Duration
}

// NewRedisLimiter wraps an existing Redis client.
func NewRedisLimiter(client *redis.Client, keyPrefix string) *RedisLimiter {
	if keyPrefix == "" {
		keyPrefix = "flowcore:"
	}
	return &RedisLimiter{
		client:    client,
		keyPrefix: keyPrefix + "rl:",
		quotas:    make(map[string]quota),
		now:       time.Now,
	}
}

// SetAgentLimit provisions an agent's quota: calls per window.
func (l *RedisLimiter) SetAgentLimit(agentID string, calls int, window time.Duration) {
	if calls <= 0 || window <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.quotas[agentID] = quota{calls: calls, window: window}
}

// CheckLimit implements Limiter: INCR on the current window's key, with
// the window TTL set on first increment.
func (l *RedisLimiter) CheckLimit(ctx context.Context, agentID, organizationID string) error {
	l.mu.RLock()
	q, provisioned := l.quotas[agentID]
	l.mu.RUnlock()
	if !provisioned {
		return nil
	}

	windowStart := l.now().UnixMilli() / q.window.Milliseconds()
	key := fmt.Sprintf("%s%s:%s:%d", l.keyPrefix, agentID, organizationID, windowStart)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("rate limit check: %w", err)
	}
	if count == 1 {
		l.client.Expire(ctx, key, q.window)
	}
	if count > int64(q.calls) {
		return limitErr(agentID)
	}
	return nil
}
