package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfleet/flowcore/types"
)

func TestLocalLimiter_UnprovisionedAgentPasses(t *testing.T) {
	l := NewLocalLimiter()
	assert.NoError(t, l.CheckLimit(context.Background(), "agent-a", "org-1"))
}

func TestLocalLimiter_ExhaustsWindow(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLimiter()
	l.SetAgentLimit("agent-a", 2, time.Minute)

	require.NoError(t, l.CheckLimit(ctx, "agent-a", "org-1"))
	require.NoError(t, l.CheckLimit(ctx, "agent-a", "org-1"))

	err := l.CheckLimit(ctx, "agent-a", "org-1")
	require.Error(t, err)
	assert.Equal(t, types.ErrRateLimited, types.CodeOf(err))
	assert.True(t, types.IsRetryable(err))

	// Budgets are per organization.
	assert.NoError(t, l.CheckLimit(ctx, "agent-a", "org-2"))
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := NewRedisLimiter(client, "")
	l.SetAgentLimit("agent-a", 2, time.Minute)
	ctx := context.Background()

	require.NoError(t, l.CheckLimit(ctx, "agent-a", "org-1"))
	require.NoError(t, l.CheckLimit(ctx, "agent-a", "org-1"))

	err := l.CheckLimit(ctx, "agent-a", "org-1")
	require.Error(t, err)
	assert.Equal(t, types.ErrRateLimited, types.CodeOf(err))

	// A new window resets the budget.
	base := time.Now()
	l.now = func() time.Time { return base.Add(2 * time.Minute) }
	mr.FastForward(2 * time.Minute)
	assert.NoError(t, l.CheckLimit(ctx, "agent-a", "org-1"))
}

func TestLocalLimiter_ReprovisionUnchangedKeepsBuckets(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLimiter()
	l.SetAgentLimit("agent-a", 2, time.Minute)
	require.NoError(t, l.CheckLimit(ctx, "agent-a", "org-1"))
	require.NoError(t, l.CheckLimit(ctx, "agent-a", "org-1"))

	// The same quota again must not refill the exhausted bucket.
	l.SetAgentLimit("agent-a", 2, time.Minute)
	err := l.CheckLimit(ctx, "agent-a", "org-1")
	require.Error(t, err)
	assert.Equal(t, types.ErrRateLimited, types.CodeOf(err))

	// A changed quota resets the bucket.
	l.SetAgentLimit("agent-a", 3, time.Minute)
	assert.NoError(t, l.CheckLimit(ctx, "agent-a", "org-1"))
}
