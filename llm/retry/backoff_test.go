package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openfleet/flowcore/types"
)

func fastPolicy(maxAttempts int) types.RetryPolicy {
	return types.RetryPolicy{
		MaxAttempts:       maxAttempts,
		BackoffMs:         1,
		BackoffMultiplier: 2.0,
		MaxBackoffMs:      5,
	}
}

func TestDoWithResult_SucceedsAfterRetries(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	calls := 0
	result, err := r.DoWithResult(context.Background(), func() (any, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, r.Attempts())
}

func TestDoWithResult_ExhaustsAttempts(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(2), zap.NewNop())

	calls := 0
	_, err := r.DoWithResult(context.Background(), func() (any, error) {
		calls++
		return nil, errors.New("always failing")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.EqualError(t, err, "always failing")
}

func TestDoWithResult_NonRetryableAbortsImmediately(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(5), zap.NewNop())

	calls := 0
	_, err := r.DoWithResult(context.Background(), func() (any, error) {
		calls++
		return nil, types.NewError(types.ErrAgentNotFound, "no such agent")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, types.ErrAgentNotFound, types.CodeOf(err))
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	policy := types.RetryPolicy{
		MaxAttempts:       3,
		BackoffMs:         200,
		BackoffMultiplier: 2.0,
		MaxBackoffMs:      1000,
	}
	r := NewBackoffRetryer(policy, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := r.Do(ctx, func() error {
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewBackoffRetryer_AppliesDefaults(t *testing.T) {
	r := NewBackoffRetryer(types.RetryPolicy{}, zap.NewNop())
	def := types.DefaultRetryPolicy()
	assert.Equal(t, def.MaxAttempts, r.policy.MaxAttempts)
	assert.Equal(t, def.BackoffMs, r.policy.BackoffMs)
	assert.Equal(t, def.MaxBackoffMs, r.policy.MaxBackoffMs)
}

func TestDelay_MaxBackoffIsHardCeiling(t *testing.T) {
	r := NewBackoffRetryer(types.RetryPolicy{
		MaxAttempts:       5,
		BackoffMs:         100,
		BackoffMultiplier: 3.0,
		MaxBackoffMs:      150,
	}, zap.NewNop())

	// Jitter is random; the ceiling must hold on every draw.
	for retries := 1; retries <= 6; retries++ {
		for i := 0; i < 20; i++ {
			assert.LessOrEqual(t, r.delay(retries), 150*time.Millisecond)
		}
	}
}
