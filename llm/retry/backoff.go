// Package retry provides bounded exponential-backoff retry around
// completion-service calls.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/openfleet/flowcore/types"
)

// Retryer retries a function according to a policy.
type Retryer interface {
	// Do executes fn, retrying on retryable failures.
	Do(ctx context.Context, fn func() error) error

	// DoWithResult executes fn and returns its result, retrying on
	// retryable failures.
	DoWithResult(ctx context.Context, fn func() (any, error)) (any, error)
}

type backoffRetryer struct {
	policy types.RetryPolicy
	jitter bool
	logger *zap.Logger

	// attempts counts total tries of the last Do call, for callers that
	// record retry counts.
	attempts int
}

// NewBackoffRetryer creates an exponential-backoff retryer. Zero or
// negative policy fields fall back to the engine defaults.
func NewBackoffRetryer(policy types.RetryPolicy, logger *zap.Logger) *backoffRetryer {
	def := types.DefaultRetryPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.BackoffMs <= 0 {
		policy.BackoffMs = def.BackoffMs
	}
	if policy.BackoffMultiplier < 1.0 {
		policy.BackoffMultiplier = def.BackoffMultiplier
	}
	if policy.MaxBackoffMs <= 0 {
		policy.MaxBackoffMs = def.MaxBackoffMs
	}
	return &backoffRetryer{policy: policy, jitter: true, logger: logger}
}

// Attempts returns the number of tries the last call consumed.
func (r *backoffRetryer) Attempts() int {
	return r.attempts
}

// Do implements Retryer.Do.
func (r *backoffRetryer) Do(ctx context.Context, fn func() error) error {
	_, err := r.DoWithResult(ctx, func() (any, error) {
		return nil, fn()
	})
	return err
}

// DoWithResult implements Retryer.DoWithResult. The first try runs without
// delay; each subsequent try waits BackoffMs * Multiplier^(attempt-1) plus
// up to 10% jitter, capped at MaxBackoffMs. Non-retryable structured
// errors abort immediately.
func (r *backoffRetryer) DoWithResult(ctx context.Context, fn func() (any, error)) (any, error) {
	var lastErr error
	r.attempts = 0

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := r.delay(attempt - 1)
			r.logger.Debug("retrying after backoff",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		r.attempts = attempt
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		// Structured engine errors know whether a retry can help.
		var engineErr *types.Error
		if errors.As(err, &engineErr) && !engineErr.Retryable {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (r *backoffRetryer) delay(retries int) time.Duration {
	ms := float64(r.policy.BackoffMs) * math.Pow(r.policy.BackoffMultiplier, float64(retries-1))
	if r.jitter {
		ms += ms * 0.1 * rand.Float64()
	}
	// The cap applies after jitter so MaxBackoffMs is a hard ceiling.
	if ms > float64(r.policy.MaxBackoffMs) {
		ms = float64(r.policy.MaxBackoffMs)
	}
	return time.Duration(ms) * time.Millisecond
}
