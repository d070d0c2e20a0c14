package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAgentConstraintRateLimit(t *testing.T) {
	c := AgentConstraint{Type: ConstraintRateLimit, Value: 5, WindowMs: 60000}
	calls, window, ok := c.RateLimit()
	assert.True(t, ok)
	assert.Equal(t, 5, calls)
	assert.Equal(t, time.Minute, window)

	// JSON decoding yields float64 values.
	c.Value = float64(5)
	_, _, ok = c.RateLimit()
	assert.True(t, ok)

	for _, bad := range []AgentConstraint{
		{Type: ConstraintTokenLimit, Value: 5, WindowMs: 60000},
		{Type: ConstraintRateLimit, Value: 5},
		{Type: ConstraintRateLimit, Value: "five", WindowMs: 60000},
		{Type: ConstraintRateLimit, Value: 0, WindowMs: 60000},
	} {
		_, _, ok := bad.RateLimit()
		assert.False(t, ok, "constraint %+v must not provision", bad)
	}
}
