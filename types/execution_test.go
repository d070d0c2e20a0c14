package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfidenceLevelOf(t *testing.T) {
	cases := []struct {
		score float64
		want  ConfidenceLevel
	}{
		{0.0, ConfidenceLow},
		{0.39, ConfidenceLow},
		{0.4, ConfidenceMedium},
		{0.59, ConfidenceMedium},
		{0.6, ConfidenceHigh},
		{0.79, ConfidenceHigh},
		{0.8, ConfidenceVeryHigh},
		{1.0, ConfidenceVeryHigh},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ConfidenceLevelOf(tc.score), "score %v", tc.score)
	}
}

func TestStepExecutionFor_ReturnsLatestAttempt(t *testing.T) {
	exec := &WorkflowExecution{
		StepExecutions: []StepExecution{
			{ID: "a1", StepID: "s1", Status: StepFailed},
			{ID: "a2", StepID: "s1", Status: StepCompleted},
			{ID: "b1", StepID: "s2", Status: StepRunning},
		},
	}

	se, ok := exec.StepExecutionFor("s1")
	assert.True(t, ok)
	assert.Equal(t, "a2", se.ID)
	assert.True(t, exec.StepCompleted("s1"))
	assert.False(t, exec.StepCompleted("s2"))

	_, ok = exec.StepExecutionFor("missing")
	assert.False(t, ok)
}
