package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openfleet/flowcore/types"
)

func TestEstimator_CountTokens(t *testing.T) {
	e := NewEstimator()

	assert.Equal(t, 0, e.CountTokens(""))
	assert.Equal(t, 1, e.CountTokens("ab"))
	assert.Equal(t, 5, e.CountTokens("abcdefghijklmnopqrst"))
}

func TestEstimator_CountMessagesTokens(t *testing.T) {
	e := NewEstimator()
	msgs := []types.Message{
		types.NewSystemMessage("You are a planner."),
		types.NewUserMessage("Plan the launch."),
	}

	total := e.CountMessagesTokens(msgs)
	assert.Equal(t, e.CountMessageTokens(msgs[0])+e.CountMessageTokens(msgs[1]), total)
	assert.Greater(t, total, 2*msgOverhead)
}

func TestForModel_FallsBackToEstimator(t *testing.T) {
	tk := ForModel("some-internal-model")
	_, ok := tk.(*Estimator)
	assert.True(t, ok)

	tk = ForModel("gpt-4o-mini")
	_, ok = tk.(*Tiktoken)
	assert.True(t, ok)
}
