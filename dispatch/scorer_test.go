package dispatch

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/openfleet/flowcore/llm"
	"github.com/openfleet/flowcore/types"
)

func response(textLen, totalTokens int, finish llm.FinishReason) *llm.ChatResponse {
	return &llm.ChatResponse{
		Model: "m",
		Choices: []llm.ChatChoice{{
			FinishReason: finish,
			Message:      types.NewAssistantMessage(strings.Repeat("x", textLen)),
		}},
		Usage: types.TokenUsage{TotalTokens: totalTokens},
	}
}

func personaWithBudget(maxTokens int) types.AgentPersona {
	return types.AgentPersona{Model: "m", MaxTokens: maxTokens}
}

func TestHeuristicScorerFormula(t *testing.T) {
	scorer := HeuristicScorer{}

	cases := []struct {
		name    string
		textLen int
		tokens  int
		budget  int
		finish  llm.FinishReason
		want    float64
	}{
		// base 0.5, usage 50/1000 = 5% < 30% -> -0.1, stop -> +0.1
		{"short clean stop", 50, 50, 1000, llm.FinishStop, 0.5},
		// +0.2 long, usage 850/1000 > 80% -> +0.1, stop -> +0.1
		{"long high usage", 200, 850, 1000, llm.FinishStop, 0.9},
		// +0.2 +0.1 very long, >80% -> +0.1, stop -> +0.1, clamp at 1
		{"clamped at one", 600, 900, 1000, llm.FinishStop, 1.0},
		// low usage -0.1, truncated -0.2
		{"short truncated", 10, 10, 1000, llm.FinishLength, 0.2},
		// mid usage (50%) contributes nothing, no finish bonus
		{"neutral mid usage", 50, 500, 1000, llm.FinishContentFilter, 0.5},
		// zero budget skips the usage signal entirely
		{"no budget", 200, 900, 0, llm.FinishStop, 0.8},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := scorer.Score(response(tc.textLen, tc.tokens, tc.finish), personaWithBudget(tc.budget))
			assert.InDelta(t, tc.want, got, 0.0001)
		})
	}
}

func TestHeuristicScorerClampsToZero(t *testing.T) {
	scorer := HeuristicScorer{}
	// base 0.5, -0.1 low usage, -0.2 truncated = 0.2; force below zero is
	// impossible with this signal set, so pin the floor case instead.
	got := scorer.Score(response(0, 0, llm.FinishLength), personaWithBudget(1000))
	assert.InDelta(t, 0.2, got, 0.0001)
	assert.GreaterOrEqual(t, got, 0.0)
}

func TestHeuristicScorerBoundsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)
	scorer := HeuristicScorer{}

	finishReasons := []llm.FinishReason{llm.FinishStop, llm.FinishLength, llm.FinishContentFilter, ""}

	properties.Property("score is always within [0,1]", prop.ForAll(
		func(textLen, tokens, budget, finishIdx int) bool {
			score := scorer.Score(
				response(textLen, tokens, finishReasons[finishIdx]),
				personaWithBudget(budget),
			)
			return score >= 0 && score <= 1
		},
		gen.IntRange(0, 10000),
		gen.IntRange(0, 100000),
		gen.IntRange(0, 100000),
		gen.IntRange(0, len(finishReasons)-1),
	))

	properties.TestingRun(t)
}
