package dispatch

import (
	"github.com/openfleet/flowcore/llm"
	"github.com/openfleet/flowcore/types"
)

// Scorer grades a completion response with a [0,1] confidence estimate.
// The orchestrator treats it as opaque; swapping the heuristic for a
// model-graded scorer touches nothing else.
type Scorer interface {
	Score(resp *llm.ChatResponse, persona types.AgentPersona) float64
}

// HeuristicScorer is the default scorer: response-shape signals folded
// onto a 0.5 base.
//
//	+0.2 text longer than 100 chars, +0.1 more past 500
//	+0.1 token usage above 80% of the persona budget, -0.1 below 30%
//	+0.1 clean stop, -0.2 truncated by length
//
// The sum clamps to [0,1].
type HeuristicScorer struct{}

func (HeuristicScorer) Score(resp *llm.ChatResponse, persona types.AgentPersona) float64 {
	score := 0.5

	text := resp.Text()
	if len(text) > 100 {
		score += 0.2
	}
	if len(text) > 500 {
		score += 0.1
	}

	if persona.MaxTokens > 0 {
		ratio := float64(resp.Usage.TotalTokens) / float64(persona.MaxTokens)
		if ratio > 0.8 {
			score += 0.1
		} else if ratio < 0.3 {
			score -= 0.1
		}
	}

	switch resp.Finish() {
	case llm.FinishStop:
		score += 0.1
	case llm.FinishLength:
		score -= 0.2
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
