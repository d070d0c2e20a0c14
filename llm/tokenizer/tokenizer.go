// Package tokenizer provides token counting for context-window budgeting.
// A tiktoken-backed counter serves OpenAI-family models; a character-based
// estimator covers everything else.
package tokenizer

import (
	"github.com/openfleet/flowcore/types"
)

// Tokenizer counts tokens for budget decisions. Counts are best-effort;
// trimming never depends on exact parity with the provider's own counter.
type Tokenizer interface {
	// CountTokens counts tokens in a text string.
	CountTokens(text string) int
	// CountMessageTokens counts tokens in one message, including the
	// per-message framing overhead.
	CountMessageTokens(msg types.Message) int
	// CountMessagesTokens counts total tokens across a message slice.
	CountMessagesTokens(msgs []types.Message) int
}

// ForModel returns a tiktoken counter when the model is recognized,
// otherwise the estimator.
func ForModel(model string) Tokenizer {
	if t, err := NewTiktoken(model); err == nil {
		return t
	}
	return NewEstimator()
}
