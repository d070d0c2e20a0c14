package tokenizer

import "github.com/openfleet/flowcore/types"

const msgOverhead = 4

// Estimator approximates token counts at four characters per token. It
// never fails and needs no encoding data, so it is the fallback when a
// model has no tiktoken encoding.
type Estimator struct{}

// NewEstimator creates a character-based token estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// CountTokens counts tokens in text.
func (e *Estimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	tokens := len([]rune(text)) / 4
	if tokens < 1 {
		return 1
	}
	return tokens
}

// CountMessageTokens counts tokens in one message.
func (e *Estimator) CountMessageTokens(msg types.Message) int {
	tokens := msgOverhead + e.CountTokens(msg.Content)
	if msg.Name != "" {
		tokens += e.CountTokens(msg.Name)
	}
	return tokens
}

// CountMessagesTokens counts tokens across messages.
func (e *Estimator) CountMessagesTokens(msgs []types.Message) int {
	total := 0
	for _, msg := range msgs {
		total += e.CountMessageTokens(msg)
	}
	return total
}
