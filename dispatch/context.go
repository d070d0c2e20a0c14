package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/openfleet/flowcore/llm/tokenizer"
	"github.com/openfleet/flowcore/memory"
	"github.com/openfleet/flowcore/types"
)

// assembleMessages builds the completion prompt: persona system prompt,
// prior memory entries trimmed to the persona's context-window policy, and
// the JSON-serialized step input as the user turn.
func assembleMessages(persona types.AgentPersona, entries []memory.Entry, input map[string]any, counter tokenizer.Tokenizer) ([]types.Message, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("serialize step input: %w", err)
	}
	userMsg := types.NewUserMessage(string(payload))

	messages := make([]types.Message, 0, len(entries)+2)
	reserved := counter.CountMessageTokens(userMsg)
	if persona.SystemPrompt != "" {
		sysMsg := types.NewSystemMessage(persona.SystemPrompt)
		messages = append(messages, sysMsg)
		reserved += counter.CountMessageTokens(sysMsg)
	}

	for _, entry := range trimEntries(persona.ContextWindow, entries, counter, reserved) {
		messages = append(messages, types.NewAssistantMessage(entry.Content))
	}
	return append(messages, userMsg), nil
}

// trimEntries applies the window policy to the memory entries. MaxMessages
// caps the entry count; MaxTokens caps the token total after accounting
// for the reserved prompt/input tokens. The retention mode decides which
// side overflows: sliding keeps the newest, fixed keeps the earliest, and
// summary keeps the newest behind a marker noting what was dropped.
func trimEntries(policy types.ContextWindowPolicy, entries []memory.Entry, counter tokenizer.Tokenizer, reserved int) []memory.Entry {
	kept := append([]memory.Entry(nil), entries...)
	dropped := 0

	if policy.MaxMessages > 0 && len(kept) > policy.MaxMessages {
		overflow := len(kept) - policy.MaxMessages
		switch policy.Retention {
		case types.RetentionFixed:
			kept = kept[:policy.MaxMessages]
		default: // sliding and summary keep the newest
			kept = kept[overflow:]
		}
		dropped += overflow
	}

	if policy.MaxTokens > 0 {
		budget := policy.MaxTokens - reserved
		for len(kept) > 0 && entriesTokens(kept, counter) > budget {
			if policy.Retention == types.RetentionFixed {
				kept = kept[:len(kept)-1]
			} else {
				kept = kept[1:]
			}
			dropped++
		}
	}

	if policy.Retention == types.RetentionSummary && dropped > 0 {
		marker := memory.Entry{
			Content: fmt.Sprintf("[%d earlier context entries summarized away]", dropped),
		}
		kept = append([]memory.Entry{marker}, kept...)
	}
	return kept
}

func entriesTokens(entries []memory.Entry, counter tokenizer.Tokenizer) int {
	total := 0
	for _, e := range entries {
		total += counter.CountTokens(e.Content)
	}
	return total
}
