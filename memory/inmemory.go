package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/openfleet/flowcore/types"
)

// InMemoryStore keeps per-agent context entries in a bounded ring.
// Suitable for tests and single-node development.
type InMemoryStore struct {
	mu         sync.RWMutex
	entries    map[string][]Entry
	maxEntries int
}

// NewInMemoryStore creates an in-process memory store keeping at most
// maxEntries entries per agent (0 means 100).
func NewInMemoryStore(maxEntries int) *InMemoryStore {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &InMemoryStore{
		entries:    make(map[string][]Entry),
		maxEntries: maxEntries,
	}
}

// Context implements Store.
func (s *InMemoryStore) Context(_ context.Context, agentID string, _ ExecutionContext) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.entries[agentID]
	out := make([]Entry, len(stored))
	copy(out, stored)
	return out, nil
}

// StoreExecution implements Store.
func (s *InMemoryStore) StoreExecution(_ context.Context, stepExec *types.StepExecution, ec ExecutionContext) error {
	entry, err := executionEntry(stepExec, ec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries := append(s.entries[stepExec.AgentID], entry)
	if len(entries) > s.maxEntries {
		entries = entries[len(entries)-s.maxEntries:]
	}
	s.entries[stepExec.AgentID] = entries
	return nil
}

// executionEntry serializes a step attempt into one context entry.
func executionEntry(stepExec *types.StepExecution, ec ExecutionContext) (Entry, error) {
	payload, err := json.Marshal(map[string]any{
		"execution_id": ec.ExecutionID,
		"step_id":      stepExec.StepID,
		"status":       stepExec.Status,
		"input":        stepExec.Input,
		"output":       stepExec.Output,
		"confidence":   stepExec.Confidence,
	})
	if err != nil {
		return Entry{}, fmt.Errorf("marshal step execution: %w", err)
	}
	return Entry{Content: string(payload), Timestamp: time.Now()}, nil
}
