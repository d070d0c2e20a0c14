package mocks

import (
	"context"
	"sync"

	"github.com/openfleet/flowcore/memory"
	"github.com/openfleet/flowcore/types"
)

// MemoryStore is an in-test memory.Store: seeded entries are returned by
// Context, stored attempts are captured for assertions. ContextErr and
// StoreErr inject failures.
type MemoryStore struct {
	mu         sync.Mutex
	Entries    map[string][]memory.Entry
	Stored     []*types.StepExecution
	ContextErr error
	StoreErr   error
}

// NewMemoryStore creates an empty mock store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{Entries: make(map[string][]memory.Entry)}
}

// Seed adds context entries for an agent.
func (m *MemoryStore) Seed(agentID string, contents ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range contents {
		m.Entries[agentID] = append(m.Entries[agentID], memory.Entry{Content: c})
	}
}

// Context implements memory.Store.
func (m *MemoryStore) Context(_ context.Context, agentID string, _ memory.ExecutionContext) ([]memory.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ContextErr != nil {
		return nil, m.ContextErr
	}
	return append([]memory.Entry(nil), m.Entries[agentID]...), nil
}

// StoreExecution implements memory.Store.
func (m *MemoryStore) StoreExecution(_ context.Context, se *types.StepExecution, _ memory.ExecutionContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StoreErr != nil {
		return m.StoreErr
	}
	m.Stored = append(m.Stored, se)
	return nil
}

// StoredCount returns how many attempts were stored.
func (m *MemoryStore) StoredCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Stored)
}
