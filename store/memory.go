package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/openfleet/flowcore/types"
)

// NewMemoryStores creates the volatile in-process backend. Suitable for
// tests and single-node development; state does not survive a restart.
func NewMemoryStores() *Stores {
	return &Stores{
		Workflows:  &memoryWorkflows{items: make(map[string]types.Workflow)},
		Agents:     &memoryAgents{items: make(map[string]types.Agent)},
		Executions: &memoryExecutions{items: make(map[string]types.WorkflowExecution)},
		Approvals:  &memoryApprovals{items: make(map[string]types.Approval)},
		Audit:      &memoryAudit{},
	}
}

type memoryWorkflows struct {
	mu    sync.RWMutex
	items map[string]types.Workflow
}

func (s *memoryWorkflows) Create(_ context.Context, wf *types.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[wf.ID]; ok {
		return ErrAlreadyExists
	}
	s.items[wf.ID] = *wf
	return nil
}

func (s *memoryWorkflows) Get(_ context.Context, id string) (*types.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := wf
	return &cp, nil
}

func (s *memoryWorkflows) Update(_ context.Context, wf *types.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[wf.ID]; !ok {
		return ErrNotFound
	}
	s.items[wf.ID] = *wf
	return nil
}

func (s *memoryWorkflows) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *memoryWorkflows) List(_ context.Context) ([]*types.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Workflow, 0, len(s.items))
	for _, wf := range s.items {
		cp := wf
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type memoryAgents struct {
	mu    sync.RWMutex
	items map[string]types.Agent
}

func (s *memoryAgents) Create(_ context.Context, agent *types.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[agent.ID]; ok {
		return ErrAlreadyExists
	}
	s.items[agent.ID] = *agent
	return nil
}

func (s *memoryAgents) Get(_ context.Context, id string) (*types.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := agent
	return &cp, nil
}

func (s *memoryAgents) Update(_ context.Context, agent *types.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[agent.ID]; !ok {
		return ErrNotFound
	}
	s.items[agent.ID] = *agent
	return nil
}

func (s *memoryAgents) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *memoryAgents) List(_ context.Context) ([]*types.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Agent, 0, len(s.items))
	for _, agent := range s.items {
		cp := agent
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type memoryExecutions struct {
	mu    sync.RWMutex
	items map[string]types.WorkflowExecution
}

func (s *memoryExecutions) Create(_ context.Context, exec *types.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[exec.ID]; ok {
		return ErrAlreadyExists
	}
	s.items[exec.ID] = *exec
	return nil
}

func (s *memoryExecutions) Get(_ context.Context, id string) (*types.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := exec
	return &cp, nil
}

func (s *memoryExecutions) Update(_ context.Context, exec *types.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[exec.ID]; !ok {
		return ErrNotFound
	}
	s.items[exec.ID] = *exec
	return nil
}

func (s *memoryExecutions) List(_ context.Context, workflowID string) ([]*types.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.WorkflowExecution, 0)
	for _, exec := range s.items {
		if workflowID != "" && exec.WorkflowID != workflowID {
			continue
		}
		cp := exec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *memoryExecutions) CountActiveByAgent(_ context.Context, agentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, exec := range s.items {
		if exec.Status.Terminal() {
			continue
		}
		for _, se := range exec.StepExecutions {
			if se.AgentID == agentID {
				count++
				break
			}
		}
	}
	return count, nil
}

type memoryApprovals struct {
	mu    sync.RWMutex
	items map[string]types.Approval
}

func (s *memoryApprovals) Create(_ context.Context, approval *types.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[approval.ID]; ok {
		return ErrAlreadyExists
	}
	s.items[approval.ID] = *approval
	return nil
}

func (s *memoryApprovals) Get(_ context.Context, id string) (*types.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	approval, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := approval
	return &cp, nil
}

func (s *memoryApprovals) Update(_ context.Context, approval *types.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[approval.ID]; !ok {
		return ErrNotFound
	}
	s.items[approval.ID] = *approval
	return nil
}

func (s *memoryApprovals) ListPending(_ context.Context, executionID string) ([]*types.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Approval, 0)
	for _, approval := range s.items {
		if !approvalOpen(approval.Status) {
			continue
		}
		if executionID != "" && approval.ExecutionID != executionID {
			continue
		}
		cp := approval
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryApprovals) ListExpired(_ context.Context, now time.Time) ([]*types.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Approval, 0)
	for _, approval := range s.items {
		if approvalOpen(approval.Status) && approval.ExpiresAt.Before(now) {
			cp := approval
			out = append(out, &cp)
		}
	}
	return out, nil
}

// approvalOpen reports whether a gate still accepts decisions. Escalated
// gates remain open for their fallback approver.
func approvalOpen(status types.ApprovalStatus) bool {
	return status == types.ApprovalPending || status == types.ApprovalEscalated
}

type memoryAudit struct {
	mu      sync.RWMutex
	entries []types.AuditLogEntry
}

func (s *memoryAudit) Append(_ context.Context, entry *types.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *memoryAudit) Query(_ context.Context, filter AuditFilter) ([]*types.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*types.AuditLogEntry, 0)
	for i := range s.entries {
		e := s.entries[i]
		if filter.Matches(&e) {
			cp := e
			matched = append(matched, &cp)
		}
	}
	// Newest first; ties keep append order reversed deterministically.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*types.AuditLogEntry{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *memoryAudit) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var deleted int64
	for _, e := range s.entries {
		if e.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return deleted, nil
}
