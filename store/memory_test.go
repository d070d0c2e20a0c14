package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfleet/flowcore/types"
)

func TestMemoryWorkflows_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStores()

	wf := &types.Workflow{ID: uuid.NewString(), Name: "review-pipeline", Version: 1}
	require.NoError(t, s.Workflows.Create(ctx, wf))
	assert.ErrorIs(t, s.Workflows.Create(ctx, wf), ErrAlreadyExists)

	got, err := s.Workflows.Get(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "review-pipeline", got.Name)

	got.Name = "renamed"
	require.NoError(t, s.Workflows.Update(ctx, got))
	got2, err := s.Workflows.Get(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got2.Name)

	list, err := s.Workflows.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.Workflows.Delete(ctx, wf.ID))
	_, err = s.Workflows.Get(ctx, wf.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Workflows.Delete(ctx, wf.ID), ErrNotFound)
}

func TestMemoryExecutions_CountActiveByAgent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStores()

	running := &types.WorkflowExecution{
		ID:     uuid.NewString(),
		Status: types.ExecutionRunning,
		StepExecutions: []types.StepExecution{
			{ID: "se1", StepID: "s1", AgentID: "agent-a", Status: types.StepRunning},
		},
	}
	finished := &types.WorkflowExecution{
		ID:     uuid.NewString(),
		Status: types.ExecutionCompleted,
		StepExecutions: []types.StepExecution{
			{ID: "se2", StepID: "s1", AgentID: "agent-a", Status: types.StepCompleted},
		},
	}
	require.NoError(t, s.Executions.Create(ctx, running))
	require.NoError(t, s.Executions.Create(ctx, finished))

	n, err := s.Executions.CountActiveByAgent(ctx, "agent-a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.Executions.CountActiveByAgent(ctx, "agent-b")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMemoryAudit_QueryFilterSortPaginate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStores()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		entry := &types.AuditLogEntry{
			ID:        uuid.NewString(),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Level:     types.LevelInfo,
			Category:  types.CategoryAgent,
			AgentID:   "agent-a",
			Message:   "execution ok",
		}
		if i == 2 {
			entry.Level = types.LevelError
			entry.Message = "execution failed"
		}
		require.NoError(t, s.Audit.Append(ctx, entry))
	}

	all, err := s.Audit.Query(ctx, AuditFilter{AgentID: "agent-a"})
	require.NoError(t, err)
	require.Len(t, all, 5)
	// Newest first.
	assert.True(t, all[0].Timestamp.After(all[4].Timestamp))

	errs, err := s.Audit.Query(ctx, AuditFilter{Level: types.LevelError})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "execution failed", errs[0].Message)

	page, err := s.Audit.Query(ctx, AuditFilter{Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, all[1].ID, page[0].ID)
	assert.Equal(t, all[2].ID, page[1].ID)

	windowed, err := s.Audit.Query(ctx, AuditFilter{From: base.Add(time.Minute), To: base.Add(3 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, windowed, 3)
}

func TestMemoryAudit_DeleteBefore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStores()

	old := &types.AuditLogEntry{ID: uuid.NewString(), Timestamp: time.Now().Add(-48 * time.Hour)}
	recent := &types.AuditLogEntry{ID: uuid.NewString(), Timestamp: time.Now()}
	require.NoError(t, s.Audit.Append(ctx, old))
	require.NoError(t, s.Audit.Append(ctx, recent))

	deleted, err := s.Audit.DeleteBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := s.Audit.Query(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, recent.ID, remaining[0].ID)
}
