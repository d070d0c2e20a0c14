package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openfleet/flowcore/store"
	"github.com/openfleet/flowcore/types"
)

func newTestService() *Service {
	return NewService(store.NewMemoryStores().Workflows, zap.NewNop())
}

func TestServiceCreateAssignsIDAndVersion(t *testing.T) {
	s := newTestService()
	wf := validWorkflow()
	wf.ID = ""
	wf.Version = 0

	result, err := s.Create(context.Background(), wf)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.NotEmpty(t, wf.ID)
	assert.Equal(t, 1, wf.Version)

	got, err := s.Get(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.Name, got.Name)
}

func TestServiceCreateRejectsInvalid(t *testing.T) {
	s := newTestService()
	wf := validWorkflow()
	wf.Steps[0].AgentID = ""

	result, err := s.Create(context.Background(), wf)
	require.Error(t, err)
	assert.Equal(t, types.ErrValidationFailed, types.CodeOf(err))
	assert.False(t, result.Valid)

	_, err = s.Get(context.Background(), wf.ID)
	assert.Equal(t, types.ErrWorkflowNotFound, types.CodeOf(err))
}

func TestServiceUpdateBumpsVersion(t *testing.T) {
	s := newTestService()
	wf := validWorkflow()
	_, err := s.Create(context.Background(), wf)
	require.NoError(t, err)

	wf.Name = "research pipeline v2"
	_, err = s.Update(context.Background(), wf)
	require.NoError(t, err)

	got, err := s.Get(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, "research pipeline v2", got.Name)
}

func TestServiceUpdateUnknownWorkflow(t *testing.T) {
	s := newTestService()
	wf := validWorkflow()
	wf.ID = "ghost"
	_, err := s.Update(context.Background(), wf)
	assert.Equal(t, types.ErrWorkflowNotFound, types.CodeOf(err))
}

func TestServiceDeleteAndList(t *testing.T) {
	s := newTestService()
	wf := validWorkflow()
	_, err := s.Create(context.Background(), wf)
	require.NoError(t, err)

	all, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.Delete(context.Background(), wf.ID))
	assert.Equal(t, types.ErrWorkflowNotFound, types.CodeOf(s.Delete(context.Background(), wf.ID)))

	all, err = s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}
