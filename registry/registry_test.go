package registry

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openfleet/flowcore/store"
	"github.com/openfleet/flowcore/types"
)

func validAgent() *types.Agent {
	return &types.Agent{
		ID:       uuid.NewString(),
		Name:     "planner",
		Type:     "planning",
		IsActive: true,
		Persona: types.AgentPersona{
			Model:        "gpt-4o-mini",
			Temperature:  0.7,
			MaxTokens:    2048,
			SystemPrompt: "You plan things.",
			ContextWindow: types.ContextWindowPolicy{
				MaxMessages: 20,
				MaxTokens:   4000,
				Retention:   types.RetentionSliding,
			},
		},
		Capabilities: []types.AgentCapability{
			{ID: "cap-plan", Name: "plan", TimeoutMs: 30000, Retry: types.DefaultRetryPolicy()},
		},
		CapabilityIDs: []string{"cap-plan"},
	}
}

func newTestRegistry(t *testing.T) (*Registry, *store.Stores) {
	t.Helper()
	s := store.NewMemoryStores()
	return New(s.Agents, s.Executions, nil, zap.NewNop()), s
}

func TestRegistry_CreateGetDelete(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	agent := validAgent()
	result, err := r.CreateAgent(ctx, agent)
	require.NoError(t, err)
	assert.True(t, result.Valid)

	got, err := r.GetAgent(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "planner", got.Name)

	require.NoError(t, r.DeleteAgent(ctx, agent.ID))
	_, err = r.GetAgent(ctx, agent.ID)
	assert.Equal(t, types.ErrAgentNotFound, types.CodeOf(err))
}

func TestRegistry_CreateRejectsInvalidAgent(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	agent := validAgent()
	agent.Persona.Temperature = 3.5
	result, err := r.CreateAgent(ctx, agent)
	require.Error(t, err)
	assert.Equal(t, types.ErrValidationFailed, types.CodeOf(err))
	assert.False(t, result.Valid)

	// Nothing stored.
	_, err = r.GetAgent(ctx, agent.ID)
	assert.Equal(t, types.ErrAgentNotFound, types.CodeOf(err))
}

func TestRegistry_DeleteRefusedWhileReferencedByRunningExecution(t *testing.T) {
	ctx := context.Background()
	r, s := newTestRegistry(t)

	agent := validAgent()
	_, err := r.CreateAgent(ctx, agent)
	require.NoError(t, err)

	exec := &types.WorkflowExecution{
		ID:     uuid.NewString(),
		Status: types.ExecutionRunning,
		StepExecutions: []types.StepExecution{
			{ID: "se1", StepID: "s1", AgentID: agent.ID, Status: types.StepRunning},
		},
	}
	require.NoError(t, s.Executions.Create(ctx, exec))

	err = r.DeleteAgent(ctx, agent.ID)
	require.Error(t, err)
	assert.Equal(t, types.ErrValidationFailed, types.CodeOf(err))

	// Terminal execution releases the reference.
	exec.Status = types.ExecutionCompleted
	require.NoError(t, s.Executions.Update(ctx, exec))
	assert.NoError(t, r.DeleteAgent(ctx, agent.ID))
}

func TestValidateAgent_AccumulatesViolations(t *testing.T) {
	agent := &types.Agent{
		Persona: types.AgentPersona{Temperature: -1, MaxTokens: 0},
		Constraints: []types.AgentConstraint{
			{Type: types.ConstraintRateLimit, Value: 0, WindowMs: 0},
			{Type: types.ConstraintTokenLimit, Value: "many"},
			{Type: "unknown_kind", Value: 1},
		},
		CapabilityIDs: []string{"missing-cap"},
	}

	result := ValidateAgent(agent)
	require.False(t, result.Valid)

	fields := make(map[string]bool)
	for _, e := range result.Errors {
		fields[e.Field] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["persona.model"])
	assert.True(t, fields["persona.temperature"])
	assert.True(t, fields["persona.max_tokens"])
	assert.True(t, fields["constraints[0].value"])
	assert.True(t, fields["constraints[0].window_ms"])
	assert.True(t, fields["constraints[1].value"])
	assert.True(t, fields["constraints[2].type"])
	assert.True(t, fields["capability_ids"])
}

func TestValidateAgent_ValidPasses(t *testing.T) {
	result := ValidateAgent(validAgent())
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}
