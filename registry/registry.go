// Package registry owns agent definitions: CRUD, structural validation of
// personas, capabilities and constraints, and a composite health view fed
// by the audit collaborator. Agents are mutated only through the registry.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openfleet/flowcore/store"
	"github.com/openfleet/flowcore/types"
)

// TelemetrySource supplies live execution counters for the status view.
// The registry itself holds no telemetry; the audit sink implements this.
type TelemetrySource interface {
	AgentCounters(ctx context.Context, agentID string) (executions int64, failures int64, err error)
}

// AgentStatus is the composite health view of one agent.
type AgentStatus struct {
	AgentID    string    `json:"agent_id"`
	IsActive   bool      `json:"is_active"`
	UpdatedAt  time.Time `json:"updated_at"`
	Executions int64     `json:"executions"`
	Failures   int64     `json:"failures"`
	QueueDepth int       `json:"queue_depth"`
}

// Registry manages agent definitions.
type Registry struct {
	agents     store.AgentRepository
	executions store.ExecutionRepository
	telemetry  TelemetrySource
	logger     *zap.Logger
}

// New creates a registry. telemetry may be nil; status views then carry
// zero counters.
func New(agents store.AgentRepository, executions store.ExecutionRepository, telemetry TelemetrySource, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		agents:     agents,
		executions: executions,
		telemetry:  telemetry,
		logger:     logger.With(zap.String("component", "registry")),
	}
}

// CreateAgent validates and stores a new agent definition.
func (r *Registry) CreateAgent(ctx context.Context, agent *types.Agent) (*types.ValidationResult, error) {
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	result := ValidateAgent(agent)
	if !result.Valid {
		return result, types.NewError(types.ErrValidationFailed, "agent definition invalid").WithAgent(agent.ID)
	}
	if err := r.agents.Create(ctx, agent); err != nil {
		return result, err
	}
	r.logger.Info("agent created",
		zap.String("agent_id", agent.ID),
		zap.String("agent_type", agent.Type),
	)
	return result, nil
}

// GetAgent loads one agent definition.
func (r *Registry) GetAgent(ctx context.Context, id string) (*types.Agent, error) {
	agent, err := r.agents.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, types.NewError(types.ErrAgentNotFound, "agent not found").WithAgent(id)
	}
	return agent, err
}

// UpdateAgent validates and persists changes to an existing agent.
func (r *Registry) UpdateAgent(ctx context.Context, agent *types.Agent) (*types.ValidationResult, error) {
	result := ValidateAgent(agent)
	if !result.Valid {
		return result, types.NewError(types.ErrValidationFailed, "agent definition invalid").WithAgent(agent.ID)
	}
	if err := r.agents.Update(ctx, agent); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return result, types.NewError(types.ErrAgentNotFound, "agent not found").WithAgent(agent.ID)
		}
		return result, err
	}
	r.logger.Info("agent updated", zap.String("agent_id", agent.ID))
	return result, nil
}

// DeleteAgent removes an agent definition. An agent referenced by a
// non-terminal execution cannot be deleted.
func (r *Registry) DeleteAgent(ctx context.Context, id string) error {
	active, err := r.executions.CountActiveByAgent(ctx, id)
	if err != nil {
		return err
	}
	if active > 0 {
		return types.NewError(types.ErrValidationFailed, "agent is referenced by running executions").
			WithAgent(id).
			WithDetail("active_executions", active)
	}
	if err := r.agents.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.NewError(types.ErrAgentNotFound, "agent not found").WithAgent(id)
		}
		return err
	}
	r.logger.Info("agent deleted", zap.String("agent_id", id))
	return nil
}

// ListAgents returns every agent definition.
func (r *Registry) ListAgents(ctx context.Context) ([]*types.Agent, error) {
	return r.agents.List(ctx)
}

// AgentStatus returns the composite health view for one agent.
func (r *Registry) AgentStatus(ctx context.Context, id string) (*AgentStatus, error) {
	agent, err := r.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}

	status := &AgentStatus{
		AgentID:   agent.ID,
		IsActive:  agent.IsActive,
		UpdatedAt: agent.UpdatedAt,
	}
	if r.telemetry != nil {
		executions, failures, err := r.telemetry.AgentCounters(ctx, id)
		if err != nil {
			return nil, err
		}
		status.Executions = executions
		status.Failures = failures
	}
	queued, err := r.executions.CountActiveByAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	status.QueueDepth = queued
	return status, nil
}
