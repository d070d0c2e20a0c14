package workflow

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openfleet/flowcore/store"
	"github.com/openfleet/flowcore/types"
)

// Service is the workflow definition store: CRUD gated by structural
// validation. Definitions are immutable by convention once referenced by
// an execution; the executor snapshots the definition at run start.
type Service struct {
	workflows store.WorkflowRepository
	logger    *zap.Logger
}

// NewService creates the definition store.
func NewService(workflows store.WorkflowRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		workflows: workflows,
		logger:    logger.With(zap.String("component", "workflow_store")),
	}
}

// Create validates and stores a new workflow definition.
func (s *Service) Create(ctx context.Context, wf *types.Workflow) (*types.ValidationResult, error) {
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if wf.Version == 0 {
		wf.Version = 1
	}
	result := ValidateWorkflow(wf)
	if !result.Valid {
		return result, types.NewError(types.ErrValidationFailed, "workflow definition invalid").
			WithDetail("errors", result.Errors)
	}
	if err := s.workflows.Create(ctx, wf); err != nil {
		return result, err
	}
	s.logger.Info("workflow created",
		zap.String("workflow_id", wf.ID),
		zap.Int("steps", len(wf.Steps)),
	)
	return result, nil
}

// Get loads one workflow definition.
func (s *Service) Get(ctx context.Context, id string) (*types.Workflow, error) {
	wf, err := s.workflows.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, types.NewError(types.ErrWorkflowNotFound, "workflow not found").WithDetail("workflow_id", id)
	}
	return wf, err
}

// Update validates and persists changes to an existing definition, bumping
// the version.
func (s *Service) Update(ctx context.Context, wf *types.Workflow) (*types.ValidationResult, error) {
	result := ValidateWorkflow(wf)
	if !result.Valid {
		return result, types.NewError(types.ErrValidationFailed, "workflow definition invalid").
			WithDetail("errors", result.Errors)
	}
	wf.Version++
	if err := s.workflows.Update(ctx, wf); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return result, types.NewError(types.ErrWorkflowNotFound, "workflow not found").WithDetail("workflow_id", wf.ID)
		}
		return result, err
	}
	s.logger.Info("workflow updated",
		zap.String("workflow_id", wf.ID),
		zap.Int("version", wf.Version),
	)
	return result, nil
}

// Delete removes a workflow definition.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.workflows.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.NewError(types.ErrWorkflowNotFound, "workflow not found").WithDetail("workflow_id", id)
		}
		return err
	}
	s.logger.Info("workflow deleted", zap.String("workflow_id", id))
	return nil
}

// List returns every workflow definition.
func (s *Service) List(ctx context.Context) ([]*types.Workflow, error) {
	return s.workflows.List(ctx)
}
