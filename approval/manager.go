// Package approval manages human gates on workflow steps: opening a gate
// from a step's approval config, collecting per-approver decisions,
// resolving on min-approvals or first rejection, and sweeping expired
// gates into rejection or escalation.
package approval

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openfleet/flowcore/audit"
	"github.com/openfleet/flowcore/eventbus"
	"github.com/openfleet/flowcore/internal/metrics"
	"github.com/openfleet/flowcore/store"
	"github.com/openfleet/flowcore/types"
)

// defaultTimeout bounds gates whose config names no timeout.
const defaultTimeout = 24 * time.Hour

// Auditor records gate transitions. The audit sink implements it.
type Auditor interface {
	LogApproval(ctx context.Context, ref audit.Ref, status types.ApprovalStatus, message string) error
}

// Manager owns the approval gate lifecycle. It implements the executor's
// ApprovalGate interface.
type Manager struct {
	approvals store.ApprovalRepository
	bus       *eventbus.Bus
	metrics   *metrics.Collector
	auditor   Auditor
	logger    *zap.Logger

	now func() time.Time
}

// NewManager wires the approval manager. collector and auditor may be nil.
func NewManager(approvals store.ApprovalRepository, bus *eventbus.Bus, collector *metrics.Collector, auditor Auditor, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = eventbus.New(logger)
	}
	return &Manager{
		approvals: approvals,
		bus:       bus,
		metrics:   collector,
		auditor:   auditor,
		logger:    logger.With(zap.String("component", "approval_manager")),
		now:       time.Now,
	}
}

// Open creates a pending gate for the given step attempt from the step's
// approval config. A missing config opens a single-approval gate with the
// default timeout.
func (m *Manager) Open(ctx context.Context, exec *types.WorkflowExecution, step types.WorkflowStep, stepExecID string) (*types.Approval, error) {
	cfg := step.Approval
	if cfg == nil {
		cfg = &types.ApprovalConfig{MinApprovals: 1}
	}

	minApprovals := cfg.MinApprovals
	if minApprovals <= 0 {
		minApprovals = 1
	}
	timeout := defaultTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}

	approvers := make([]types.ApproverState, 0, len(cfg.Approvers))
	for _, name := range cfg.Approvers {
		approvers = append(approvers, types.ApproverState{
			Approver: name,
			Decision: types.DecisionPending,
		})
	}

	now := m.now()
	approval := &types.Approval{
		ID:              uuid.NewString(),
		ExecutionID:     exec.ID,
		StepID:          step.ID,
		StepExecutionID: stepExecID,
		Status:          types.ApprovalPending,
		Approvers:       approvers,
		MinApprovals:    minApprovals,
		ExpiresAt:       now.Add(timeout),
		Escalation:      cfg.Escalation,
		CreatedAt:       now,
	}
	if err := m.approvals.Create(ctx, approval); err != nil {
		return nil, err
	}

	m.audit(ctx, approval, "approval gate opened")
	m.logger.Info("approval gate opened",
		zap.String("approval_id", approval.ID),
		zap.String("execution_id", exec.ID),
		zap.String("step_id", step.ID),
		zap.Int("min_approvals", minApprovals),
	)
	return approval, nil
}

// Get loads one gate.
func (m *Manager) Get(ctx context.Context, id string) (*types.Approval, error) {
	approval, err := m.approvals.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, types.NewError(types.ErrNotFound, "approval not found").WithDetail("approval_id", id)
	}
	return approval, err
}

// ListPending returns the open gates on one execution.
func (m *Manager) ListPending(ctx context.Context, executionID string) ([]*types.Approval, error) {
	return m.approvals.ListPending(ctx, executionID)
}

// Respond records one approver's decision and resolves the gate when it
// tips: any rejection rejects, min approvals grant. Unknown approvers are
// refused on gates with a named approver list; gates without one accept
// any responder.
func (m *Manager) Respond(ctx context.Context, approvalID, approver string, approve bool, comment string) (*types.Approval, error) {
	approval, err := m.Get(ctx, approvalID)
	if err != nil {
		return nil, err
	}

	switch approval.Status {
	case types.ApprovalPending, types.ApprovalEscalated:
	case types.ApprovalExpired:
		return nil, types.NewError(types.ErrApprovalTimeout, "approval gate expired").
			WithExecution(approval.ExecutionID).
			WithDetail("approval_id", approvalID)
	default:
		return nil, types.NewError(types.ErrValidationFailed, "approval already resolved").
			WithDetail("approval_id", approvalID).
			WithDetail("status", approval.Status)
	}

	if m.now().After(approval.ExpiresAt) {
		return nil, types.NewError(types.ErrApprovalTimeout, "approval gate expired").
			WithExecution(approval.ExecutionID).
			WithDetail("approval_id", approvalID)
	}

	decision := types.DecisionRejected
	if approve {
		decision = types.DecisionApproved
	}
	now := m.now()

	found := false
	for i := range approval.Approvers {
		if approval.Approvers[i].Approver != approver {
			continue
		}
		if approval.Approvers[i].Decision != types.DecisionPending {
			return nil, types.NewError(types.ErrValidationFailed, "approver already decided").
				WithDetail("approval_id", approvalID).
				WithDetail("approver", approver)
		}
		approval.Approvers[i].Decision = decision
		approval.Approvers[i].Comment = comment
		approval.Approvers[i].DecidedAt = &now
		found = true
		break
	}
	if !found {
		if len(approval.Approvers) > 0 {
			return nil, types.NewError(types.ErrValidationFailed, "approver not on this gate").
				WithDetail("approval_id", approvalID).
				WithDetail("approver", approver)
		}
		approval.Approvers = append(approval.Approvers, types.ApproverState{
			Approver:  approver,
			Decision:  decision,
			Comment:   comment,
			DecidedAt: &now,
		})
	}

	switch {
	case approval.RejectedBy():
		m.resolve(approval, types.ApprovalRejected, now)
	case approval.Approved():
		m.resolve(approval, types.ApprovalGranted, now)
	}

	if err := m.approvals.Update(ctx, approval); err != nil {
		return nil, err
	}

	switch approval.Status {
	case types.ApprovalGranted:
		m.publish(types.EventApprovalGranted, approval, nil)
		m.record("granted")
		m.audit(ctx, approval, "approval granted by "+approver)
	case types.ApprovalRejected:
		m.publish(types.EventApprovalRejected, approval, nil)
		m.record("rejected")
		m.audit(ctx, approval, "approval rejected by "+approver)
	}

	m.logger.Info("approval decision recorded",
		zap.String("approval_id", approvalID),
		zap.String("approver", approver),
		zap.Bool("approved", approve),
		zap.String("status", string(approval.Status)),
	)
	return approval, nil
}

// SweepExpired resolves every gate past its expiry: gates with an
// escalation config reroute to the fallback approver with a fresh window,
// the rest expire and reject their run on resume. Returns the number of
// gates touched.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	now := m.now()
	expired, err := m.approvals.ListExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	touched := 0
	for _, approval := range expired {
		if approval.Status != types.ApprovalPending && approval.Status != types.ApprovalEscalated {
			continue
		}

		if approval.Status == types.ApprovalPending && approval.Escalation != nil {
			m.escalate(approval, now)
		} else {
			m.resolve(approval, types.ApprovalExpired, now)
		}

		if err := m.approvals.Update(ctx, approval); err != nil {
			m.logger.Error("sweep update failed",
				zap.String("approval_id", approval.ID),
				zap.Error(err),
			)
			continue
		}
		touched++

		if approval.Status == types.ApprovalExpired {
			m.publish(types.EventApprovalRejected, approval, map[string]any{"reason": "expired"})
			m.record("expired")
			m.audit(ctx, approval, "approval gate expired")
		} else {
			m.publish(types.EventApprovalRequired, approval, map[string]any{"escalated_to": approval.Escalation.Target})
			m.record("escalated")
			m.audit(ctx, approval, "approval escalated to "+approval.Escalation.Target)
		}
	}
	return touched, nil
}

// RunSweeper sweeps on the given interval until the context ends. Meant to
// run as a daemon goroutine.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.SweepExpired(ctx); err != nil {
				m.logger.Error("approval sweep failed", zap.Error(err))
			}
		}
	}
}

// escalate reroutes an expired gate to its fallback approver and restarts
// the expiry window after the configured delay. A second expiry has no
// escalation left and resolves to expired.
func (m *Manager) escalate(approval *types.Approval, now time.Time) {
	esc := approval.Escalation
	approval.Status = types.ApprovalEscalated
	approval.Approvers = append(approval.Approvers, types.ApproverState{
		Approver: esc.Target,
		Decision: types.DecisionPending,
	})
	window := time.Duration(esc.DelayMs) * time.Millisecond
	if window <= 0 {
		window = defaultTimeout
	}
	approval.ExpiresAt = now.Add(window)
	m.logger.Info("approval escalated",
		zap.String("approval_id", approval.ID),
		zap.String("target", esc.Target),
	)
}

func (m *Manager) resolve(approval *types.Approval, status types.ApprovalStatus, now time.Time) {
	approval.Status = status
	approval.ResolvedAt = &now
}

func (m *Manager) publish(kind types.EventType, approval *types.Approval, data map[string]any) {
	event := types.NewEvent(kind)
	event.ExecutionID = approval.ExecutionID
	event.StepID = approval.StepID
	event.Data = data
	m.bus.Publish(event)
}

// audit appends a gate transition to the audit trail. Audit failures are
// logged, never fatal to the gate.
func (m *Manager) audit(ctx context.Context, approval *types.Approval, message string) {
	if m.auditor == nil {
		return
	}
	ref := audit.Ref{
		ExecutionID: approval.ExecutionID,
		StepID:      approval.StepID,
	}
	if err := m.auditor.LogApproval(ctx, ref, approval.Status, message); err != nil {
		m.logger.Warn("audit append failed", zap.Error(err))
	}
}

func (m *Manager) record(outcome string) {
	if m.metrics != nil {
		m.metrics.RecordApproval(outcome)
	}
}
