// Package audit is the append-only execution log and metrics sink: every
// execution-relevant event lands as an immutable AuditLogEntry, fans out
// on the event bus, and feeds per-agent usage aggregation.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openfleet/flowcore/eventbus"
	"github.com/openfleet/flowcore/internal/metrics"
	"github.com/openfleet/flowcore/store"
	"github.com/openfleet/flowcore/types"
)

// Ref carries the correlating ids stamped on an audit entry.
type Ref struct {
	AgentID        string
	ExecutionID    string
	StepID         string
	WorkflowID     string
	OrganizationID string
	UserID         string
}

// Sink appends audit entries and maintains usage aggregation. It also
// implements registry.TelemetrySource.
type Sink struct {
	repo    store.AuditRepository
	bus     *eventbus.Bus
	metrics *metrics.Collector
	logger  *zap.Logger

	now func() time.Time

	usage *usageTable
}

// NewSink wires the audit sink. collector may be nil.
func NewSink(repo store.AuditRepository, bus *eventbus.Bus, collector *metrics.Collector, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = eventbus.New(logger)
	}
	return &Sink{
		repo:    repo,
		bus:     bus,
		metrics: collector,
		logger:  logger.With(zap.String("component", "audit_sink")),
		now:     time.Now,
		usage:   newUsageTable(),
	}
}

// LogAgentExecution records one finished step attempt: an audit entry, the
// agent-level lifecycle event, and a usage-bucket update.
func (s *Sink) LogAgentExecution(ctx context.Context, ref Ref, se *types.StepExecution) error {
	level := types.LevelInfo
	message := "agent execution completed"
	kind := types.EventExecutionCompleted
	if se.Status == types.StepFailed {
		level = types.LevelError
		message = "agent execution failed"
		kind = types.EventExecutionFailed
	}

	data := map[string]any{
		"status":      string(se.Status),
		"confidence":  se.Confidence,
		"level":       string(se.Level),
		"tokens":      se.Usage.TotalTokens,
		"duration_ms": se.DurationMs,
		"retries":     se.RetryCount,
	}
	if se.Error != "" {
		data["error"] = se.Error
	}

	if err := s.append(ctx, level, types.CategoryAgent, ref, message, data); err != nil {
		return err
	}

	s.usage.record(ref.AgentID, s.now(), se)

	event := types.NewEvent(kind)
	event.AgentID = ref.AgentID
	event.ExecutionID = ref.ExecutionID
	event.StepID = ref.StepID
	event.WorkflowID = ref.WorkflowID
	event.OrganizationID = ref.OrganizationID
	event.Data = data
	s.bus.Publish(event)
	return nil
}

// LogWorkflowExecution records a workflow lifecycle transition.
func (s *Sink) LogWorkflowExecution(ctx context.Context, ref Ref, status types.ExecutionStatus, message string) error {
	level := types.LevelInfo
	if status == types.ExecutionFailed {
		level = types.LevelError
	}
	return s.append(ctx, level, types.CategoryWorkflow, ref, message, map[string]any{
		"status": string(status),
	})
}

// LogApproval records an approval gate transition.
func (s *Sink) LogApproval(ctx context.Context, ref Ref, status types.ApprovalStatus, message string) error {
	return s.append(ctx, types.LevelInfo, types.CategoryApproval, ref, message, map[string]any{
		"status": string(status),
	})
}

// LogSystemEvent records an engine-level occurrence outside any run.
func (s *Sink) LogSystemEvent(ctx context.Context, message string, data map[string]any) error {
	return s.append(ctx, types.LevelInfo, types.CategorySystem, Ref{}, message, data)
}

// LogError records a structured failure. The category follows the ids on
// the ref: an agent-correlated failure files under agent, the rest under
// system.
func (s *Sink) LogError(ctx context.Context, ref Ref, err error) error {
	category := types.CategorySystem
	if ref.AgentID != "" {
		category = types.CategoryAgent
	}
	data := map[string]any{
		"code":      string(types.CodeOf(err)),
		"retryable": types.IsRetryable(err),
	}
	return s.append(ctx, types.LevelError, category, ref, err.Error(), data)
}

// Logs returns audit entries matching the filter, newest first, paginated
// by the filter's offset and limit.
func (s *Sink) Logs(ctx context.Context, filter store.AuditFilter) ([]*types.AuditLogEntry, error) {
	return s.repo.Query(ctx, filter)
}

// Cleanup purges entries older than the retention window and returns the
// deleted count.
func (s *Sink) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	deleted, err := s.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.logger.Info("audit log cleaned",
		zap.Int64("deleted", deleted),
		zap.Time("cutoff", cutoff),
	)
	return deleted, nil
}

// AgentCounters supplies execution/failure counts for the registry's
// status view.
func (s *Sink) AgentCounters(ctx context.Context, agentID string) (int64, int64, error) {
	entries, err := s.repo.Query(ctx, store.AuditFilter{
		AgentID:  agentID,
		Category: types.CategoryAgent,
	})
	if err != nil {
		return 0, 0, err
	}
	var executions, failures int64
	for _, e := range entries {
		executions++
		if e.Level == types.LevelError {
			failures++
		}
	}
	return executions, failures, nil
}

func (s *Sink) append(ctx context.Context, level types.LogLevel, category types.LogCategory, ref Ref, message string, data map[string]any) error {
	entry := &types.AuditLogEntry{
		ID:             uuid.NewString(),
		Timestamp:      s.now(),
		Level:          level,
		Category:       category,
		AgentID:        ref.AgentID,
		ExecutionID:    ref.ExecutionID,
		StepID:         ref.StepID,
		WorkflowID:     ref.WorkflowID,
		OrganizationID: ref.OrganizationID,
		UserID:         ref.UserID,
		Message:        message,
		Data:           data,
	}
	if err := s.repo.Append(ctx, entry); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordAuditEntry(string(category), string(level))
	}
	return nil
}
