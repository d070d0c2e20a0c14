package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/openfleet/flowcore/types"
)

// OpenSQL opens a gorm-backed store bundle. Backend selects the driver:
// sqlite (pure-Go driver, DSN is a file path or ":memory:") or postgres.
// The schema is migrated on open.
func OpenSQL(backend Backend, dsn string) (*Stores, error) {
	var dialector gorm.Dialector
	switch backend {
	case BackendSQLite:
		dialector = sqlite.Open(dsn)
	case BackendPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql backend %q", backend)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", backend, err)
	}
	if err := db.AutoMigrate(
		&types.Workflow{},
		&types.Agent{},
		&types.WorkflowExecution{},
		&types.Approval{},
		&types.AuditLogEntry{},
	); err != nil {
		return nil, fmt.Errorf("migrate %s store: %w", backend, err)
	}

	return &Stores{
		Workflows:  &gormWorkflows{db: db},
		Agents:     &gormAgents{db: db},
		Executions: &gormExecutions{db: db},
		Approvals:  &gormApprovals{db: db},
		Audit:      &gormAudit{db: db},
	}, nil
}

func translateErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

type gormWorkflows struct{ db *gorm.DB }

func (s *gormWorkflows) Create(ctx context.Context, wf *types.Workflow) error {
	return s.db.WithContext(ctx).Create(wf).Error
}

func (s *gormWorkflows) Get(ctx context.Context, id string) (*types.Workflow, error) {
	var wf types.Workflow
	if err := s.db.WithContext(ctx).First(&wf, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &wf, nil
}

func (s *gormWorkflows) Update(ctx context.Context, wf *types.Workflow) error {
	res := s.db.WithContext(ctx).Model(&types.Workflow{}).Where("id = ?", wf.ID).Updates(wf)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormWorkflows) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&types.Workflow{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormWorkflows) List(ctx context.Context) ([]*types.Workflow, error) {
	var out []*types.Workflow
	err := s.db.WithContext(ctx).Order("created_at").Find(&out).Error
	return out, err
}

type gormAgents struct{ db *gorm.DB }

func (s *gormAgents) Create(ctx context.Context, agent *types.Agent) error {
	return s.db.WithContext(ctx).Create(agent).Error
}

func (s *gormAgents) Get(ctx context.Context, id string) (*types.Agent, error) {
	var agent types.Agent
	if err := s.db.WithContext(ctx).First(&agent, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &agent, nil
}

func (s *gormAgents) Update(ctx context.Context, agent *types.Agent) error {
	res := s.db.WithContext(ctx).Model(&types.Agent{}).Where("id = ?", agent.ID).Updates(agent)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormAgents) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&types.Agent{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormAgents) List(ctx context.Context) ([]*types.Agent, error) {
	var out []*types.Agent
	err := s.db.WithContext(ctx).Order("created_at").Find(&out).Error
	return out, err
}

type gormExecutions struct{ db *gorm.DB }

func (s *gormExecutions) Create(ctx context.Context, exec *types.WorkflowExecution) error {
	return s.db.WithContext(ctx).Create(exec).Error
}

func (s *gormExecutions) Get(ctx context.Context, id string) (*types.WorkflowExecution, error) {
	var exec types.WorkflowExecution
	if err := s.db.WithContext(ctx).First(&exec, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &exec, nil
}

func (s *gormExecutions) Update(ctx context.Context, exec *types.WorkflowExecution) error {
	// Save rather than Updates: zero-valued fields (cleared approvals,
	// terminal timestamps) must persist too.
	res := s.db.WithContext(ctx).Save(exec)
	if res.Error != nil {
		return res.Error
	}
	return nil
}

func (s *gormExecutions) List(ctx context.Context, workflowID string) ([]*types.WorkflowExecution, error) {
	q := s.db.WithContext(ctx).Order("started_at")
	if workflowID != "" {
		q = q.Where("workflow_id = ?", workflowID)
	}
	var out []*types.WorkflowExecution
	err := q.Find(&out).Error
	return out, err
}

func (s *gormExecutions) CountActiveByAgent(ctx context.Context, agentID string) (int, error) {
	// Step attempts live in a serialized JSON column, so the agent match
	// happens client-side over the non-terminal rows.
	var active []*types.WorkflowExecution
	err := s.db.WithContext(ctx).
		Where("status NOT IN ?", []string{
			string(types.ExecutionCompleted),
			string(types.ExecutionFailed),
			string(types.ExecutionCancelled),
		}).
		Find(&active).Error
	if err != nil {
		return 0, err
	}
	count := 0
	for _, exec := range active {
		for _, se := range exec.StepExecutions {
			if se.AgentID == agentID {
				count++
				break
			}
		}
	}
	return count, nil
}

type gormApprovals struct{ db *gorm.DB }

func (s *gormApprovals) Create(ctx context.Context, approval *types.Approval) error {
	return s.db.WithContext(ctx).Create(approval).Error
}

func (s *gormApprovals) Get(ctx context.Context, id string) (*types.Approval, error) {
	var approval types.Approval
	if err := s.db.WithContext(ctx).First(&approval, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &approval, nil
}

func (s *gormApprovals) Update(ctx context.Context, approval *types.Approval) error {
	return s.db.WithContext(ctx).Save(approval).Error
}

func (s *gormApprovals) ListPending(ctx context.Context, executionID string) ([]*types.Approval, error) {
	q := s.db.WithContext(ctx).
		Where("status IN ?", []string{string(types.ApprovalPending), string(types.ApprovalEscalated)}).
		Order("created_at")
	if executionID != "" {
		q = q.Where("execution_id = ?", executionID)
	}
	var out []*types.Approval
	err := q.Find(&out).Error
	return out, err
}

func (s *gormApprovals) ListExpired(ctx context.Context, now time.Time) ([]*types.Approval, error) {
	var out []*types.Approval
	err := s.db.WithContext(ctx).
		Where("status IN ? AND expires_at < ?", []string{string(types.ApprovalPending), string(types.ApprovalEscalated)}, now).
		Find(&out).Error
	return out, err
}

type gormAudit struct{ db *gorm.DB }

func (s *gormAudit) Append(ctx context.Context, entry *types.AuditLogEntry) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *gormAudit) Query(ctx context.Context, filter AuditFilter) ([]*types.AuditLogEntry, error) {
	q := s.db.WithContext(ctx).Model(&types.AuditLogEntry{}).Order("timestamp DESC")
	if filter.AgentID != "" {
		q = q.Where("agent_id = ?", filter.AgentID)
	}
	if filter.ExecutionID != "" {
		q = q.Where("execution_id = ?", filter.ExecutionID)
	}
	if filter.WorkflowID != "" {
		q = q.Where("workflow_id = ?", filter.WorkflowID)
	}
	if filter.OrganizationID != "" {
		q = q.Where("organization_id = ?", filter.OrganizationID)
	}
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", string(filter.Category))
	}
	if filter.Level != "" {
		q = q.Where("level = ?", string(filter.Level))
	}
	if !filter.From.IsZero() {
		q = q.Where("timestamp >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("timestamp <= ?", filter.To)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var out []*types.AuditLogEntry
	err := q.Find(&out).Error
	return out, err
}

func (s *gormAudit) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&types.AuditLogEntry{})
	return res.RowsAffected, res.Error
}
