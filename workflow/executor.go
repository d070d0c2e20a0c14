package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openfleet/flowcore/audit"
	"github.com/openfleet/flowcore/condition"
	"github.com/openfleet/flowcore/eventbus"
	"github.com/openfleet/flowcore/internal/metrics"
	"github.com/openfleet/flowcore/store"
	"github.com/openfleet/flowcore/types"
)

// DispatchRequest asks the step dispatcher to run one step on its agent.
type DispatchRequest struct {
	AgentID        string
	AgentType      string
	ExecutionID    string
	WorkflowID     string
	StepID         string
	OrganizationID string
	UserID         string
	Input          map[string]any
	TimeoutMs      int
	Retry          *types.RetryPolicy
}

// DispatchResult is the dispatcher's successful outcome for one step.
type DispatchResult struct {
	Output     map[string]any
	Confidence float64
	Level      types.ConfidenceLevel
	Usage      types.TokenUsage
	Retries    int
}

// StepDispatcher executes one step against its agent. The dispatch package
// provides the production implementation.
type StepDispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error)
}

// Auditor records run-level lifecycle transitions and failures. The audit
// sink implements it.
type Auditor interface {
	LogWorkflowExecution(ctx context.Context, ref audit.Ref, status types.ExecutionStatus, message string) error
	LogError(ctx context.Context, ref audit.Ref, err error) error
}

// ApprovalGate opens and resolves human gates on steps that require
// approval. The approval package provides the production implementation.
type ApprovalGate interface {
	Open(ctx context.Context, exec *types.WorkflowExecution, step types.WorkflowStep, stepExecID string) (*types.Approval, error)
	Get(ctx context.Context, id string) (*types.Approval, error)
}

// RunRequest starts one workflow execution.
type RunRequest struct {
	WorkflowID     string
	OrganizationID string
	UserID         string
	Variables      map[string]any
}

// RunResult summarizes a run after the scheduler can make no further
// progress: terminal, paused on approvals, or cancelled.
type RunResult struct {
	ExecutionID      string
	Status           types.ExecutionStatus
	Variables        map[string]any
	Steps            []types.StepExecution
	PendingApprovals []string
}

// Executor drives the dependency scheduler and the step dispatcher across
// a full run using a ready-queue loop: execute every currently-eligible
// step (concurrently where steps are marked parallel), join, fold outputs
// into the variable bag, then re-evaluate the ready set until it empties
// or a step fails.
type Executor struct {
	definitions *Service
	executions  store.ExecutionRepository
	dispatcher  StepDispatcher
	approvals   ApprovalGate
	auditor     Auditor
	bus         *eventbus.Bus
	metrics     *metrics.Collector
	logger      *zap.Logger
	tracer      trace.Tracer

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewExecutor wires the executor. approvals, auditor and collector may be
// nil when the deployment uses no approval gates, audit trail or metrics.
func NewExecutor(
	definitions *Service,
	executions store.ExecutionRepository,
	dispatcher StepDispatcher,
	approvals ApprovalGate,
	auditor Auditor,
	bus *eventbus.Bus,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = eventbus.New(logger)
	}
	return &Executor{
		definitions: definitions,
		executions:  executions,
		dispatcher:  dispatcher,
		approvals:   approvals,
		auditor:     auditor,
		bus:         bus,
		metrics:     collector,
		logger:      logger.With(zap.String("component", "workflow_executor")),
		tracer:      otel.Tracer("flowcore/workflow"),
		cancels:     make(map[string]context.CancelFunc),
	}
}

// runState is the in-flight state of one run. mu serializes every mutation
// of exec; there is exactly one writer at a time even when a parallel
// batch is in flight.
type runState struct {
	wf      *types.Workflow
	exec    *types.WorkflowExecution
	mu      sync.Mutex
	skipped map[string]bool
	paused  bool
	failed  bool
}

// Run loads the workflow, snapshots it into a fresh execution and drives
// the ready-queue loop to a terminal or paused state. Workflow defaults
// merge with caller variables; the caller wins on conflict.
func (e *Executor) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	wf, err := e.definitions.Get(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	variables := make(map[string]any, len(wf.Variables)+len(req.Variables))
	for k, v := range wf.Variables {
		variables[k] = v
	}
	for k, v := range req.Variables {
		variables[k] = v
	}

	exec := &types.WorkflowExecution{
		ID:             uuid.NewString(),
		WorkflowID:     wf.ID,
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
		Status:         types.ExecutionRunning,
		Variables:      variables,
		Snapshot:       wf,
		StartedAt:      time.Now(),
	}
	if err := e.executions.Create(ctx, exec); err != nil {
		return nil, types.NewError(types.ErrWorkflowExecutionFailed, "create execution").
			WithExecution(exec.ID).
			WithCause(err)
	}

	e.publish(types.EventWorkflowStarted, wf, exec, "")
	e.auditRun(ctx, exec, types.ExecutionRunning, "workflow execution started")
	e.logger.Info("workflow started",
		zap.String("workflow_id", wf.ID),
		zap.String("execution_id", exec.ID),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.trackCancel(exec.ID, cancel)
	defer e.untrackCancel(exec.ID)

	ctx, span := e.tracer.Start(runCtx, "workflow.run",
		trace.WithAttributes(
			attribute.String("workflow.id", wf.ID),
			attribute.String("execution.id", exec.ID),
		),
	)
	defer span.End()

	st := &runState{wf: wf, exec: exec, skipped: make(map[string]bool)}
	e.runLoop(ctx, st)
	return e.finalize(ctx, st), nil
}

// Cancel flips the execution to cancelled, aborts its in-flight context so
// pending completion calls stop, and emits the cancellation event. A call
// already past its completion when cancel lands is discarded by the write
// guard, not rolled back.
func (e *Executor) Cancel(ctx context.Context, executionID string) error {
	exec, err := e.executions.Get(ctx, executionID)
	if err != nil {
		return types.NewError(types.ErrNotFound, "execution not found").WithExecution(executionID)
	}
	if exec.Status.Terminal() {
		return types.NewError(types.ErrExecutionCancelled, "execution already terminal").
			WithExecution(executionID).
			WithDetail("status", exec.Status)
	}

	now := time.Now()
	exec.Status = types.ExecutionCancelled
	exec.CompletedAt = &now
	if err := e.executions.Update(ctx, exec); err != nil {
		return err
	}

	e.mu.Lock()
	if cancel, ok := e.cancels[executionID]; ok {
		cancel()
	}
	e.mu.Unlock()

	event := types.NewEvent(types.EventExecutionCancelled)
	event.ExecutionID = executionID
	event.WorkflowID = exec.WorkflowID
	e.bus.Publish(event)
	e.auditRun(ctx, exec, types.ExecutionCancelled, "workflow execution cancelled")
	e.logger.Info("execution cancelled", zap.String("execution_id", executionID))
	return nil
}

// Resume continues a run paused on approvals: granted gates dispatch their
// step, rejected or expired gates fail it, still-pending gates keep the
// run paused.
func (e *Executor) Resume(ctx context.Context, executionID string) (*RunResult, error) {
	exec, err := e.executions.Get(ctx, executionID)
	if err != nil {
		return nil, types.NewError(types.ErrNotFound, "execution not found").WithExecution(executionID)
	}
	if exec.Status != types.ExecutionPaused {
		return nil, types.NewError(types.ErrWorkflowExecutionFailed, "execution is not paused").
			WithExecution(executionID).
			WithDetail("status", exec.Status)
	}
	wf := exec.Snapshot
	if wf == nil {
		if wf, err = e.definitions.Get(ctx, exec.WorkflowID); err != nil {
			return nil, err
		}
		exec.Snapshot = wf
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.trackCancel(exec.ID, cancel)
	defer e.untrackCancel(exec.ID)

	st := &runState{wf: wf, exec: exec, skipped: make(map[string]bool)}

	var remaining []string
	stillPending := false
	for _, approvalID := range exec.PendingApprovals {
		approval, err := e.approvals.Get(ctx, approvalID)
		if err != nil {
			return nil, err
		}
		switch approval.Status {
		case types.ApprovalGranted:
			step, ok := wf.Step(approval.StepID)
			if !ok {
				continue
			}
			if err := e.dispatchStep(runCtx, st, step); err != nil {
				break
			}
		case types.ApprovalRejected, types.ApprovalExpired:
			e.failStep(runCtx, st, approval.StepID, "approval "+string(approval.Status))
		default:
			stillPending = true
			remaining = append(remaining, approvalID)
		}
	}

	st.mu.Lock()
	exec.PendingApprovals = remaining
	st.mu.Unlock()

	if stillPending {
		return e.finalize(runCtx, st), nil
	}

	st.mu.Lock()
	exec.Status = types.ExecutionRunning
	st.mu.Unlock()

	e.runLoop(runCtx, st)
	return e.finalize(runCtx, st), nil
}

// runLoop executes ready batches until no step is eligible, a step fails,
// an approval pauses the run, or the context is cancelled.
func (e *Executor) runLoop(ctx context.Context, st *runState) {
	for {
		if ctx.Err() != nil || st.failed || st.paused {
			return
		}
		ready := e.readySteps(ctx, st)
		if len(ready) == 0 {
			return
		}
		e.executeBatch(ctx, st, ready)
	}
}

// readySteps computes the currently-eligible steps: never attempted, every
// dependency completed, conditions true. A step whose conditions evaluate
// false once its dependencies completed is skipped permanently and never
// appears in the execution's step attempts; skips cascade, so a dependent
// of a skipped step skips too. The scan repeats until a pass marks no new
// skip, otherwise a chain behind a skipped step would strand the run.
func (e *Executor) readySteps(ctx context.Context, st *runState) []types.WorkflowStep {
	st.mu.Lock()
	defer st.mu.Unlock()

	for {
		var ready []types.WorkflowStep
		marked := false
		for _, step := range st.wf.Steps {
			if st.skipped[step.ID] {
				continue
			}
			if _, attempted := st.exec.StepExecutionFor(step.ID); attempted {
				continue
			}
			if dep, hit := skippedDep(step, st.skipped); hit {
				e.skipStepLocked(st, step.ID, "step skipped: dependency "+dep+" skipped")
				marked = true
				continue
			}
			if !depsCompleted(step, st.exec) {
				continue
			}
			if !condition.Evaluate(step.Conditions, st.exec.Variables) {
				e.skipStepLocked(st, step.ID, "step skipped: conditions not met")
				marked = true
				continue
			}
			ready = append(ready, step)
		}
		if len(ready) > 0 || !marked {
			sortByOrder(ready)
			return ready
		}
	}
}

// skipStepLocked marks a step permanently skipped and records the reason
// on the execution log. Callers hold st.mu.
func (e *Executor) skipStepLocked(st *runState, stepID, reason string) {
	st.skipped[stepID] = true
	st.exec.Log = append(st.exec.Log, types.ExecutionLogEntry{
		Timestamp: time.Now(),
		StepID:    stepID,
		Message:   reason,
	})
	e.logger.Debug("step skipped",
		zap.String("execution_id", st.exec.ID),
		zap.String("step_id", stepID),
		zap.String("reason", reason),
	)
}

func skippedDep(step types.WorkflowStep, skipped map[string]bool) (string, bool) {
	for _, dep := range step.Dependencies {
		if skipped[dep] {
			return dep, true
		}
	}
	return "", false
}

// executeBatch runs one ready batch: steps marked parallel dispatch
// concurrently, the rest run sequentially in order. The batch joins before
// the ready set is re-evaluated.
func (e *Executor) executeBatch(ctx context.Context, st *runState, batch []types.WorkflowStep) {
	var parallel, sequential []types.WorkflowStep
	for _, step := range batch {
		if step.IsParallel {
			parallel = append(parallel, step)
		} else {
			sequential = append(sequential, step)
		}
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for _, step := range parallel {
		step := step
		g.Go(func() error {
			err := e.executeStep(groupCtx, st, step)
			if errors.Is(err, errRunPaused) {
				// A pause must not cancel sibling dispatches already in
				// flight; they finish and the run pauses at the join.
				return nil
			}
			return err
		})
	}
	for _, step := range sequential {
		st.mu.Lock()
		halted := st.failed || st.paused
		st.mu.Unlock()
		if halted {
			break
		}
		if err := e.executeStep(ctx, st, step); err != nil {
			break
		}
	}
	// A failed parallel sibling surfaces through st.failed; the join only
	// ensures no step is still writing when the ready set is recomputed.
	_ = g.Wait()
}

// executeStep gates on approval when required, then dispatches.
func (e *Executor) executeStep(ctx context.Context, st *runState, step types.WorkflowStep) error {
	if step.RequiresApproval {
		return e.openApprovalGate(ctx, st, step)
	}
	return e.dispatchStep(ctx, st, step)
}

// dispatchStep performs one attempt: builds the input from the step's
// input mapping, delegates to the dispatcher, and folds the mapped outputs
// back into the variable bag. Dispatch errors surface as a failed attempt,
// never as an error escaping the run loop.
func (e *Executor) dispatchStep(ctx context.Context, st *runState, step types.WorkflowStep) error {
	ctx, span := e.tracer.Start(ctx, "workflow.step",
		trace.WithAttributes(attribute.String("step.id", step.ID)),
	)
	defer span.End()

	se := types.StepExecution{
		ID:        uuid.NewString(),
		StepID:    step.ID,
		AgentID:   step.AgentID,
		Status:    types.StepRunning,
		StartedAt: time.Now(),
	}

	st.mu.Lock()
	se.Input = buildInput(step, st.exec.Variables)
	st.exec.StepExecutions = append(st.exec.StepExecutions, se)
	e.persistLocked(ctx, st)
	st.mu.Unlock()

	e.publish(types.EventStepStarted, st.wf, st.exec, step.ID)

	result, dispatchErr := e.dispatcher.Dispatch(ctx, DispatchRequest{
		AgentID:        step.AgentID,
		AgentType:      step.AgentType,
		ExecutionID:    st.exec.ID,
		WorkflowID:     st.wf.ID,
		StepID:         step.ID,
		OrganizationID: st.exec.OrganizationID,
		UserID:         st.exec.UserID,
		Input:          se.Input,
		TimeoutMs:      step.TimeoutMs,
		Retry:          step.Retry,
	})

	st.mu.Lock()
	defer st.mu.Unlock()

	// Cancellation may have landed while the completion call was in
	// flight; re-check before mutating shared state.
	if e.cancelledLocked(ctx, st) {
		return errRunCancelled
	}

	attempt := findAttempt(st.exec, se.ID)
	now := time.Now()
	attempt.CompletedAt = &now
	attempt.DurationMs = now.Sub(attempt.StartedAt).Milliseconds()

	if dispatchErr != nil {
		attempt.Status = types.StepFailed
		attempt.Error = dispatchErr.Error()
		st.failed = true
		e.persistLocked(ctx, st)
		e.recordStep(step.AgentID, string(types.StepFailed), attempt)
		e.publish(types.EventStepFailed, st.wf, st.exec, step.ID)
		e.auditStepError(ctx, st.exec, step.ID, step.AgentID, dispatchErr)
		e.logger.Warn("step failed",
			zap.String("execution_id", st.exec.ID),
			zap.String("step_id", step.ID),
			zap.Error(dispatchErr),
		)
		return errStepFailed
	}

	attempt.Status = types.StepCompleted
	attempt.Output = result.Output
	attempt.Confidence = result.Confidence
	attempt.Level = result.Level
	attempt.Usage = result.Usage
	attempt.RetryCount = result.Retries
	applyOutputs(step, result.Output, st.exec.Variables)
	e.persistLocked(ctx, st)
	e.recordStep(step.AgentID, string(types.StepCompleted), attempt)
	e.publish(types.EventStepCompleted, st.wf, st.exec, step.ID)
	return nil
}

// openApprovalGate records a waiting attempt, opens the gate and pauses
// the run.
func (e *Executor) openApprovalGate(ctx context.Context, st *runState, step types.WorkflowStep) error {
	if e.approvals == nil {
		e.failStep(ctx, st, step.ID, "step requires approval but no approval gate is configured")
		return errStepFailed
	}

	se := types.StepExecution{
		ID:        uuid.NewString(),
		StepID:    step.ID,
		AgentID:   step.AgentID,
		Status:    types.StepWaitingApproval,
		StartedAt: time.Now(),
	}

	st.mu.Lock()
	se.Input = buildInput(step, st.exec.Variables)
	st.exec.StepExecutions = append(st.exec.StepExecutions, se)
	st.mu.Unlock()

	approval, err := e.approvals.Open(ctx, st.exec, step, se.ID)
	if err != nil {
		e.failStep(ctx, st, step.ID, "open approval gate: "+err.Error())
		return errStepFailed
	}

	st.mu.Lock()
	st.exec.PendingApprovals = append(st.exec.PendingApprovals, approval.ID)
	st.exec.Status = types.ExecutionPaused
	st.paused = true
	e.persistLocked(ctx, st)
	st.mu.Unlock()

	e.publish(types.EventApprovalRequired, st.wf, st.exec, step.ID)
	e.logger.Info("execution paused on approval",
		zap.String("execution_id", st.exec.ID),
		zap.String("step_id", step.ID),
		zap.String("approval_id", approval.ID),
	)
	return errRunPaused
}

// failStep records a failed attempt without dispatching.
func (e *Executor) failStep(ctx context.Context, st *runState, stepID, reason string) {
	now := time.Now()
	st.mu.Lock()
	step, _ := st.wf.Step(stepID)
	st.exec.StepExecutions = append(st.exec.StepExecutions, types.StepExecution{
		ID:          uuid.NewString(),
		StepID:      stepID,
		AgentID:     step.AgentID,
		Status:      types.StepFailed,
		Error:       reason,
		StartedAt:   now,
		CompletedAt: &now,
	})
	st.failed = true
	e.persistLocked(ctx, st)
	st.mu.Unlock()
	e.publish(types.EventStepFailed, st.wf, st.exec, stepID)
	e.auditStepError(ctx, st.exec, stepID, step.AgentID,
		types.NewError(types.ErrWorkflowExecutionFailed, reason).
			WithExecution(st.exec.ID).
			WithStep(stepID))
}

// finalize derives the terminal (or paused) status, stamps the completion
// time on success and publishes the workflow-level outcome.
func (e *Executor) finalize(ctx context.Context, st *runState) *RunResult {
	st.mu.Lock()
	exec := st.exec

	if exec.Status != types.ExecutionCancelled {
		status := Status(st.wf, exec, st.skipped)
		exec.Status = status
		if status == types.ExecutionCompleted {
			now := time.Now()
			exec.CompletedAt = &now
		}
		e.persistLocked(ctx, st)
	}

	result := &RunResult{
		ExecutionID:      exec.ID,
		Status:           exec.Status,
		Variables:        copyVars(exec.Variables),
		Steps:            append([]types.StepExecution(nil), exec.StepExecutions...),
		PendingApprovals: append([]string(nil), exec.PendingApprovals...),
	}
	status := exec.Status
	st.mu.Unlock()

	switch status {
	case types.ExecutionCompleted:
		e.publish(types.EventWorkflowCompleted, st.wf, exec, "")
		e.auditRun(ctx, exec, status, "workflow execution completed")
	case types.ExecutionFailed:
		e.publish(types.EventWorkflowFailed, st.wf, exec, "")
		e.auditRun(ctx, exec, status, "workflow execution failed")
	}
	if status.Terminal() && e.metrics != nil {
		e.metrics.RecordWorkflowRun(st.wf.ID, string(status))
	}
	e.logger.Info("workflow run finished",
		zap.String("execution_id", exec.ID),
		zap.String("status", string(status)),
		zap.Int("progress", Progress(st.wf, exec, st.skipped)),
	)
	return result
}

// cancelledLocked re-reads the persisted status so a cancel issued from
// another goroutine (or process, with a shared store) is honored before
// any write. Callers hold st.mu.
func (e *Executor) cancelledLocked(ctx context.Context, st *runState) bool {
	if st.exec.Status == types.ExecutionCancelled {
		return true
	}
	stored, err := e.executions.Get(context.WithoutCancel(ctx), st.exec.ID)
	if err == nil && stored.Status == types.ExecutionCancelled {
		st.exec.Status = types.ExecutionCancelled
		st.exec.CompletedAt = stored.CompletedAt
		return true
	}
	return false
}

// persistLocked stores the execution snapshot. Persistence failures are
// logged, not fatal: the in-memory run remains authoritative for the rest
// of the pass.
func (e *Executor) persistLocked(ctx context.Context, st *runState) {
	if err := e.executions.Update(context.WithoutCancel(ctx), st.exec); err != nil {
		e.logger.Error("persist execution",
			zap.String("execution_id", st.exec.ID),
			zap.Error(err),
		)
	}
}

// auditRun appends a run-level lifecycle entry. Audit failures are logged,
// never fatal to the run.
func (e *Executor) auditRun(ctx context.Context, exec *types.WorkflowExecution, status types.ExecutionStatus, message string) {
	if e.auditor == nil {
		return
	}
	ref := audit.Ref{
		ExecutionID:    exec.ID,
		WorkflowID:     exec.WorkflowID,
		OrganizationID: exec.OrganizationID,
		UserID:         exec.UserID,
	}
	if err := e.auditor.LogWorkflowExecution(context.WithoutCancel(ctx), ref, status, message); err != nil {
		e.logger.Warn("audit append failed", zap.Error(err))
	}
}

// auditStepError files a step failure on the audit trail.
func (e *Executor) auditStepError(ctx context.Context, exec *types.WorkflowExecution, stepID, agentID string, cause error) {
	if e.auditor == nil {
		return
	}
	ref := audit.Ref{
		AgentID:        agentID,
		ExecutionID:    exec.ID,
		StepID:         stepID,
		WorkflowID:     exec.WorkflowID,
		OrganizationID: exec.OrganizationID,
		UserID:         exec.UserID,
	}
	if err := e.auditor.LogError(context.WithoutCancel(ctx), ref, cause); err != nil {
		e.logger.Warn("audit append failed", zap.Error(err))
	}
}

func (e *Executor) publish(kind types.EventType, wf *types.Workflow, exec *types.WorkflowExecution, stepID string) {
	event := types.NewEvent(kind)
	event.WorkflowID = wf.ID
	event.ExecutionID = exec.ID
	event.OrganizationID = exec.OrganizationID
	event.StepID = stepID
	e.bus.Publish(event)
}

func (e *Executor) recordStep(agentID, status string, attempt *types.StepExecution) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordStepExecution(agentID, status, float64(attempt.DurationMs)/1000, attempt.RetryCount)
	if status == string(types.StepCompleted) {
		e.metrics.RecordConfidence(agentID, attempt.Confidence)
		e.metrics.RecordTokens(agentID, attempt.Usage.PromptTokens, attempt.Usage.CompletionTokens)
	}
}

func (e *Executor) trackCancel(executionID string, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancels[executionID] = cancel
}

func (e *Executor) untrackCancel(executionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cancels, executionID)
}
