// Package dispatch executes single workflow steps against their agents:
// resolve the agent, consult the rate limiter, assemble the prompt from
// persona + memory + step input, call the completion service under the
// step's retry policy, score confidence, and persist the outcome to the
// memory and audit collaborators.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/openfleet/flowcore/audit"
	"github.com/openfleet/flowcore/eventbus"
	"github.com/openfleet/flowcore/llm"
	"github.com/openfleet/flowcore/llm/retry"
	"github.com/openfleet/flowcore/llm/tokenizer"
	"github.com/openfleet/flowcore/memory"
	"github.com/openfleet/flowcore/ratelimit"
	"github.com/openfleet/flowcore/types"
	"github.com/openfleet/flowcore/workflow"
)

// AgentSource resolves agent definitions. The registry implements this.
type AgentSource interface {
	GetAgent(ctx context.Context, id string) (*types.Agent, error)
}

// Auditor records dispatch outcomes. The audit sink implements this.
type Auditor interface {
	LogAgentExecution(ctx context.Context, ref audit.Ref, se *types.StepExecution) error
}

// Request is one single-agent invocation. Persona defaults apply unless
// overridden here.
type Request struct {
	AgentID        string
	AgentType      string
	CapabilityID   string
	ExecutionID    string
	WorkflowID     string
	StepID         string
	OrganizationID string
	UserID         string
	Input          map[string]any
	Temperature    *float32
	MaxTokens      *int
	TimeoutMs      int
	Retry          *types.RetryPolicy
}

// Result is a successful invocation outcome.
type Result struct {
	Output     map[string]any
	Text       string
	Confidence float64
	Level      types.ConfidenceLevel
	Usage      types.TokenUsage
	Retries    int
	DurationMs int64
}

// Orchestrator is the step dispatcher. It implements workflow.StepDispatcher.
type Orchestrator struct {
	agents       AgentSource
	provider     llm.Provider
	memory       memory.Store
	limiter      ratelimit.Limiter
	auditor      Auditor
	bus          *eventbus.Bus
	scorer       Scorer
	logger       *zap.Logger
	tracer       trace.Tracer
	defaultRetry types.RetryPolicy
}

// SetDefaultRetry overrides the policy applied when neither the step nor
// the capability declares one.
func (o *Orchestrator) SetDefaultRetry(policy types.RetryPolicy) {
	if policy.MaxAttempts > 0 {
		o.defaultRetry = policy
	}
}

// NewOrchestrator wires the dispatcher. limiter and auditor may be nil;
// scorer defaults to the heuristic.
func NewOrchestrator(
	agents AgentSource,
	provider llm.Provider,
	mem memory.Store,
	limiter ratelimit.Limiter,
	auditor Auditor,
	bus *eventbus.Bus,
	scorer Scorer,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = eventbus.New(logger)
	}
	if scorer == nil {
		scorer = HeuristicScorer{}
	}
	return &Orchestrator{
		agents:       agents,
		provider:     provider,
		memory:       mem,
		limiter:      limiter,
		auditor:      auditor,
		bus:          bus,
		scorer:       scorer,
		logger:       logger.With(zap.String("component", "dispatcher")),
		tracer:       otel.Tracer("flowcore/dispatch"),
		defaultRetry: types.DefaultRetryPolicy(),
	}
}

// Dispatch adapts the executor's step request onto Execute.
func (o *Orchestrator) Dispatch(ctx context.Context, req workflow.DispatchRequest) (*workflow.DispatchResult, error) {
	result, err := o.Execute(ctx, Request{
		AgentID:        req.AgentID,
		AgentType:      req.AgentType,
		ExecutionID:    req.ExecutionID,
		WorkflowID:     req.WorkflowID,
		StepID:         req.StepID,
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
		Input:          req.Input,
		TimeoutMs:      req.TimeoutMs,
		Retry:          req.Retry,
	})
	if err != nil {
		return nil, err
	}
	return &workflow.DispatchResult{
		Output:     result.Output,
		Confidence: result.Confidence,
		Level:      result.Level,
		Usage:      result.Usage,
		Retries:    result.Retries,
	}, nil
}

// Execute performs one agent invocation end to end. Failures at any stage
// are audited, published as execution_failed, and surface as a structured
// error with the correlating ids attached.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "dispatch.execute",
		trace.WithAttributes(
			attribute.String("agent.id", req.AgentID),
			attribute.String("step.id", req.StepID),
		),
	)
	defer span.End()

	started := time.Now()
	ref := audit.Ref{
		AgentID:        req.AgentID,
		ExecutionID:    req.ExecutionID,
		StepID:         req.StepID,
		WorkflowID:     req.WorkflowID,
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
	}

	agent, err := o.resolveAgent(ctx, req)
	if err != nil {
		return nil, o.fail(ctx, ref, started, 0, err)
	}

	o.publishStarted(ref)

	if o.limiter != nil {
		// A rate_limit constraint provisions the limiter; SetAgentLimit is
		// a no-op for an unchanged quota.
		if c, ok := agent.ConstraintOf(types.ConstraintRateLimit); ok {
			if calls, window, ok := c.RateLimit(); ok {
				o.limiter.SetAgentLimit(agent.ID, calls, window)
			}
		}
		if err := o.limiter.CheckLimit(ctx, agent.ID, req.OrganizationID); err != nil {
			return nil, o.fail(ctx, ref, started, 0, err)
		}
	}

	persona := agent.Persona
	entries, err := o.memory.Context(ctx, agent.ID, memory.ExecutionContext{
		ExecutionID:    req.ExecutionID,
		WorkflowID:     req.WorkflowID,
		OrganizationID: req.OrganizationID,
	})
	if err != nil {
		return nil, o.fail(ctx, ref, started, 0, types.NewError(types.ErrAgentExecutionFailed, "load agent context").
			WithAgent(agent.ID).
			WithRetryable(true).
			WithCause(err))
	}

	counter := tokenizer.ForModel(persona.Model)
	messages, err := assembleMessages(persona, entries, req.Input, counter)
	if err != nil {
		return nil, o.fail(ctx, ref, started, 0, types.NewError(types.ErrAgentExecutionFailed, "assemble context").
			WithAgent(agent.ID).
			WithCause(err))
	}

	chatReq := o.buildChatRequest(persona, req, agent, messages)
	retryer := retry.NewBackoffRetryer(o.retryPolicy(req, agent), o.logger)

	raw, err := retryer.DoWithResult(ctx, func() (any, error) {
		callCtx := ctx
		if chatReq.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, chatReq.Timeout)
			defer cancel()
		}
		return o.provider.Completion(callCtx, chatReq)
	})
	retries := retryer.Attempts() - 1
	if retries < 0 {
		retries = 0
	}
	if err != nil {
		return nil, o.fail(ctx, ref, started, retries, wrapDispatchErr(err, req))
	}

	resp := raw.(*llm.ChatResponse)
	score := o.scorer.Score(resp, persona)
	duration := time.Since(started)

	result := &Result{
		Output: map[string]any{
			"response":      resp.Text(),
			"model":         resp.Model,
			"finish_reason": string(resp.Finish()),
		},
		Text:       resp.Text(),
		Confidence: score,
		Level:      types.ConfidenceLevelOf(score),
		Usage:      resp.Usage,
		Retries:    retries,
		DurationMs: duration.Milliseconds(),
	}

	se := o.stepRecord(ref, req.Input, result, "")
	ec := memory.ExecutionContext{
		ExecutionID:    req.ExecutionID,
		WorkflowID:     req.WorkflowID,
		OrganizationID: req.OrganizationID,
	}
	if err := o.memory.StoreExecution(ctx, se, ec); err != nil {
		return nil, o.fail(ctx, ref, started, retries, types.NewError(types.ErrAgentExecutionFailed, "store agent context").
			WithAgent(agent.ID).
			WithRetryable(true).
			WithCause(err))
	}

	// The audit sink publishes execution_completed as part of the append;
	// without a sink (or when the append fails) the event still goes out.
	audited := false
	if o.auditor != nil {
		if err := o.auditor.LogAgentExecution(ctx, ref, se); err != nil {
			o.logger.Warn("audit append failed", zap.Error(err))
		} else {
			audited = true
		}
	}
	if !audited {
		o.publishCompleted(ref, se)
	}

	o.logger.Info("agent dispatched",
		zap.String("agent_id", agent.ID),
		zap.String("step_id", req.StepID),
		zap.Float64("confidence", score),
		zap.Int("retries", retries),
		zap.Duration("duration", duration),
	)
	return result, nil
}

// resolveAgent loads the agent and refuses inactive or type-mismatched
// targets.
func (o *Orchestrator) resolveAgent(ctx context.Context, req Request) (*types.Agent, error) {
	agent, err := o.agents.GetAgent(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}
	if !agent.IsActive {
		return nil, types.NewError(types.ErrAgentNotFound, "agent is inactive").
			WithAgent(req.AgentID).
			WithExecution(req.ExecutionID)
	}
	if req.AgentType != "" && agent.Type != req.AgentType {
		return nil, types.NewError(types.ErrAgentNotFound, "agent type mismatch").
			WithAgent(req.AgentID).
			WithDetail("want_type", req.AgentType).
			WithDetail("have_type", agent.Type)
	}
	return agent, nil
}

// buildChatRequest applies persona defaults with per-request overrides for
// temperature, max tokens and timeout. A capability timeout applies when
// the request names none.
func (o *Orchestrator) buildChatRequest(persona types.AgentPersona, req Request, agent *types.Agent, messages []types.Message) *llm.ChatRequest {
	chatReq := &llm.ChatRequest{
		Model:       persona.Model,
		Messages:    messages,
		Temperature: persona.Temperature,
		MaxTokens:   persona.MaxTokens,
	}
	if req.Temperature != nil {
		chatReq.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		chatReq.MaxTokens = *req.MaxTokens
	}

	timeoutMs := req.TimeoutMs
	if timeoutMs <= 0 && req.CapabilityID != "" {
		if capability, ok := agent.Capability(req.CapabilityID); ok {
			timeoutMs = capability.TimeoutMs
		}
	}
	if timeoutMs > 0 {
		chatReq.Timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	return chatReq
}

// retryPolicy picks the step's policy, then the capability's, then the
// engine default.
func (o *Orchestrator) retryPolicy(req Request, agent *types.Agent) types.RetryPolicy {
	if req.Retry != nil {
		return *req.Retry
	}
	if req.CapabilityID != "" {
		if capability, ok := agent.Capability(req.CapabilityID); ok && capability.Retry.MaxAttempts > 0 {
			return capability.Retry
		}
	}
	return o.defaultRetry
}

// fail audits the failure, publishes execution_failed, and returns the
// structured error the caller records on the step attempt.
func (o *Orchestrator) fail(ctx context.Context, ref audit.Ref, started time.Time, retries int, err error) error {
	se := o.stepRecord(ref, nil, &Result{
		Retries:    retries,
		DurationMs: time.Since(started).Milliseconds(),
	}, err.Error())

	audited := false
	if o.auditor != nil {
		if auditErr := o.auditor.LogAgentExecution(ctx, ref, se); auditErr != nil {
			o.logger.Warn("audit append failed", zap.Error(auditErr))
		} else {
			audited = true
		}
	}
	if !audited {
		o.publishFailed(ref, err)
	}

	o.logger.Warn("agent dispatch failed",
		zap.String("agent_id", ref.AgentID),
		zap.String("step_id", ref.StepID),
		zap.Int("retries", retries),
		zap.Error(err),
	)
	return err
}

// stepRecord synthesizes the attempt record handed to the memory and audit
// collaborators.
func (o *Orchestrator) stepRecord(ref audit.Ref, input map[string]any, result *Result, errMsg string) *types.StepExecution {
	now := time.Now()
	status := types.StepCompleted
	if errMsg != "" {
		status = types.StepFailed
	}
	return &types.StepExecution{
		ID:          uuid.NewString(),
		StepID:      ref.StepID,
		AgentID:     ref.AgentID,
		Status:      status,
		Input:       input,
		Output:      result.Output,
		Confidence:  result.Confidence,
		Level:       result.Level,
		Usage:       result.Usage,
		DurationMs:  result.DurationMs,
		RetryCount:  result.Retries,
		Error:       errMsg,
		StartedAt:   now.Add(-time.Duration(result.DurationMs) * time.Millisecond),
		CompletedAt: &now,
	}
}

func (o *Orchestrator) publishStarted(ref audit.Ref) {
	event := types.NewEvent(types.EventExecutionStarted)
	event.AgentID = ref.AgentID
	event.ExecutionID = ref.ExecutionID
	event.StepID = ref.StepID
	event.WorkflowID = ref.WorkflowID
	event.OrganizationID = ref.OrganizationID
	o.bus.Publish(event)
}

func (o *Orchestrator) publishCompleted(ref audit.Ref, se *types.StepExecution) {
	event := types.NewEvent(types.EventExecutionCompleted)
	event.AgentID = ref.AgentID
	event.ExecutionID = ref.ExecutionID
	event.StepID = ref.StepID
	event.WorkflowID = ref.WorkflowID
	event.OrganizationID = ref.OrganizationID
	event.Data = map[string]any{
		"confidence":  se.Confidence,
		"duration_ms": se.DurationMs,
		"retries":     se.RetryCount,
	}
	o.bus.Publish(event)
}

func (o *Orchestrator) publishFailed(ref audit.Ref, err error) {
	event := types.NewEvent(types.EventExecutionFailed)
	event.AgentID = ref.AgentID
	event.ExecutionID = ref.ExecutionID
	event.StepID = ref.StepID
	event.WorkflowID = ref.WorkflowID
	event.OrganizationID = ref.OrganizationID
	event.Data = map[string]any{"error": err.Error()}
	o.bus.Publish(event)
}

// wrapDispatchErr normalizes a completion failure into the engine error
// shape, preserving the retryable flag of structured causes.
func wrapDispatchErr(err error, req Request) error {
	var engineErr *types.Error
	if errors.As(err, &engineErr) {
		return err
	}
	return types.NewError(types.ErrAgentExecutionFailed, "completion call failed").
		WithAgent(req.AgentID).
		WithExecution(req.ExecutionID).
		WithStep(req.StepID).
		WithRetryable(true).
		WithCause(err)
}
