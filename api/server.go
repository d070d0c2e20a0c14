package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/openfleet/flowcore/approval"
	"github.com/openfleet/flowcore/audit"
	"github.com/openfleet/flowcore/registry"
	"github.com/openfleet/flowcore/store"
	"github.com/openfleet/flowcore/workflow"
)

// Handler bundles the engine services behind the HTTP surface.
type Handler struct {
	definitions *workflow.Service
	executor    *workflow.Executor
	executions  store.ExecutionRepository
	agents      *registry.Registry
	approvals   *approval.Manager
	sink        *audit.Sink
	logger      *zap.Logger
}

// NewHandler wires the API handler.
func NewHandler(
	definitions *workflow.Service,
	executor *workflow.Executor,
	executions store.ExecutionRepository,
	agents *registry.Registry,
	approvals *approval.Manager,
	sink *audit.Sink,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		definitions: definitions,
		executor:    executor,
		executions:  executions,
		agents:      agents,
		approvals:   approvals,
		sink:        sink,
		logger:      logger.With(zap.String("component", "api")),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/workflows", h.createWorkflow)
	mux.HandleFunc("GET /v1/workflows", h.listWorkflows)
	mux.HandleFunc("GET /v1/workflows/{id}", h.getWorkflow)
	mux.HandleFunc("PUT /v1/workflows/{id}", h.updateWorkflow)
	mux.HandleFunc("DELETE /v1/workflows/{id}", h.deleteWorkflow)

	mux.HandleFunc("POST /v1/agents", h.createAgent)
	mux.HandleFunc("GET /v1/agents", h.listAgents)
	mux.HandleFunc("GET /v1/agents/{id}", h.getAgent)
	mux.HandleFunc("PUT /v1/agents/{id}", h.updateAgent)
	mux.HandleFunc("DELETE /v1/agents/{id}", h.deleteAgent)
	mux.HandleFunc("GET /v1/agents/{id}/status", h.agentStatus)

	mux.HandleFunc("POST /v1/executions", h.runWorkflow)
	mux.HandleFunc("GET /v1/executions", h.listExecutions)
	mux.HandleFunc("GET /v1/executions/{id}", h.getExecution)
	mux.HandleFunc("POST /v1/executions/{id}/cancel", h.cancelExecution)
	mux.HandleFunc("POST /v1/executions/{id}/resume", h.resumeExecution)

	mux.HandleFunc("GET /v1/approvals", h.listApprovals)
	mux.HandleFunc("GET /v1/approvals/{id}", h.getApproval)
	mux.HandleFunc("POST /v1/approvals/{id}/respond", h.respondApproval)

	mux.HandleFunc("GET /v1/audit/logs", h.auditLogs)
	mux.HandleFunc("GET /v1/audit/export", h.auditExport)
	mux.HandleFunc("GET /v1/audit/agents/{id}/usage", h.agentUsage)
	mux.HandleFunc("GET /v1/audit/agents/{id}/confidence", h.agentConfidence)
	mux.HandleFunc("GET /v1/audit/agents/{id}/errors", h.agentErrors)
}
