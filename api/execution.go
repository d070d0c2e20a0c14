package api

import (
	"errors"
	"net/http"

	"github.com/openfleet/flowcore/store"
	"github.com/openfleet/flowcore/types"
	"github.com/openfleet/flowcore/workflow"
)

// RunWorkflowRequest starts one execution of a workflow definition.
type RunWorkflowRequest struct {
	WorkflowID     string         `json:"workflow_id"`
	OrganizationID string         `json:"organization_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	Variables      map[string]any `json:"variables,omitempty"`
}

func (h *Handler) runWorkflow(w http.ResponseWriter, r *http.Request) {
	var req RunWorkflowRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid run payload: "+err.Error())
		return
	}
	if req.WorkflowID == "" {
		writeBadRequest(w, "workflow_id is required")
		return
	}

	result, err := h.executor.Run(r.Context(), workflow.RunRequest{
		WorkflowID:     req.WorkflowID,
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
		Variables:      req.Variables,
	})
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	// A failed run is still a completed API call; the result carries the
	// terminal status.
	writeCreated(w, result)
}

func (h *Handler) listExecutions(w http.ResponseWriter, r *http.Request) {
	executions, err := h.executions.List(r.Context(), r.URL.Query().Get("workflow_id"))
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeSuccess(w, executions)
}

func (h *Handler) getExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := h.executions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = types.NewError(types.ErrNotFound, "execution not found")
		}
		writeError(w, err, h.logger)
		return
	}
	writeSuccess(w, exec)
}

func (h *Handler) cancelExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.executor.Cancel(r.Context(), id); err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeSuccess(w, map[string]string{"id": id, "status": string(types.ExecutionCancelled)})
}

func (h *Handler) resumeExecution(w http.ResponseWriter, r *http.Request) {
	result, err := h.executor.Resume(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeSuccess(w, result)
}
