package api

import (
	"net/http"

	"github.com/openfleet/flowcore/types"
)

func (h *Handler) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf types.Workflow
	if err := decodeBody(r, &wf); err != nil {
		writeBadRequest(w, "invalid workflow payload: "+err.Error())
		return
	}

	result, err := h.definitions.Create(r.Context(), &wf)
	if err != nil {
		if result != nil && !result.Valid {
			writeInvalid(w, result)
			return
		}
		writeError(w, err, h.logger)
		return
	}
	writeCreated(w, wf)
}

func (h *Handler) listWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.definitions.List(r.Context())
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeSuccess(w, workflows)
}

func (h *Handler) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.definitions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeSuccess(w, wf)
}

func (h *Handler) updateWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf types.Workflow
	if err := decodeBody(r, &wf); err != nil {
		writeBadRequest(w, "invalid workflow payload: "+err.Error())
		return
	}
	if id := r.PathValue("id"); wf.ID == "" {
		wf.ID = id
	} else if wf.ID != id {
		writeBadRequest(w, "workflow id in body does not match path")
		return
	}

	result, err := h.definitions.Update(r.Context(), &wf)
	if err != nil {
		if result != nil && !result.Valid {
			writeInvalid(w, result)
			return
		}
		writeError(w, err, h.logger)
		return
	}
	writeSuccess(w, wf)
}

func (h *Handler) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := h.definitions.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeSuccess(w, map[string]string{"id": r.PathValue("id")})
}
