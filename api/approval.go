package api

import "net/http"

// RespondRequest is one approver's decision on a gate.
type RespondRequest struct {
	Approver string `json:"approver"`
	Approve  bool   `json:"approve"`
	Comment  string `json:"comment,omitempty"`
}

func (h *Handler) listApprovals(w http.ResponseWriter, r *http.Request) {
	approvals, err := h.approvals.ListPending(r.Context(), r.URL.Query().Get("execution_id"))
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeSuccess(w, approvals)
}

func (h *Handler) getApproval(w http.ResponseWriter, r *http.Request) {
	approval, err := h.approvals.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeSuccess(w, approval)
}

func (h *Handler) respondApproval(w http.ResponseWriter, r *http.Request) {
	var req RespondRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid respond payload: "+err.Error())
		return
	}
	if req.Approver == "" {
		writeBadRequest(w, "approver is required")
		return
	}

	approval, err := h.approvals.Respond(r.Context(), r.PathValue("id"), req.Approver, req.Approve, req.Comment)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeSuccess(w, approval)
}
