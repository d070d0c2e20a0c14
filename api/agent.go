package api

import (
	"net/http"

	"github.com/openfleet/flowcore/types"
)

func (h *Handler) createAgent(w http.ResponseWriter, r *http.Request) {
	var agent types.Agent
	if err := decodeBody(r, &agent); err != nil {
		writeBadRequest(w, "invalid agent payload: "+err.Error())
		return
	}

	result, err := h.agents.CreateAgent(r.Context(), &agent)
	if err != nil {
		if result != nil && !result.Valid {
			writeInvalid(w, result)
			return
		}
		writeError(w, err, h.logger)
		return
	}
	writeCreated(w, agent)
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.agents.ListAgents(r.Context())
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeSuccess(w, agents)
}

func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.agents.GetAgent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeSuccess(w, agent)
}

func (h *Handler) updateAgent(w http.ResponseWriter, r *http.Request) {
	var agent types.Agent
	if err := decodeBody(r, &agent); err != nil {
		writeBadRequest(w, "invalid agent payload: "+err.Error())
		return
	}
	if id := r.PathValue("id"); agent.ID == "" {
		agent.ID = id
	} else if agent.ID != id {
		writeBadRequest(w, "agent id in body does not match path")
		return
	}

	result, err := h.agents.UpdateAgent(r.Context(), &agent)
	if err != nil {
		if result != nil && !result.Valid {
			writeInvalid(w, result)
			return
		}
		writeError(w, err, h.logger)
		return
	}
	writeSuccess(w, agent)
}

func (h *Handler) deleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := h.agents.DeleteAgent(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeSuccess(w, map[string]string{"id": r.PathValue("id")})
}

func (h *Handler) agentStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.agents.AgentStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeSuccess(w, status)
}
