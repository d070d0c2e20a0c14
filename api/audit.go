package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/openfleet/flowcore/audit"
	"github.com/openfleet/flowcore/store"
	"github.com/openfleet/flowcore/types"
)

func (h *Handler) auditLogs(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilterFromQuery(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := h.sink.Logs(r.Context(), filter)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeSuccess(w, entries)
}

func (h *Handler) auditExport(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilterFromQuery(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	format := audit.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = audit.ExportJSON
	}

	data, err := h.sink.Export(r.Context(), filter, format)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	switch format {
	case audit.ExportCSV:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="audit.csv"`)
	default:
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) agentUsage(w http.ResponseWriter, r *http.Request) {
	period := audit.Period(r.URL.Query().Get("period"))
	if period == "" {
		period = audit.PeriodDay
	}
	switch period {
	case audit.PeriodHour, audit.PeriodDay, audit.PeriodMonth:
	default:
		writeBadRequest(w, "period must be hour, day or month")
		return
	}
	writeSuccess(w, h.sink.Usage(r.PathValue("id"), period))
}

func (h *Handler) agentConfidence(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sink.ConfidenceStats(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeSuccess(w, stats)
}

func (h *Handler) agentErrors(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sink.ErrorStats(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeSuccess(w, stats)
}

func auditFilterFromQuery(r *http.Request) (store.AuditFilter, error) {
	q := r.URL.Query()
	filter := store.AuditFilter{
		AgentID:        q.Get("agent_id"),
		ExecutionID:    q.Get("execution_id"),
		WorkflowID:     q.Get("workflow_id"),
		OrganizationID: q.Get("organization_id"),
		UserID:         q.Get("user_id"),
		Category:       types.LogCategory(q.Get("category")),
		Level:          types.LogLevel(q.Get("level")),
	}

	var err error
	if filter.From, err = parseTimeParam(q.Get("from")); err != nil {
		return filter, err
	}
	if filter.To, err = parseTimeParam(q.Get("to")); err != nil {
		return filter, err
	}
	if filter.Offset, err = parseIntParam(q.Get("offset")); err != nil {
		return filter, err
	}
	if filter.Limit, err = parseIntParam(q.Get("limit")); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseTimeParam(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}

func parseIntParam(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}
