// Package api exposes the engine over HTTP: workflow and agent CRUD,
// execution control (run, cancel, resume), approval responses and the
// audit query surface. Handlers are plain net/http on a ServeMux.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/openfleet/flowcore/types"
)

// Response is the uniform API envelope.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorInfo is the serialized error payload.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Details   any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func writeCreated(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// writeError maps an engine error to an HTTP status. Unstructured errors
// become 500s.
func writeError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var engineErr *types.Error
	info := &ErrorInfo{Code: string(types.ErrInternal), Message: "internal error"}
	status := http.StatusInternalServerError

	if errors.As(err, &engineErr) {
		status = httpStatus(engineErr.Code)
		info = &ErrorInfo{
			Code:      string(engineErr.Code),
			Message:   engineErr.Message,
			Retryable: engineErr.Retryable,
		}
		if len(engineErr.Details) > 0 {
			info.Details = engineErr.Details
		}
	}

	if logger != nil && status >= 500 {
		logger.Error("api error", zap.Int("status", status), zap.Error(err))
	}

	writeJSON(w, status, Response{
		Success:   false,
		Error:     info,
		Timestamp: time.Now(),
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    string(types.ErrValidationFailed),
			Message: message,
		},
		Timestamp: time.Now(),
	})
}

// writeInvalid reports definition validation failures with the full
// violation list.
func writeInvalid(w http.ResponseWriter, result *types.ValidationResult) {
	writeJSON(w, http.StatusUnprocessableEntity, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    string(types.ErrValidationFailed),
			Message: "definition invalid",
			Details: result.Errors,
		},
		Timestamp: time.Now(),
	})
}

func httpStatus(code types.ErrorCode) int {
	switch code {
	case types.ErrAgentNotFound, types.ErrWorkflowNotFound, types.ErrNotFound:
		return http.StatusNotFound
	case types.ErrValidationFailed:
		return http.StatusUnprocessableEntity
	case types.ErrRateLimited:
		return http.StatusTooManyRequests
	case types.ErrExecutionCancelled:
		return http.StatusConflict
	case types.ErrApprovalTimeout:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, into any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(into)
}
