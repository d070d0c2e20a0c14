package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"time"

	"github.com/openfleet/flowcore/store"
	"github.com/openfleet/flowcore/types"
)

// ExportFormat selects the export serialization.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// csvColumns is the fixed export column order. External consumers parse
// by position; never reorder.
var csvColumns = []string{
	"id", "timestamp", "level", "category", "agentId", "executionId",
	"stepId", "workflowId", "organizationId", "userId", "message",
}

// Export serializes the filtered log window. JSON yields the same entries
// as Logs with the same filter, in the same order; CSV flattens to the
// fixed column set, dropping the structured data bag.
func (s *Sink) Export(ctx context.Context, filter store.AuditFilter, format ExportFormat) ([]byte, error) {
	entries, err := s.repo.Query(ctx, filter)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportCSV:
		return exportCSV(entries)
	case ExportJSON, "":
		return json.MarshalIndent(entries, "", "  ")
	default:
		return nil, types.NewError(types.ErrValidationFailed, "unsupported export format").
			WithDetail("format", string(format))
	}
}

func exportCSV(entries []*types.AuditLogEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvColumns); err != nil {
		return nil, err
	}
	for _, e := range entries {
		record := []string{
			e.ID,
			e.Timestamp.Format(time.RFC3339Nano),
			string(e.Level),
			string(e.Category),
			e.AgentID,
			e.ExecutionID,
			e.StepID,
			e.WorkflowID,
			e.OrganizationID,
			e.UserID,
			e.Message,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
