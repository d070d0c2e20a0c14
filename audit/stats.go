package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/openfleet/flowcore/store"
	"github.com/openfleet/flowcore/types"
)

// Period selects a usage aggregation granularity.
type Period string

const (
	PeriodHour  Period = "hour"
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

var periodLayouts = map[Period]string{
	PeriodHour:  "2006-01-02T15",
	PeriodDay:   "2006-01-02",
	PeriodMonth: "2006-01",
}

// UsageStats is one (agent, period, bucket) aggregate. Counts and token
// totals accumulate; duration and confidence hold incremental running
// averages.
type UsageStats struct {
	AgentID          string  `json:"agent_id"`
	Period           Period  `json:"period"`
	Bucket           string  `json:"bucket"`
	Executions       int64   `json:"executions"`
	Failures         int64   `json:"failures"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	AvgDurationMs    float64 `json:"avg_duration_ms"`
	AvgConfidence    float64 `json:"avg_confidence"`
}

type usageKey struct {
	agentID string
	period  Period
	bucket  string
}

type usageTable struct {
	mu      sync.RWMutex
	buckets map[usageKey]*UsageStats
}

func newUsageTable() *usageTable {
	return &usageTable{buckets: make(map[usageKey]*UsageStats)}
}

// record folds one step attempt into the agent's hour, day and month
// buckets. newAvg = (oldAvg*(n-1) + x) / n keeps averages without storing
// samples.
func (t *usageTable) record(agentID string, at time.Time, se *types.StepExecution) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for period, layout := range periodLayouts {
		key := usageKey{agentID: agentID, period: period, bucket: at.Format(layout)}
		stats, ok := t.buckets[key]
		if !ok {
			stats = &UsageStats{AgentID: agentID, Period: period, Bucket: key.bucket}
			t.buckets[key] = stats
		}

		stats.Executions++
		if se.Status == types.StepFailed {
			stats.Failures++
		}
		stats.PromptTokens += int64(se.Usage.PromptTokens)
		stats.CompletionTokens += int64(se.Usage.CompletionTokens)
		stats.TotalTokens += int64(se.Usage.TotalTokens)

		n := float64(stats.Executions)
		stats.AvgDurationMs = (stats.AvgDurationMs*(n-1) + float64(se.DurationMs)) / n
		stats.AvgConfidence = (stats.AvgConfidence*(n-1) + se.Confidence) / n
	}
}

func (t *usageTable) list(agentID string, period Period) []UsageStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]UsageStats, 0)
	for key, stats := range t.buckets {
		if key.agentID != agentID || key.period != period {
			continue
		}
		out = append(out, *stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket < out[j].Bucket })
	return out
}

// Usage returns the agent's aggregates at the given granularity, oldest
// bucket first.
func (s *Sink) Usage(agentID string, period Period) []UsageStats {
	return s.usage.list(agentID, period)
}

// ConfidenceStats aggregates confidence over logged agent executions.
type ConfidenceStats struct {
	Count   int64                           `json:"count"`
	Average float64                         `json:"average"`
	Levels  map[types.ConfidenceLevel]int64 `json:"levels"`
}

// ConfidenceStats derives the confidence aggregate from the audit log,
// optionally narrowed to one agent.
func (s *Sink) ConfidenceStats(ctx context.Context, agentID string) (*ConfidenceStats, error) {
	entries, err := s.repo.Query(ctx, store.AuditFilter{
		AgentID:  agentID,
		Category: types.CategoryAgent,
	})
	if err != nil {
		return nil, err
	}

	stats := &ConfidenceStats{Levels: make(map[types.ConfidenceLevel]int64)}
	var sum float64
	for _, e := range entries {
		score, ok := floatField(e.Data, "confidence")
		if !ok {
			continue
		}
		stats.Count++
		sum += score
		stats.Levels[types.ConfidenceLevelOf(score)]++
	}
	if stats.Count > 0 {
		stats.Average = sum / float64(stats.Count)
	}
	return stats, nil
}

// ErrorStats aggregates logged failures by error code.
type ErrorStats struct {
	Total  int64            `json:"total"`
	ByCode map[string]int64 `json:"by_code"`
}

// ErrorStats derives the failure aggregate from error-level audit entries.
func (s *Sink) ErrorStats(ctx context.Context, agentID string) (*ErrorStats, error) {
	entries, err := s.repo.Query(ctx, store.AuditFilter{
		AgentID: agentID,
		Level:   types.LevelError,
	})
	if err != nil {
		return nil, err
	}

	stats := &ErrorStats{ByCode: make(map[string]int64)}
	for _, e := range entries {
		stats.Total++
		code, _ := e.Data["code"].(string)
		if code == "" {
			code = string(types.ErrInternal)
		}
		stats.ByCode[code]++
	}
	return stats, nil
}

// floatField reads a numeric field out of an entry's data bag. Values read
// back through a JSON serializer arrive as float64; in-memory entries keep
// their original type.
func floatField(data map[string]any, key string) (float64, bool) {
	switch v := data[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
