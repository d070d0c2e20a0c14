package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openfleet/flowcore/eventbus"
	"github.com/openfleet/flowcore/store"
	"github.com/openfleet/flowcore/types"
)

func newTestSink() (*Sink, *eventbus.Bus) {
	bus := eventbus.New(zap.NewNop())
	sink := NewSink(store.NewMemoryStores().Audit, bus, nil, zap.NewNop())
	return sink, bus
}

func completedStep(agentID string, confidence float64, tokens int, durationMs int64) *types.StepExecution {
	now := time.Now()
	return &types.StepExecution{
		ID:          "se-1",
		StepID:      "step-1",
		AgentID:     agentID,
		Status:      types.StepCompleted,
		Confidence:  confidence,
		Level:       types.ConfidenceLevelOf(confidence),
		Usage:       types.TokenUsage{PromptTokens: tokens / 2, CompletionTokens: tokens - tokens/2, TotalTokens: tokens},
		DurationMs:  durationMs,
		StartedAt:   now,
		CompletedAt: &now,
	}
}

func agentRef(agentID string) Ref {
	return Ref{
		AgentID:        agentID,
		ExecutionID:    "exec-1",
		StepID:         "step-1",
		WorkflowID:     "wf-1",
		OrganizationID: "org-1",
		UserID:         "user-1",
	}
}

func TestLogAgentExecutionAppendsAndPublishes(t *testing.T) {
	sink, bus := newTestSink()
	events, cancel := bus.Subscribe(types.EventExecutionCompleted)
	defer cancel()

	se := completedStep("agent-1", 0.8, 100, 1200)
	require.NoError(t, sink.LogAgentExecution(context.Background(), agentRef("agent-1"), se))

	entries, err := sink.Logs(context.Background(), store.AuditFilter{AgentID: "agent-1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.CategoryAgent, entries[0].Category)
	assert.Equal(t, types.LevelInfo, entries[0].Level)
	assert.Equal(t, "exec-1", entries[0].ExecutionID)
	assert.NotEmpty(t, entries[0].ID)

	select {
	case event := <-events:
		assert.Equal(t, "agent-1", event.AgentID)
		assert.Equal(t, "wf-1", event.WorkflowID)
	case <-time.After(time.Second):
		t.Fatal("no execution_completed event")
	}
}

func TestLogAgentExecutionFailurePublishesFailedEvent(t *testing.T) {
	sink, bus := newTestSink()
	events, cancel := bus.Subscribe(types.EventExecutionFailed)
	defer cancel()

	se := completedStep("agent-1", 0, 0, 400)
	se.Status = types.StepFailed
	se.Error = "provider down"
	require.NoError(t, sink.LogAgentExecution(context.Background(), agentRef("agent-1"), se))

	entries, err := sink.Logs(context.Background(), store.AuditFilter{AgentID: "agent-1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.LevelError, entries[0].Level)
	assert.Equal(t, "provider down", entries[0].Data["error"])

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("no execution_failed event")
	}
}

func TestLogsNewestFirstWithPagination(t *testing.T) {
	sink, _ := newTestSink()
	base := time.Now()
	for i := 0; i < 5; i++ {
		i := i
		sink.now = func() time.Time { return base.Add(time.Duration(i) * time.Second) }
		require.NoError(t, sink.LogSystemEvent(context.Background(), "tick", map[string]any{"i": i}))
	}

	entries, err := sink.Logs(context.Background(), store.AuditFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Timestamp.After(entries[1].Timestamp))

	page2, err := sink.Logs(context.Background(), store.AuditFilter{Offset: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.True(t, entries[1].Timestamp.After(page2[0].Timestamp))
}

func TestLogErrorCategorizesByRef(t *testing.T) {
	sink, _ := newTestSink()
	agentErr := types.NewError(types.ErrAgentExecutionFailed, "boom").WithRetryable(true)
	require.NoError(t, sink.LogError(context.Background(), agentRef("agent-1"), agentErr))
	require.NoError(t, sink.LogError(context.Background(), Ref{}, types.NewError(types.ErrInternal, "disk full")))

	agentEntries, err := sink.Logs(context.Background(), store.AuditFilter{Category: types.CategoryAgent})
	require.NoError(t, err)
	require.Len(t, agentEntries, 1)
	assert.Equal(t, string(types.ErrAgentExecutionFailed), agentEntries[0].Data["code"])
	assert.Equal(t, true, agentEntries[0].Data["retryable"])

	sysEntries, err := sink.Logs(context.Background(), store.AuditFilter{Category: types.CategorySystem})
	require.NoError(t, err)
	require.Len(t, sysEntries, 1)
}

func TestUsageBucketsRunningAverages(t *testing.T) {
	sink, _ := newTestSink()
	at := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	sink.now = func() time.Time { return at }

	require.NoError(t, sink.LogAgentExecution(context.Background(), agentRef("agent-1"), completedStep("agent-1", 0.6, 100, 1000)))
	require.NoError(t, sink.LogAgentExecution(context.Background(), agentRef("agent-1"), completedStep("agent-1", 0.8, 300, 3000)))

	failed := completedStep("agent-1", 0, 0, 500)
	failed.Status = types.StepFailed
	require.NoError(t, sink.LogAgentExecution(context.Background(), agentRef("agent-1"), failed))

	hourly := sink.Usage("agent-1", PeriodHour)
	require.Len(t, hourly, 1)
	stats := hourly[0]
	assert.Equal(t, "2026-03-10T14", stats.Bucket)
	assert.Equal(t, int64(3), stats.Executions)
	assert.Equal(t, int64(1), stats.Failures)
	assert.Equal(t, int64(400), stats.TotalTokens)
	assert.InDelta(t, 1500.0, stats.AvgDurationMs, 0.001)
	assert.InDelta(t, (0.6+0.8)/3, stats.AvgConfidence, 0.001)

	daily := sink.Usage("agent-1", PeriodDay)
	require.Len(t, daily, 1)
	assert.Equal(t, "2026-03-10", daily[0].Bucket)

	monthly := sink.Usage("agent-1", PeriodMonth)
	require.Len(t, monthly, 1)
	assert.Equal(t, "2026-03", monthly[0].Bucket)
}

func TestConfidenceAndErrorStats(t *testing.T) {
	sink, _ := newTestSink()
	require.NoError(t, sink.LogAgentExecution(context.Background(), agentRef("agent-1"), completedStep("agent-1", 0.3, 10, 100)))
	require.NoError(t, sink.LogAgentExecution(context.Background(), agentRef("agent-1"), completedStep("agent-1", 0.9, 10, 100)))
	require.NoError(t, sink.LogError(context.Background(), agentRef("agent-1"),
		types.NewError(types.ErrRateLimited, "limit").WithRetryable(true)))

	conf, err := sink.ConfidenceStats(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), conf.Count)
	assert.InDelta(t, 0.6, conf.Average, 0.001)
	assert.Equal(t, int64(1), conf.Levels[types.ConfidenceLow])
	assert.Equal(t, int64(1), conf.Levels[types.ConfidenceVeryHigh])

	errs, err := sink.ErrorStats(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), errs.Total)
	assert.Equal(t, int64(1), errs.ByCode[string(types.ErrRateLimited)])
}

func TestAgentCounters(t *testing.T) {
	sink, _ := newTestSink()
	require.NoError(t, sink.LogAgentExecution(context.Background(), agentRef("agent-1"), completedStep("agent-1", 0.5, 10, 100)))
	failed := completedStep("agent-1", 0, 0, 100)
	failed.Status = types.StepFailed
	require.NoError(t, sink.LogAgentExecution(context.Background(), agentRef("agent-1"), failed))

	executions, failures, err := sink.AgentCounters(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), executions)
	assert.Equal(t, int64(1), failures)
}

func TestExportJSONMatchesLogs(t *testing.T) {
	sink, _ := newTestSink()
	for i := 0; i < 3; i++ {
		require.NoError(t, sink.LogAgentExecution(context.Background(), agentRef("agent-1"), completedStep("agent-1", 0.5, 10, 100)))
	}

	filter := store.AuditFilter{AgentID: "agent-1"}
	raw, err := sink.Export(context.Background(), filter, ExportJSON)
	require.NoError(t, err)

	var exported []*types.AuditLogEntry
	require.NoError(t, json.Unmarshal(raw, &exported))

	logged, err := sink.Logs(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, exported, len(logged))
	for i := range logged {
		assert.Equal(t, logged[i].ID, exported[i].ID)
		assert.Equal(t, logged[i].Message, exported[i].Message)
	}
}

func TestExportCSVFixedColumns(t *testing.T) {
	sink, _ := newTestSink()
	require.NoError(t, sink.LogAgentExecution(context.Background(), agentRef("agent-1"), completedStep("agent-1", 0.5, 10, 100)))

	raw, err := sink.Export(context.Background(), store.AuditFilter{}, ExportCSV)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(raw))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{
		"id", "timestamp", "level", "category", "agentId", "executionId",
		"stepId", "workflowId", "organizationId", "userId", "message",
	}, records[0])
	assert.Equal(t, "agent-1", records[1][4])
	assert.Equal(t, "exec-1", records[1][5])
}

func TestExportUnknownFormat(t *testing.T) {
	sink, _ := newTestSink()
	_, err := sink.Export(context.Background(), store.AuditFilter{}, "xml")
	require.Error(t, err)
	assert.Equal(t, types.ErrValidationFailed, types.CodeOf(err))
}

func TestCleanupPurgesOldEntries(t *testing.T) {
	sink, _ := newTestSink()
	base := time.Now()

	sink.now = func() time.Time { return base.AddDate(0, 0, -40) }
	require.NoError(t, sink.LogSystemEvent(context.Background(), "old", nil))

	sink.now = func() time.Time { return base }
	require.NoError(t, sink.LogSystemEvent(context.Background(), "fresh", nil))

	deleted, err := sink.Cleanup(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	entries, err := sink.Logs(context.Background(), store.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fresh", entries[0].Message)
}
