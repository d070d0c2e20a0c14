// Package metrics provides internal Prometheus metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the engine's Prometheus instruments.
type Collector struct {
	stepExecutionsTotal *prometheus.CounterVec
	stepDuration        *prometheus.HistogramVec
	stepRetriesTotal    *prometheus.CounterVec
	tokensUsed          *prometheus.CounterVec
	confidenceScore     *prometheus.HistogramVec

	workflowRunsTotal *prometheus.CounterVec
	approvalsTotal    *prometheus.CounterVec
	auditEntriesTotal *prometheus.CounterVec
	eventDropsTotal   *prometheus.CounterVec
}

// NewCollector registers the engine instruments on reg (the default
// registerer when nil).
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		stepExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_executions_total",
				Help:      "Total number of step executions by agent and status",
			},
			[]string{"agent", "status"},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Step dispatch duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"agent"},
		),
		stepRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_retries_total",
				Help:      "Total completion-call retries by agent",
			},
			[]string{"agent"},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_used_total",
				Help:      "Total tokens consumed by agent and kind",
			},
			[]string{"agent", "kind"},
		),
		confidenceScore: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "confidence_score",
				Help:      "Confidence score distribution per agent",
				Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
			},
			[]string{"agent"},
		),
		workflowRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_runs_total",
				Help:      "Total workflow executions by terminal status",
			},
			[]string{"workflow", "status"},
		),
		approvalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "approvals_total",
				Help:      "Total approval gate resolutions by outcome",
			},
			[]string{"outcome"},
		),
		auditEntriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_entries_total",
				Help:      "Total audit log entries by category and level",
			},
			[]string{"category", "level"},
		),
		eventDropsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_drops_total",
				Help:      "Events dropped on overfull subscriber buffers",
			},
			[]string{"type"},
		),
	}
}

// RecordStepExecution records one step dispatch outcome.
func (c *Collector) RecordStepExecution(agent, status string, durationSeconds float64, retries int) {
	c.stepExecutionsTotal.WithLabelValues(agent, status).Inc()
	c.stepDuration.WithLabelValues(agent).Observe(durationSeconds)
	if retries > 0 {
		c.stepRetriesTotal.WithLabelValues(agent).Add(float64(retries))
	}
}

// RecordTokens records token consumption for one dispatch.
func (c *Collector) RecordTokens(agent string, prompt, completion int) {
	c.tokensUsed.WithLabelValues(agent, "prompt").Add(float64(prompt))
	c.tokensUsed.WithLabelValues(agent, "completion").Add(float64(completion))
}

// RecordConfidence records one confidence score.
func (c *Collector) RecordConfidence(agent string, score float64) {
	c.confidenceScore.WithLabelValues(agent).Observe(score)
}

// RecordWorkflowRun records a terminal workflow status.
func (c *Collector) RecordWorkflowRun(workflow, status string) {
	c.workflowRunsTotal.WithLabelValues(workflow, status).Inc()
}

// RecordApproval records an approval gate outcome.
func (c *Collector) RecordApproval(outcome string) {
	c.approvalsTotal.WithLabelValues(outcome).Inc()
}

// RecordAuditEntry records one audit append.
func (c *Collector) RecordAuditEntry(category, level string) {
	c.auditEntriesTotal.WithLabelValues(category, level).Inc()
}

// RecordEventDrop records one dropped bus event.
func (c *Collector) RecordEventDrop(eventType string) {
	c.eventDropsTotal.WithLabelValues(eventType).Inc()
}
