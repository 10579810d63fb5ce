// Copyright Contributors to the ingestctl project

// Package metrics exposes the Prometheus instrumentation for
// orchestrator runs, webhook dispatch, and cron due-checks. A Recorder
// owns its own registry rather than registering onto the global
// default one, so tests can construct independent Recorders without
// tripping "duplicate metrics collector registration" panics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder wraps the counters/histograms this service emits.
type Recorder struct {
	Registry *prometheus.Registry

	taskRunsTotal       *prometheus.CounterVec
	taskRunDuration     *prometheus.HistogramVec
	webhookDispatchTotal *prometheus.CounterVec
	cronDueChecksTotal  *prometheus.CounterVec
}

// New builds a Recorder with a fresh registry and registers every
// collector onto it.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		Registry: reg,
		taskRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestor_task_runs_total",
			Help: "Total number of orchestrator runs, by task id and terminal status",
		}, []string{"task_id", "status"}),
		taskRunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingestor_task_run_duration_seconds",
			Help:    "Duration of orchestrator runs in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"task_id"}),
		webhookDispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestor_webhook_dispatch_total",
			Help: "Total number of webhook dispatch attempts, by endpoint and HTTP outcome",
		}, []string{"endpoint_id", "outcome"}),
		cronDueChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestor_cron_due_checks_total",
			Help: "Total number of cron due-ness evaluations, by task id and whether it was due",
		}, []string{"task_id", "due"}),
	}
	reg.MustRegister(r.taskRunsTotal, r.taskRunDuration, r.webhookDispatchTotal, r.cronDueChecksTotal)
	return r
}

// ObserveTaskRun records a terminal orchestrator run.
func (r *Recorder) ObserveTaskRun(taskID, status string, durationSeconds float64) {
	r.taskRunsTotal.WithLabelValues(taskID, status).Inc()
	r.taskRunDuration.WithLabelValues(taskID).Observe(durationSeconds)
}

// ObserveWebhookDispatch records one HTTP-coded webhook dispatch outcome.
func (r *Recorder) ObserveWebhookDispatch(endpointID, outcome string) {
	r.webhookDispatchTotal.WithLabelValues(endpointID, outcome).Inc()
}

// ObserveCronDueCheck records one due-ness evaluation.
func (r *Recorder) ObserveCronDueCheck(taskID string, due bool) {
	dueLabel := "false"
	if due {
		dueLabel = "true"
	}
	r.cronDueChecksTotal.WithLabelValues(taskID, dueLabel).Inc()
}
