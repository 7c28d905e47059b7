// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CompileAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compiler_attempts_total",
			Help: "Total number of model responses run through the compilation pipeline",
		},
		[]string{"artifact_kind"},
	)

	CompileSucceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compiler_artifacts_compiled_total",
			Help: "Total number of artifacts that passed every pipeline stage",
		},
		[]string{"artifact_kind"},
	)

	CompileFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compiler_failures_total",
			Help: "Total number of pipeline failures by error kind and recovery action",
		},
		[]string{"artifact_kind", "error_kind", "recovery_action"},
	)

	RetriesScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compiler_retries_total",
			Help: "Total number of retries scheduled after a recoverable failure",
		},
		[]string{"error_kind"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compiler_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"stage"},
	)

	FailureReports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compiler_failure_reports_total",
			Help: "Total number of failure reports persisted",
		},
		[]string{"category", "blocking"},
	)

	ReportsResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "compiler_failure_reports_resolved_total",
			Help: "Total number of failure reports resolved by an operator",
		},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)
