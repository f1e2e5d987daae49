// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	TimelineStepWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gritsync_timeline_step_writes_total",
			Help: "Timeline step upserts by step key and resulting status",
		},
		[]string{"step_key", "status"},
	)

	ParentRederivations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gritsync_parent_rederivations_total",
			Help: "Parent main-step writes issued after a sub-step change",
		},
		[]string{"main_step", "status"},
	)

	FeedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gritsync_feed_events_total",
			Help: "Change-feed events by direction, table and type",
		},
		[]string{"direction", "table", "type"},
	)

	SessionFetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gritsync_session_fetch_failures_total",
			Help: "Collection fetches that fell back to an empty value",
		},
		[]string{"collection"},
	)

	ProgressPercentage = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gritsync_progress_percentage",
			Help:    "Completion percentage observed at evaluation time",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
		[]string{"application_type"},
	)

	ActiveProgressStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gritsync_progress_streams_active",
			Help: "Open server-sent progress streams",
		},
	)
)
