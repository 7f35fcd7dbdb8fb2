// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotifierTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifier_ticks_total",
			Help: "Total number of scheduler ticks executed",
		},
	)

	NotifierTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "notifier_tick_duration_seconds",
			Help: "Duration of a full scheduler tick in seconds",
		},
	)

	RemindersEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifier_reminders_enqueued_total",
			Help: "Total number of renewal reminder tasks admitted to the queue",
		},
	)

	RemindersSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_reminders_skipped_total",
			Help: "Total number of candidate subscriptions skipped, by reason",
		},
		[]string{"reason"},
	)

	EnqueueFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifier_enqueue_failures_total",
			Help: "Total number of queue submission failures",
		},
	)

	QueueJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_completed_total",
			Help: "Total number of queue jobs completed",
		},
		[]string{"queue"},
	)

	QueueJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_failed_total",
			Help: "Total number of queue jobs failed, split by terminal vs retryable",
		},
		[]string{"queue", "error_code"},
	)

	QueueJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "queue_job_duration_seconds",
			Help: "Duration of queue job processing in seconds",
		},
		[]string{"queue"},
	)

	QueueJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_jobs_active",
			Help: "Number of jobs currently being processed",
		},
		[]string{"queue"},
	)
)
