// Package metrics provides Prometheus metrics for backup dispatch and the worker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	actionsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jasknotes_backup_actions_dispatched_total",
			Help: "Backup actions handed to the worker queue",
		},
		[]string{"kind"},
	)

	actionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jasknotes_backup_actions_rejected_total",
			Help: "Backup actions rejected before reaching the queue",
		},
		[]string{"reason"},
	)

	jobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jasknotes_backup_jobs_total",
			Help: "Backup jobs processed by the worker",
		},
		[]string{"kind", "status"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jasknotes_backup_job_duration_seconds",
			Help:    "Time spent executing one backup job",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jasknotes_backup_queue_depth",
			Help: "Pending backup jobs seen at the last poll",
		},
	)
)

// RecordDispatch counts an action accepted by the dispatcher.
func RecordDispatch(kind string) {
	actionsDispatched.WithLabelValues(kind).Inc()
}

// RecordRejected counts an action refused before submission.
func RecordRejected(reason string) {
	actionsRejected.WithLabelValues(reason).Inc()
}

// RecordJob counts a finished job attempt and its duration.
func RecordJob(kind, status string, d time.Duration) {
	jobsProcessed.WithLabelValues(kind, status).Inc()
	jobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// SetQueueDepth updates the pending job gauge.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
