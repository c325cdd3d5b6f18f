package emailqueue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/motorlot/marketplace/internal/pkg/metrics"
)

var (
	queueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "email_queue",
			Name:      "size",
			Help:      "Number of queue entries by status",
		},
		[]string{"status"},
	)

	emailsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "email_queue",
			Name:      "processed_total",
			Help:      "Total delivery attempts by template and outcome",
		},
		[]string{"template", "status"},
	)

	emailSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "email_queue",
			Name:      "send_duration_seconds",
			Help:      "Time to deliver one email",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"template"},
	)

	entriesClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "email_queue",
			Name:      "claimed_total",
			Help:      "Total entries claimed by sweeps",
		},
	)

	entriesEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "email_queue",
			Name:      "enqueued_total",
			Help:      "Total entries enqueued by template",
		},
		[]string{"template"},
	)

	notificationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifier",
			Name:      "dropped_total",
			Help:      "Best-effort notifications that could not be queued",
		},
		[]string{"template"},
	)
)

func recordProcessed(tmpl Template, status string) {
	emailsProcessed.WithLabelValues(string(tmpl), status).Inc()
}

func recordSendDuration(tmpl Template, duration time.Duration) {
	emailSendDuration.WithLabelValues(string(tmpl)).Observe(duration.Seconds())
}

func recordClaimed(count int) {
	entriesClaimed.Add(float64(count))
}

func recordEnqueued(tmpl Template) {
	entriesEnqueued.WithLabelValues(string(tmpl)).Inc()
}

func recordDropped(tmpl Template) {
	notificationsDropped.WithLabelValues(string(tmpl)).Inc()
}

// RecordQueueStats updates queue size metrics.
func RecordQueueStats(stats *Stats) {
	queueSize.WithLabelValues(string(StatusPending)).Set(float64(stats.Pending))
	queueSize.WithLabelValues(string(StatusProcessing)).Set(float64(stats.Processing))
	queueSize.WithLabelValues(string(StatusSent)).Set(float64(stats.Sent))
	queueSize.WithLabelValues(string(StatusFailed)).Set(float64(stats.Failed))
}
