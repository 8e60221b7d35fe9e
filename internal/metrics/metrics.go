// Package metrics exposes Prometheus collectors for ingestion and reporting.
package metrics

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	eventsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackly_events_ingested_total",
			Help: "Total number of events accepted by the ingestion gate",
		},
		[]string{"event_name"},
	)

	eventsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackly_events_rejected_total",
			Help: "Total number of payloads rejected by the ingestion gate",
		},
		[]string{"reason"},
	)

	reportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackly_report_duration_seconds",
			Help:    "Time spent computing analytics reports",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"report", "status"},
	)

	retentionDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trackly_retention_deleted_events_total",
			Help: "Total number of events removed by the retention job",
		},
	)
)

// RecordIngested counts an accepted event.
func RecordIngested(eventName string) {
	eventsIngestedTotal.WithLabelValues(eventName).Inc()
}

// RecordRejected counts a rejected payload. reason is "validation" or "store".
func RecordRejected(reason string) {
	eventsRejectedTotal.WithLabelValues(reason).Inc()
}

// ObserveReport records how long a report took since start.
func ObserveReport(report string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	reportDuration.WithLabelValues(report, status).Observe(time.Since(start).Seconds())
}

// RecordRetentionDeleted adds n purged events.
func RecordRetentionDeleted(n int64) {
	retentionDeletedTotal.Add(float64(n))
}

// Handler serves the Prometheus exposition format through fiber.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
