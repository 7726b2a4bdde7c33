// Package metrics holds the Prometheus collectors shared across the server.
// Collectors register with the default registry on package init and are
// exposed by Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// IngestAccepted counts documents that passed schema validation, by kind.
	IngestAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "travelogue_ingest_accepted_total",
		Help: "Documents accepted by the ingestion pipeline, by kind",
	}, []string{"kind"})

	// IngestRejected counts documents dropped by the ingestion pipeline, by kind.
	IngestRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "travelogue_ingest_rejected_total",
		Help: "Documents rejected by the ingestion pipeline, by kind",
	}, []string{"kind"})

	// UpsertConflicts counts embedded-array writes that lost a version race.
	UpsertConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "travelogue_upsert_conflicts_total",
		Help: "Embedded-array writes rejected by the version precondition, by field",
	}, []string{"field"})

	// LiveSubscriptions tracks open websocket feeds.
	LiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "travelogue_live_subscriptions",
		Help: "Open live-query websocket feeds",
	})

	// HTTPDuration tracks request latency by route pattern and status.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "travelogue_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
	}, []string{"method", "route", "status"})

	// BackupOperations counts export/import/backup runs by operation and result.
	BackupOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "travelogue_backup_operations_total",
		Help: "Backup, export and import operations by operation and result",
	}, []string{"operation", "result"})
)

// Result labels a finished operation for BackupOperations.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
