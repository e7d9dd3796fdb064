// Package observability exposes service-level Prometheus metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	reportRequestedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "report_service",
		Subsystem: "persistence",
		Name:      "last_report_requested_timestamp_seconds",
		Help:      "Unix timestamp of the most recent report request persisted to Postgres.",
	})
	reportCompletedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "report_service",
		Subsystem: "persistence",
		Name:      "last_report_completed_timestamp_seconds",
		Help:      "Unix timestamp of the most recent report transitioned to COMPLETED.",
	})
)

func init() {
	prometheus.MustRegister(reportRequestedGauge, reportCompletedGauge)
}

// RecordReportRequested updates the request watermark gauge.
func RecordReportRequested(ts time.Time) {
	if ts.IsZero() {
		return
	}
	reportRequestedGauge.Set(float64(ts.Unix()))
}

// RecordReportCompleted updates the completion watermark gauge.
func RecordReportCompleted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	reportCompletedGauge.Set(float64(ts.Unix()))
}
