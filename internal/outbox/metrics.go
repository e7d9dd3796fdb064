package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "report_service",
		Subsystem: "outbox",
		Name:      "jobs_delivered_total",
		Help:      "Number of report jobs successfully sent to the queue.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "report_service",
		Subsystem: "outbox",
		Name:      "jobs_failed_total",
		Help:      "Number of send attempts that failed and were left for retry.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "report_service",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent fetching, sending, and marking outbox batches.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, batchDuration)
}
