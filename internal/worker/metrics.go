package worker

import "github.com/prometheus/client_golang/prometheus"

var (
	processedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "report_service",
		Subsystem: "worker",
		Name:      "jobs_processed_total",
		Help:      "Number of report jobs completed and acknowledged.",
	})

	stageErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "report_service",
		Subsystem: "worker",
		Name:      "stage_errors_total",
		Help:      "Number of per-message failures grouped by processing stage.",
	}, []string{"stage"})

	decodeErrorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "report_service",
		Subsystem: "worker",
		Name:      "decode_errors_total",
		Help:      "Number of queue messages that failed to decode.",
	})

	deadLetterCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "report_service",
		Subsystem: "worker",
		Name:      "jobs_dead_lettered_total",
		Help:      "Number of jobs marked FAILED after exhausting the delivery budget.",
	})
)

func init() {
	prometheus.MustRegister(processedCounter, stageErrorCounter, decodeErrorCounter, deadLetterCounter)
}

func recordProcessed() {
	processedCounter.Inc()
}

func recordStageError(stage string) {
	stageErrorCounter.WithLabelValues(stage).Inc()
}

func recordDecodeError() {
	decodeErrorCounter.Inc()
}

func recordDeadLettered() {
	deadLetterCounter.Inc()
}
