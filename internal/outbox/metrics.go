package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "enrollment_service",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Number of enrollment events successfully published to Kafka.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "enrollment_service",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Number of enrollment events abandoned after exhausting delivery attempts.",
	})

	retryCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "enrollment_service",
		Subsystem: "outbox",
		Name:      "delivery_retries_total",
		Help:      "Number of batch delivery attempts that were retried after a failure.",
	})

	droppedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "enrollment_service",
		Subsystem: "outbox",
		Name:      "events_dropped_total",
		Help:      "Number of enrollment events discarded because the outbox buffer was full.",
	})

	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "enrollment_service",
		Subsystem: "outbox",
		Name:      "queue_depth",
		Help:      "Events buffered in memory and awaiting delivery.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "enrollment_service",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent resolving schemas and delivering outbox batches.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, retryCounter, droppedCounter, queueDepth, batchDuration)
}
