package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	enrollmentOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "enrollment_service",
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Enroll and remove calls, labeled by operation and outcome.",
	}, []string{"operation", "outcome"})

	participantsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "enrollment_service",
		Subsystem: "store",
		Name:      "participants",
		Help:      "Current participant count per activity.",
	}, []string{"activity"})
)

func init() {
	prometheus.MustRegister(enrollmentOps, participantsGauge)
}

// RecordOperation counts an enroll or remove call. Outcome is "ok" or an error kind.
func RecordOperation(operation, outcome string) {
	enrollmentOps.WithLabelValues(operation, outcome).Inc()
}

// RecordParticipants sets the participant count gauge for an activity.
func RecordParticipants(activity string, count int) {
	participantsGauge.WithLabelValues(activity).Set(float64(count))
}
