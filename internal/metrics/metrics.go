package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinicq",
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	intakeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinicq",
			Name:      "intake_total",
			Help:      "Count of admission requests by result.",
		},
		[]string{"result"},
	)

	checkInTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clinicq",
			Name:      "check_in_total",
			Help:      "Count of patient check-ins.",
		},
	)

	callNextTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clinicq",
			Name:      "call_next_total",
			Help:      "Count of successful call-next operations.",
		},
	)

	skipTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clinicq",
			Name:      "patient_skipped_total",
			Help:      "Count of skipped queue entries.",
		},
	)

	consultationEndedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clinicq",
			Name:      "consultation_ended_total",
			Help:      "Count of completed consultations.",
		},
	)

	queueClosedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clinicq",
			Name:      "queue_closed_total",
			Help:      "Count of queues auto-closed at shift capacity.",
		},
	)

	notifyFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinicq",
			Name:      "notify_failures_total",
			Help:      "Count of downstream notification failures by sink.",
		},
		[]string{"sink"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests, intakeTotal, checkInTotal, callNextTotal,
			skipTotal, consultationEndedTotal, queueClosedTotal, notifyFailures,
		)
	})
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncIntake(result string) {
	intakeTotal.WithLabelValues(result).Inc()
}

func IncCheckIn() {
	checkInTotal.Inc()
}

func IncCallNext() {
	callNextTotal.Inc()
}

func IncSkip() {
	skipTotal.Inc()
}

func IncConsultationEnded() {
	consultationEndedTotal.Inc()
}

func IncQueueClosed() {
	queueClosedTotal.Inc()
}

func IncNotifyFailure(sink string) {
	notifyFailures.WithLabelValues(sink).Inc()
}
