package dispatcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainobserver_dispatcher_delivery_attempts_total",
			Help: "Total number of webhook delivery attempts by predicate",
		},
		[]string{"predicate"},
	)

	deliverySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainobserver_dispatcher_delivery_success_total",
			Help: "Total number of webhook deliveries that received a 2xx response",
		},
		[]string{"predicate"},
	)

	deliveryExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainobserver_dispatcher_delivery_exhausted_total",
			Help: "Total number of triggers dropped after exhausting the retry budget",
		},
		[]string{"predicate"},
	)

	deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainobserver_dispatcher_delivery_duration_seconds",
			Help:    "Wall-clock time to deliver a trigger, including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"predicate"},
	)

	queueDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainobserver_dispatcher_queue_dropped_total",
			Help: "Total number of triggers dropped because the dispatcher queue was full",
		},
		[]string{"predicate"},
	)
)

func deliveryAttemptsInc(predicateName string) {
	deliveryAttempts.WithLabelValues(predicateName).Inc()
}

func deliverySuccessInc(predicateName string) {
	deliverySuccess.WithLabelValues(predicateName).Inc()
}

func deliveryExhaustedInc(predicateName string) {
	deliveryExhausted.WithLabelValues(predicateName).Inc()
}

func deliveryDurationObserve(predicateName string, d time.Duration) {
	deliveryDuration.WithLabelValues(predicateName).Observe(d.Seconds())
}

func queueDroppedInc(predicateName string) {
	queueDropped.WithLabelValues(predicateName).Inc()
}
