package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "moviesite"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "status"},
	)

	intentsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "intents_enqueued_total",
			Help:      "Mutation intents accepted by operation.",
		},
		[]string{"operation"},
	)

	intentOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "intents_total",
			Help:      "Processed mutation intents by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	passDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "pass_duration_seconds",
			Help:      "Duration of one queue processing pass.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "intents",
			Help:      "Mutation intents currently stored, by status.",
		},
		[]string{"status"},
	)
)

// Outcome labels for ObserveIntent.
const (
	OutcomeCompleted = "completed"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, intentsEnqueued, intentOutcomes, passDuration, queueDepth)
	})
}

// IncHTTP increments the counter for an endpoint and response status.
func IncHTTP(endpoint string, status int) {
	httpRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func IncEnqueued(operation string) {
	intentsEnqueued.WithLabelValues(operation).Inc()
}

func ObserveIntent(operation, outcome string) {
	intentOutcomes.WithLabelValues(operation, outcome).Inc()
}

func ObservePass(d time.Duration) {
	passDuration.Observe(d.Seconds())
}

// SetQueueDepth records the number of intents in one status.
func SetQueueDepth(status string, n int) {
	queueDepth.WithLabelValues(status).Set(float64(n))
}
