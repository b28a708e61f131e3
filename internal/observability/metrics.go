// Package observability holds the Prometheus instrumentation and logger
// construction shared across services.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_attempts_total",
			Help: "Provider invocation attempts by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	attemptLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_attempt_latency_seconds",
			Help:    "Provider invocation latency.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)

	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_requests_total",
			Help: "Orchestrated requests by terminal outcome.",
		},
		[]string{"outcome"},
	)

	batchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_batch_size",
			Help:    "Number of requests dispatched per batch.",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16},
		},
		[]string{"provider"},
	)

	providerHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orchestrator_provider_health",
			Help: "Provider health: 0 unavailable, 1 degraded, 2 healthy.",
		},
		[]string{"provider"},
	)

	estimatedSpend = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_estimated_spend_total",
			Help: "Cumulative estimated cost units charged, by provider.",
		},
		[]string{"provider"},
	)
)

// RecordAttempt counts one provider invocation attempt.
func RecordAttempt(provider, outcome string, latency time.Duration) {
	attemptsTotal.WithLabelValues(provider, outcome).Inc()
	attemptLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// RecordRequestOutcome counts one request reaching a terminal state.
func RecordRequestOutcome(outcome string) {
	requestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveBatchSize records the member count of a dispatched batch.
func ObserveBatchSize(provider string, size int) {
	batchSize.WithLabelValues(provider).Observe(float64(size))
}

// SetProviderHealth publishes the provider health gauge.
func SetProviderHealth(provider string, value float64) {
	providerHealth.WithLabelValues(provider).Set(value)
}

// AddSpend accumulates estimated cost units for a provider.
func AddSpend(provider string, cost float64) {
	if cost > 0 {
		estimatedSpend.WithLabelValues(provider).Add(cost)
	}
}
