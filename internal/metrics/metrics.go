// Package metrics exposes Prometheus instrumentation for the pipeline:
// per-phase duration and outcome counters, cache hit ratio, and circuit
// breaker state, registered the way the rest of this stack's metrics
// packages register theirs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	phaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stitcher",
			Name:      "phase_duration_seconds",
			Help:      "Wall-clock duration of a pipeline phase.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"phase"},
	)

	phaseOutcome = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stitcher",
			Name:      "phase_outcome_total",
			Help:      "Per-phase span outcomes (success, failure, placeholder).",
		},
		[]string{"phase", "outcome"},
	)

	cacheResult = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stitcher",
			Name:      "cache_result_total",
			Help:      "Content-addressed cache lookups by result.",
		},
		[]string{"stage", "result"},
	)

	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stitcher",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		},
		[]string{"name"},
	)

	circuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stitcher",
			Name:      "circuit_breaker_trips_total",
			Help:      "Total circuit breaker trips by reason.",
		},
		[]string{"name", "reason"},
	)

	generateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stitcher",
			Name:      "generate_total",
			Help:      "Total generate() calls by outcome.",
		},
		[]string{"outcome"},
	)
)

// ObservePhaseDuration records how long a phase took.
func ObservePhaseDuration(phase string, d time.Duration) {
	phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// IncPhaseOutcome increments the per-span outcome counter for a phase.
func IncPhaseOutcome(phase, outcome string) {
	phaseOutcome.WithLabelValues(phase, outcome).Inc()
}

// IncCacheResult increments a content-addressed cache lookup counter.
func IncCacheResult(stage, result string) {
	cacheResult.WithLabelValues(stage, result).Inc()
}

// SetCircuitBreakerState records the numeric state of a named circuit breaker.
func SetCircuitBreakerState(name string, state int) {
	circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordCircuitBreakerTrip increments the trip counter for a named circuit breaker.
func RecordCircuitBreakerTrip(name, reason string) {
	circuitBreakerTrips.WithLabelValues(name, reason).Inc()
}

// IncGenerate increments the top-level generate() outcome counter.
func IncGenerate(outcome string) {
	generateTotal.WithLabelValues(outcome).Inc()
}
