// Package metrics holds the Prometheus collectors of the acquisition workers
// and the evaluation engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the process exports.
type Metrics struct {
	// FetchTotal counts fetches per provider and outcome (stored, failed).
	FetchTotal    *prometheus.CounterVec
	FetchRetries  *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec

	// EvaluationSlots counts evaluated slots per outcome (appended,
	// existing, missing, failed).
	EvaluationSlots *prometheus.CounterVec
	EvaluationRuns  prometheus.Counter
}

// Singleton, so collectors are registered once per registry.
var (
	instance        *Metrics
	once            sync.Once
	defaultRegistry = prometheus.DefaultRegisterer
)

// Get returns the process-wide collectors, registering them on first use.
func Get() *Metrics {
	once.Do(func() {
		factory := promauto.With(defaultRegistry)
		instance = &Metrics{
			FetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "forecast_fetch_total",
				Help: "Forecast fetches by provider and outcome",
			}, []string{"provider", "outcome"}),
			FetchRetries: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "forecast_fetch_retries_total",
				Help: "Retries after transient provider failures",
			}, []string{"provider"}),
			FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "forecast_fetch_duration_seconds",
				Help:    "Time taken to fetch and store one forecast, retries included",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			}, []string{"provider"}),
			EvaluationSlots: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "evaluation_slots_total",
				Help: "Evaluated (city, reference date, provider, offset) slots by outcome",
			}, []string{"outcome"}),
			EvaluationRuns: factory.NewCounter(prometheus.CounterOpts{
				Name: "evaluation_runs_total",
				Help: "Completed evaluation runs",
			}),
		}
	})
	return instance
}

// ResetForTesting swaps in a fresh registry. Only tests call it.
func ResetForTesting() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	defaultRegistry = reg
	instance = nil
	once = sync.Once{}
	return reg
}
