package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	StorefrontErrors *prometheus.CounterVec
	QuoteOutcomes    *prometheus.CounterVec
}

// NewMetrics creates metrics and registers them with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_requests_total",
				Help: "Total number of storefront calls by operation, storefront, and status",
			},
			[]string{"operation", "storefront", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storefront_request_duration_seconds",
				Help:    "Storefront call duration in seconds by operation and storefront",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "storefront"},
		),
		StorefrontErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_errors_total",
				Help: "Total storefront transport errors by storefront and stage",
			},
			[]string{"storefront", "error_type"},
		),
		QuoteOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipping_quote_outcomes_total",
				Help: "Shipping quote responses by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// RecordRequest records a storefront call.
func (m *Metrics) RecordRequest(operation, storefront, status string, duration float64) {
	m.RequestsTotal.WithLabelValues(operation, storefront, status).Inc()
	m.RequestDuration.WithLabelValues(operation, storefront).Observe(duration)
}

// RecordError records a storefront transport error.
func (m *Metrics) RecordError(storefront, errorType string) {
	m.StorefrontErrors.WithLabelValues(storefront, errorType).Inc()
}

// RecordOutcome records the outcome of one /shipping call.
func (m *Metrics) RecordOutcome(outcome string) {
	m.QuoteOutcomes.WithLabelValues(outcome).Inc()
}
