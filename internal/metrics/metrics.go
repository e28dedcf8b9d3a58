// Package metrics holds the Prometheus instruments for every oracle
// subsystem: adapter requests, aggregation outcomes, report attempts and
// circuit-breaker transitions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the registry of all oracle Prometheus metrics.
type Metrics struct {
	// Adapter request metrics
	APIRequestDuration *prometheus.HistogramVec
	APIRequestErrors   *prometheus.CounterVec

	// Per-exchange observed market data
	TickerProperty *prometheus.GaugeVec

	// Price source metrics
	SourceValidity *prometheus.GaugeVec

	// Aggregation metrics
	AggregationOutcomes *prometheus.CounterVec
	AggregatedPrice     *prometheus.GaugeVec
	ContributingSources *prometheus.GaugeVec

	// Reporter metrics
	ReportAttempts     *prometheus.CounterVec
	ReportDuration     *prometheus.HistogramVec
	TransactionRetries prometheus.Counter
	LastReportedPrice  *prometheus.GaugeVec

	// Circuit breaker metrics
	BreakerTransitions *prometheus.CounterVec
	BreakerTripped     prometheus.Gauge

	// Certificate manager metrics
	CertRefreshes *prometheus.CounterVec
}

// New creates the metric set and registers it with reg. Tests pass their
// own prometheus.NewRegistry to avoid default-registry collisions.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		APIRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oracle_api_request_duration_seconds",
				Help:    "Duration of exchange API requests by outcome",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"exchange", "kind", "outcome"},
		),
		APIRequestErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_api_request_errors_total",
				Help: "Total exchange API request errors by kind",
			},
			[]string{"exchange", "error"},
		),
		TickerProperty: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oracle_ticker_property",
				Help: "Most recently observed ticker fields by exchange",
			},
			[]string{"exchange", "property"},
		),
		SourceValidity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oracle_price_source_valid",
				Help: "Whether a price source currently passes validity checks (0/1)",
			},
			[]string{"source"},
		),
		AggregationOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_aggregation_outcomes_total",
				Help: "Aggregation attempts by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		AggregatedPrice: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oracle_aggregated_price",
				Help: "Most recent successfully aggregated price",
			},
			[]string{"pair"},
		),
		ContributingSources: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oracle_contributing_sources",
				Help: "Number of sources surviving the last aggregation",
			},
			[]string{"pair"},
		),
		ReportAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_report_attempts_total",
				Help: "Price report attempts by outcome",
			},
			[]string{"pair", "outcome"},
		),
		ReportDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oracle_report_duration_seconds",
				Help:    "End-to-end duration of report submissions",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"pair"},
		),
		TransactionRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "oracle_transaction_retries_total",
				Help: "Total gas-bumped transaction retry attempts",
			},
		),
		LastReportedPrice: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oracle_last_reported_price",
				Help: "Last price successfully submitted on-chain",
			},
			[]string{"pair"},
		),
		BreakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_circuit_breaker_transitions_total",
				Help: "Circuit breaker state transitions",
			},
			[]string{"from", "to"},
		),
		BreakerTripped: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "oracle_circuit_breaker_tripped",
				Help: "Whether the price circuit breaker is currently tripped (0/1)",
			},
		),
		CertRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_cert_refreshes_total",
				Help: "Certificate fingerprint map refresh attempts by outcome",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		m.APIRequestDuration,
		m.APIRequestErrors,
		m.TickerProperty,
		m.SourceValidity,
		m.AggregationOutcomes,
		m.AggregatedPrice,
		m.ContributingSources,
		m.ReportAttempts,
		m.ReportDuration,
		m.TransactionRetries,
		m.LastReportedPrice,
		m.BreakerTransitions,
		m.BreakerTripped,
		m.CertRefreshes,
	)
	return m
}

// NewForTesting returns a metric set registered against a throwaway
// registry.
func NewForTesting() *Metrics {
	return New(prometheus.NewRegistry())
}

// ObserveAPIRequest records one adapter request outcome and duration.
func (m *Metrics) ObserveAPIRequest(exchange, kind, outcome string, d time.Duration) {
	m.APIRequestDuration.WithLabelValues(exchange, kind, outcome).Observe(d.Seconds())
	if outcome != "success" {
		m.APIRequestErrors.WithLabelValues(exchange, outcome).Inc()
	}
}

// ObserveTicker records the observed market fields for an exchange.
func (m *Metrics) ObserveTicker(exchange string, bid, ask, last, volume float64) {
	m.TickerProperty.WithLabelValues(exchange, "bid").Set(bid)
	m.TickerProperty.WithLabelValues(exchange, "ask").Set(ask)
	m.TickerProperty.WithLabelValues(exchange, "lastPrice").Set(last)
	m.TickerProperty.WithLabelValues(exchange, "baseVolume").Set(volume)
}

// RecordBreakerTransition records a circuit-breaker state change.
func (m *Metrics) RecordBreakerTransition(from, to string) {
	m.BreakerTransitions.WithLabelValues(from, to).Inc()
	if to == "tripped" {
		m.BreakerTripped.Set(1)
	} else {
		m.BreakerTripped.Set(0)
	}
}
