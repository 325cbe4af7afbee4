// Package metrics defines the Prometheus collectors used across the
// calculator pipeline and exposes an HTTP handler for scraping.
//
// All recording helpers are safe to call on a nil *Metrics, so components can
// run without instrumentation in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	MessagesConsumed     *prometheus.CounterVec
	FetchErrorsTotal     *prometheus.CounterVec
	MessagesPublished    *prometheus.CounterVec
	PublishRetriesTotal  *prometheus.CounterVec
	PublishLatency       *prometheus.HistogramVec
	CalculationsTotal    *prometheus.CounterVec
	ResultStoreEntries   prometheus.Gauge
	ResultWaitsTotal     *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. Passing nil
// registers with the Prometheus default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		MessagesConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_consumed_total",
				Help: "Messages pulled by a consumer, by topic, group, and outcome (committed, malformed, handler_error, commit_error).",
			},
			[]string{"topic", "group", "outcome"},
		),
		FetchErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_fetch_errors_total",
				Help: "Errors returned while fetching from Kafka.",
			},
			[]string{"topic", "group"},
		),
		MessagesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_published_total",
				Help: "Publish calls by topic and status (success, failed).",
			},
			[]string{"topic", "status"},
		),
		PublishRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_publish_retries_total",
				Help: "Publish attempts that were retried after a transient failure.",
			},
			[]string{"topic"},
		),
		PublishLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafka_publish_duration_seconds",
				Help:    "Time until a publish call was acknowledged or gave up, including retries.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"topic"},
		),
		CalculationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calculations_total",
				Help: "Calculations evaluated by the worker, by operation and status (success, compute_error).",
			},
			[]string{"operation", "status"},
		),
		ResultStoreEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "result_store_entries",
				Help: "Number of responses held in the result store.",
			},
		),
		ResultWaitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "result_waits_total",
				Help: "Long-poll waits by outcome (ready, not_ready, cancelled).",
			},
			[]string{"outcome"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.MessagesConsumed,
		m.FetchErrorsTotal,
		m.MessagesPublished,
		m.PublishRetriesTotal,
		m.PublishLatency,
		m.CalculationsTotal,
		m.ResultStoreEntries,
		m.ResultWaitsTotal,
		m.CircuitBreakerState,
	)

	return m
}

func (m *Metrics) MessageConsumed(topic, group, outcome string) {
	if m == nil {
		return
	}
	m.MessagesConsumed.WithLabelValues(topic, group, outcome).Inc()
}

func (m *Metrics) FetchError(topic, group string) {
	if m == nil {
		return
	}
	m.FetchErrorsTotal.WithLabelValues(topic, group).Inc()
}

func (m *Metrics) Published(topic, status string, seconds float64) {
	if m == nil {
		return
	}
	m.MessagesPublished.WithLabelValues(topic, status).Inc()
	m.PublishLatency.WithLabelValues(topic).Observe(seconds)
}

func (m *Metrics) PublishRetried(topic string) {
	if m == nil {
		return
	}
	m.PublishRetriesTotal.WithLabelValues(topic).Inc()
}

func (m *Metrics) Calculated(operation, status string) {
	if m == nil {
		return
	}
	m.CalculationsTotal.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) SetResultStoreEntries(n int64) {
	if m == nil {
		return
	}
	m.ResultStoreEntries.Set(float64(n))
}

func (m *Metrics) ResultWait(outcome string) {
	if m == nil {
		return
	}
	m.ResultWaitsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetCircuitState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
