// Package metrics provides Prometheus metrics for the VAT registry MCP server.
// It tracks tool calls, validation results, VIES latency and circuit state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace and subsystem for all metrics
const (
	Namespace = "vat_registry_mcp"
)

var (
	// RequestsTotal counts total MCP tool calls by tool name and status
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "requests_total",
		Help:      "Total number of MCP tool calls",
	}, []string{"tool", "status"})

	// RequestDuration measures request latency distribution
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "request_duration_seconds",
		Help:      "Request latency distribution by tool",
		Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"tool"})

	// RequestInFlight tracks currently executing requests
	RequestInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "requests_in_flight",
		Help:      "Number of requests currently being processed",
	}, []string{"tool"})

	// ValidationsTotal counts validations by country and result. The result is
	// "valid" or the error code of the failure.
	ValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "validations_total",
		Help:      "VAT number validations by country and result",
	}, []string{"country", "result"})

	// RemoteOutcomes counts registry confirmation outcomes
	RemoteOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "remote_outcomes_total",
		Help:      "Registry confirmation outcomes by country",
	}, []string{"country", "outcome"})

	// RegistryAPILatency measures registry API call latency by country and action
	RegistryAPILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "registry_api_latency_seconds",
		Help:      "Registry API call latency by country and action",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2, 3, 5},
	}, []string{"country", "action"})

	// RegistryAPIRequestsTotal counts registry API requests
	RegistryAPIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "registry_api_requests_total",
		Help:      "Total registry API requests by country, action and status",
	}, []string{"country", "action", "status"})

	// RegistryAPIErrors counts registry API errors by error code
	RegistryAPIErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "registry_api_errors_total",
		Help:      "Registry API errors by country, action and error code",
	}, []string{"country", "action", "error_code"})

	// CoalescedRequests counts registry lookups answered by an identical in-flight call
	CoalescedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "registry_coalesced_total",
		Help:      "Registry lookups that shared an in-flight request",
	}, []string{"registry"})

	// CircuitBreakerState is 0 closed, 1 open, 2 half-open
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state per registry (0 closed, 1 open, 2 half-open)",
	}, []string{"registry"})

	// PanicsRecovered counts recovered panics
	PanicsRecovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "panics_recovered_total",
		Help:      "Number of panics recovered in tool handlers",
	}, []string{"tool"})

	// HTTPRequestsTotal counts HTTP transport requests
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method and status",
	}, []string{"method", "status"})

	// HTTPRequestDuration measures HTTP request latency
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency distribution",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path"})
)

// RecordRequest records a completed request with its duration and status
func RecordRequest(tool string, duration float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	RequestsTotal.WithLabelValues(tool, status).Inc()
	RequestDuration.WithLabelValues(tool).Observe(duration)
}

// RecordAPICall records a registry API call
func RecordAPICall(country, action string, duration float64, success bool, errorCode string) {
	status := "success"
	if !success {
		status = "error"
	}
	RegistryAPIRequestsTotal.WithLabelValues(country, action, status).Inc()
	RegistryAPILatency.WithLabelValues(country, action).Observe(duration)
	if errorCode != "" {
		RegistryAPIErrors.WithLabelValues(country, action, errorCode).Inc()
	}
}

// RecordValidation counts one validation. An empty code means the number was valid.
func RecordValidation(country, code string) {
	if country == "" {
		country = "unknown"
	}
	if code == "" {
		code = "valid"
	}
	ValidationsTotal.WithLabelValues(country, code).Inc()
}

// RecordRemoteOutcome counts one registry confirmation outcome
func RecordRemoteOutcome(country, outcome string) {
	RemoteOutcomes.WithLabelValues(country, outcome).Inc()
}

// RecordCoalesced counts a lookup that was served by an in-flight call
func RecordCoalesced(registry string) {
	CoalescedRequests.WithLabelValues(registry).Inc()
}

// SetCircuitState updates the circuit breaker gauge for a registry
func SetCircuitState(registry string, state int) {
	CircuitBreakerState.WithLabelValues(registry).Set(float64(state))
}

// RecordHTTPRequest records one request served by the HTTP transport
func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}
