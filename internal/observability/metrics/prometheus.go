// Package metrics provides Prometheus metrics for the chat backend.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ChatTurns           *prometheus.CounterVec
	ToolCalls           *prometheus.CounterVec
	FHIRRequests        *prometheus.CounterVec
	FHIRDuration        *prometheus.HistogramVec
	LLMDuration         *prometheus.HistogramVec
	AuditEntries        *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates the metrics on a private registry, together with the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ChatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Chat turns by final outcome",
		}, []string{"outcome"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tool_calls_total",
			Help: "Tool calls dispatched to the resource endpoints",
		}, []string{"tool", "status"}),
		FHIRRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fhir_requests_total",
			Help: "FHIR search requests by resource type and result code",
		}, []string{"resource", "code"}),
		FHIRDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fhir_request_duration_seconds",
			Help:    "FHIR search latency",
			Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"resource"}),
		LLMDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Chat completion latency",
			Buckets: []float64{.25, .5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"result"}),
		AuditEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_entries_total",
			Help: "Audit entries by sink and result",
		}, []string{"sink", "result"}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ChatTurns,
		m.ToolCalls,
		m.FHIRRequests,
		m.FHIRDuration,
		m.LLMDuration,
		m.AuditEntries,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveChatTurn(outcome string) {
	if m == nil {
		return
	}
	m.ChatTurns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveToolCall(tool string, status int) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ObserveFHIR(resource, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.FHIRRequests.WithLabelValues(resource, code).Inc()
	m.FHIRDuration.WithLabelValues(resource).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveLLM(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.LLMDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveAudit(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.AuditEntries.WithLabelValues(sink, result).Inc()
}

// SetBreakerState records a breaker gauge value.
func (m *Metrics) SetBreakerState(name string, value float64) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(value)
}
