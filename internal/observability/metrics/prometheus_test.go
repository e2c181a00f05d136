package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestMetricsRecordAndExpose(t *testing.T) {
	m := New()
	m.ObserveChatTurn("summarized")
	m.ObserveToolCall("get_patients", 200)
	m.ObserveFHIR("Patient", "OK", 120*time.Millisecond)
	m.ObserveLLM(time.Second, errors.New("boom"))
	m.ObserveAudit("log", nil)
	m.SetBreakerState("fhir", 1)

	body := scrape(t, m)
	for _, want := range []string{
		`chat_turns_total{outcome="summarized"} 1`,
		`tool_calls_total{status="200",tool="get_patients"} 1`,
		`fhir_requests_total{code="OK",resource="Patient"} 1`,
		`llm_request_duration_seconds_count{result="error"} 1`,
		`audit_entries_total{result="ok",sink="log"} 1`,
		`circuit_breaker_state{name="fhir"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveChatTurn("message")
	m.ObserveToolCall("get_patients", 500)
	m.ObserveFHIR("Patient", "NOT_FOUND", time.Millisecond)
	m.ObserveLLM(time.Millisecond, nil)
	m.ObserveAudit("kafka", errors.New("down"))
	m.SetBreakerState("llm", 0)
}

func TestInstancesDoNotShareRegistry(t *testing.T) {
	a, b := New(), New()
	a.ObserveChatTurn("message")
	if strings.Contains(scrape(t, b), `chat_turns_total{outcome="message"}`) {
		t.Error("registries should be independent")
	}
}
