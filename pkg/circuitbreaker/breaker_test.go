package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

type clientError struct{}

func (clientError) Error() string { return "404" }

func testConfig(name string) Config {
	cfg := DefaultConfig(name)
	cfg.FailureThreshold = 2
	cfg.Timeout = time.Hour
	return cfg
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var transitions []State
	cfg := testConfig("fhir")
	cfg.OnStateChange = func(name string, from, to State) {
		if name != "fhir" {
			t.Errorf("unexpected breaker name %q", name)
		}
		transitions = append(transitions, to)
	}

	cb, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new breaker: %v", err)
	}

	boom := errors.New("connection refused")
	for i := 0; i < 2; i++ {
		if _, err := Do(context.Background(), cb, func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected upstream error, got %v", i, err)
		}
	}

	if cb.GetState() != StateOpen {
		t.Fatalf("expected open state, got %s", cb.GetState())
	}
	if len(transitions) != 1 || transitions[0] != StateOpen {
		t.Errorf("unexpected transitions %v", transitions)
	}

	called := false
	_, err = Do(context.Background(), cb, func() (int, error) {
		called = true
		return 1, nil
	})
	if !IsOpen(err) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Error("function must not run while the breaker is open")
	}
}

func TestBreakerClassifierIgnoresClientErrors(t *testing.T) {
	cfg := testConfig("fhir")
	cfg.IsSuccessful = func(err error) bool {
		var ce clientError
		return err == nil || errors.As(err, &ce)
	}
	cb, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new breaker: %v", err)
	}

	for i := 0; i < 5; i++ {
		_, err := Do(context.Background(), cb, func() (string, error) { return "", clientError{} })
		var ce clientError
		if !errors.As(err, &ce) {
			t.Fatalf("expected client error to pass through, got %v", err)
		}
	}
	if cb.GetState() != StateClosed {
		t.Errorf("client errors must not open the breaker, state=%s", cb.GetState())
	}
}

func TestDoWithoutBreaker(t *testing.T) {
	v, err := Do(context.Background(), nil, func() (string, error) { return "ok", nil })
	if err != nil || v != "ok" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestManagerHealthStatus(t *testing.T) {
	var hooked []string
	m := NewManager(nil, func(name string, from, to State) { hooked = append(hooked, name) })

	llm, err := m.GetOrCreate("llm", testConfig(""))
	if err != nil {
		t.Fatalf("create llm breaker: %v", err)
	}
	if _, err := m.GetOrCreate("fhir", testConfig("")); err != nil {
		t.Fatalf("create fhir breaker: %v", err)
	}
	again, _ := m.GetOrCreate("llm", testConfig(""))
	if again != llm {
		t.Error("GetOrCreate should return the existing breaker")
	}

	boom := errors.New("503")
	for i := 0; i < 2; i++ {
		_, _ = Do(context.Background(), llm, func() (int, error) { return 0, boom })
	}

	statuses := m.GetHealthStatus()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].Name != "fhir" || !statuses[0].Healthy {
		t.Errorf("fhir status = %+v", statuses[0])
	}
	if statuses[1].Name != "llm" || statuses[1].Healthy || statuses[1].State != StateOpen {
		t.Errorf("llm status = %+v", statuses[1])
	}
	if len(hooked) != 1 || hooked[0] != "llm" {
		t.Errorf("manager hook calls = %v", hooked)
	}
	if StateOpen.Gauge() != 1 || StateHalfOpen.Gauge() != 2 || StateClosed.Gauge() != 0 {
		t.Error("unexpected gauge values")
	}
}
