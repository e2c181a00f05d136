// Package circuitbreaker guards outbound calls to the FHIR server and the LLM
// provider. It wraps sony/gobreaker with OpenTelemetry counters and a state
// change hook.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// State represents the circuit breaker state
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Gauge returns the numeric value exported for the state (0=closed, 1=open, 2=half-open).
func (s State) Gauge() float64 {
	switch s {
	case StateOpen:
		return 1
	case StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// Config holds circuit breaker configuration
type Config struct {
	// Name identifies the circuit breaker
	Name string
	// MaxRequests is max requests allowed in half-open state
	MaxRequests uint32
	// Interval is the cyclic period for clearing counts in closed state
	Interval time.Duration
	// Timeout is how long to wait before transitioning from open to half-open
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold uint32
	// FailureRatio is the failure ratio threshold once MinRequests is reached
	FailureRatio float64
	// MinRequests is minimum requests before ratio is considered
	MinRequests uint32
	// IsSuccessful decides whether an error counts against the breaker.
	// Nil means only a nil error is a success.
	IsSuccessful func(err error) bool
	// OnStateChange is called after every transition.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns defaults for a single upstream dependency.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		FailureRatio:     0.6,
		MinRequests:      10,
	}
}

// ErrOpen is returned when the breaker rejects a call.
var ErrOpen = errors.New("circuit breaker is open")

// IsOpen reports whether err is a rejection by an open or saturated breaker.
func IsOpen(err error) bool {
	return errors.Is(err, ErrOpen)
}

// CircuitBreaker wraps gobreaker with observability
type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	logger *zap.Logger
	tracer trace.Tracer

	requestCounter  metric.Int64Counter
	failureCounter  metric.Int64Counter
	rejectedCounter metric.Int64Counter

	onStateChange func(name string, from, to State)
	currentState  State
	stateMu       sync.RWMutex
}

// New creates a new circuit breaker
func New(cfg Config, logger *zap.Logger) (*CircuitBreaker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("circuit breaker name is required")
	}

	cb := &CircuitBreaker{
		name:          cfg.Name,
		logger:        logger,
		tracer:        otel.Tracer("circuit-breaker"),
		onStateChange: cfg.OnStateChange,
		currentState:  StateClosed,
	}

	meter := otel.Meter("circuit-breaker")
	var err error
	cb.requestCounter, err = meter.Int64Counter("circuit_breaker_requests_total",
		metric.WithDescription("Total requests through circuit breaker"))
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}
	cb.failureCounter, err = meter.Int64Counter("circuit_breaker_failures_total",
		metric.WithDescription("Total failed requests"))
	if err != nil {
		return nil, fmt.Errorf("failed to create failure counter: %w", err)
	}
	cb.rejectedCounter, err = meter.Int64Counter("circuit_breaker_rejected_total",
		metric.WithDescription("Total requests rejected due to open circuit"))
	if err != nil {
		return nil, fmt.Errorf("failed to create rejected counter: %w", err)
	}

	isSuccessful := cfg.IsSuccessful
	if isSuccessful == nil {
		isSuccessful = func(err error) bool { return err == nil }
	}

	cb.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			cb.transition(mapState(from), mapState(to))
		},
		IsSuccessful: isSuccessful,
	})

	return cb, nil
}

// Name returns the breaker name.
func (c *CircuitBreaker) Name() string {
	return c.name
}

// Execute runs fn through the circuit breaker. Rejections are reported as ErrOpen.
func (c *CircuitBreaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	ctx, span := c.tracer.Start(ctx, "circuit_breaker_execute",
		trace.WithAttributes(
			attribute.String("breaker_name", c.name),
			attribute.String("state", string(c.GetState())),
		))
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("name", c.name))
	c.requestCounter.Add(ctx, 1, attrs)

	result, err := c.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.rejectedCounter.Add(ctx, 1, attrs)
			span.SetAttributes(attribute.Bool("circuit_open", true))
			return nil, fmt.Errorf("%s: %w", c.name, ErrOpen)
		}
		c.failureCounter.Add(ctx, 1, attrs)
		span.RecordError(err)
		return nil, err
	}
	return result, nil
}

// Do runs fn through cb and returns its typed result. A nil breaker calls fn directly.
func Do[T any](ctx context.Context, cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	if cb == nil {
		return fn()
	}
	var zero T
	out, err := cb.Execute(ctx, func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	v, ok := out.(T)
	if !ok {
		return zero, nil
	}
	return v, nil
}

// GetState returns the current circuit breaker state
func (c *CircuitBreaker) GetState() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.currentState
}

// Counts returns the current counts from the circuit breaker
func (c *CircuitBreaker) Counts() gobreaker.Counts {
	return c.cb.Counts()
}

func (c *CircuitBreaker) transition(from, to State) {
	c.stateMu.Lock()
	c.currentState = to
	c.stateMu.Unlock()

	c.logger.Warn("circuit breaker state changed",
		zap.String("breaker", c.name),
		zap.String("from", string(from)),
		zap.String("to", string(to)))

	if c.onStateChange != nil {
		c.onStateChange(c.name, from, to)
	}
}

func mapState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Manager owns the named breakers of the process.
type Manager struct {
	breakers map[string]*CircuitBreaker
	mu       sync.RWMutex
	logger   *zap.Logger
	hook     func(name string, from, to State)
}

// NewManager creates a circuit breaker manager. hook, when non-nil, is
// installed on every breaker the manager creates.
func NewManager(logger *zap.Logger, hook func(name string, from, to State)) *Manager {
	return &Manager{
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
		hook:     hook,
	}
}

// GetOrCreate returns an existing breaker or creates a new one
func (m *Manager) GetOrCreate(name string, cfg Config) (*CircuitBreaker, error) {
	m.mu.RLock()
	if cb, ok := m.breakers[name]; ok {
		m.mu.RUnlock()
		return cb, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[name]; ok {
		return cb, nil
	}

	cfg.Name = name
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = m.hook
	}
	cb, err := New(cfg, m.logger)
	if err != nil {
		return nil, err
	}
	m.breakers[name] = cb
	return cb, nil
}

// Get returns a circuit breaker by name
func (m *Manager) Get(name string) (*CircuitBreaker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cb, ok := m.breakers[name]
	return cb, ok
}

// HealthStatus is the readiness view of one breaker.
type HealthStatus struct {
	Name     string `json:"name"`
	State    State  `json:"state"`
	Requests uint32 `json:"requests"`
	Failures uint32 `json:"failures"`
	Healthy  bool   `json:"healthy"`
}

// GetHealthStatus returns health status for all circuit breakers, sorted by name.
func (m *Manager) GetHealthStatus() []HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]HealthStatus, 0, len(m.breakers))
	for name, cb := range m.breakers {
		counts := cb.Counts()
		state := cb.GetState()
		statuses = append(statuses, HealthStatus{
			Name:     name,
			State:    state,
			Requests: counts.Requests,
			Failures: counts.TotalFailures,
			Healthy:  state != StateOpen,
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}
