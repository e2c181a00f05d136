package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/fhir-chat/internal/fhir/r4"
	"github.com/drfirst/fhir-chat/internal/observability/metrics"
	"github.com/drfirst/fhir-chat/pkg/circuitbreaker"
)

const (
	// DefaultTimeout bounds a single FHIR search.
	DefaultTimeout = 30 * time.Second

	fhirContentType = "application/fhir+json"
	maxBodyBytes    = 32 << 20
)

// Config holds gateway configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client performs FHIR searches.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	metrics    *metrics.Metrics
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewClient creates a gateway client. breaker and m may be nil.
func NewClient(cfg Config, breaker *circuitbreaker.CircuitBreaker, m *metrics.Metrics, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("FHIR base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		metrics:    m,
		logger:     logger,
		tracer:     otel.Tracer("fhir-gateway"),
	}, nil
}

// SearchURL returns the URL Search would request.
func (c *Client) SearchURL(resourceType string, params Params) string {
	return c.baseURL + "/" + resourceType + BuildQuery(params)
}

// Search runs a FHIR search for resourceType and returns the searchset bundle.
// Failures are always *RequestError.
func (c *Client) Search(ctx context.Context, resourceType string, params Params, accessToken string) (*r4.Bundle, error) {
	requestID := uuid.New().String()
	target := c.SearchURL(resourceType, params)

	ctx, span := c.tracer.Start(ctx, "fhir.search",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("fhir.resource_type", resourceType),
			attribute.String("fhir.request_id", requestID),
		))
	defer span.End()

	c.logger.Info("fhir request",
		zap.String("request_id", requestID),
		zap.String("operation", "search"),
		zap.String("resource", resourceType),
		zap.String("url", target),
		zap.Bool("token_present", accessToken != ""),
	)

	start := time.Now()
	bundle, err := circuitbreaker.Do(ctx, c.breaker, func() (*r4.Bundle, error) {
		return c.get(ctx, target, requestID, accessToken)
	})
	elapsed := time.Since(start)

	if err != nil {
		re, ok := AsRequestError(err)
		if !ok {
			re = &RequestError{Code: CodeNetworkError, Message: err.Error()}
			if circuitbreaker.IsOpen(err) {
				re = &RequestError{
					Code:       CodeCircuitOpen,
					Message:    "FHIR server temporarily unavailable",
					StatusCode: http.StatusServiceUnavailable,
				}
			}
		}
		span.SetStatus(codes.Error, re.Code)
		span.SetAttributes(attribute.Int("http.status_code", re.StatusCode))
		c.metrics.ObserveFHIR(resourceType, re.Code, elapsed)
		c.logger.Warn("fhir response",
			zap.String("request_id", requestID),
			zap.String("operation", "search"),
			zap.String("resource", resourceType),
			zap.String("code", re.Code),
			zap.Int("status", re.StatusCode),
			zap.String("message", re.Message),
			zap.Duration("elapsed", elapsed),
		)
		return nil, re
	}

	entries := len(bundle.Entry)
	span.SetAttributes(attribute.Int("fhir.entries", entries))
	c.metrics.ObserveFHIR(resourceType, "OK", elapsed)
	c.logger.Info("fhir response",
		zap.String("request_id", requestID),
		zap.String("operation", "search"),
		zap.String("resource", resourceType),
		zap.Int("status", http.StatusOK),
		zap.Int("entries", entries),
		zap.Duration("elapsed", elapsed),
	)
	return bundle, nil
}

func (c *Client) get(ctx context.Context, target, requestID, accessToken string) (*r4.Bundle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &RequestError{Code: CodeNetworkError, Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Accept", fhirContentType)
	req.Header.Set("X-Request-ID", requestID)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, body)
	}

	var bundle r4.Bundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		return nil, &RequestError{
			Code:       CodeInvalidResponse,
			Message:    fmt.Sprintf("decode bundle: %v", err),
			StatusCode: http.StatusBadGateway,
			Details:    string(body),
		}
	}
	return &bundle, nil
}

func transportError(err error) *RequestError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &RequestError{Code: CodeTimeoutError, Message: "FHIR request timed out"}
	}
	return &RequestError{Code: CodeNetworkError, Message: err.Error()}
}
