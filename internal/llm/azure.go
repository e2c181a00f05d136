package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/fhir-chat/internal/observability/metrics"
	"github.com/drfirst/fhir-chat/pkg/circuitbreaker"
)

const maxResponseBytes = 8 << 20

// AzureConfig configures an Azure OpenAI deployment.
type AzureConfig struct {
	Endpoint   string
	APIKey     string
	APIVersion string
	Deployment string
	// Timeout of zero leaves the request bounded only by the caller's context.
	Timeout time.Duration
}

// Validate reports missing settings.
func (c AzureConfig) Validate() error {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "AZURE_OPENAI_API_KEY")
	}
	if c.Endpoint == "" {
		missing = append(missing, "AZURE_OPENAI_ENDPOINT")
	}
	if c.APIVersion == "" {
		missing = append(missing, "AZURE_OPENAI_API_VERSION")
	}
	if c.Deployment == "" {
		missing = append(missing, "AZURE_OPENAI_DEPLOYMENT")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing Azure OpenAI configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// APIError is a non-2xx response from the completions API.
type APIError struct {
	StatusCode int
	Message    string
	Type       string
	Code       string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("LLM API error %d: %s (type: %s)", e.StatusCode, e.Message, e.Type)
	}
	return fmt.Sprintf("LLM API error %d: %s", e.StatusCode, e.Message)
}

// IsProviderHealthy classifies errors for the circuit breaker: rejected
// requests other than rate limiting are the caller's fault.
func IsProviderHealthy(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests
	}
	return false
}

type errorEnvelope struct {
	Error struct {
		Message string      `json:"message"`
		Type    string      `json:"type"`
		Code    interface{} `json:"code"`
	} `json:"error"`
}

// AzureClient calls an Azure OpenAI chat completions deployment.
type AzureClient struct {
	cfg        AzureConfig
	url        string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	metrics    *metrics.Metrics
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewAzureClient creates a client. breaker and m may be nil.
func NewAzureClient(cfg AzureConfig, breaker *circuitbreaker.CircuitBreaker, m *metrics.Metrics, logger *zap.Logger) (*AzureClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(cfg.Endpoint, "/")
	target := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		base, url.PathEscape(cfg.Deployment), url.QueryEscape(cfg.APIVersion))

	logger.Info("azure openai configured",
		zap.String("base_url", base+"/openai/deployments/"+cfg.Deployment),
		zap.String("api_version", cfg.APIVersion),
	)

	return &AzureClient{
		cfg:        cfg,
		url:        target,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		metrics:    m,
		logger:     logger,
		tracer:     otel.Tracer("llm"),
	}, nil
}

// URL returns the completions endpoint.
func (c *AzureClient) URL() string {
	return c.url
}

// Complete sends req to the deployment.
func (c *AzureClient) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		req.Model = c.cfg.Deployment
	}

	ctx, span := c.tracer.Start(ctx, "llm.chat_completion",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.deployment", c.cfg.Deployment),
			attribute.Int("llm.messages", len(req.Messages)),
			attribute.Int("llm.tools", len(req.Tools)),
		))
	defer span.End()

	start := time.Now()
	resp, err := circuitbreaker.Do(ctx, c.breaker, func() (*ChatResponse, error) {
		return c.post(ctx, req)
	})
	elapsed := time.Since(start)
	c.metrics.ObserveLLM(elapsed, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("chat completion failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return nil, err
	}

	toolCalls := 0
	if msg := resp.FirstMessage(); msg != nil {
		toolCalls = len(msg.ToolCalls)
	}
	span.SetAttributes(attribute.Int("llm.tool_calls", toolCalls))
	c.logger.Info("chat completion",
		zap.Int("choices", len(resp.Choices)),
		zap.Int("tool_calls", toolCalls),
		zap.Duration("elapsed", elapsed),
	)
	return resp, nil
}

func (c *AzureClient) post(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var env errorEnvelope
		if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
			apiErr.Message = env.Error.Message
			apiErr.Type = env.Error.Type
			if env.Error.Code != nil {
				apiErr.Code = fmt.Sprint(env.Error.Code)
			}
		}
		return nil, apiErr
	}

	var out ChatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	return &out, nil
}
