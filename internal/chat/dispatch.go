package chat

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
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const maxDispatchBytes = 16 << 20

// ToolCall is a validated call ready for dispatch.
type ToolCall struct {
	Name string
	Args map[string]interface{}
	// APIKey is the caller's x-api-key, forwarded on the internal hop.
	APIKey string
}

// DispatchResult is the raw reply of a search endpoint.
type DispatchResult struct {
	StatusCode int
	Body       []byte
}

// Dispatcher executes tool calls against the search endpoints.
type Dispatcher interface {
	Dispatch(ctx context.Context, call ToolCall) (*DispatchResult, error)
}

// HTTPDispatcherConfig configures the internal hop to /mcp/<tool>.
type HTTPDispatcherConfig struct {
	BaseURL       string
	BasicUser     string
	BasicPassword string
	// Timeout of zero leaves the hop bounded only by the caller's context.
	Timeout time.Duration
}

// HTTPDispatcher posts tool calls to the service's own search endpoints.
type HTTPDispatcher struct {
	baseURL    string
	user       string
	password   string
	httpClient *http.Client
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

func NewHTTPDispatcher(cfg HTTPDispatcherConfig) (*HTTPDispatcher, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("internal base URL is required")
	}
	return &HTTPDispatcher{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		user:       cfg.BasicUser,
		password:   cfg.BasicPassword,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tracer:     otel.Tracer("chat-dispatch"),
		propagator: otel.GetTextMapPropagator(),
	}, nil
}

// EndpointURL returns the URL a call to tool is posted to.
func (d *HTTPDispatcher) EndpointURL(tool string) string {
	return d.baseURL + "/mcp/" + url.PathEscape(tool)
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, call ToolCall) (*DispatchResult, error) {
	ctx, span := d.tracer.Start(ctx, "chat.dispatch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("tool.name", call.Name)))
	defer span.End()

	payload, err := json.Marshal(call.Args)
	if err != nil {
		return nil, fmt.Errorf("marshal tool arguments: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.EndpointURL(call.Name), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(d.user, d.password)
	if call.APIKey != "" {
		req.Header.Set("x-api-key", call.APIKey)
	}
	d.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("dispatch %s: %w", call.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDispatchBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", call.Name, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return &DispatchResult{StatusCode: resp.StatusCode, Body: body}, nil
}
