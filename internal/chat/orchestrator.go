// Package chat runs one chat turn: it asks the model for a reply, executes at
// most one proposed FHIR tool call through the search endpoints, and turns the
// result into short descriptions while remembering the ids it saw.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/fhir-chat/internal/audit"
	"github.com/drfirst/fhir-chat/internal/llm"
	"github.com/drfirst/fhir-chat/internal/memory"
	"github.com/drfirst/fhir-chat/internal/observability/metrics"
	"github.com/drfirst/fhir-chat/internal/summary"
	"github.com/drfirst/fhir-chat/internal/tools"
)

// ErrMessagesRequired is returned when the request has no messages array.
var ErrMessagesRequired = errors.New("messages required")

const (
	// DefaultReply stands in for a missing model message.
	DefaultReply = "Chat processed successfully with Azure OpenAI."
	// DefaultMaxTokens bounds the model reply.
	DefaultMaxTokens = 2048
)

// State is the terminal state of a turn.
type State string

const (
	StateInvalidRequest State = "invalid_request"
	StateNoToolCall     State = "no_tool_call"
	StateToolRejected   State = "tool_rejected"
	StateDispatchFailed State = "dispatch_failed"
	StateZeroResults    State = "zero_results"
	StateSummarized     State = "summarized"
	StateRawPassthrough State = "raw_passthrough"
	StateFailed         State = "failed"
)

// TurnRequest is one inbound chat request.
type TurnRequest struct {
	// Messages is the raw "messages" field; it must be a JSON array.
	Messages       json.RawMessage
	ConversationID string
	// Token is the caller's FHIR access token.
	Token    string
	APIKey   string
	Role     string
	ClientIP string
}

// Outcome is the reply to a turn.
type Outcome struct {
	State          State
	StatusCode     int
	Body           interface{}
	ConversationID string
	Tool           string
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type messageBody struct {
	Message interface{} `json:"message"`
}

type descriptionsBody struct {
	Descriptions interface{} `json:"descriptions"`
	Count        *int        `json:"count,omitempty"`
}

type toolFailedBody struct {
	Error   string      `json:"error"`
	Tool    string      `json:"tool"`
	Details interface{} `json:"details"`
}

// Config wires an Orchestrator. Audit and Metrics are optional.
type Config struct {
	LLM        llm.Completer
	Registry   *tools.Registry
	Dispatcher Dispatcher
	Memory     memory.Store
	Audit      audit.Recorder
	Metrics    *metrics.Metrics
	MaxTokens  int
}

// Orchestrator runs chat turns.
type Orchestrator struct {
	llm        llm.Completer
	registry   *tools.Registry
	llmTools   []llm.Tool
	dispatcher Dispatcher
	memory     memory.Store
	audit      audit.Recorder
	metrics    *metrics.Metrics
	maxTokens  int
	logger     *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

func NewOrchestrator(cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case cfg.LLM == nil:
		return nil, errors.New("LLM completer is required")
	case cfg.Registry == nil:
		return nil, errors.New("tool registry is required")
	case cfg.Dispatcher == nil:
		return nil, errors.New("dispatcher is required")
	case cfg.Memory == nil:
		return nil, errors.New("memory store is required")
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.RecorderFunc(func(context.Context, audit.Entry) {})
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		llm:        cfg.LLM,
		registry:   cfg.Registry,
		llmTools:   llm.ToolsFromMCP(cfg.Registry.Tools()),
		dispatcher: cfg.Dispatcher,
		memory:     cfg.Memory,
		audit:      cfg.Audit,
		metrics:    cfg.Metrics,
		maxTokens:  cfg.MaxTokens,
		logger:     logger,
		tracer:     otel.Tracer("chat"),
		now:        time.Now,
	}, nil
}

// Turn runs one chat turn. The returned Outcome is never nil; err carries the
// cause when the turn was rejected or failed.
func (o *Orchestrator) Turn(ctx context.Context, req TurnRequest) (*Outcome, error) {
	ctx, span := o.tracer.Start(ctx, "chat.turn")
	defer span.End()

	out, err := o.turn(ctx, req)
	span.SetAttributes(
		attribute.String("chat.state", string(out.State)),
		attribute.String("chat.conversation_id", out.ConversationID),
		attribute.String("chat.tool", out.Tool),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(out.State))
	}
	o.metrics.ObserveChatTurn(string(out.State))
	return out, err
}

func (o *Orchestrator) turn(ctx context.Context, req TurnRequest) (*Outcome, error) {
	raw, err := decodeMessages(req.Messages)
	if err != nil {
		return &Outcome{State: StateInvalidRequest, StatusCode: http.StatusBadRequest, Body: errorBody{Error: "messages required"}}, err
	}

	convID := req.ConversationID
	if convID == "" {
		origin := req.ClientIP
		if origin == "" {
			origin = "anon"
		}
		convID = fmt.Sprintf("%s:%d", origin, o.now().UnixMilli())
	}

	resp, err := o.llm.Complete(ctx, llm.ChatRequest{
		Messages:   normalizeMessages(raw),
		Tools:      o.llmTools,
		ToolChoice: "auto",
		MaxTokens:  o.maxTokens,
	})
	if err != nil {
		return o.failed(convID, "", err), err
	}

	call := resp.FirstToolCall()
	o.logger.Info("llm response",
		zap.String("conversation_id", convID),
		zap.Bool("has_message", resp.FirstMessage() != nil),
		zap.Bool("tool_call", call != nil),
	)
	if call == nil {
		var msg interface{} = resp.FirstMessage()
		if resp.FirstMessage() == nil {
			msg = llm.Message{Role: llm.RoleAssistant, Content: DefaultReply}
		}
		return &Outcome{State: StateNoToolCall, StatusCode: http.StatusOK, Body: messageBody{Message: msg}, ConversationID: convID}, nil
	}

	tool := call.Function.Name
	args, err := parseArguments(call.Function.Arguments)
	if err != nil {
		return o.failed(convID, tool, err), err
	}
	delete(args, tools.TokenField)
	if req.Token != "" {
		args[tools.TokenField] = req.Token
	}
	entry := audit.Entry{ConversationID: convID, UserRole: req.Role, Tool: tool, Args: args}

	if v := o.registry.Validate(tool, args); !v.Valid {
		o.record(ctx, entry, 0, StateToolRejected, v.Message)
		return o.reply(StateToolRejected, convID, tool, descriptionsBody{Descriptions: v.Message}), nil
	}

	res, err := o.dispatcher.Dispatch(ctx, ToolCall{Name: tool, Args: args, APIKey: req.APIKey})
	if err != nil {
		o.record(ctx, entry, 0, StateFailed, err.Error())
		return o.failed(convID, tool, err), err
	}
	o.metrics.ObserveToolCall(tool, res.StatusCode)

	if res.StatusCode != http.StatusOK {
		o.logger.Error("MCP tool call failed",
			zap.String("conversation_id", convID),
			zap.String("tool", tool),
			zap.Int("status", res.StatusCode),
			zap.ByteString("response", res.Body),
		)
		o.record(ctx, entry, res.StatusCode, StateDispatchFailed, res.Body)
		return &Outcome{
			State:          StateDispatchFailed,
			StatusCode:     http.StatusInternalServerError,
			Body:           toolFailedBody{Error: "Tool call failed", Tool: tool, Details: rawOrString(res.Body)},
			ConversationID: convID,
			Tool:           tool,
		}, nil
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(res.Body, &body); err != nil {
		if !json.Valid(res.Body) {
			err = fmt.Errorf("decode %s response: %w", tool, err)
			o.record(ctx, entry, res.StatusCode, StateFailed, res.Body)
			return o.failed(convID, tool, err), err
		}
		return o.passthrough(ctx, entry, res, "response is not an object"), nil
	}

	count, known := countOf(body)
	if !known {
		return o.passthrough(ctx, entry, res, "response has no numeric count"), nil
	}
	if count == 0 {
		o.record(ctx, entry, res.StatusCode, StateZeroResults, res.Body)
		return o.reply(StateZeroResults, convID, tool, descriptionsBody{Descriptions: summary.NoRecordsMessage}), nil
	}

	step := summarize(tool, body)
	if step.Kind == RawPassthrough {
		return o.passthrough(ctx, entry, res, step.Reason), nil
	}

	if err := o.remember(ctx, convID, step.Update); err != nil {
		o.logger.Warn("conversation memory not updated",
			zap.String("conversation_id", convID),
			zap.Error(err))
	}
	o.record(ctx, entry, res.StatusCode, StateSummarized, res.Body)

	n := len(step.Descriptions)
	return o.reply(StateSummarized, convID, tool, descriptionsBody{Descriptions: step.Descriptions, Count: &n}), nil
}

func (o *Orchestrator) reply(state State, convID, tool string, body interface{}) *Outcome {
	return &Outcome{State: state, StatusCode: http.StatusOK, Body: body, ConversationID: convID, Tool: tool}
}

func (o *Orchestrator) failed(convID, tool string, err error) *Outcome {
	o.logger.Error("chat failed",
		zap.String("conversation_id", convID),
		zap.String("tool", tool),
		zap.Error(err))
	return &Outcome{
		State:          StateFailed,
		StatusCode:     http.StatusInternalServerError,
		Body:           errorBody{Error: "Chat failed", Message: err.Error()},
		ConversationID: convID,
		Tool:           tool,
	}
}

func (o *Orchestrator) passthrough(ctx context.Context, entry audit.Entry, res *DispatchResult, reason string) *Outcome {
	o.logger.Warn("returning raw tool response",
		zap.String("conversation_id", entry.ConversationID),
		zap.String("tool", entry.Tool),
		zap.String("reason", reason))
	o.record(ctx, entry, res.StatusCode, StateRawPassthrough, res.Body)
	return o.reply(StateRawPassthrough, entry.ConversationID, entry.Tool, json.RawMessage(res.Body))
}

func (o *Orchestrator) remember(ctx context.Context, convID string, update memory.Memory) error {
	current, err := o.memory.Get(ctx, convID)
	if err != nil {
		return err
	}
	return o.memory.Set(ctx, convID, current.Merge(update))
}

func (o *Orchestrator) record(ctx context.Context, e audit.Entry, status int, state State, sample interface{}) {
	e.Status = status
	e.Outcome = string(state)
	e.ResponseSample = sample
	o.audit.Record(ctx, e)
}

func parseArguments(s string) (map[string]interface{}, error) {
	args := map[string]interface{}{}
	if s == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(s), &args); err != nil {
		return nil, fmt.Errorf("parse tool arguments: %w", err)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}

// countOf reads the numeric "count" field. A missing or non-numeric count is
// unknown, which is not the same as zero.
func countOf(body map[string]json.RawMessage) (float64, bool) {
	raw, ok := body["count"]
	if !ok || string(raw) == "null" {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func rawOrString(b []byte) interface{} {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	return string(b)
}
