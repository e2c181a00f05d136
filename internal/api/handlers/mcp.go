// Package handlers provides HTTP handlers for the chat API.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/drfirst/fhir-chat/internal/api/middleware"
	"github.com/drfirst/fhir-chat/internal/gateway"
	"github.com/drfirst/fhir-chat/internal/search"
	"github.com/drfirst/fhir-chat/internal/tools"
)

// Error codes of the search endpoints that do not come from the gateway.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
)

// MCPHandler serves one POST endpoint per search tool.
type MCPHandler struct {
	service  *search.Service
	registry *tools.Registry
	logger   *zap.Logger
	now      func() time.Time
}

// NewMCPHandler creates a new handler
func NewMCPHandler(service *search.Service, registry *tools.Registry, logger *zap.Logger) *MCPHandler {
	return &MCPHandler{
		service:  service,
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
}

// Routes returns the handler routes
func (h *MCPHandler) Routes() chi.Router {
	r := chi.NewRouter()
	for _, def := range h.registry.Definitions() {
		r.Post("/"+def.Name, h.Search(def.Name))
	}
	return r
}

// Metadata is attached to every search endpoint response.
type Metadata struct {
	RequestID   string `json:"requestId"`
	Timestamp   string `json:"timestamp"`
	URL         string `json:"url"`
	RequestTime int64  `json:"requestTime"`
}

// ErrorBody is the error half of a search endpoint response.
type ErrorBody struct {
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

type errorResponse struct {
	Error    ErrorBody `json:"error"`
	Metadata Metadata  `json:"metadata"`
}

// Search handles POST /mcp/<tool>
func (h *MCPHandler) Search(tool string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := h.now()
		tracer := otel.Tracer("mcp-handler")
		ctx, span := tracer.Start(r.Context(), "mcp."+tool)
		defer span.End()

		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			h.validationError(w, r, started, tools.FieldErrors{"body": {"Expected object"}})
			return
		}
		if body == nil {
			body = map[string]interface{}{}
		}

		res, err := h.service.Run(ctx, tool, body)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "search failed")
			if fe, ok := search.AsFieldErrors(err); ok {
				h.validationError(w, r, started, fe)
				return
			}
			h.fail(w, r, started, tool, err)
			return
		}

		span.SetAttributes(attribute.Int("fhir.count", res.Count))
		h.logger.Info("search completed",
			zap.String("tool", tool),
			zap.Int("count", res.Count),
			zap.String("request_id", middleware.GetRequestID(ctx)),
		)

		payload := res.Payload()
		payload["success"] = true
		payload["metadata"] = h.metadata(r, started)
		writeJSON(w, http.StatusOK, payload)
	}
}

func (h *MCPHandler) metadata(r *http.Request, started time.Time) Metadata {
	return Metadata{
		RequestID:   middleware.GetRequestID(r.Context()),
		Timestamp:   started.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		URL:         r.URL.RequestURI(),
		RequestTime: started.UnixMilli(),
	}
}

func (h *MCPHandler) validationError(w http.ResponseWriter, r *http.Request, started time.Time, fe tools.FieldErrors) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error:    ErrorBody{Message: "Validation failed", Code: CodeValidationError, Details: fe},
		Metadata: h.metadata(r, started),
	})
}

func (h *MCPHandler) fail(w http.ResponseWriter, r *http.Request, started time.Time, tool string, err error) {
	h.logger.Error("search failed",
		zap.String("tool", tool),
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.Error(err),
	)

	status := http.StatusInternalServerError
	body := ErrorBody{Message: err.Error(), Code: CodeInternalError}
	if re, ok := gateway.AsRequestError(err); ok {
		status = re.HTTPStatus()
		body = ErrorBody{Message: re.Message, Code: re.Code, Details: re.Details}
	}
	writeJSON(w, status, errorResponse{Error: body, Metadata: h.metadata(r, started)})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
