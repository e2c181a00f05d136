package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drfirst/fhir-chat/internal/api/middleware"
	"github.com/drfirst/fhir-chat/internal/chat"
)

// Turner runs chat turns. *chat.Orchestrator implements it.
type Turner interface {
	Turn(ctx context.Context, req chat.TurnRequest) (*chat.Outcome, error)
}

// ChatHandler handles the chat endpoint
type ChatHandler struct {
	turner Turner
	logger *zap.Logger
}

// NewChatHandler creates a new handler
func NewChatHandler(turner Turner, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{turner: turner, logger: logger}
}

// Routes returns the handler routes
func (h *ChatHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Chat)
	return r
}

// ChatRequest is the request body of POST /chat
type ChatRequest struct {
	Messages       json.RawMessage `json:"messages"`
	ConversationID string          `json:"conversationId,omitempty"`
	Token          string          `json:"token,omitempty"`
}

// Chat handles POST /chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// an undecodable body leaves messages empty, which the turn rejects
	var req ChatRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	out, err := h.turner.Turn(ctx, chat.TurnRequest{
		Messages:       req.Messages,
		ConversationID: req.ConversationID,
		Token:          req.Token,
		APIKey:         r.Header.Get("x-api-key"),
		Role:           string(middleware.GetRole(ctx)),
		ClientIP:       clientIP(r),
	})
	if err != nil {
		h.logger.Warn("chat turn ended with error",
			zap.String("state", string(out.State)),
			zap.String("request_id", middleware.GetRequestID(ctx)),
			zap.Error(err),
		)
	}

	if out.ConversationID != "" {
		w.Header().Set("X-Conversation-ID", out.ConversationID)
	}
	writeJSON(w, out.StatusCode, out.Body)
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
