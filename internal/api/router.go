// Package api assembles the HTTP surface of the chat service.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/drfirst/fhir-chat/internal/api/handlers"
	"github.com/drfirst/fhir-chat/internal/api/middleware"
	"github.com/drfirst/fhir-chat/internal/observability/metrics"
	"github.com/drfirst/fhir-chat/pkg/circuitbreaker"
)

// FHIRBreaker names the breaker whose open state makes the service unready.
const FHIRBreaker = "fhir"

// RouterConfig holds the HTTP-facing settings.
type RouterConfig struct {
	ServiceName   string
	Version       string
	CORS          middleware.CORSConfig
	APIKeys       middleware.APIKeys
	BasicUser     string
	BasicPassword string
}

// Handlers are the endpoints mounted by NewRouter. Breakers and Metrics may be nil.
type Handlers struct {
	MCP      *handlers.MCPHandler
	Chat     *handlers.ChatHandler
	Breakers *circuitbreaker.Manager
	Metrics  *metrics.Metrics
}

// NewRouter builds the service router.
func NewRouter(cfg RouterConfig, h Handlers, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))

	r.Get("/health", healthHandler(cfg))
	r.Get("/ready", readyHandler(h.Breakers))
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.BasicAuth(cfg.BasicUser, cfg.BasicPassword))
		r.Mount("/mcp", h.MCP.Routes())
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyRole(cfg.APIKeys))
		r.Use(middleware.RequireRole(middleware.RoleDoctor, middleware.RoleAdmin))
		r.Mount("/chat", h.Chat.Routes())
	})

	return r
}

func healthHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": cfg.ServiceName,
			"version": cfg.Version,
		})
	}
}

func readyHandler(breakers *circuitbreaker.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var statuses []circuitbreaker.HealthStatus
		if breakers != nil {
			statuses = breakers.GetHealthStatus()
		}
		code, status := http.StatusOK, "ready"
		for _, s := range statuses {
			if s.Name == FHIRBreaker && !s.Healthy {
				code, status = http.StatusServiceUnavailable, "not ready"
			}
		}
		writeJSON(w, code, map[string]interface{}{
			"status":   status,
			"breakers": statuses,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
