// Package mcpserver exposes the FHIR search tools over the Model Context
// Protocol on stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/drfirst/fhir-chat/internal/gateway"
	"github.com/drfirst/fhir-chat/internal/search"
	"github.com/drfirst/fhir-chat/internal/tools"
)

// Config configures the stdio server.
type Config struct {
	Name    string
	Version string
	// AccessToken is used when a call carries no token of its own.
	AccessToken string
	// CallTimeout bounds one tool call. Zero means no limit.
	CallTimeout time.Duration
}

// Server serves every registered search tool.
type Server struct {
	cfg     Config
	server  *server.MCPServer
	service *search.Service
	logger  *zap.Logger
}

func New(cfg Config, registry *tools.Registry, service *search.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "fhir-chat"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		cfg: cfg,
		server: server.NewMCPServer(
			cfg.Name,
			cfg.Version,
			server.WithToolCapabilities(true),
			server.WithLogging(),
		),
		service: service,
		logger:  logger,
	}

	for _, tool := range registry.Tools() {
		s.server.AddTool(tool, s.handler(tool.Name))
	}
	s.server.AddNotificationHandler(func(n mcp.JSONRPCNotification) {
		s.logger.Debug("notification received", zap.String("method", n.Method))
	})

	logger.Info("mcp server created", zap.Int("tools", len(registry.Tools())))
	return s
}

func (s *Server) handler(name string) func(map[string]interface{}) (*mcp.CallToolResult, error) {
	return func(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
		ctx := context.Background()
		if s.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
			defer cancel()
		}
		text, err := s.call(ctx, name, arguments)
		if err != nil {
			return nil, err
		}
		return textResult(text), nil
	}
}

// call runs one tool. Validation and FHIR failures are reported as text so
// the client model can read them; only internal faults become errors.
func (s *Server) call(ctx context.Context, name string, arguments map[string]interface{}) (string, error) {
	args := make(map[string]interface{}, len(arguments)+1)
	for k, v := range arguments {
		args[k] = v
	}
	if tok, _ := args[tools.TokenField].(string); tok == "" && s.cfg.AccessToken != "" {
		args[tools.TokenField] = s.cfg.AccessToken
	}

	res, err := s.service.Run(ctx, name, args)
	if fe, ok := search.AsFieldErrors(err); ok {
		s.logger.Info("tool input rejected", zap.String("tool", name), zap.Any("fields", fe))
		return marshal(map[string]interface{}{
			"error":   "Validation failed",
			"details": fe,
		})
	}
	if re, ok := gateway.AsRequestError(err); ok {
		s.logger.Warn("fhir search failed",
			zap.String("tool", name),
			zap.String("code", re.Code),
			zap.Int("status", re.StatusCode))
		return marshal(map[string]interface{}{
			"error":   re.Message,
			"code":    re.Code,
			"details": re.Details,
		})
	}
	if err != nil {
		s.logger.Error("tool call failed", zap.String("tool", name), zap.Error(err))
		return "", fmt.Errorf("%s: %w", name, err)
	}

	s.logger.Info("tool call completed", zap.String("tool", name), zap.Int("count", res.Count))
	return marshal(res.Payload())
}

// Serve blocks serving requests on stdin and stdout.
func (s *Server) Serve() error {
	s.logger.Info("starting mcp server on stdio")
	if err := server.ServeStdio(s.server); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	s.logger.Info("mcp server stopped")
	return nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []interface{}{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
	}
}

func marshal(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(data), nil
}
