// Package search runs one FHIR search tool: it validates the caller's input,
// queries the FHIR server and summarizes the returned bundle.
package search

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/drfirst/fhir-chat/internal/fhir/r4"
	"github.com/drfirst/fhir-chat/internal/gateway"
	"github.com/drfirst/fhir-chat/internal/summary"
	"github.com/drfirst/fhir-chat/internal/tools"
)

// ErrUnknownTool is returned for a tool missing from the registry.
var ErrUnknownTool = errors.New("unknown tool")

// Searcher queries a FHIR server. *gateway.Client implements it.
type Searcher interface {
	Search(ctx context.Context, resourceType string, params gateway.Params, accessToken string) (*r4.Bundle, error)
}

// Service executes search tools.
type Service struct {
	registry *tools.Registry
	searcher Searcher
	logger   *zap.Logger
}

func NewService(registry *tools.Registry, searcher Searcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{registry: registry, searcher: searcher, logger: logger}
}

// Run validates body for tool and returns the summarized search result.
// Invalid input is reported as tools.FieldErrors; FHIR failures as
// *gateway.RequestError.
func (s *Service) Run(ctx context.Context, tool string, body map[string]interface{}) (summary.Result, error) {
	def, ok := s.registry.Lookup(tool)
	if !ok {
		return summary.Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, tool)
	}

	params, fieldErrs := def.ValidateInput(body)
	if fieldErrs != nil {
		s.logger.Debug("search input rejected",
			zap.String("tool", tool),
			zap.Any("fields", fieldErrs))
		return summary.Result{}, fieldErrs
	}

	token, _ := body[tools.TokenField].(string)
	bundle, err := s.searcher.Search(ctx, def.ResourceType, params, token)
	if err != nil {
		return summary.Result{}, err
	}
	return summary.Summarize(def.ResourceType, bundle)
}

// AsFieldErrors unwraps validation failures returned by Run.
func AsFieldErrors(err error) (tools.FieldErrors, bool) {
	var fe tools.FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
