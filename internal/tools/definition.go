// Package tools holds the FHIR search tools offered to the model and the
// validation applied to their arguments. Each tool is declared once; the model
// schema, the MCP schema and the endpoint input checks are all derived from
// that declaration.
package tools

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// ParamType is the JSON schema type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
)

// Param describes one search parameter.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Enum        []string
	// SearchName is the FHIR search parameter the value is sent as. Empty means Name.
	SearchName string
}

func (p Param) searchName() string {
	if p.SearchName != "" {
		return p.SearchName
	}
	return p.Name
}

func (p Param) schema() map[string]interface{} {
	s := map[string]interface{}{"type": string(p.Type)}
	if p.Description != "" {
		s["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		s["enum"] = p.Enum
	}
	return s
}

// Definition is a single FHIR search tool.
type Definition struct {
	Name         string
	ResourceType string
	Description  string
	Params       []Param
	// Required is advertised to the model.
	Required []string
	// InputRequired is enforced by the search endpoint.
	InputRequired []string

	// rule, when set, replaces the generic required check in Registry.Validate.
	rule func(args map[string]interface{}) (string, bool)
}

// Param returns the parameter named name.
func (d *Definition) Param(name string) (Param, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Tool renders d as an MCP tool.
func (d *Definition) Tool() mcp.Tool {
	props := make(map[string]interface{}, len(d.Params))
	for _, p := range d.Params {
		props[p.Name] = p.schema()
	}
	required := d.Required
	if required == nil {
		required = []string{}
	}
	return mcp.Tool{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
	}
}
