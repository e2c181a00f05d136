package tools

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Registry is an immutable set of tool definitions.
type Registry struct {
	defs   []Definition
	byName map[string]int
}

// NewRegistry builds a registry from defs. Duplicate names are rejected.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{
		defs:   make([]Definition, len(defs)),
		byName: make(map[string]int, len(defs)),
	}
	copy(r.defs, defs)
	for i, d := range r.defs {
		if d.Name == "" {
			return nil, fmt.Errorf("tool %d has no name", i)
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", d.Name)
		}
		r.byName[d.Name] = i
	}
	return r, nil
}

// Default returns the registry of FHIR search tools.
func Default() *Registry {
	r, err := NewRegistry(Catalog()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the definition named name.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	i, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return &r.defs[i], true
}

// Definitions returns the definitions in registration order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Tools renders every definition as an MCP tool.
func (r *Registry) Tools() []mcp.Tool {
	out := make([]mcp.Tool, 0, len(r.defs))
	for i := range r.defs {
		out = append(out, r.defs[i].Tool())
	}
	return out
}

// Validation is the verdict on a proposed tool call.
type Validation struct {
	Valid   bool
	Message string
}

// Validate checks a proposed call before it is dispatched. Tools with their
// own rule use it in place of the generic required-field check.
func (r *Registry) Validate(name string, args map[string]interface{}) Validation {
	def, ok := r.Lookup(name)
	if !ok {
		return Validation{Message: "Unknown tool: " + name}
	}
	if def.rule != nil {
		if msg, ok := def.rule(args); !ok {
			return Validation{Message: msg}
		}
		return Validation{Valid: true}
	}

	var missing []string
	for _, field := range def.Required {
		v, ok := args[field]
		if !ok || v == nil || v == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return Validation{Message: fmt.Sprintf("Please provide %s to use %s.", quoteAll(missing), name)}
	}
	return Validation{Valid: true}
}

func quoteAll(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + f + `"`
	}
	return strings.Join(quoted, " and ")
}

// present reports whether v would count as supplied by a caller: non-empty
// strings, non-zero numbers, true, and any other non-null value.
func present(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case bool:
		return t
	default:
		return true
	}
}
