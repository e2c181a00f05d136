package tools

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/drfirst/fhir-chat/internal/gateway"
)

// TokenField carries the caller's FHIR access token in tool arguments. It is
// never forwarded as a search parameter.
const TokenField = "token"

// FieldErrors maps a field name to its validation messages.
type FieldErrors map[string][]string

func (fe FieldErrors) add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

// Error lists the failing fields.
func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(fe[f], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ValidateInput checks a search endpoint body against d and returns the search
// parameters in declaration order. The token field is ignored; null counts as absent.
func (d *Definition) ValidateInput(body map[string]interface{}) (gateway.Params, FieldErrors) {
	errs := FieldErrors{}
	for key := range body {
		if key == TokenField {
			continue
		}
		if _, ok := d.Param(key); !ok {
			errs.add(key, "Unrecognized field")
		}
	}

	var params gateway.Params
	for _, p := range d.Params {
		raw, ok := body[p.Name]
		if !ok || raw == nil {
			continue
		}
		value, msg := coerce(p, raw)
		if msg != "" {
			errs.add(p.Name, msg)
			continue
		}
		params = params.Add(p.searchName(), value)
	}

	for _, field := range d.InputRequired {
		if v, ok := body[field]; !ok || v == nil {
			errs.add(field, "Required")
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return params, nil
}

func coerce(p Param, raw interface{}) (string, string) {
	switch p.Type {
	case TypeInteger:
		switch v := raw.(type) {
		case float64:
			if v != math.Trunc(v) || v <= 0 || v > math.MaxInt32 {
				return "", "Expected a positive integer"
			}
			return strconv.FormatInt(int64(v), 10), ""
		case string:
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return "", "Expected a positive integer"
			}
			return strconv.Itoa(n), ""
		default:
			return "", fmt.Sprintf("Expected integer, received %s", jsonKind(raw))
		}
	default:
		s, ok := raw.(string)
		if !ok {
			return "", fmt.Sprintf("Expected string, received %s", jsonKind(raw))
		}
		if len(p.Enum) > 0 && !contains(p.Enum, s) {
			return "", fmt.Sprintf("Invalid enum value. Expected '%s', received '%s'", strings.Join(p.Enum, "' | '"), s)
		}
		return s, ""
	}
}

func jsonKind(v interface{}) string {
	switch v.(type) {
	case string:
		return "string"
	case float64, int:
		return "number"
	case bool:
		return "boolean"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
