// Package gateway is the FHIR resource gateway: it turns search parameters
// into an authenticated FHIR REST search and classifies every failure.
package gateway

import (
	"net/url"
	"strings"
)

// Param is one search parameter. A nil Value means the parameter is absent.
type Param struct {
	Key   string
	Value *string
}

// Params is an ordered list of search parameters.
type Params []Param

// Add appends key=value.
func (p Params) Add(key, value string) Params {
	v := value
	return append(p, Param{Key: key, Value: &v})
}

// Get returns the first value set for key.
func (p Params) Get(key string) (string, bool) {
	for _, param := range p {
		if param.Key == key && param.Value != nil {
			return *param.Value, true
		}
	}
	return "", false
}

// BuildQuery renders params as a query string. Absent values are skipped,
// order is preserved, and keys and values are percent-encoded. An empty
// result yields "" and anything else starts with "?".
func BuildQuery(params Params) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p.Value == nil {
			continue
		}
		parts = append(parts, EncodeComponent(p.Key)+"="+EncodeComponent(*p.Value))
	}
	if len(parts) == 0 {
		return ""
	}
	return "?" + strings.Join(parts, "&")
}

// EncodeComponent percent-encodes s for use as a query key or value.
// Spaces become %20 rather than "+".
func EncodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
