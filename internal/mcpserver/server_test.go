package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/drfirst/fhir-chat/internal/fhir/r4"
	"github.com/drfirst/fhir-chat/internal/gateway"
	"github.com/drfirst/fhir-chat/internal/search"
	"github.com/drfirst/fhir-chat/internal/tools"
)

type fakeSearcher struct {
	bundle *r4.Bundle
	err    error
	token  string
}

func (f *fakeSearcher) Search(_ context.Context, _ string, _ gateway.Params, token string) (*r4.Bundle, error) {
	f.token = token
	return f.bundle, f.err
}

func newServer(fs *fakeSearcher, token string) *Server {
	reg := tools.Default()
	return New(Config{AccessToken: token}, reg, search.NewService(reg, fs, nil), nil)
}

func decode(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("content = %v", res.Content)
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type %T", res.Content[0])
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(tc.Text), &out); err != nil {
		t.Fatalf("decode %q: %v", tc.Text, err)
	}
	return out
}

func TestToolReturnsSummary(t *testing.T) {
	fs := &fakeSearcher{bundle: r4.NewSearchset(
		json.RawMessage(`{"resourceType":"Patient","id":"123","name":[{"text":"Jane Doe"}]}`),
	)}
	s := newServer(fs, "default-tok")

	res, err := s.handler(tools.GetPatients)(map[string]interface{}{"name": "Jane Doe"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	out := decode(t, res)
	if out["count"] != float64(1) {
		t.Errorf("count = %v", out["count"])
	}
	if fs.token != "default-tok" {
		t.Errorf("token = %q, want fallback", fs.token)
	}
}

func TestToolPrefersCallerToken(t *testing.T) {
	fs := &fakeSearcher{bundle: r4.NewSearchset()}
	s := newServer(fs, "default-tok")

	if _, err := s.handler(tools.GetPatients)(map[string]interface{}{"token": "mine"}); err != nil {
		t.Fatalf("call: %v", err)
	}
	if fs.token != "mine" {
		t.Errorf("token = %q", fs.token)
	}
}

func TestToolReportsValidationAsText(t *testing.T) {
	s := newServer(&fakeSearcher{}, "")

	res, err := s.handler(tools.GetPatients)(map[string]interface{}{"gender": "robot"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	out := decode(t, res)
	if out["error"] != "Validation failed" {
		t.Errorf("error = %v", out["error"])
	}
}

func TestToolReportsUpstreamErrorAsText(t *testing.T) {
	fs := &fakeSearcher{err: &gateway.RequestError{
		Code:       gateway.CodeNotFound,
		Message:    "not found",
		StatusCode: http.StatusNotFound,
	}}
	s := newServer(fs, "")

	res, err := s.handler(tools.GetPatients)(map[string]interface{}{})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	out := decode(t, res)
	if out["code"] != gateway.CodeNotFound || out["error"] != "not found" {
		t.Errorf("out = %v", out)
	}
}

func TestUnknownToolIsAnError(t *testing.T) {
	s := newServer(&fakeSearcher{}, "")
	if _, err := s.call(context.Background(), "nope", nil); err == nil {
		t.Fatal("expected error")
	}
}
