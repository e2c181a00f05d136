package chat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPDispatcherPostsToToolEndpoint(t *testing.T) {
	var (
		gotPath, gotKey, gotUser, gotPass string
		gotBody                           map[string]interface{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		gotUser, gotPass, _ = r.BasicAuth()
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	d, err := NewHTTPDispatcher(HTTPDispatcherConfig{BaseURL: srv.URL + "/", BasicUser: "svc", BasicPassword: "pw"})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	res, err := d.Dispatch(context.Background(), ToolCall{
		Name:   "get_patients",
		Args:   map[string]interface{}{"name": "Jane", "token": "tok"},
		APIKey: "k1",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if gotPath != "/mcp/get_patients" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "k1" || gotUser != "svc" || gotPass != "pw" {
		t.Errorf("credentials = %q %q %q", gotKey, gotUser, gotPass)
	}
	if gotBody["name"] != "Jane" || gotBody["token"] != "tok" {
		t.Errorf("body = %v", gotBody)
	}
	if res.StatusCode != http.StatusCreated || string(res.Body) != `{"ok":true}` {
		t.Errorf("result = %d %s", res.StatusCode, res.Body)
	}
}

func TestHTTPDispatcherRequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPDispatcher(HTTPDispatcherConfig{}); err == nil {
		t.Error("expected error")
	}
}

func TestHTTPDispatcherTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	d, _ := NewHTTPDispatcher(HTTPDispatcherConfig{BaseURL: url})
	if _, err := d.Dispatch(context.Background(), ToolCall{Name: "get_patients"}); err == nil {
		t.Error("expected transport error")
	}
}
