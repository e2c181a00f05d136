package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/drfirst/fhir-chat/internal/audit"
	"github.com/drfirst/fhir-chat/internal/llm"
	"github.com/drfirst/fhir-chat/internal/memory"
	"github.com/drfirst/fhir-chat/internal/tools"
)

type fakeCompleter struct {
	resp *llm.ChatResponse
	err  error
	got  llm.ChatRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.got = req
	return f.resp, f.err
}

type fakeDispatcher struct {
	status int
	body   string
	err    error
	calls  []ToolCall
}

func (f *fakeDispatcher) Dispatch(_ context.Context, call ToolCall) (*DispatchResult, error) {
	f.calls = append(f.calls, call)
	if f.err != nil {
		return nil, f.err
	}
	return &DispatchResult{StatusCode: f.status, Body: []byte(f.body)}, nil
}

type auditLog struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *auditLog) Record(_ context.Context, e audit.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func toolCallResponse(name, args string) *llm.ChatResponse {
	return &llm.ChatResponse{Choices: []llm.Choice{{
		Message: &llm.Message{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{
				ID:       "call_1",
				Type:     "function",
				Function: llm.ToolCallFunction{Name: name, Arguments: args},
			}},
		},
	}}}
}

type harness struct {
	orch  *Orchestrator
	llm   *fakeCompleter
	disp  *fakeDispatcher
	store *memory.InMemoryStore
	audit *auditLog
}

func newHarness(t *testing.T, resp *llm.ChatResponse, status int, body string) *harness {
	t.Helper()
	h := &harness{
		llm:   &fakeCompleter{resp: resp},
		disp:  &fakeDispatcher{status: status, body: body},
		store: memory.NewInMemoryStore(),
		audit: &auditLog{},
	}
	orch, err := NewOrchestrator(Config{
		LLM:        h.llm,
		Registry:   tools.Default(),
		Dispatcher: h.disp,
		Memory:     h.store,
		Audit:      h.audit,
	}, nil)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	orch.now = func() time.Time { return time.UnixMilli(1700000000000) }
	h.orch = orch
	return h
}

func marshalBody(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func userTurn(conv string) TurnRequest {
	return TurnRequest{
		Messages:       json.RawMessage(`[{"role":"user","content":"find Jane Doe"}]`),
		ConversationID: conv,
		Token:          "tok-1",
		APIKey:         "doc-key",
		Role:           "Doctor",
		ClientIP:       "10.0.0.1",
	}
}

func TestTurnSummarizesPatientsAndRemembers(t *testing.T) {
	h := newHarness(t,
		toolCallResponse(tools.GetPatients, `{"name":"Jane Doe","token":"from-model"}`),
		http.StatusOK,
		`{"success":true,"patients":[{"id":"123","name":"Jane Doe","birthDate":"1990-01-01","gender":"female"}],"count":1}`)

	out, err := h.orch.Turn(context.Background(), userTurn("c1"))
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if out.State != StateSummarized || out.StatusCode != http.StatusOK {
		t.Fatalf("state = %s/%d", out.State, out.StatusCode)
	}
	if got := marshalBody(t, out.Body); got != `{"descriptions":["123 - Jane Doe"],"count":1}` {
		t.Errorf("body = %s", got)
	}

	mem, _ := h.store.Get(context.Background(), "c1")
	if mem.LastPatientID != "123" {
		t.Errorf("lastPatientId = %q", mem.LastPatientID)
	}

	if len(h.disp.calls) != 1 {
		t.Fatalf("dispatched %d calls", len(h.disp.calls))
	}
	call := h.disp.calls[0]
	if call.Args["token"] != "tok-1" {
		t.Errorf("token = %v, want caller token", call.Args["token"])
	}
	if call.APIKey != "doc-key" {
		t.Errorf("api key = %q", call.APIKey)
	}

	if len(h.audit.entries) != 1 {
		t.Fatalf("audit entries = %d", len(h.audit.entries))
	}
	e := h.audit.entries[0]
	if e.Tool != tools.GetPatients || e.UserRole != "Doctor" || e.Outcome != string(StateSummarized) || e.Status != 200 {
		t.Errorf("unexpected audit entry %+v", e)
	}
}

func TestTurnSendsToolsAndLimits(t *testing.T) {
	h := newHarness(t, &llm.ChatResponse{}, 0, "")
	if _, err := h.orch.Turn(context.Background(), userTurn("c1")); err != nil {
		t.Fatalf("turn: %v", err)
	}
	req := h.llm.got
	if req.ToolChoice != "auto" || req.MaxTokens != DefaultMaxTokens {
		t.Errorf("tool_choice=%q max_tokens=%d", req.ToolChoice, req.MaxTokens)
	}
	if len(req.Tools) != len(tools.Catalog()) {
		t.Errorf("offered %d tools", len(req.Tools))
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != "find Jane Doe" {
		t.Errorf("messages = %+v", req.Messages)
	}
}

func TestTurnAllergyMemoryTracksPatient(t *testing.T) {
	body := `{"allergyIntolerances":[{"id":"A1","substance":"Peanut","patient":"Patient/P1"},{"id":"A2","substance":"","patient":"Patient/P1"}],"count":2,"descriptions":["Peanut"]}`
	h := newHarness(t, toolCallResponse(tools.GetAllergyIntolerances, `{"patient":"P1"}`), http.StatusOK, body)

	out, err := h.orch.Turn(context.Background(), userTurn("c2"))
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if got := marshalBody(t, out.Body); got != `{"descriptions":["Peanut"],"count":1}` {
		t.Errorf("body = %s", got)
	}
	mem, _ := h.store.Get(context.Background(), "c2")
	if mem.LastAllergyID != "A1" || mem.LastPatientID != "P1" {
		t.Errorf("memory = %+v", mem)
	}
}

func TestTurnMergesMemoryAcrossTurns(t *testing.T) {
	h := newHarness(t, toolCallResponse(tools.GetPersons, `{"_id":"PR9"}`), http.StatusOK,
		`{"persons":[{"id":"PR9","name":"Ann"}],"count":1}`)
	_ = h.store.Set(context.Background(), "c3", memory.Memory{LastPatientID: "P7"})

	if _, err := h.orch.Turn(context.Background(), userTurn("c3")); err != nil {
		t.Fatalf("turn: %v", err)
	}
	mem, _ := h.store.Get(context.Background(), "c3")
	if mem.LastPatientID != "P7" || mem.LastPersonID != "PR9" {
		t.Errorf("memory = %+v", mem)
	}
}

func TestTurnZeroResultsLeavesMemoryAlone(t *testing.T) {
	h := newHarness(t, toolCallResponse(tools.GetPatients, `{"name":"Nobody"}`), http.StatusOK,
		`{"success":true,"patients":[],"count":0}`)

	out, err := h.orch.Turn(context.Background(), userTurn("c4"))
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if out.State != StateZeroResults {
		t.Fatalf("state = %s", out.State)
	}
	if got := marshalBody(t, out.Body); got != `{"descriptions":"No record(s) found for the given criteria"}` {
		t.Errorf("body = %s", got)
	}
	if h.store.Len() != 0 {
		t.Error("zero results must not create memory")
	}
}

func TestTurnValidationShortCircuits(t *testing.T) {
	h := newHarness(t, toolCallResponse(tools.GetMedicationRequests, `{"status":"active"}`), http.StatusOK, `{}`)

	out, err := h.orch.Turn(context.Background(), userTurn("c5"))
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if out.State != StateToolRejected || out.StatusCode != http.StatusOK {
		t.Fatalf("state = %s/%d", out.State, out.StatusCode)
	}
	want := marshalBody(t, map[string]string{"descriptions": tools.MsgMedicationNeedPatient})
	if got := marshalBody(t, out.Body); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
	if len(h.disp.calls) != 0 {
		t.Error("rejected call must not be dispatched")
	}
	if len(h.audit.entries) != 1 || h.audit.entries[0].Outcome != string(StateToolRejected) {
		t.Errorf("audit = %+v", h.audit.entries)
	}
}

func TestTurnUnknownToolIsRejected(t *testing.T) {
	h := newHarness(t, toolCallResponse("get_observations", `{}`), http.StatusOK, `{}`)
	out, _ := h.orch.Turn(context.Background(), userTurn("c6"))
	if got := marshalBody(t, out.Body); got != `{"descriptions":"Unknown tool: get_observations"}` {
		t.Errorf("body = %s", got)
	}
}

func TestTurnDispatchFailure(t *testing.T) {
	h := newHarness(t, toolCallResponse(tools.GetPatients, `{"name":"Jane"}`), http.StatusBadGateway,
		`{"success":false,"error":{"code":"HTTP_502"}}`)

	out, err := h.orch.Turn(context.Background(), userTurn("c7"))
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if out.State != StateDispatchFailed || out.StatusCode != http.StatusInternalServerError {
		t.Fatalf("state = %s/%d", out.State, out.StatusCode)
	}
	got := marshalBody(t, out.Body)
	want := `{"error":"Tool call failed","tool":"get_patients","details":{"success":false,"error":{"code":"HTTP_502"}}}`
	if got != want {
		t.Errorf("body = %s", got)
	}
	if h.store.Len() != 0 {
		t.Error("failed dispatch must not create memory")
	}
}

func TestTurnDispatchFailureWithTextBody(t *testing.T) {
	h := newHarness(t, toolCallResponse(tools.GetPatients, `{"name":"Jane"}`), http.StatusUnauthorized, `Unauthorized`)
	out, _ := h.orch.Turn(context.Background(), userTurn("c8"))
	body := out.Body.(toolFailedBody)
	if body.Details != "Unauthorized" {
		t.Errorf("details = %#v", body.Details)
	}
}

func TestTurnRawPassthroughWithoutCount(t *testing.T) {
	raw := `{"patients":[{"id":"1","name":"X"}]}`
	h := newHarness(t, toolCallResponse(tools.GetPatients, `{"name":"X"}`), http.StatusOK, raw)

	out, err := h.orch.Turn(context.Background(), userTurn("c9"))
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if out.State != StateRawPassthrough {
		t.Fatalf("state = %s", out.State)
	}
	if got := marshalBody(t, out.Body); got != raw {
		t.Errorf("body = %s", got)
	}
	if h.store.Len() != 0 {
		t.Error("raw passthrough must not create memory")
	}
}

func TestTurnForwardsToolCallHistory(t *testing.T) {
	h := newHarness(t, &llm.ChatResponse{}, 0, "")
	_, err := h.orch.Turn(context.Background(), TurnRequest{
		ConversationID: "c13",
		Messages: json.RawMessage(`[
			{"role":"user","content":"find Jane Doe"},
			{"role":"assistant","content":null,"tool_calls":[{"id":"c1","type":"function","function":{"name":"get_patients","arguments":"{}"}}]},
			{"role":"tool","tool_call_id":"c1","content":"{\"count\":1}"}
		]`),
	})
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	sent := h.llm.got.Messages
	if len(sent) != 3 {
		t.Fatalf("sent %d messages", len(sent))
	}
	if len(sent[1].ToolCalls) != 1 || sent[1].ToolCalls[0].ID != "c1" {
		t.Errorf("assistant tool calls = %+v", sent[1].ToolCalls)
	}
	if sent[2].ToolCallID != "c1" {
		t.Errorf("tool message = %+v", sent[2])
	}
}

func TestTurnNoToolCall(t *testing.T) {
	t.Run("model message is returned", func(t *testing.T) {
		resp := &llm.ChatResponse{Choices: []llm.Choice{{Message: &llm.Message{Role: llm.RoleAssistant, Content: "Hello"}}}}
		h := newHarness(t, resp, 0, "")
		out, err := h.orch.Turn(context.Background(), userTurn("c10"))
		if err != nil {
			t.Fatalf("turn: %v", err)
		}
		if got := marshalBody(t, out.Body); got != `{"message":{"role":"assistant","content":"Hello"}}` {
			t.Errorf("body = %s", got)
		}
		if len(h.audit.entries) != 0 {
			t.Error("no tool call means no audit entry")
		}
	})

	t.Run("provider fields are kept", func(t *testing.T) {
		var resp llm.ChatResponse
		err := json.Unmarshal([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"Hello","refusal":null,"content_filter_results":{"hate":{"filtered":false}}}}]}`), &resp)
		if err != nil {
			t.Fatalf("decode response: %v", err)
		}
		h := newHarness(t, &resp, 0, "")
		out, err := h.orch.Turn(context.Background(), userTurn("c12"))
		if err != nil {
			t.Fatalf("turn: %v", err)
		}
		got := marshalBody(t, out.Body)
		for _, field := range []string{`"refusal":null`, `"content_filter_results":{"hate":{"filtered":false}}`, `"content":"Hello"`} {
			if !strings.Contains(got, field) {
				t.Errorf("body %s is missing %s", got, field)
			}
		}
	})

	t.Run("missing choice falls back", func(t *testing.T) {
		h := newHarness(t, &llm.ChatResponse{}, 0, "")
		out, _ := h.orch.Turn(context.Background(), userTurn("c11"))
		if out.State != StateNoToolCall {
			t.Fatalf("state = %s", out.State)
		}
		if got := marshalBody(t, out.Body); !strings.Contains(got, DefaultReply) {
			t.Errorf("body = %s", got)
		}
	})
}

func TestTurnInvalidMessages(t *testing.T) {
	for _, raw := range []string{``, `null`, `"hi"`, `{"role":"user"}`, `[1,2]`} {
		h := newHarness(t, &llm.ChatResponse{}, 0, "")
		req := userTurn("c12")
		req.Messages = json.RawMessage(raw)
		out, err := h.orch.Turn(context.Background(), req)
		if !errors.Is(err, ErrMessagesRequired) {
			t.Errorf("%q: err = %v", raw, err)
		}
		if out.StatusCode != http.StatusBadRequest || marshalBody(t, out.Body) != `{"error":"messages required"}` {
			t.Errorf("%q: outcome = %d %s", raw, out.StatusCode, marshalBody(t, out.Body))
		}
	}
}

func TestTurnMalformedArguments(t *testing.T) {
	h := newHarness(t, toolCallResponse(tools.GetPatients, `{not json`), http.StatusOK, `{}`)
	out, err := h.orch.Turn(context.Background(), userTurn("c13"))
	if err == nil {
		t.Fatal("expected error")
	}
	if out.State != StateFailed || out.StatusCode != http.StatusInternalServerError {
		t.Fatalf("state = %s/%d", out.State, out.StatusCode)
	}
	if body := out.Body.(errorBody); body.Error != "Chat failed" || body.Message == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestTurnLLMError(t *testing.T) {
	h := newHarness(t, nil, 0, "")
	h.llm.err = errors.New("upstream down")
	out, err := h.orch.Turn(context.Background(), userTurn("c14"))
	if err == nil || out.State != StateFailed {
		t.Fatalf("state = %s err = %v", out.State, err)
	}
	if got := marshalBody(t, out.Body); got != `{"error":"Chat failed","message":"upstream down"}` {
		t.Errorf("body = %s", got)
	}
}

func TestTurnDropsModelTokenWithoutCallerToken(t *testing.T) {
	h := newHarness(t, toolCallResponse(tools.GetPatients, `{"name":"Jane","token":"model-made"}`), http.StatusOK,
		`{"patients":[],"count":0}`)
	req := userTurn("c15")
	req.Token = ""
	if _, err := h.orch.Turn(context.Background(), req); err != nil {
		t.Fatalf("turn: %v", err)
	}
	if _, ok := h.disp.calls[0].Args["token"]; ok {
		t.Error("model-supplied token must not be forwarded")
	}
}

func TestTurnGeneratesConversationID(t *testing.T) {
	h := newHarness(t, &llm.ChatResponse{}, 0, "")

	req := userTurn("")
	out, _ := h.orch.Turn(context.Background(), req)
	if out.ConversationID != "10.0.0.1:1700000000000" {
		t.Errorf("conversation id = %q", out.ConversationID)
	}

	req.ClientIP = ""
	out, _ = h.orch.Turn(context.Background(), req)
	if out.ConversationID != "anon:1700000000000" {
		t.Errorf("conversation id = %q", out.ConversationID)
	}
}

func TestCountOf(t *testing.T) {
	tests := []struct {
		raw   string
		want  float64
		known bool
	}{
		{`{"count":3}`, 3, true},
		{`{"count":0}`, 0, true},
		{`{"count":"2"}`, 2, true},
		{`{"count":"many"}`, 0, false},
		{`{"count":null}`, 0, false},
		{`{}`, 0, false},
	}
	for _, tt := range tests {
		var body map[string]json.RawMessage
		if err := json.Unmarshal([]byte(tt.raw), &body); err != nil {
			t.Fatal(err)
		}
		got, known := countOf(body)
		if got != tt.want || known != tt.known {
			t.Errorf("%s: got %v/%v", tt.raw, got, known)
		}
	}
}

func TestNewOrchestratorRequiresDependencies(t *testing.T) {
	if _, err := NewOrchestrator(Config{}, nil); err == nil {
		t.Error("expected error for empty config")
	}
}
