package chat

import (
	"encoding/json"
	"testing"
)

func TestNormalizeMessages(t *testing.T) {
	raw := json.RawMessage(`[
		{"role":"system","content":"be brief"},
		{"role":"user","content":[{"type":"text","text":"line one"},"line two"]},
		{"role":"user","content":{"type":"text","text":"object text"}},
		{"role":"tool","content":"{}","tool_call_id":"call_1"}
	]`)
	msgs, err := decodeMessages(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out := normalizeMessages(msgs)
	if len(out) != 4 {
		t.Fatalf("got %d messages", len(out))
	}
	want := []interface{}{"be brief", "line one\nline two", "object text", "{}"}
	for i, w := range want {
		if out[i].Content != w {
			t.Errorf("message %d content = %#v, want %#v", i, out[i].Content, w)
		}
	}
	if out[3].Role != "tool" || out[3].ToolCallID != "call_1" {
		t.Errorf("tool message = %+v", out[3])
	}
}

func TestFlattenContentKeepsObjectWithoutText(t *testing.T) {
	in := map[string]interface{}{"type": "image_url"}
	got, ok := flattenContent(in).(map[string]interface{})
	if !ok || got["type"] != "image_url" {
		t.Errorf("got %#v", flattenContent(in))
	}
}

func TestDecodeMessagesAcceptsEmptyArray(t *testing.T) {
	msgs, err := decodeMessages(json.RawMessage(` [] `))
	if err != nil || len(msgs) != 0 {
		t.Errorf("got %v, %v", msgs, err)
	}
}

func TestNormalizeMessagesKeepsToolCallHistory(t *testing.T) {
	raw := json.RawMessage(`[
		{"role":"user","content":"find Jane Doe"},
		{"role":"assistant","content":null,"tool_calls":[{"id":"c1","type":"function","function":{"name":"get_patients","arguments":"{\"name\":\"Jane Doe\"}"}}]},
		{"role":"tool","tool_call_id":"c1","content":[{"type":"text","text":"{\"count\":1}"}],"x-trace":"abc"}
	]`)
	msgs, err := decodeMessages(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out := normalizeMessages(msgs)

	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got []map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	calls, ok := got[1]["tool_calls"].([]interface{})
	if !ok || len(calls) != 1 {
		t.Fatalf("assistant tool_calls = %#v", got[1]["tool_calls"])
	}
	if id := calls[0].(map[string]interface{})["id"]; id != "c1" {
		t.Errorf("tool call id = %v", id)
	}
	if got[2]["tool_call_id"] != "c1" || got[2]["content"] != `{"count":1}` {
		t.Errorf("tool message = %#v", got[2])
	}
	if got[2]["x-trace"] != "abc" {
		t.Errorf("unknown field dropped: %#v", got[2])
	}
}

func TestDecodeMessagesRejectsNonObjects(t *testing.T) {
	if _, err := decodeMessages(json.RawMessage(`["hi"]`)); err != ErrMessagesRequired {
		t.Errorf("err = %v", err)
	}
}
