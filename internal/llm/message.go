package llm

import (
	"encoding/json"
)

// Message is a chat message. Content is normally a string but is kept as
// decoded JSON. Fields without a typed counterpart, and typed fields whose
// value does not decode, are kept in Extra and encoded back unchanged, so
// caller history and provider replies pass through intact.
type Message struct {
	Role       string      `json:"role"`
	Content    interface{} `json:"content"`
	Name       string      `json:"name,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type messageFields Message

// MarshalJSON encodes the typed fields, then every Extra key they did not set.
func (m Message) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(messageFields(m))
	if err != nil || len(m.Extra) == 0 {
		return base, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	for key, raw := range m.Extra {
		if _, set := fields[key]; !set {
			fields[key] = raw
		}
	}
	return json.Marshal(fields)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*m = Message{}
	for key, raw := range fields {
		if !m.decodeField(key, raw) {
			if m.Extra == nil {
				m.Extra = make(map[string]json.RawMessage)
			}
			m.Extra[key] = raw
		}
	}
	return nil
}

func (m *Message) decodeField(key string, raw json.RawMessage) bool {
	switch key {
	case "role":
		return json.Unmarshal(raw, &m.Role) == nil
	case "content":
		return json.Unmarshal(raw, &m.Content) == nil
	case "name":
		return json.Unmarshal(raw, &m.Name) == nil
	case "tool_call_id":
		return json.Unmarshal(raw, &m.ToolCallID) == nil
	case "tool_calls":
		var calls []ToolCall
		if err := json.Unmarshal(raw, &calls); err != nil {
			return false
		}
		m.ToolCalls = calls
		return true
	}
	return false
}
