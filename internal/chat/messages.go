package chat

import (
	"encoding/json"
	"strings"

	"github.com/drfirst/fhir-chat/internal/llm"
)

// decodeMessages accepts only a JSON array of objects.
func decodeMessages(raw json.RawMessage) ([]llm.Message, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || trimmed[0] != '[' {
		return nil, ErrMessagesRequired
	}
	var msgs []llm.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, ErrMessagesRequired
	}
	return msgs, nil
}

// normalizeMessages flattens structured content to plain text: an array of
// parts is joined with newlines, and an object with a text field becomes
// that text. Every other field of a message is kept as sent.
func normalizeMessages(in []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(in))
	for _, m := range in {
		m.Content = flattenContent(m.Content)
		out = append(out, m)
	}
	return out
}

func flattenContent(content interface{}) interface{} {
	switch c := content.(type) {
	case []interface{}:
		parts := make([]string, 0, len(c))
		for _, part := range c {
			switch p := part.(type) {
			case string:
				parts = append(parts, p)
			case map[string]interface{}:
				text, _ := p["text"].(string)
				parts = append(parts, text)
			default:
				parts = append(parts, "")
			}
		}
		return strings.Join(parts, "\n")
	case map[string]interface{}:
		if text, ok := c["text"].(string); ok && text != "" {
			return text
		}
		return c
	default:
		return content
	}
}
