// Package llm talks to an OpenAI-compatible chat completions API with tool
// calling, as hosted by Azure OpenAI.
package llm

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// Roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Tool is a function the model may call.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Parameters  Parameters `json:"parameters"`
}

// Parameters is a JSON schema object. Properties and Required always encode,
// even when empty.
type Parameters struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required"`
}

type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

type ToolCallFunction struct {
	Name string `json:"name"`
	// Arguments is a JSON object encoded as a string.
	Arguments string `json:"arguments"`
}

// ChatRequest is a chat completions request.
type ChatRequest struct {
	Model      string    `json:"model,omitempty"`
	Messages   []Message `json:"messages"`
	Tools      []Tool    `json:"tools,omitempty"`
	ToolChoice string    `json:"tool_choice,omitempty"`
	MaxTokens  int       `json:"max_tokens,omitempty"`
}

// ChatResponse is a chat completions response.
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

type Choice struct {
	Index        int      `json:"index"`
	Message      *Message `json:"message,omitempty"`
	FinishReason string   `json:"finish_reason,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// FirstMessage returns the first choice's message, or nil.
func (r *ChatResponse) FirstMessage() *Message {
	if r == nil || len(r.Choices) == 0 {
		return nil
	}
	return r.Choices[0].Message
}

// FirstToolCall returns the first tool call of the first choice, or nil.
func (r *ChatResponse) FirstToolCall() *ToolCall {
	msg := r.FirstMessage()
	if msg == nil || len(msg.ToolCalls) == 0 {
		return nil
	}
	return &msg.ToolCalls[0]
}

// Completer produces chat completions.
type Completer interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ToolsFromMCP converts MCP tool declarations to function tools.
func ToolsFromMCP(tools []mcp.Tool) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		props := t.InputSchema.Properties
		if props == nil {
			props = map[string]interface{}{}
		}
		required := t.InputSchema.Required
		if required == nil {
			required = []string{}
		}
		out = append(out, Tool{
			Type: "function",
			Function: ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters: Parameters{
					Type:       "object",
					Properties: props,
					Required:   required,
				},
			},
		})
	}
	return out
}
