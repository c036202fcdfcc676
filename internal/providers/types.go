// Package providers abstracts LLM chat-completion backends.
package providers

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in a chat conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // assistant messages only
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool messages only
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDefinition describes a callable tool for the provider API.
type ToolDefinition struct {
	Type     string             `json:"type"` // always "function"
	Function ToolFunctionSchema `json:"function"`
}

// ToolFunctionSchema is the JSON-schema shaped function description.
type ToolFunctionSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatRequest is a single chat-completion invocation.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float64
}

// ChatResponse is the model's reply. The shape is always well-formed:
// Content may be empty, ToolCalls holds zero or more parsed calls.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
	Model     string
}

// HasToolCalls reports whether the model requested any tool invocations.
func (r *ChatResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Provider is implemented by LLM chat backends.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
