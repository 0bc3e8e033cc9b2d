package llm

import (
	"encoding/json"
	"time"
)

// CompletionRequest configures one generate call.
type CompletionRequest struct {
	// Prompt configuration
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`

	// Model configuration
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`

	// Tools the model may request. Empty means no tool calling.
	Tools []Tool `json:"tools,omitempty"`

	// ResponseFormat constrains the reply to a JSON schema.
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// Message is a conversation turn.
//
// An assistant message may carry ToolCalls; each tool result that answers
// one of them is a RoleTool message whose ToolCallID names the request.
type Message struct {
	Role       Role       `json:"role"`
	Name       string     `json:"name,omitempty"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// HasToolCalls reports whether the message requests at least one tool call.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Role identifies the message sender.
type Role string

// Standard message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// UserText creates a user message.
func UserText(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantText creates an assistant message authored by name.
// name may be empty.
func AssistantText(name, content string) Message {
	return Message{Role: RoleAssistant, Name: name, Content: content}
}

// ToolResult creates the result message for one tool call.
func ToolResult(call ToolCall, content string) Message {
	return Message{Role: RoleTool, Name: call.Name, Content: content, ToolCallID: call.ID}
}

// Tool defines an available tool for the model.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// ResponseFormat asks the model for JSON matching Schema.
type ResponseFormat struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

// CompletionResponse is the output of a completion call.
type CompletionResponse struct {
	Content      string        `json:"content"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
	Usage        TokenUsage    `json:"usage"`
	Model        string        `json:"model"`
	FinishReason string        `json:"finish_reason"`
	Duration     time.Duration `json:"duration"`
}

// Message converts the response into an assistant message authored by name.
func (r *CompletionResponse) Message(name string) Message {
	return Message{
		Role:      RoleAssistant,
		Name:      name,
		Content:   r.Content,
		ToolCalls: r.ToolCalls,
	}
}

// ToolCall represents a tool invocation request from the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add adds other to the running usage.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}
