// Package llm defines a provider-agnostic chat completion client used
// by the agent loop. Providers translate between the neutral [Message]
// form kept in conversation history and their own wire formats, so the
// orchestrator never inspects provider response types directly.
package llm

import (
	"context"
	"fmt"
)

// Roles used in conversation history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Response is an opaque provider response. Callers pass it back to the
// same client's inspection methods and never look inside.
type Response = any

// FormattedTool is a tool definition converted to a provider's wire
// format by [Client.FormatTools].
type FormattedTool = any

// Message is a provider-neutral conversation entry. Content is nil
// exactly when the message carries tool calls. The JSON form follows
// the OpenAI chat wire shape so histories round-trip through the API.
type Message struct {
	Role       string     `json:"role"`
	Content    *string    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a tool invocation requested by the model. Arguments is
// the raw JSON string as produced by the provider.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes a callable tool in neutral form.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Client is a chat completion provider.
type Client interface {
	// ChatCompletion sends the conversation and optional tools to the
	// provider and returns its raw response.
	ChatCompletion(ctx context.Context, messages []Message, tools []FormattedTool) (Response, error)

	// HasToolCalls reports whether the response requests tool execution.
	HasToolCalls(resp Response) bool

	// ExtractToolCalls returns the tool calls in the response, in the
	// order the provider emitted them.
	ExtractToolCalls(resp Response) ([]ToolCall, error)

	// ExtractTextContent returns the response's text content, or the
	// empty string if there is none.
	ExtractTextContent(resp Response) string

	// FormatToolMessage builds the assistant history entry recording
	// the given tool calls.
	FormatToolMessage(toolCalls []ToolCall) Message

	// FormatToolResultMessage builds the history entry carrying one
	// tool's result back to the model.
	FormatToolResultMessage(toolCallID, toolName, result string) Message

	// FormatTools converts neutral tool definitions to the provider's
	// wire format.
	FormatTools(tools []ToolDefinition) []FormattedTool
}

// Error wraps any failure talking to or interpreting a provider.
type Error struct {
	Provider string
	Reason   string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm %s: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("llm %s: %s", e.Provider, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// TextMessage builds a plain text message with the given role.
func TextMessage(role, content string) Message {
	return Message{Role: role, Content: &content}
}
