// Package tools defines the Tool interface, the registry the agent
// routes tool calls through, and the built-in tool implementations.
// Tools come from two places: native tools backed by in-process
// services, and external tools advertised by MCP servers.
package tools

import (
	"context"
	"fmt"

	"github.com/Jamessukanto/rag-multimodal/internal/llm"
)

// Tool is the interface all agent-callable tools must satisfy.
type Tool interface {
	// Name returns the unique tool name registered with the agent.
	Name() string

	// Description returns the LLM-facing description of what the tool
	// does. This text is sent to the model as part of the tool schema.
	Description() string

	// InputSchema returns the JSON schema describing the tool's
	// arguments.
	InputSchema() map[string]any

	// Execute runs the tool with the given arguments and returns its
	// result as text for the model.
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Definition converts a tool to the neutral form the LLM clients
// format for their providers.
func Definition(t Tool) llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.InputSchema(),
	}
}

// NotFoundError reports a tool call naming an unregistered tool.
type NotFoundError struct {
	Tool string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool %s not found", e.Tool)
}

// ExecutionError wraps a failure inside a tool's Execute.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
