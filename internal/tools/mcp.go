package tools

import (
	"context"

	"github.com/Jamessukanto/rag-multimodal/internal/mcp"
)

// MCPTool adapts a tool advertised by an MCP server to the [Tool]
// interface. The server's own name, description, and schema are passed
// through to the model unchanged.
type MCPTool struct {
	client *mcp.Client
	info   mcp.ToolInfo
}

// NewMCPTool wraps one advertised MCP tool.
func NewMCPTool(client *mcp.Client, info mcp.ToolInfo) *MCPTool {
	return &MCPTool{client: client, info: info}
}

func (t *MCPTool) Name() string                { return t.info.Name }
func (t *MCPTool) Description() string         { return t.info.Description }
func (t *MCPTool) InputSchema() map[string]any { return t.info.InputSchema }

// Execute forwards the call to the MCP server and returns its text
// content.
func (t *MCPTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return t.client.CallTool(ctx, t.info.Name, args)
}
