// Package mcp wraps the official MCP SDK client behind the small
// surface the tool registry needs: connect to a stdio server, list its
// tools, and invoke them. Tool results are flattened to text.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Jamessukanto/rag-multimodal/internal/logging"
)

// ToolInfo describes a tool advertised by a connected server.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ConnectionError wraps a failure to reach or talk to an MCP server.
type ConnectionError struct {
	Server string
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mcp server %s: %s: %v", e.Server, e.Reason, e.Err)
	}
	return fmt.Sprintf("mcp server %s: %s", e.Server, e.Reason)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Client is a connection to a single MCP server over stdio.
type Client struct {
	name    string
	session *mcpsdk.ClientSession
}

// Connect launches the server command and performs the MCP handshake.
// command is the full server invocation, e.g. "python mcp_server.py".
// The subprocess lives until [Client.Close].
func Connect(ctx context.Context, name, command string) (*Client, error) {
	parts := strings.Fields(strings.TrimSpace(command))
	if len(parts) == 0 {
		return nil, &ConnectionError{Server: name, Reason: "server command is empty"}
	}

	impl := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "ragmm", Version: "dev"}, nil)
	transport := &mcpsdk.CommandTransport{
		Command: exec.CommandContext(ctx, parts[0], parts[1:]...),
	}

	session, err := impl.Connect(ctx, transport, nil)
	if err != nil {
		return nil, &ConnectionError{Server: name, Reason: "handshake failed", Err: err}
	}

	logging.FromContext(ctx).Info("connected to mcp server", "server", name)
	return &Client{name: name, session: session}, nil
}

// ListTools fetches the server's full tool list.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var tools []ToolInfo
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, &ConnectionError{Server: c.name, Reason: "listing tools failed", Err: err}
		}
		schema, err := schemaToMap(tool.InputSchema)
		if err != nil {
			return nil, &ConnectionError{Server: c.name, Reason: fmt.Sprintf("tool %s has an invalid schema", tool.Name), Err: err}
		}
		tools = append(tools, ToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}
	return tools, nil
}

// CallTool invokes a tool on the server and returns its text content.
// A result the server marks as an error is returned as a Go error.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	result, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", &ConnectionError{Server: c.name, Reason: fmt.Sprintf("calling tool %s failed", name), Err: err}
	}

	text := resultText(result)
	if result.IsError {
		return "", &ConnectionError{Server: c.name, Reason: fmt.Sprintf("tool %s reported an error: %s", name, text)}
	}
	return text, nil
}

// Close shuts down the session and the server subprocess.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

// schemaToMap converts the SDK's schema type to a plain map via a JSON
// round trip, which is what the LLM tool formats expect.
func schemaToMap(schema any) (map[string]any, error) {
	if schema == nil {
		return map[string]any{"type": "object"}, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// resultText concatenates the text blocks of a tool result.
func resultText(result *mcpsdk.CallToolResult) string {
	var b strings.Builder
	for _, content := range result.Content {
		if text, ok := content.(*mcpsdk.TextContent); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String()
}
