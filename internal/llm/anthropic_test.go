package llm

import (
	"encoding/json"
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
)

func newAnthropicClient(t *testing.T) *AnthropicClient {
	t.Helper()
	c, err := NewAnthropicClient("test-key", "test-model", 1024)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func Test_AnthropicClient_WireCoalescesToolResults(t *testing.T) {
	t.Parallel()
	c := newAnthropicClient(t)

	history := []Message{
		TextMessage(RoleSystem, "be brief"),
		TextMessage(RoleUser, "question"),
		c.FormatToolMessage([]ToolCall{
			{ID: "a", Name: "first", Arguments: "{}"},
			{ID: "b", Name: "second", Arguments: "{}"},
		}),
		c.FormatToolResultMessage("a", "first", "result a"),
		c.FormatToolResultMessage("b", "second", "result b"),
	}
	system, wire := c.toWireMessages(history)
	if system != "be brief" {
		t.Errorf("system = %q", system)
	}
	// user, assistant(tool_use x2), user(tool_result x2) — alternating roles.
	if len(wire) != 3 {
		t.Fatalf("want 3 wire messages, got %d", len(wire))
	}
	if wire[1].Role != anthropic.MessageParamRoleAssistant || len(wire[1].Content) != 2 {
		t.Errorf("assistant turn mangled: %+v", wire[1])
	}
	if wire[2].Role != anthropic.MessageParamRoleUser || len(wire[2].Content) != 2 {
		t.Errorf("tool results not coalesced into one user turn: %+v", wire[2])
	}
	for i, block := range wire[2].Content {
		if block.OfToolResult == nil {
			t.Errorf("block %d is not a tool result", i)
		}
	}
	if wire[2].Content[0].OfToolResult.ToolUseID != "a" || wire[2].Content[1].OfToolResult.ToolUseID != "b" {
		t.Errorf("tool result order lost: %+v", wire[2].Content)
	}
}

func Test_AnthropicClient_FormatTools(t *testing.T) {
	t.Parallel()
	c := newAnthropicClient(t)

	formatted := c.FormatTools([]ToolDefinition{{
		Name:        "retrieve_documents",
		Description: "Search the document index.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"queries": map[string]any{"type": "array"},
			},
			"required": []string{"queries"},
		},
	}})
	if len(formatted) != 1 {
		t.Fatalf("want 1 formatted tool, got %d", len(formatted))
	}
	tool, ok := formatted[0].(anthropic.ToolUnionParam)
	if !ok {
		t.Fatalf("want anthropic.ToolUnionParam, got %T", formatted[0])
	}
	if tool.OfTool == nil || tool.OfTool.Name != "retrieve_documents" {
		t.Errorf("tool mangled: %+v", tool)
	}
	if len(tool.OfTool.InputSchema.Required) != 1 {
		t.Errorf("required not carried: %+v", tool.OfTool.InputSchema)
	}
}

func Test_AnthropicClient_FormatToolsJSONSchema(t *testing.T) {
	t.Parallel()
	c := newAnthropicClient(t)

	// Schemas from MCP servers cross a JSON round trip, so "required"
	// arrives as []any rather than []string.
	var schema map[string]any
	raw := `{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`
	if err := json.Unmarshal([]byte(raw), &schema); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}

	formatted := c.FormatTools([]ToolDefinition{{
		Name:        "search_docs",
		Description: "Search the remote docs.",
		InputSchema: schema,
	}})
	tool, ok := formatted[0].(anthropic.ToolUnionParam)
	if !ok {
		t.Fatalf("want anthropic.ToolUnionParam, got %T", formatted[0])
	}
	req := tool.OfTool.InputSchema.Required
	if len(req) != 1 || req[0] != "query" {
		t.Errorf("required dropped for JSON-built schema: %v", req)
	}
}
