package mcp

import (
	"context"
	"errors"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func Test_Connect_EmptyCommand(t *testing.T) {
	t.Parallel()
	_, err := Connect(context.Background(), "docs", "  ")
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("want *ConnectionError, got %v", err)
	}
}

func Test_SchemaToMap(t *testing.T) {
	t.Parallel()
	schema, err := schemaToMap(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
		},
	})
	if err != nil {
		t.Fatalf("schemaToMap: %v", err)
	}
	if schema["type"] != "object" {
		t.Errorf("type lost: %v", schema)
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok || props["query"] == nil {
		t.Errorf("properties lost: %v", schema)
	}
}

func Test_SchemaToMap_NilSchema(t *testing.T) {
	t.Parallel()
	schema, err := schemaToMap(nil)
	if err != nil {
		t.Fatalf("schemaToMap: %v", err)
	}
	if schema["type"] != "object" {
		t.Errorf("nil schema must default to an object schema, got %v", schema)
	}
}

func Test_ResultText_ConcatenatesTextBlocks(t *testing.T) {
	t.Parallel()
	result := &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: "first "},
			&mcpsdk.TextContent{Text: "second"},
		},
	}
	if got := resultText(result); got != "first second" {
		t.Errorf("resultText = %q", got)
	}
}

func Test_ConnectionError_Unwrap(t *testing.T) {
	t.Parallel()
	inner := errors.New("broken pipe")
	err := &ConnectionError{Server: "docs", Reason: "handshake failed", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("wrapped error not reachable via errors.Is")
	}
}
