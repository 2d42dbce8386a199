package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/Jamessukanto/rag-multimodal/internal/llm"
	"github.com/Jamessukanto/rag-multimodal/internal/tools"
)

// scriptedResponse is one turn a scriptedClient will play back.
type scriptedResponse struct {
	text      string
	toolCalls []llm.ToolCall
}

// scriptedClient plays back canned responses and records the message
// history sent on each turn. It formats messages the way an
// OpenAI-style provider does.
type scriptedClient struct {
	script []scriptedResponse
	turn   int
	sent   [][]llm.Message
	err    error
}

func (c *scriptedClient) ChatCompletion(_ context.Context, messages []llm.Message, _ []llm.FormattedTool) (llm.Response, error) {
	snapshot := make([]llm.Message, len(messages))
	copy(snapshot, messages)
	c.sent = append(c.sent, snapshot)

	if c.err != nil {
		return nil, c.err
	}
	if c.turn >= len(c.script) {
		// Keep replaying the last turn; used by the loop-limit test.
		return c.script[len(c.script)-1], nil
	}
	resp := c.script[c.turn]
	c.turn++
	return resp, nil
}

func (c *scriptedClient) HasToolCalls(resp llm.Response) bool {
	return len(resp.(scriptedResponse).toolCalls) > 0
}

func (c *scriptedClient) ExtractToolCalls(resp llm.Response) ([]llm.ToolCall, error) {
	return resp.(scriptedResponse).toolCalls, nil
}

func (c *scriptedClient) ExtractTextContent(resp llm.Response) string {
	return resp.(scriptedResponse).text
}

func (c *scriptedClient) FormatToolMessage(toolCalls []llm.ToolCall) llm.Message {
	return llm.Message{Role: llm.RoleAssistant, ToolCalls: toolCalls}
}

func (c *scriptedClient) FormatToolResultMessage(toolCallID, toolName, result string) llm.Message {
	return llm.Message{Role: llm.RoleTool, Content: &result, ToolCallID: toolCallID, Name: toolName}
}

func (c *scriptedClient) FormatTools(defs []llm.ToolDefinition) []llm.FormattedTool {
	out := make([]llm.FormattedTool, len(defs))
	for i, d := range defs {
		out[i] = d
	}
	return out
}

// echoTool records its arguments and returns a fixed result.
type echoTool struct {
	name    string
	calls   int
	lastArg string
}

func (e *echoTool) Name() string                { return e.name }
func (e *echoTool) Description() string         { return "echo" }
func (e *echoTool) InputSchema() map[string]any { return map[string]any{"type": "object"} }

func (e *echoTool) Execute(_ context.Context, args map[string]any) (string, error) {
	e.calls++
	if v, ok := args["q"].(string); ok {
		e.lastArg = v
	}
	return "result from " + e.name, nil
}

func newOrchestrator(t *testing.T, client llm.Client, toolList ...tools.Tool) *Orchestrator {
	t.Helper()
	registry := tools.NewRegistry()
	for _, tool := range toolList {
		registry.Register(context.Background(), tool)
	}
	o, err := NewOrchestrator(client, registry)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

func Test_ProcessQuery_DirectAnswer(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{script: []scriptedResponse{{text: "the answer"}}}
	o := newOrchestrator(t, client)

	got, err := o.ProcessQuery(context.Background(), "question", nil)
	if err != nil {
		t.Fatalf("process query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want [user, assistant], got %d messages", len(got))
	}
	if got[0].Role != llm.RoleUser || *got[0].Content != "question" {
		t.Errorf("user message wrong: %+v", got[0])
	}
	if got[1].Role != llm.RoleAssistant || *got[1].Content != "the answer" {
		t.Errorf("assistant message wrong: %+v", got[1])
	}
}

func Test_ProcessQuery_SingleToolRound(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{script: []scriptedResponse{
		{toolCalls: []llm.ToolCall{{ID: "call-1", Name: "lookup", Arguments: `{"q":"weather"}`}}},
		{text: "sunny"},
	}}
	tool := &echoTool{name: "lookup"}
	o := newOrchestrator(t, client, tool)

	got, err := o.ProcessQuery(context.Background(), "question", nil)
	if err != nil {
		t.Fatalf("process query: %v", err)
	}
	// user, assistant(tool_calls), tool result, assistant(text).
	if len(got) != 4 {
		t.Fatalf("want 4 messages, got %d: %+v", len(got), got)
	}
	if got[1].Role != llm.RoleAssistant || got[1].Content != nil || len(got[1].ToolCalls) != 1 {
		t.Errorf("tool call message wrong: %+v", got[1])
	}
	if got[2].Role != llm.RoleTool || got[2].ToolCallID != "call-1" || *got[2].Content != "result from lookup" {
		t.Errorf("tool result message wrong: %+v", got[2])
	}
	if got[3].Role != llm.RoleAssistant || *got[3].Content != "sunny" {
		t.Errorf("final answer wrong: %+v", got[3])
	}
	if tool.calls != 1 || tool.lastArg != "weather" {
		t.Errorf("tool not executed with parsed arguments: %+v", tool)
	}
	// The second model turn must see the full tool exchange.
	if len(client.sent) != 2 || len(client.sent[1]) != 3 {
		t.Errorf("tool exchange not sent back to the model: %d turns", len(client.sent))
	}
}

func Test_ProcessQuery_MultipleCallsOneRound(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{script: []scriptedResponse{
		{toolCalls: []llm.ToolCall{
			{ID: "a", Name: "first", Arguments: "{}"},
			{ID: "b", Name: "second", Arguments: "{}"},
		}},
		{text: "done"},
	}}
	o := newOrchestrator(t, client, &echoTool{name: "first"}, &echoTool{name: "second"})

	got, err := o.ProcessQuery(context.Background(), "question", nil)
	if err != nil {
		t.Fatalf("process query: %v", err)
	}
	// user, assistant(2 tool calls), 2 tool results, assistant(text).
	if len(got) != 5 {
		t.Fatalf("want 5 messages, got %d", len(got))
	}
	if got[2].ToolCallID != "a" || got[3].ToolCallID != "b" {
		t.Errorf("tool results out of call order: %+v %+v", got[2], got[3])
	}
}

func Test_ProcessQuery_DoesNotMutateHistory(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{script: []scriptedResponse{{text: "next answer"}}}
	o := newOrchestrator(t, client)

	history := []llm.Message{
		llm.TextMessage(llm.RoleUser, "earlier question"),
		llm.TextMessage(llm.RoleAssistant, "earlier answer"),
	}
	got, err := o.ProcessQuery(context.Background(), "followup", history)
	if err != nil {
		t.Fatalf("process query: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("want history + 2, got %d", len(got))
	}
	if len(history) != 2 {
		t.Error("caller's history slice was mutated")
	}
}

func Test_ProcessQuery_UnknownToolFails(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{script: []scriptedResponse{
		{toolCalls: []llm.ToolCall{{ID: "x", Name: "nonexistent", Arguments: "{}"}}},
	}}
	o := newOrchestrator(t, client)

	_, err := o.ProcessQuery(context.Background(), "question", nil)
	var agentErr *Error
	if !errors.As(err, &agentErr) {
		t.Fatalf("want *Error, got %v", err)
	}
	var notFound *tools.NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("registry error not reachable: %v", err)
	}
}

func Test_ProcessQuery_BadArgumentsFail(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{script: []scriptedResponse{
		{toolCalls: []llm.ToolCall{{ID: "x", Name: "lookup", Arguments: "not json"}}},
	}}
	o := newOrchestrator(t, client, &echoTool{name: "lookup"})

	_, err := o.ProcessQuery(context.Background(), "question", nil)
	var agentErr *Error
	if !errors.As(err, &agentErr) {
		t.Fatalf("want *Error, got %v", err)
	}
}

func Test_ProcessQuery_CompletionFailure(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{err: errors.New("provider down")}
	o := newOrchestrator(t, client)

	got, err := o.ProcessQuery(context.Background(), "question", nil)
	if got != nil {
		t.Error("no history may be returned on failure")
	}
	var agentErr *Error
	if !errors.As(err, &agentErr) {
		t.Fatalf("want *Error, got %v", err)
	}
}

func Test_ProcessQuery_LoopLimit(t *testing.T) {
	t.Parallel()
	// The model keeps requesting the same tool forever.
	client := &scriptedClient{script: []scriptedResponse{
		{toolCalls: []llm.ToolCall{{ID: "x", Name: "lookup", Arguments: "{}"}}},
	}}
	registry := tools.NewRegistry()
	registry.Register(context.Background(), &echoTool{name: "lookup"})
	o, err := NewOrchestrator(client, registry, WithMaxIterations(3))
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	_, err = o.ProcessQuery(context.Background(), "question", nil)
	var limitErr *LoopLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("want *LoopLimitError, got %v", err)
	}
	if limitErr.Iterations != 3 {
		t.Errorf("iterations = %d, want 3", limitErr.Iterations)
	}
	if len(client.sent) != 3 {
		t.Errorf("model consulted %d times, want 3", len(client.sent))
	}
}

func Test_ProcessQuery_TrimsHistoryToContextBudget(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{script: []scriptedResponse{{text: "done"}}}
	registry := tools.NewRegistry()
	o, err := NewOrchestrator(client, registry, WithMaxContextTokens(20))
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	history := []llm.Message{
		llm.TextMessage(llm.RoleUser, "an old question that takes up a lot of context space"),
		llm.TextMessage(llm.RoleAssistant, "an old answer that also takes up a lot of space"),
		llm.TextMessage(llm.RoleUser, "recent"),
		llm.TextMessage(llm.RoleAssistant, "reply"),
	}

	if _, err := o.ProcessQuery(context.Background(), "now", history); err != nil {
		t.Fatalf("process query: %v", err)
	}

	sent := client.sent[0]
	// The two oldest turns exceed the 20-token budget and must be gone;
	// the recent turns and the new query survive.
	if len(sent) != 3 {
		t.Fatalf("model saw %d messages, want 3", len(sent))
	}
	if *sent[0].Content != "recent" || *sent[2].Content != "now" {
		t.Errorf("unexpected trimmed conversation: %+v", sent)
	}
}

func Test_ProcessQuery_TrimmingDoesNotDropReturnedTurns(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{script: []scriptedResponse{{text: "done"}}}
	registry := tools.NewRegistry()
	o, err := NewOrchestrator(client, registry, WithMaxContextTokens(20))
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	history := []llm.Message{
		llm.TextMessage(llm.RoleUser, "an old question that takes up a lot of context space"),
		llm.TextMessage(llm.RoleAssistant, "an old answer that also takes up a lot of space"),
	}

	got, err := o.ProcessQuery(context.Background(), "now", history)
	if err != nil {
		t.Fatalf("process query: %v", err)
	}

	// Both prior turns blow the 20-token budget for the model, but the
	// returned conversation must still carry them, plus the new query
	// and the final answer.
	if len(got) != 4 {
		t.Fatalf("returned conversation has %d messages, want 4", len(got))
	}
	if *got[0].Content != "an old question that takes up a lot of context space" {
		t.Errorf("oldest turn missing from returned conversation: %+v", got[0])
	}
	if *got[2].Content != "now" || *got[3].Content != "done" {
		t.Errorf("query or answer misplaced: %+v", got[2:])
	}

	// The model view was trimmed to the new query alone.
	if len(client.sent[0]) != 1 || *client.sent[0][0].Content != "now" {
		t.Errorf("model view not trimmed: %+v", client.sent[0])
	}
}
