// Package agent implements the tool-calling conversation loop. The
// orchestrator drives a provider-agnostic LLM client against the tool
// registry until the model produces a final text answer.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Jamessukanto/rag-multimodal/internal/budget"
	"github.com/Jamessukanto/rag-multimodal/internal/llm"
	"github.com/Jamessukanto/rag-multimodal/internal/logging"
	"github.com/Jamessukanto/rag-multimodal/internal/tools"
)

// DefaultMaxIterations bounds the tool-calling loop so a model that
// keeps requesting tools cannot spin forever.
const DefaultMaxIterations = 10

// Error wraps any failure while processing a query. The conversation
// history is not returned on failure.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agent: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("agent: %s", e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// LoopLimitError reports that the model was still requesting tools
// when the iteration bound was reached.
type LoopLimitError struct {
	Iterations int
}

func (e *LoopLimitError) Error() string {
	return fmt.Sprintf("agent: no final answer after %d iterations", e.Iterations)
}

// Orchestrator manages conversation state and tool execution for one
// LLM client and tool registry pairing. It holds no per-query state,
// so one Orchestrator serves concurrent queries.
type Orchestrator struct {
	client        llm.Client
	registry      *tools.Registry
	formatted     []llm.FormattedTool
	maxIterations int
	maxContext    int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxIterations overrides the tool-calling loop bound.
func WithMaxIterations(n int) Option {
	return func(o *Orchestrator) { o.maxIterations = n }
}

// WithMaxContextTokens overrides the input context budget used to trim
// incoming history.
func WithMaxContextTokens(n int) Option {
	return func(o *Orchestrator) { o.maxContext = n }
}

// NewOrchestrator builds an Orchestrator. The registry's tools are
// formatted for the provider once, up front, so registration must be
// complete before construction.
func NewOrchestrator(client llm.Client, registry *tools.Registry, opts ...Option) (*Orchestrator, error) {
	if client == nil {
		return nil, &Error{Reason: "llm client is required"}
	}
	if registry == nil {
		return nil, &Error{Reason: "tool registry is required"}
	}

	o := &Orchestrator{
		client:        client,
		registry:      registry,
		formatted:     client.FormatTools(registry.Definitions()),
		maxIterations: DefaultMaxIterations,
		maxContext:    budget.DefaultMaxContextTokens,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// ProcessQuery appends the query to the conversation and loops until
// the model returns a final text answer: each round of tool calls is
// executed in order and the results are fed back to the model. The
// returned conversation keeps every turn the caller passed in plus the
// new query, every tool exchange, and the final assistant message;
// context-budget trimming only affects what is sent to the model.
// history is not mutated.
func (o *Orchestrator) ProcessQuery(ctx context.Context, query string, history []llm.Message) ([]llm.Message, error) {
	log := logging.FromContext(ctx)
	log.Info("processing query", "query", query)

	// The model sees a budget-trimmed view of the conversation, with
	// the oldest turns dropped first; the returned conversation keeps
	// every turn the caller passed in. The new query is never trimmed.
	userMsg := llm.TextMessage(llm.RoleUser, query)
	trimmed := budget.TrimHistory([]llm.Message{userMsg}, history, o.maxContext)

	conversation := make([]llm.Message, 0, len(history)+2)
	conversation = append(conversation, history...)
	conversation = append(conversation, userMsg)

	messages := make([]llm.Message, 0, len(trimmed)+2)
	messages = append(messages, trimmed...)
	messages = append(messages, userMsg)

	for i := 0; i < o.maxIterations; i++ {
		resp, err := o.client.ChatCompletion(ctx, messages, o.formatted)
		if err != nil {
			return nil, &Error{Reason: "chat completion failed", Err: err}
		}

		if !o.client.HasToolCalls(resp) {
			answer := o.client.ExtractTextContent(resp)
			conversation = append(conversation, llm.TextMessage(llm.RoleAssistant, answer))
			log.Info("final answer", "answer", answer)
			return conversation, nil
		}

		toolCalls, err := o.client.ExtractToolCalls(resp)
		if err != nil {
			return nil, &Error{Reason: "extracting tool calls failed", Err: err}
		}

		results, err := o.executeTools(ctx, toolCalls)
		if err != nil {
			return nil, &Error{Reason: "tool execution failed", Err: err}
		}

		toolMsg := o.client.FormatToolMessage(toolCalls)
		messages = append(messages, toolMsg)
		conversation = append(conversation, toolMsg)
		for j, tc := range toolCalls {
			resultMsg := o.client.FormatToolResultMessage(tc.ID, tc.Name, results[j])
			messages = append(messages, resultMsg)
			conversation = append(conversation, resultMsg)
		}
	}

	return nil, &LoopLimitError{Iterations: o.maxIterations}
}

// ListTools returns the neutral definitions of every registered tool.
func (o *Orchestrator) ListTools() []llm.ToolDefinition {
	return o.registry.Definitions()
}

// executeTools runs the requested calls sequentially, preserving the
// order the model emitted them.
func (o *Orchestrator) executeTools(ctx context.Context, toolCalls []llm.ToolCall) ([]string, error) {
	log := logging.FromContext(ctx)

	results := make([]string, 0, len(toolCalls))
	for _, tc := range toolCalls {
		var args map[string]any
		if tc.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
				return nil, fmt.Errorf("tool %s: invalid arguments: %w", tc.Name, err)
			}
		}

		log.Info("executing tool", "tool", tc.Name)
		result, err := o.registry.Execute(ctx, tc.Name, args)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}
