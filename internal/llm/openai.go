package llm

import (
	"context"

	"github.com/sashabaranov/go-openai"

	"github.com/Jamessukanto/rag-multimodal/internal/logging"
)

// GroqBaseURL is the OpenAI-compatible endpoint served by Groq.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// OpenAIClient speaks the OpenAI chat completion protocol. With a
// custom base URL it also covers Groq, which exposes the same API.
type OpenAIClient struct {
	client    *openai.Client
	provider  string
	model     string
	maxTokens int
}

// NewOpenAIClient builds a client for an OpenAI-compatible endpoint.
// provider is used only for error reporting. An empty baseURL targets
// the OpenAI API itself.
func NewOpenAIClient(provider, apiKey, baseURL, model string, maxTokens int) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, &Error{Provider: provider, Reason: "api key is required"}
	}
	if model == "" {
		return nil, &Error{Provider: provider, Reason: "model is required"}
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIClient{
		client:    openai.NewClientWithConfig(cfg),
		provider:  provider,
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (c *OpenAIClient) ChatCompletion(ctx context.Context, messages []Message, tools []FormattedTool) (Response, error) {
	req := openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  c.toWireMessages(messages),
	}
	for _, t := range tools {
		tool, ok := t.(openai.Tool)
		if !ok {
			return nil, &Error{Provider: c.provider, Reason: "tool not in OpenAI format"}
		}
		req.Tools = append(req.Tools, tool)
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		logging.FromContext(ctx).Error("chat completion failed", "provider", c.provider, "error", err)
		return nil, &Error{Provider: c.provider, Reason: "chat completion request failed", Err: err}
	}
	return resp, nil
}

func (c *OpenAIClient) HasToolCalls(resp Response) bool {
	r, ok := resp.(openai.ChatCompletionResponse)
	if !ok || len(r.Choices) == 0 {
		return false
	}
	return len(r.Choices[0].Message.ToolCalls) > 0
}

func (c *OpenAIClient) ExtractToolCalls(resp Response) ([]ToolCall, error) {
	r, ok := resp.(openai.ChatCompletionResponse)
	if !ok {
		return nil, &Error{Provider: c.provider, Reason: "unexpected response type"}
	}
	if len(r.Choices) == 0 {
		return nil, nil
	}

	var calls []ToolCall
	for _, tc := range r.Choices[0].Message.ToolCalls {
		calls = append(calls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return calls, nil
}

func (c *OpenAIClient) ExtractTextContent(resp Response) string {
	r, ok := resp.(openai.ChatCompletionResponse)
	if !ok || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

func (c *OpenAIClient) FormatToolMessage(toolCalls []ToolCall) Message {
	// Content stays nil when tool calls are present.
	return Message{Role: RoleAssistant, ToolCalls: toolCalls}
}

func (c *OpenAIClient) FormatToolResultMessage(toolCallID, toolName, result string) Message {
	return Message{
		Role:       RoleTool,
		Content:    &result,
		ToolCallID: toolCallID,
		Name:       toolName,
	}
}

func (c *OpenAIClient) FormatTools(tools []ToolDefinition) []FormattedTool {
	out := make([]FormattedTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out
}

// toWireMessages converts neutral history entries to the OpenAI
// message format.
func (c *OpenAIClient) toWireMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		wire := openai.ChatCompletionMessage{
			Role:       m.Role,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		if m.Content != nil {
			wire.Content = *m.Content
		}
		for _, tc := range m.ToolCalls {
			wire.ToolCalls = append(wire.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, wire)
	}
	return out
}
