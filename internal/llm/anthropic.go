package llm

import (
	"context"
	"encoding/json"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Jamessukanto/rag-multimodal/internal/logging"
)

// AnthropicClient speaks the Anthropic Messages API.
type AnthropicClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicClient builds a client for the Anthropic API.
func NewAnthropicClient(apiKey, model string, maxTokens int) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, &Error{Provider: "anthropic", Reason: "api key is required"}
	}
	if model == "" {
		return nil, &Error{Provider: "anthropic", Reason: "model is required"}
	}

	client := anthropic.NewClient(anthropicopt.WithAPIKey(apiKey))
	return &AnthropicClient{
		client:    &client,
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (c *AnthropicClient) ChatCompletion(ctx context.Context, messages []Message, tools []FormattedTool) (Response, error) {
	system, wireMessages := c.toWireMessages(messages)

	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages:  wireMessages,
	}
	if system != "" {
		req.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, t := range tools {
		tool, ok := t.(anthropic.ToolUnionParam)
		if !ok {
			return nil, &Error{Provider: "anthropic", Reason: "tool not in Anthropic format"}
		}
		req.Tools = append(req.Tools, tool)
	}

	resp, err := c.client.Messages.New(ctx, req)
	if err != nil {
		logging.FromContext(ctx).Error("chat completion failed", "provider", "anthropic", "error", err)
		return nil, &Error{Provider: "anthropic", Reason: "chat completion request failed", Err: err}
	}
	return resp, nil
}

func (c *AnthropicClient) HasToolCalls(resp Response) bool {
	r, ok := resp.(*anthropic.Message)
	if !ok {
		return false
	}
	for _, block := range r.Content {
		if _, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			return true
		}
	}
	return false
}

func (c *AnthropicClient) ExtractToolCalls(resp Response) ([]ToolCall, error) {
	r, ok := resp.(*anthropic.Message)
	if !ok {
		return nil, &Error{Provider: "anthropic", Reason: "unexpected response type"}
	}

	var calls []ToolCall
	for _, block := range r.Content {
		if use, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			calls = append(calls, ToolCall{
				ID:        use.ID,
				Name:      use.Name,
				Arguments: string(use.Input),
			})
		}
	}
	return calls, nil
}

func (c *AnthropicClient) ExtractTextContent(resp Response) string {
	r, ok := resp.(*anthropic.Message)
	if !ok {
		return ""
	}
	out := ""
	for _, block := range r.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			out += text.Text
		}
	}
	return out
}

func (c *AnthropicClient) FormatToolMessage(toolCalls []ToolCall) Message {
	return Message{Role: RoleAssistant, ToolCalls: toolCalls}
}

func (c *AnthropicClient) FormatToolResultMessage(toolCallID, toolName, result string) Message {
	return Message{
		Role:       RoleTool,
		Content:    &result,
		ToolCallID: toolCallID,
		Name:       toolName,
	}
}

func (c *AnthropicClient) FormatTools(tools []ToolDefinition) []FormattedTool {
	out := make([]FormattedTool, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if props, ok := t.InputSchema["properties"]; ok {
			schema.Properties = props
		}
		schema.Required = requiredFields(t.InputSchema["required"])
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		})
	}
	return out
}

// requiredFields normalizes a schema's "required" list. Schemas built
// in Go carry []string; schemas that crossed a JSON round trip (MCP
// tools) carry []any.
func requiredFields(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, e := range req {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// toWireMessages converts neutral history entries to the Anthropic
// message format. Tool results become user-role tool_result blocks,
// and consecutive same-role entries are coalesced because the API
// requires alternating turns. System entries are lifted out into the
// returned system prompt.
func (c *AnthropicClient) toWireMessages(messages []Message) (string, []anthropic.MessageParam) {
	var system string
	var out []anthropic.MessageParam

	appendBlocks := func(role anthropic.MessageParamRole, blocks ...anthropic.ContentBlockParamUnion) {
		if len(out) > 0 && out[len(out)-1].Role == role {
			last := &out[len(out)-1]
			last.Content = append(last.Content, blocks...)
			return
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if m.Content != nil {
				system = *m.Content
			}
		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != nil && *m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(*m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: json.RawMessage(tc.Arguments),
					},
				})
			}
			appendBlocks(anthropic.MessageParamRoleAssistant, blocks...)
		case RoleTool:
			result := ""
			if m.Content != nil {
				result = *m.Content
			}
			appendBlocks(anthropic.MessageParamRoleUser, anthropic.ContentBlockParamUnion{
				OfToolResult: &anthropic.ToolResultBlockParam{
					ToolUseID: m.ToolCallID,
					Content: []anthropic.ToolResultBlockParamContentUnion{
						{OfText: &anthropic.TextBlockParam{Text: result}},
					},
				},
			})
		default:
			if m.Content != nil {
				appendBlocks(anthropic.MessageParamRoleUser, anthropic.NewTextBlock(*m.Content))
			}
		}
	}
	return system, out
}
