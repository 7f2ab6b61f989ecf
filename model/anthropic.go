// Package model adapts the Anthropic API to the core.ModelProvider
// contract.
package model

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/finbotlabs/finbot/core"
)

// DefaultModel is used when a request does not name one.
const DefaultModel = "claude-sonnet-4-20250514"

// DefaultMaxTokens is used when a request does not cap the response.
const DefaultMaxTokens = 4096

// AnthropicProvider implements core.ModelProvider over the Anthropic
// Messages API. It keeps no state between calls; every Generate receives
// the cumulative message history.
type AnthropicProvider struct {
	client *anthropic.Client
}

var _ core.ModelProvider = (*AnthropicProvider)(nil)

// NewAnthropicProvider creates a provider. The API key comes from the
// ANTHROPIC_API_KEY environment variable.
func NewAnthropicProvider() *AnthropicProvider {
	client := anthropic.NewClient()
	return &AnthropicProvider{client: &client}
}

// Generate invokes the model once and returns its reply as a single
// assistant message, carrying tool requests when the model asked for any.
func (p *AnthropicProvider) Generate(ctx context.Context, req *core.GenerateRequest) (*core.Message, *core.TokenUsage, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  toAPIMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toAPITools(req.Tools)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, nil, fmt.Errorf("anthropic API error: %w", err)
	}

	usage := &core.TokenUsage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}

	var content string
	var requests []core.ToolRequest
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			content += block.Text
		case "tool_use":
			requests = append(requests, core.ToolRequest{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}

	reply := core.NewToolReplyMessage(content, requests)
	return &reply, usage, nil
}

// toAPIMessages converts core history to API message params. Consecutive
// tool messages are folded into a single user message carrying their
// tool_result blocks, in order, as the API requires.
func toAPIMessages(messages []core.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))

	var pendingResults []anthropic.ContentBlockParamUnion
	flushResults := func() {
		if len(pendingResults) > 0 {
			out = append(out, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range messages {
		switch msg.Role {
		case core.RoleTool:
			if msg.ToolOutcome != nil {
				pendingResults = append(pendingResults, anthropic.NewToolResultBlock(
					msg.ToolOutcome.RequestID,
					msg.ToolOutcome.Content,
					msg.ToolOutcome.IsError,
				))
			}

		case core.RoleUser:
			flushResults()
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case core.RoleAssistant:
			flushResults()
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolRequests))
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, req := range msg.ToolRequests {
				blocks = append(blocks, anthropic.NewToolUseBlock(req.ID, req.Arguments, req.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}

		case core.RoleSystem:
			// System instructions travel in params.System, not history.
		}
	}
	flushResults()

	return out
}

// toAPITools converts capability definitions to the API tool format.
func toAPITools(defs []core.ToolDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: def.Schema,
				},
			},
		})
	}
	return tools
}
