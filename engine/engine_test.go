package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbotlabs/finbot/core"
)

// scriptedProvider replays a fixed sequence of replies, one per Generate
// call, recording the message list it was invoked with.
type scriptedProvider struct {
	replies []core.Message
	err     error
	calls   int
	seen    [][]core.Message
}

func (p *scriptedProvider) Generate(ctx context.Context, req *core.GenerateRequest) (*core.Message, *core.TokenUsage, error) {
	p.calls++
	p.seen = append(p.seen, req.Messages)
	if p.err != nil {
		return nil, nil, p.err
	}
	idx := p.calls - 1
	if idx >= len(p.replies) {
		idx = len(p.replies) - 1
	}
	reply := p.replies[idx]
	return &reply, &core.TokenUsage{InputTokens: 10, OutputTokens: 5}, nil
}

// loopingProvider always requests the same tool, forever.
type loopingProvider struct {
	calls int
}

func (p *loopingProvider) Generate(ctx context.Context, req *core.GenerateRequest) (*core.Message, *core.TokenUsage, error) {
	p.calls++
	reply := core.NewToolReplyMessage("checking...", []core.ToolRequest{
		{ID: fmt.Sprintf("req-%d", p.calls), Name: "echo", Arguments: json.RawMessage(`{}`)},
	})
	return &reply, nil, nil
}

// echoTool records invocation order and returns its own name.
type echoTool struct {
	name  string
	calls *[]string
	fail  bool
}

func (t *echoTool) Name() string                   { return t.name }
func (t *echoTool) Description() string            { return "test tool" }
func (t *echoTool) Schema() map[string]interface{} { return map[string]interface{}{} }

func (t *echoTool) Execute(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
	if t.calls != nil {
		*t.calls = append(*t.calls, t.name)
	}
	if t.fail {
		return core.Fail(t.name + " unavailable"), nil
	}
	return core.Succeed(map[string]interface{}{"tool": t.name}), nil
}

func TestRunNoToolsTerminatesAfterOneTurn(t *testing.T) {
	provider := &scriptedProvider{replies: []core.Message{
		core.NewAssistantMessage("Hello! How can I help?"),
	}}
	eng := NewEngine(provider, NewToolRegistry())

	out, err := eng.Run(context.Background(), &Input{
		UserMessage:  "hi",
		SystemPrompt: "be helpful",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, "Hello! How can I help?", out.Reply)
	assert.Equal(t, "complete", out.Action)
	// user message + assistant reply
	require.Len(t, out.Appended, 2)
	assert.Equal(t, core.RoleUser, out.Appended[0].Role)
	assert.Equal(t, core.RoleAssistant, out.Appended[1].Role)
	assert.Equal(t, 15, out.TokensUsed.TotalTokens())
}

func TestRunAlwaysRequestingToolsHitsRoundCap(t *testing.T) {
	provider := &loopingProvider{}
	registry := NewToolRegistry()
	registry.Register(&echoTool{name: "echo"})
	eng := NewEngine(provider, registry, WithMaxRounds(3))

	out, err := eng.Run(context.Background(), &Input{
		UserMessage:  "loop forever",
		SystemPrompt: "be helpful",
		ToolsEnabled: true,
	})

	require.NoError(t, err)
	assert.Equal(t, 3, provider.calls)
	assert.Equal(t, ExhaustedReply, out.Reply)
	assert.Equal(t, "error", out.Action)
	// The degraded reply is itself an appended assistant message.
	last := out.Appended[len(out.Appended)-1]
	assert.Equal(t, core.RoleAssistant, last.Role)
	assert.Equal(t, ExhaustedReply, last.Content)
}

func TestRunExecutesToolsInRequestOrder(t *testing.T) {
	var order []string
	registry := NewToolRegistry()
	registry.RegisterAll(
		&echoTool{name: "get_stock_price", calls: &order},
		&echoTool{name: "get_currency_rate", calls: &order},
	)

	provider := &scriptedProvider{replies: []core.Message{
		core.NewToolReplyMessage("let me check", []core.ToolRequest{
			{ID: "a", Name: "get_stock_price", Arguments: json.RawMessage(`{"ticker":"AAPL"}`)},
			{ID: "b", Name: "get_currency_rate", Arguments: json.RawMessage(`{"from_currency":"USD","to_currency":"EUR"}`)},
		}),
		core.NewAssistantMessage("AAPL trades at $190 and USD/EUR is 0.92."),
	}}
	eng := NewEngine(provider, registry)

	out, err := eng.Run(context.Background(), &Input{
		UserMessage:  "price of AAPL in euros?",
		SystemPrompt: "be helpful",
		ToolsEnabled: true,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"get_stock_price", "get_currency_rate"}, order)
	assert.Equal(t, []string{"get_stock_price", "get_currency_rate"}, out.ToolsUsed)

	// Appended: user, assistant(tool requests), tool result a, tool
	// result b, final assistant.
	require.Len(t, out.Appended, 5)
	assert.Equal(t, "a", out.Appended[2].ToolOutcome.RequestID)
	assert.Equal(t, "b", out.Appended[3].ToolOutcome.RequestID)
	assert.Equal(t, "AAPL trades at $190 and USD/EUR is 0.92.", out.Reply)
}

func TestRunUnknownToolBecomesErrorResult(t *testing.T) {
	provider := &scriptedProvider{replies: []core.Message{
		core.NewToolReplyMessage("", []core.ToolRequest{
			{ID: "x", Name: "get_weather", Arguments: json.RawMessage(`{}`)},
		}),
		core.NewAssistantMessage("I can't look that up."),
	}}
	eng := NewEngine(provider, NewToolRegistry())

	out, err := eng.Run(context.Background(), &Input{
		UserMessage:  "weather?",
		SystemPrompt: "be helpful",
		ToolsEnabled: true,
	})

	require.NoError(t, err)
	result := out.Appended[2]
	require.NotNil(t, result.ToolOutcome)
	assert.True(t, result.ToolOutcome.IsError)
	assert.Contains(t, result.ToolOutcome.Content, "unknown tool")
	assert.Equal(t, "complete", out.Action)
}

func TestRunFailedToolDoesNotTerminateTurn(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&echoTool{name: "get_dividends", fail: true})

	provider := &scriptedProvider{replies: []core.Message{
		core.NewToolReplyMessage("", []core.ToolRequest{
			{ID: "d1", Name: "get_dividends", Arguments: json.RawMessage(`{"ticker":"ZZZ"}`)},
		}),
		core.NewAssistantMessage("ZZZ has no dividend history."),
	}}
	eng := NewEngine(provider, registry)

	out, err := eng.Run(context.Background(), &Input{
		UserMessage:  "dividends for ZZZ?",
		SystemPrompt: "be helpful",
		ToolsEnabled: true,
	})

	require.NoError(t, err)
	assert.True(t, out.Appended[2].ToolOutcome.IsError)
	assert.Contains(t, out.Appended[2].ToolOutcome.Content, "unavailable")
	assert.Equal(t, "ZZZ has no dividend history.", out.Reply)
	assert.Equal(t, "complete", out.Action)
}

func TestRunProviderErrorYieldsApologeticReply(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("rate limited")}
	eng := NewEngine(provider, NewToolRegistry())

	out, err := eng.Run(context.Background(), &Input{
		UserMessage:  "hello",
		SystemPrompt: "be helpful",
	})

	require.NoError(t, err, "model failures must not surface as errors")
	assert.Equal(t, "error", out.Action)
	assert.Contains(t, out.Reply, "I apologize")
	assert.Contains(t, out.Reply, "rate limited")
	last := out.Appended[len(out.Appended)-1]
	assert.Equal(t, core.RoleAssistant, last.Role)
}

func TestRunDoesNotMutateHistory(t *testing.T) {
	history := []core.Message{
		core.NewUserMessage("earlier question"),
		core.NewAssistantMessage("earlier answer"),
	}
	provider := &scriptedProvider{replies: []core.Message{
		core.NewAssistantMessage("fresh answer"),
	}}
	eng := NewEngine(provider, NewToolRegistry())

	_, err := eng.Run(context.Background(), &Input{
		UserMessage:  "new question",
		History:      history,
		SystemPrompt: "be helpful",
	})

	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "earlier question", history[0].Content)

	// The provider saw history plus the new user message.
	require.Len(t, provider.seen[0], 3)
	assert.Equal(t, "new question", provider.seen[0][2].Content)
}
