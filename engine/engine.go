package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/finbotlabs/finbot/core"
)

// DefaultMaxRounds caps agent/tool alternations within a single turn.
const DefaultMaxRounds = 10

// ExhaustedReply is the degraded reply when the round cap is reached.
const ExhaustedReply = "I'm sorry, I wasn't able to complete that request. Could you try rephrasing it, or break it into smaller questions?"

// Engine drives the turn-taking state machine: it alternates between asking
// the language capability for a response and executing any tool calls that
// response requests, until a response carries no tool requests or the round
// cap forces a degraded reply.
type Engine struct {
	provider  core.ModelProvider
	registry  *ToolRegistry
	maxRounds int
}

// Option configures the engine.
type Option func(*Engine)

// WithMaxRounds overrides the agent/tool alternation cap.
func WithMaxRounds(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRounds = n
		}
	}
}

// NewEngine creates an engine over the given language capability and tool
// registry.
func NewEngine(provider core.ModelProvider, registry *ToolRegistry, opts ...Option) *Engine {
	e := &Engine{
		provider:  provider,
		registry:  registry,
		maxRounds: DefaultMaxRounds,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Input is one inbound turn.
type Input struct {
	// UserMessage is the user's utterance for this turn. Empty means the
	// turn continues from history alone.
	UserMessage string

	// UserID identifies the user, passed through to tools.
	UserID string

	// ConversationID identifies the session, for logging only.
	ConversationID string

	// History is the ordered message history before this turn. The engine
	// never mutates it.
	History []core.Message

	// SystemPrompt is the fixed system instruction. Required.
	SystemPrompt string

	// ContextPrompt is an optional extra system block (profile context).
	ContextPrompt string

	// Model and MaxTokens pass through to the provider.
	Model     string
	MaxTokens int64

	// ToolsEnabled exposes the registry to the model. When false the model
	// is invoked without any capabilities.
	ToolsEnabled bool
}

// Output is the result of a completed turn. A turn always completes: model
// failures and round exhaustion are folded into the final reply rather than
// surfaced as errors.
type Output struct {
	// Reply is the content of the last assistant message.
	Reply string

	// Action tags the outcome; "error" when the language capability failed.
	Action string

	// Appended holds every message this turn added, in append order,
	// starting with the user message. The caller merges these into the
	// session history.
	Appended []core.Message

	// ToolsUsed records executed tool names in execution order.
	ToolsUsed []string

	// TokensUsed accumulates provider token usage across rounds.
	TokensUsed core.TokenUsage
}

// Run executes one turn to completion. The returned error is always nil
// today; it remains in the signature so callers handle future fatal cases.
func (e *Engine) Run(ctx context.Context, input *Input) (*Output, error) {
	out := &Output{Action: "complete"}

	system := input.SystemPrompt
	if input.ContextPrompt != "" {
		system += "\n\n" + input.ContextPrompt
	}

	// Working copy: history plus everything appended this turn.
	messages := make([]core.Message, len(input.History), len(input.History)+8)
	copy(messages, input.History)

	appendMsg := func(m core.Message) {
		messages = append(messages, m)
		out.Appended = append(out.Appended, m)
	}

	if input.UserMessage != "" {
		appendMsg(core.NewUserMessage(input.UserMessage))
	}

	var tools []core.ToolDefinition
	if input.ToolsEnabled {
		tools = e.registry.Definitions()
	}

	for round := 0; ; round++ {
		if round >= e.maxRounds {
			log.Printf("[CONVERSATION %s] round cap (%d) reached, ending turn", input.ConversationID, e.maxRounds)
			appendMsg(core.NewAssistantMessage(ExhaustedReply))
			out.Reply = ExhaustedReply
			out.Action = "error"
			return out, nil
		}

		if err := ctx.Err(); err != nil {
			appendMsg(core.NewAssistantMessage(apologyFor(err)))
			out.Reply = apologyFor(err)
			out.Action = "error"
			return out, nil
		}

		reply, usage, err := e.provider.Generate(ctx, &core.GenerateRequest{
			System:    system,
			Messages:  messages,
			Tools:     tools,
			Model:     input.Model,
			MaxTokens: input.MaxTokens,
		})
		if usage != nil {
			out.TokensUsed.Add(*usage)
		}
		if err != nil {
			log.Printf("[CONVERSATION %s] model error: %v", input.ConversationID, err)
			appendMsg(core.NewAssistantMessage(apologyFor(err)))
			out.Reply = apologyFor(err)
			out.Action = "error"
			return out, nil
		}

		appendMsg(*reply)

		if !reply.RequestsTools() {
			out.Reply = reply.Content
			return out, nil
		}

		// Tools turn: execute every request of this reply, in request
		// order, appending one result message per request. Failures become
		// error results, never aborted turns.
		for _, req := range reply.ToolRequests {
			appendMsg(e.executeRequest(ctx, input.UserID, req))
			out.ToolsUsed = append(out.ToolsUsed, req.Name)
		}
	}
}

// executeRequest runs one tool request and converts every failure mode into
// a result message.
func (e *Engine) executeRequest(ctx context.Context, userID string, req core.ToolRequest) core.Message {
	tool, ok := e.registry.Get(req.Name)
	if !ok {
		return core.NewToolResultMessage(req.ID, req.Name,
			fmt.Sprintf("unknown tool: %s", req.Name), true)
	}

	start := time.Now()
	result, err := tool.Execute(ctx, &core.ToolParams{
		UserID:    userID,
		Input:     req.Arguments,
		RequestID: req.ID,
	})
	elapsed := time.Since(start)

	switch {
	case err != nil:
		log.Printf("[TOOL %s] error after %s: %v", req.Name, elapsed, err)
		return core.NewToolResultMessage(req.ID, req.Name, err.Error(), true)
	case result == nil:
		return core.NewToolResultMessage(req.ID, req.Name, "no result returned", true)
	case !result.Success:
		log.Printf("[TOOL %s] failed after %s: %s", req.Name, elapsed, result.Error)
		return core.NewToolResultMessage(req.ID, req.Name, result.Error, true)
	default:
		payload, merr := json.Marshal(result.Data)
		if merr != nil {
			return core.NewToolResultMessage(req.ID, req.Name,
				fmt.Sprintf("unencodable tool result: %v", merr), true)
		}
		log.Printf("[TOOL %s] ok in %s", req.Name, elapsed)
		return core.NewToolResultMessage(req.ID, req.Name, string(payload), false)
	}
}

func apologyFor(err error) string {
	return fmt.Sprintf("I apologize, but I encountered an error: %v. Please try again.", err)
}
