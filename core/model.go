package core

import "context"

// GenerateRequest is the input to a language-capability call.
type GenerateRequest struct {
	// System is the system instruction for the conversation.
	System string

	// Messages is the full ordered history so far.
	Messages []Message

	// Tools lists the capabilities the model may request.
	Tools []ToolDefinition

	// Model optionally selects a specific model.
	Model string

	// MaxTokens caps the response size. Zero means provider default.
	MaxTokens int64
}

// ModelProvider is the opaque language capability. Generate must be
// invocable repeatedly with cumulative context and keeps no hidden state
// between calls. The returned message is either a plain assistant reply or
// a reply carrying tool requests; the caller branches on RequestsTools(),
// never on provider internals.
type ModelProvider interface {
	Generate(ctx context.Context, req *GenerateRequest) (*Message, *TokenUsage, error)
}
