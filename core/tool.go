package core

import (
	"context"
	"encoding/json"
)

// Tool is a named, independently callable external data capability.
type Tool interface {
	// Name returns the capability name the language model calls it by.
	Name() string

	// Description explains the capability to the language model.
	Description() string

	// Schema returns the JSON schema properties for the input object.
	Schema() map[string]interface{}

	// Execute runs the capability. Failures are reported through the
	// returned ToolResult; a non-nil error is reserved for broken
	// invocations (e.g. unparseable input) and is still converted into an
	// error result by the caller.
	Execute(ctx context.Context, params *ToolParams) (*ToolResult, error)
}

// ToolParams carries the input of a single tool invocation.
type ToolParams struct {
	// UserID identifies the requesting user.
	UserID string

	// Input is the raw JSON argument object from the tool request.
	Input json.RawMessage

	// RequestID is the tool request ID, for correlation in logs.
	RequestID string
}

// ToolResult is the outcome of a tool invocation.
type ToolResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Succeed builds a successful result carrying a payload.
func Succeed(data interface{}) *ToolResult {
	return &ToolResult{Success: true, Data: data}
}

// Fail builds an error result with a human-readable reason.
func Fail(reason string) *ToolResult {
	return &ToolResult{Success: false, Error: reason}
}

// ToolDefinition is the provider-facing description of a capability.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}
