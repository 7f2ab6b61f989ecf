// Package core defines the shared types for the FinBot agent: messages,
// financial state, tools, and the language-capability contract.
package core

import "encoding/json"

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolRequest is a tool invocation requested by an assistant message.
type ToolRequest struct {
	// ID correlates the request with its result.
	ID string `json:"id"`

	// Name is a registered capability name.
	Name string `json:"name"`

	// Arguments is the raw JSON argument object for the capability.
	Arguments json.RawMessage `json:"arguments"`
}

// ToolOutcome is the recorded result of a single tool request.
type ToolOutcome struct {
	// RequestID references the ToolRequest this result answers.
	RequestID string `json:"request_id"`

	// Name is the capability that produced the result.
	Name string `json:"name"`

	// Content is the serialized payload, or a human-readable error reason.
	Content string `json:"content"`

	// IsError marks a failed invocation. Failed calls are still normal
	// messages; they never abort the turn.
	IsError bool `json:"is_error"`
}

// Message is one entry in a conversation history. Assistant messages may
// carry tool requests; tool messages carry exactly one outcome.
type Message struct {
	Role         Role          `json:"role"`
	Content      string        `json:"content"`
	ToolRequests []ToolRequest `json:"tool_requests,omitempty"`
	ToolOutcome  *ToolOutcome  `json:"tool_outcome,omitempty"`
}

// RequestsTools reports whether the message asks for tool execution.
func (m Message) RequestsTools() bool {
	return m.Role == RoleAssistant && len(m.ToolRequests) > 0
}

// NewSystemMessage creates a system instruction message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a message from the user.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a plain text assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolReplyMessage creates an assistant message that requests tool calls.
func NewToolReplyMessage(content string, requests []ToolRequest) Message {
	return Message{Role: RoleAssistant, Content: content, ToolRequests: requests}
}

// NewToolResultMessage creates a tool message answering a single request.
func NewToolResultMessage(requestID, name, content string, isError bool) Message {
	return Message{
		Role: RoleTool,
		ToolOutcome: &ToolOutcome{
			RequestID: requestID,
			Name:      name,
			Content:   content,
			IsError:   isError,
		},
	}
}
