package server

import (
	"encoding/json"

	"github.com/finbotlabs/finbot/core"
	"github.com/finbotlabs/finbot/store"
)

// ClientMessage is an inbound WebSocket frame.
type ClientMessage struct {
	// Type is one of: init, new_conversation, resume_conversation,
	// message, financial_data.
	Type string `json:"type"`

	// Content is the utterance for message frames.
	Content string `json:"content,omitempty"`

	// ConversationID selects the conversation for resume_conversation.
	ConversationID string `json:"conversation_id,omitempty"`

	// DataType qualifies financial_data frames: "budgeting" or
	// "portfolio" requests immediate advice after the update.
	DataType string `json:"data_type,omitempty"`

	// Data carries the init profile or the financial_data update.
	Data json.RawMessage `json:"data,omitempty"`
}

// InitData is the profile bootstrap payload of an init frame.
type InitData struct {
	Name      string                  `json:"name"`
	RiskLevel string                  `json:"risk_level"`
	Portfolio map[string]core.Holding `json:"investment_portfolio"`
}

// ServerMessage is an outbound WebSocket frame.
type ServerMessage struct {
	// Type is one of: message, conversation_started,
	// conversation_resumed, complete, error.
	Type string `json:"type"`

	Content        string `json:"content,omitempty"`
	Action         string `json:"action,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`

	// Messages carries prior history on conversation_resumed.
	Messages []store.StoredMessage `json:"messages,omitempty"`

	// TokenUsage is attached to complete frames for engine turns.
	TokenUsage *TokenUsage `json:"token_usage,omitempty"`
}

// TokenUsage reports model token consumption for one turn.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
