// Package store persists users, conversations, and messages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/finbotlabs/finbot/core"
)

// ErrNotFound is returned when a conversation or user does not exist.
var ErrNotFound = errors.New("not found")

// StoredMessage is one persisted message. Seq is the per-conversation
// monotonic append position; loading orders by it, so history replays in
// exactly the committed prefix order.
type StoredMessage struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is a persisted conversation with its ordered messages.
type Conversation struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Title     string          `json:"title"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Messages  []StoredMessage `json:"messages,omitempty"`
}

// AppendMessage is the input to Conversations.Append.
type AppendMessage struct {
	ConversationID string
	Role           string
	Content        string
}

// Conversations persists conversation histories with monotonic append
// ordering per conversation.
type Conversations interface {
	// Create starts a new conversation for a user.
	Create(ctx context.Context, userID string) (*Conversation, error)

	// Get loads a conversation and its full ordered message history.
	Get(ctx context.Context, id string) (*Conversation, error)

	// Append adds one message and returns its ID.
	Append(ctx context.Context, msg *AppendMessage) (string, error)
}

// Users persists financial profiles keyed by user ID.
type Users interface {
	// GetProfile loads a user's profile, or ErrNotFound.
	GetProfile(ctx context.Context, userID string) (*core.FinancialProfile, error)

	// SaveProfile creates or replaces a user's profile.
	SaveProfile(ctx context.Context, userID string, profile *core.FinancialProfile) error
}
