package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finbotlabs/finbot/core"
)

// MemoryConversations is an in-memory Conversations implementation, used
// when no durable store is configured.
type MemoryConversations struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
}

var _ Conversations = (*MemoryConversations)(nil)

// NewMemoryConversations creates an empty in-memory conversation store.
func NewMemoryConversations() *MemoryConversations {
	return &MemoryConversations{
		conversations: make(map[string]*Conversation),
	}
}

// Create starts a new conversation for a user.
func (s *MemoryConversations) Create(ctx context.Context, userID string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	conv := &Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations[conv.ID] = conv
	return snapshot(conv), nil
}

// Get loads a conversation and its full ordered history.
func (s *MemoryConversations) Get(ctx context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshot(conv), nil
}

// Append adds one message with the next sequence number.
func (s *MemoryConversations) Append(ctx context.Context, msg *AppendMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return "", ErrNotFound
	}

	stored := StoredMessage{
		ID:        uuid.New().String(),
		Seq:       int64(len(conv.Messages)) + 1,
		Role:      msg.Role,
		Content:   msg.Content,
		CreatedAt: time.Now(),
	}
	conv.Messages = append(conv.Messages, stored)
	conv.UpdatedAt = stored.CreatedAt
	return stored.ID, nil
}

// snapshot copies a conversation so callers cannot mutate stored state.
func snapshot(conv *Conversation) *Conversation {
	out := *conv
	out.Messages = make([]StoredMessage, len(conv.Messages))
	copy(out.Messages, conv.Messages)
	return &out
}

// MemoryUsers is an in-memory Users implementation.
type MemoryUsers struct {
	mu       sync.RWMutex
	profiles map[string]*core.FinancialProfile
}

var _ Users = (*MemoryUsers)(nil)

// NewMemoryUsers creates an empty in-memory user store.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{
		profiles: make(map[string]*core.FinancialProfile),
	}
}

// GetProfile loads a user's profile.
func (s *MemoryUsers) GetProfile(ctx context.Context, userID string) (*core.FinancialProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *profile
	out.Portfolio = make(map[string]core.Holding, len(profile.Portfolio))
	for sym, h := range profile.Portfolio {
		out.Portfolio[sym] = h
	}
	return &out, nil
}

// SaveProfile creates or replaces a user's profile.
func (s *MemoryUsers) SaveProfile(ctx context.Context, userID string, profile *core.FinancialProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *profile
	stored.Portfolio = make(map[string]core.Holding, len(profile.Portfolio))
	for sym, h := range profile.Portfolio {
		stored.Portfolio[sym] = h
	}
	s.profiles[userID] = &stored
	return nil
}
