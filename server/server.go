// Package server exposes the FinBot agent over WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/finbotlabs/finbot/advisor"
	"github.com/finbotlabs/finbot/core"
	"github.com/finbotlabs/finbot/engine"
	"github.com/finbotlabs/finbot/store"
)

// Config configures the server.
type Config struct {
	// Provider is the language capability. Required.
	Provider core.ModelProvider

	// SystemPrompt overrides the default FinBot system prompt.
	SystemPrompt string

	// Model is the model name passed through to the provider.
	Model string

	// MaxTokens is the maximum response tokens.
	MaxTokens int64

	// MaxRounds caps agent/tool alternations per turn.
	MaxRounds int

	// AuthFunc validates requests and returns a user ID.
	// If nil, a default user ID is used (not recommended for production).
	AuthFunc func(r *http.Request) (userID string, err error)

	// Conversations persists conversations.
	// If nil, conversations are stored in memory only.
	Conversations store.Conversations

	// Users persists financial profiles.
	// If nil, profiles are stored in memory only.
	Users store.Users
}

// Server is a WebSocket server for the FinBot agent.
type Server struct {
	config   Config
	engine   *engine.Engine
	registry *engine.ToolRegistry
	upgrader websocket.Upgrader

	conversations store.Conversations
	users         store.Users

	// turnLocks serializes turns per conversation: one in-flight turn per
	// thread, concurrent conversations run independently. Entries are
	// evicted when the last holder releases.
	locksMu   sync.Mutex
	turnLocks map[string]*turnLock
}

// turnLock is a per-conversation mutex with a holder count, so the entry
// can be dropped once nobody waits on it.
type turnLock struct {
	mu   sync.Mutex
	refs int
}

// session is the per-connection conversation state. It owns its profile
// and message history exclusively; nothing is shared across sessions.
type session struct {
	UserID         string
	ConversationID string
	Profile        *core.FinancialProfile
	State          core.TurnState
	History        []core.Message
}

// New creates a new server with the given configuration.
func New(cfg Config) *Server {
	registry := engine.NewToolRegistry()

	var opts []engine.Option
	if cfg.MaxRounds > 0 {
		opts = append(opts, engine.WithMaxRounds(cfg.MaxRounds))
	}
	eng := engine.NewEngine(cfg.Provider, registry, opts...)

	conversations := cfg.Conversations
	if conversations == nil {
		conversations = store.NewMemoryConversations()
	}
	users := cfg.Users
	if users == nil {
		users = store.NewMemoryUsers()
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = advisor.SystemPrompt
	}

	return &Server{
		config:        cfg,
		engine:        eng,
		registry:      registry,
		conversations: conversations,
		users:         users,
		turnLocks:     make(map[string]*turnLock),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
	}
}

// AddTool registers a capability with the server.
func (s *Server) AddTool(tool core.Tool) {
	s.registry.Register(tool)
}

// AddTools registers multiple capabilities with the server.
func (s *Server) AddTools(tools ...core.Tool) {
	s.registry.RegisterAll(tools...)
}

// Tools returns the registered capability names in registration order.
func (s *Server) Tools() []string {
	return s.registry.List()
}

// Handler returns an HTTP handler for WebSocket connections.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleWebSocket)
}

// Run starts the server on the given address.
func (s *Server) Run(addr string) error {
	http.Handle("/ws", s.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	log.Printf("Starting FinBot server on %s", addr)
	return http.ListenAndServe(addr, nil)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := "default-user"
	if s.config.AuthFunc != nil {
		var err error
		userID, err = s.config.AuthFunc(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("WebSocket connected for user %s", userID)

	var sess *session

	// One turn at a time: frames on this connection are handled strictly
	// in arrival order by this read loop.
	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			s.sendError(conn, "Invalid message format")
			continue
		}

		log.Printf("Received message type=%s from user=%s", msg.Type, userID)

		switch msg.Type {
		case "init":
			sess = s.handleInit(r.Context(), conn, userID, msg.Data)

		case "new_conversation":
			if sess == nil {
				s.sendError(conn, "No profile. Send 'init' first.")
				continue
			}
			s.startConversation(r.Context(), conn, sess)

		case "resume_conversation":
			if sess == nil {
				s.sendError(conn, "No profile. Send 'init' first.")
				continue
			}
			s.resumeConversation(r.Context(), conn, sess, msg.ConversationID)

		case "message":
			if sess == nil || sess.ConversationID == "" {
				s.sendError(conn, "No active conversation. Send 'init' first.")
				continue
			}
			s.handleMessage(r.Context(), conn, sess, msg.Content)

		case "financial_data":
			if sess == nil || sess.ConversationID == "" {
				s.sendError(conn, "No active conversation. Send 'init' first.")
				continue
			}
			s.handleFinancialData(r.Context(), conn, sess, msg)

		default:
			s.sendError(conn, fmt.Sprintf("Unknown message type: %s", msg.Type))
		}
	}

	log.Printf("WebSocket disconnected for user %s", userID)
}

// handleInit bootstraps the profile, starts a conversation, and greets the
// user.
func (s *Server) handleInit(ctx context.Context, conn *websocket.Conn, userID string, data json.RawMessage) *session {
	var init InitData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &init); err != nil {
			s.sendError(conn, "Invalid init data")
			return nil
		}
	}

	profile, err := s.users.GetProfile(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// New user: build the profile from the init payload.
		profile = &core.FinancialProfile{
			Name:      init.Name,
			RiskLevel: core.ParseRiskLevel(init.RiskLevel),
			Portfolio: init.Portfolio,
		}
		if profile.Name == "" {
			profile.Name = "User"
		}
		if profile.Portfolio == nil {
			profile.Portfolio = map[string]core.Holding{}
		}
		if err := s.users.SaveProfile(ctx, userID, profile); err != nil {
			log.Printf("Failed to save profile for %s: %v", userID, err)
		}
	case err != nil:
		// A failing store must not look like a new user: rebuilding here
		// would overwrite the durable profile with the init payload.
		log.Printf("Failed to load profile for %s: %v", userID, err)
		s.sendError(conn, "Failed to load profile, please retry")
		return nil
	}

	sess := &session{
		UserID:  userID,
		Profile: profile,
	}
	if !s.startConversation(ctx, conn, sess) {
		return nil
	}

	s.send(conn, ServerMessage{
		Type:      "message",
		Content:   fmt.Sprintf("Hello %s! I'm your financial assistant. How can I help you today?", profile.Name),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return sess
}

func (s *Server) startConversation(ctx context.Context, conn *websocket.Conn, sess *session) bool {
	conv, err := s.conversations.Create(ctx, sess.UserID)
	if err != nil {
		s.sendError(conn, fmt.Sprintf("Failed to create conversation: %v", err))
		return false
	}

	sess.ConversationID = conv.ID
	sess.History = nil
	sess.State = core.TurnState{}

	s.send(conn, ServerMessage{
		Type:           "conversation_started",
		ConversationID: conv.ID,
	})

	log.Printf("Started conversation %s for user %s", conv.ID, sess.UserID)
	return true
}

func (s *Server) resumeConversation(ctx context.Context, conn *websocket.Conn, sess *session, conversationID string) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		s.sendError(conn, "Conversation not found")
		return
	}

	// Rebuild the model-facing history from the durable record. Tool rows
	// are internal chatter; the user/assistant exchange is what carries
	// the conversation forward.
	history := make([]core.Message, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		switch core.Role(m.Role) {
		case core.RoleUser:
			history = append(history, core.NewUserMessage(m.Content))
		case core.RoleAssistant:
			history = append(history, core.NewAssistantMessage(m.Content))
		}
	}

	sess.ConversationID = conversationID
	sess.History = history
	// Collected financial details are session state, not part of the
	// durable record; a resumed conversation starts collecting again.
	sess.State = core.TurnState{}

	s.send(conn, ServerMessage{
		Type:           "conversation_resumed",
		ConversationID: conversationID,
		Messages:       conv.Messages,
	})

	log.Printf("Resumed conversation %s for user %s", conversationID, sess.UserID)
}

// handleMessage runs one full turn: classify, then either answer from the
// deterministic generators or drive the agent loop.
func (s *Server) handleMessage(ctx context.Context, conn *websocket.Conn, sess *session, content string) {
	if content == "" {
		return
	}

	unlock := s.lockTurn(sess.ConversationID)
	defer unlock()

	log.Printf("[CONVERSATION %s] USER: %s", sess.ConversationID, truncate(content, 50))

	intent := advisor.Classify(content, &sess.State)

	switch intent.Action {
	case advisor.ActionCollectInfo:
		s.replyCanned(ctx, conn, sess, content, intent.Prompt, intent.Action)
		return
	case advisor.ActionBudgetingAdvice:
		s.replyCanned(ctx, conn, sess, content, advisor.BudgetingAdvice(&sess.State), intent.Action)
		return
	case advisor.ActionPortfolioAdvice:
		s.replyCanned(ctx, conn, sess, content, advisor.PortfolioAdvice(sess.Profile), intent.Action)
		return
	}

	// Everything else goes through the language capability; tools are
	// exposed only when the intent calls for external data.
	s.persistMessage(ctx, sess.ConversationID, string(core.RoleUser), content)

	out, err := s.engine.Run(ctx, &engine.Input{
		UserMessage:    content,
		UserID:         sess.UserID,
		ConversationID: sess.ConversationID,
		History:        sess.History,
		SystemPrompt:   s.config.SystemPrompt,
		ContextPrompt:  advisor.ProfileContext(sess.Profile, &sess.State),
		Model:          s.config.Model,
		MaxTokens:      s.config.MaxTokens,
		ToolsEnabled:   intent.RequiresTools,
	})
	if err != nil {
		log.Printf("Agent error: %v", err)
		s.sendError(conn, fmt.Sprintf("Agent error: %v", err))
		return
	}

	// Merge the turn's messages into the session history and persist
	// everything past the user message (already written above).
	sess.History = append(sess.History, out.Appended...)
	for i, m := range out.Appended {
		if i == 0 && m.Role == core.RoleUser {
			continue
		}
		switch m.Role {
		case core.RoleAssistant:
			s.persistMessage(ctx, sess.ConversationID, string(core.RoleAssistant), m.Content)
		case core.RoleTool:
			if m.ToolOutcome != nil {
				s.persistMessage(ctx, sess.ConversationID, string(core.RoleTool), m.ToolOutcome.Content)
			}
		}
	}

	action := string(intent.Action)
	if out.Action == "error" {
		action = string(advisor.ActionError)
	}

	log.Printf("[CONVERSATION %s] ASSISTANT: %s", sess.ConversationID, truncate(out.Reply, 200))

	s.send(conn, ServerMessage{
		Type:      "message",
		Content:   out.Reply,
		Action:    action,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	s.send(conn, ServerMessage{
		Type: "complete",
		TokenUsage: &TokenUsage{
			InputTokens:  out.TokensUsed.InputTokens,
			OutputTokens: out.TokensUsed.OutputTokens,
			TotalTokens:  out.TokensUsed.TotalTokens(),
		},
	})
}

// handleFinancialData applies a state update and answers with the matching
// deterministic advice.
func (s *Server) handleFinancialData(ctx context.Context, conn *websocket.Conn, sess *session, msg ClientMessage) {
	unlock := s.lockTurn(sess.ConversationID)
	defer unlock()

	var update core.StateUpdate
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			s.sendError(conn, "Invalid financial data")
			return
		}
	}
	sess.State.Apply(update)

	var advice string
	switch msg.DataType {
	case "budgeting":
		advice = advisor.BudgetingAdvice(&sess.State)
	case "portfolio":
		advice = advisor.PortfolioAdvice(sess.Profile)
	default:
		advice = "Thanks, I've noted your financial details."
	}

	reply := core.NewAssistantMessage(advice)
	sess.History = append(sess.History, reply)
	s.persistMessage(ctx, sess.ConversationID, string(core.RoleAssistant), advice)

	s.send(conn, ServerMessage{
		Type:      "message",
		Content:   advice,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// replyCanned completes a turn with a deterministic reply, no model call.
func (s *Server) replyCanned(ctx context.Context, conn *websocket.Conn, sess *session, utterance, reply string, action advisor.Action) {
	sess.History = append(sess.History, core.NewUserMessage(utterance))
	s.persistMessage(ctx, sess.ConversationID, string(core.RoleUser), utterance)

	sess.History = append(sess.History, core.NewAssistantMessage(reply))
	s.persistMessage(ctx, sess.ConversationID, string(core.RoleAssistant), reply)

	log.Printf("[CONVERSATION %s] ASSISTANT: %s", sess.ConversationID, truncate(reply, 200))

	s.send(conn, ServerMessage{
		Type:      "message",
		Content:   reply,
		Action:    string(action),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	s.send(conn, ServerMessage{Type: "complete"})
}

// lockTurn serializes turns on one conversation. The returned func releases
// the lock and evicts the registry entry once no other turn holds it.
func (s *Server) lockTurn(conversationID string) func() {
	s.locksMu.Lock()
	l := s.turnLocks[conversationID]
	if l == nil {
		l = &turnLock{}
		s.turnLocks[conversationID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.turnLocks, conversationID)
		}
		s.locksMu.Unlock()
	}
}

func (s *Server) persistMessage(ctx context.Context, conversationID, role, content string) {
	_, err := s.conversations.Append(ctx, &store.AppendMessage{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	})
	if err != nil {
		log.Printf("Failed to persist message: %v", err)
	}
}

func (s *Server) send(conn *websocket.Conn, msg ServerMessage) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("Failed to send message: %v", err)
	}
}

func (s *Server) sendError(conn *websocket.Conn, content string) {
	log.Printf("Sending error: %s", content)
	s.send(conn, ServerMessage{Type: "error", Content: content})
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
