package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbotlabs/finbot/core"
	"github.com/finbotlabs/finbot/store"
)

// scriptedProvider replies with a fixed message and signals each call.
type scriptedProvider struct {
	reply      core.Message
	onGenerate func(req *core.GenerateRequest)
}

func (p *scriptedProvider) Generate(ctx context.Context, req *core.GenerateRequest) (*core.Message, *core.TokenUsage, error) {
	if p.onGenerate != nil {
		p.onGenerate(req)
	}
	reply := p.reply
	return &reply, &core.TokenUsage{InputTokens: 7, OutputTokens: 3}, nil
}

// flakyUsers fails every load and records every save.
type flakyUsers struct {
	mu     sync.Mutex
	getErr error
	saved  []*core.FinancialProfile
}

func (u *flakyUsers) GetProfile(ctx context.Context, userID string) (*core.FinancialProfile, error) {
	return nil, u.getErr
}

func (u *flakyUsers) SaveProfile(ctx context.Context, userID string, profile *core.FinancialProfile) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.saved = append(u.saved, profile)
	return nil
}

func (u *flakyUsers) savedCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.saved)
}

func dialTestServer(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// sendInit bootstraps a session and returns the new conversation ID.
func sendInit(t *testing.T, conn *websocket.Conn, name string) string {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type: "init",
		Data: json.RawMessage(fmt.Sprintf(`{"name":%q,"risk_level":"moderate"}`, name)),
	}))

	started := readFrame(t, conn)
	require.Equal(t, "conversation_started", started.Type)
	require.NotEmpty(t, started.ConversationID)

	welcome := readFrame(t, conn)
	require.Equal(t, "message", welcome.Type)
	require.Contains(t, welcome.Content, "Hello "+name)

	return started.ConversationID
}

// completeState fills all mandatory financial fields so messages reach the
// engine instead of the collect_info intercept.
func completeState(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type: "financial_data",
		Data: json.RawMessage(`{"income":5000,"expenses":3000,"financial_goals":["retirement"],"budgeting_details":{"rent":1200}}`),
	}))
	ack := readFrame(t, conn)
	require.Equal(t, "message", ack.Type)
}

func TestInitCreatesProfileAndGreets(t *testing.T) {
	users := store.NewMemoryUsers()
	srv := New(Config{
		Provider: &scriptedProvider{},
		Users:    users,
	})
	conn := dialTestServer(t, srv)

	sendInit(t, conn, "Alice")

	profile, err := users.GetProfile(context.Background(), "default-user")
	require.NoError(t, err)
	assert.Equal(t, "Alice", profile.Name)
	assert.Equal(t, core.RiskModerate, profile.RiskLevel)
}

func TestInitStoreFailureDoesNotRebuildProfile(t *testing.T) {
	users := &flakyUsers{getErr: errors.New("database is locked")}
	srv := New(Config{
		Provider: &scriptedProvider{},
		Users:    users,
	})
	conn := dialTestServer(t, srv)

	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type: "init",
		Data: json.RawMessage(`{"name":"Mallory","risk_level":"aggressive"}`),
	}))

	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame.Type)
	assert.Zero(t, users.savedCount(), "a failing store must never be overwritten from the init payload")
}

func TestCollectInfoInterceptsAndPersists(t *testing.T) {
	conversations := store.NewMemoryConversations()
	srv := New(Config{
		Provider:      &scriptedProvider{},
		Conversations: conversations,
	})
	conn := dialTestServer(t, srv)
	convID := sendInit(t, conn, "Alice")

	// State is empty, so even a tool-worthy utterance is intercepted.
	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type:    "message",
		Content: "What's the price of AAPL?",
	}))

	reply := readFrame(t, conn)
	assert.Equal(t, "message", reply.Type)
	assert.Equal(t, "collect_info", reply.Action)
	assert.Contains(t, reply.Content, "monthly income")

	complete := readFrame(t, conn)
	assert.Equal(t, "complete", complete.Type)

	conv, err := conversations.Get(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, string(core.RoleUser), conv.Messages[0].Role)
	assert.Equal(t, "What's the price of AAPL?", conv.Messages[0].Content)
	assert.Equal(t, string(core.RoleAssistant), conv.Messages[1].Role)
}

func TestFinancialDataAppliesStateAndAdvises(t *testing.T) {
	srv := New(Config{Provider: &scriptedProvider{}})
	conn := dialTestServer(t, srv)
	sendInit(t, conn, "Alice")

	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type:     "financial_data",
		DataType: "budgeting",
		Data:     json.RawMessage(`{"income":5000,"expenses":3000}`),
	}))

	advice := readFrame(t, conn)
	assert.Equal(t, "message", advice.Type)
	assert.Contains(t, advice.Content, "40.0%")
	assert.Contains(t, advice.Content, "Excellent savings rate!")
}

func TestEngineTurnPersistsUserMessageBeforeModelCall(t *testing.T) {
	conversations := store.NewMemoryConversations()
	provider := &scriptedProvider{reply: core.NewAssistantMessage("Hi there!")}
	srv := New(Config{
		Provider:      provider,
		Conversations: conversations,
	})
	var (
		mu             sync.Mutex
		convID         string
		rowsAtGenerate []store.StoredMessage
	)
	provider.onGenerate = func(*core.GenerateRequest) {
		mu.Lock()
		defer mu.Unlock()
		if convID == "" {
			return
		}
		if conv, err := conversations.Get(context.Background(), convID); err == nil {
			rowsAtGenerate = conv.Messages
		}
	}

	conn := dialTestServer(t, srv)
	id := sendInit(t, conn, "Alice")
	mu.Lock()
	convID = id
	mu.Unlock()
	completeState(t, conn)

	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type:    "message",
		Content: "hello there",
	}))

	reply := readFrame(t, conn)
	assert.Equal(t, "message", reply.Type)
	assert.Equal(t, "Hi there!", reply.Content)
	assert.Equal(t, "general_help", reply.Action)

	complete := readFrame(t, conn)
	require.Equal(t, "complete", complete.Type)
	require.NotNil(t, complete.TokenUsage)
	assert.Equal(t, 10, complete.TokenUsage.TotalTokens)

	// The user message was durable before the model ran.
	mu.Lock()
	rows := rowsAtGenerate
	mu.Unlock()
	require.NotEmpty(t, rows)
	last := rows[len(rows)-1]
	assert.Equal(t, string(core.RoleUser), last.Role)
	assert.Equal(t, "hello there", last.Content)

	conv, err := conversations.Get(context.Background(), id)
	require.NoError(t, err)
	final := conv.Messages[len(conv.Messages)-1]
	assert.Equal(t, string(core.RoleAssistant), final.Role)
	assert.Equal(t, "Hi there!", final.Content)
}

func TestResumeConversationReplaysHistory(t *testing.T) {
	conversations := store.NewMemoryConversations()
	srv := New(Config{
		Provider:      &scriptedProvider{},
		Conversations: conversations,
	})
	conn := dialTestServer(t, srv)
	convID := sendInit(t, conn, "Alice")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "message", Content: "hi"}))
	readFrame(t, conn) // collect_info reply
	readFrame(t, conn) // complete

	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type:           "resume_conversation",
		ConversationID: convID,
	}))

	resumed := readFrame(t, conn)
	assert.Equal(t, "conversation_resumed", resumed.Type)
	assert.Equal(t, convID, resumed.ConversationID)
	require.Len(t, resumed.Messages, 2)
	assert.Equal(t, "hi", resumed.Messages[0].Content)
}

func TestTurnLockSerializesAndEvicts(t *testing.T) {
	srv := New(Config{Provider: &scriptedProvider{}})

	var active int32
	var violations int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := srv.lockTurn("conv-1")
			if atomic.AddInt32(&active, 1) != 1 {
				atomic.AddInt32(&violations, 1)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Zero(t, violations, "two turns overlapped on one conversation")
	assert.Empty(t, srv.turnLocks, "released locks must be evicted")
}
