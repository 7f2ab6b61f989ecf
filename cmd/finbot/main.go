// FinBot: conversational financial assistant over WebSocket.
package main

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/finbotlabs/finbot/marketdata"
	"github.com/finbotlabs/finbot/model"
	"github.com/finbotlabs/finbot/server"
	"github.com/finbotlabs/finbot/store"
	"github.com/finbotlabs/finbot/tools"
)

func main() {
	// Load .env file if it exists (optional - system env vars work too).
	_ = godotenv.Load()

	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		log.Fatal("ANTHROPIC_API_KEY environment variable is required")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	maxTokens := int64(4096)
	if v := os.Getenv("FINBOT_MAX_TOKENS"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
			maxTokens = parsed
		}
	}

	// Stores: SQLite when a path is configured, in-memory otherwise.
	var conversations store.Conversations
	var users store.Users
	if dbPath := os.Getenv("FINBOT_DB_PATH"); dbPath != "" {
		sqlStore, err := store.NewSQLiteStore(dbPath)
		if err != nil {
			log.Fatalf("Failed to open store at %s: %v", dbPath, err)
		}
		defer sqlStore.Close()
		conversations = sqlStore
		users = sqlStore
		log.Printf("Using SQLite store at %s", dbPath)
	} else {
		log.Println("FINBOT_DB_PATH not set, conversations are stored in memory only")
	}

	// Market data: Alpaca behind a short-lived cache. Credentials come
	// from the APCA_* environment variables.
	provider, err := marketdata.NewCachedProvider(marketdata.NewAlpacaProvider())
	if err != nil {
		log.Fatalf("Failed to initialize market data cache: %v", err)
	}
	defer provider.Close()

	fx := marketdata.NewFXClient(marketdata.FXClientConfig{
		BaseURL: os.Getenv("FINBOT_FX_BASE_URL"),
	})

	srv := server.New(server.Config{
		Provider:      model.NewAnthropicProvider(),
		Model:         os.Getenv("FINBOT_MODEL"),
		MaxTokens:     maxTokens,
		Conversations: conversations,
		Users:         users,
	})

	srv.AddTools(tools.MarketTools(provider)...)
	srv.AddTool(tools.CurrencyTool(fx))

	log.Printf("Registered tools: %v", srv.Tools())

	if err := srv.Run(":" + port); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
