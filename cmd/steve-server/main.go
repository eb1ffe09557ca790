// Command steve-server assembles the orchestrator and serves the chat
// API. Configuration comes from the environment (a local .env file is
// loaded when present).
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"
	"google.golang.org/genai"

	"github.com/steveconnect/steve-go/engine"
	"github.com/steveconnect/steve-go/gmail"
	"github.com/steveconnect/steve-go/llm"
	"github.com/steveconnect/steve-go/memory"
	genaiembed "github.com/steveconnect/steve-go/memory/embedder/genai"
	"github.com/steveconnect/steve-go/memory/index/chromem"
	"github.com/steveconnect/steve-go/router"
	"github.com/steveconnect/steve-go/server"
	"github.com/steveconnect/steve-go/session"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Printf("[MAIN] Loaded .env")
	}

	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		log.Fatal("[MAIN] ANTHROPIC_API_KEY is required")
	}
	if os.Getenv("GEMINI_API_KEY") == "" {
		log.Fatal("[MAIN] GEMINI_API_KEY is required")
	}

	ctx := context.Background()

	db, err := session.Open(envOr("STEVE_DB_PATH", "steve.db"))
	if err != nil {
		log.Fatalf("[MAIN] Database: %v", err)
	}
	defer db.Close()

	idleTimeout, err := time.ParseDuration(envOr("STEVE_SESSION_IDLE_TIMEOUT", "24h"))
	if err != nil {
		log.Fatalf("[MAIN] STEVE_SESSION_IDLE_TIMEOUT: %v", err)
	}

	sessions, err := session.NewStore(db, idleTimeout)
	if err != nil {
		log.Fatalf("[MAIN] Session store: %v", err)
	}
	defer sessions.Close()
	ledger := session.NewLedger(db)
	tracker := session.NewTracker(db)

	anthropicClient := anthropic.NewClient()
	generator := llm.NewAnthropic(&anthropicClient, os.Getenv("STEVE_MODEL"))

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  os.Getenv("GEMINI_API_KEY"),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		log.Fatalf("[MAIN] Gemini client: %v", err)
	}
	embedder := genaiembed.New(genaiClient, os.Getenv("STEVE_EMBED_MODEL"))

	index, err := chromem.New(envOr("STEVE_MEMORY_PATH", "steve-memory"))
	if err != nil {
		log.Fatalf("[MAIN] Memory index: %v", err)
	}
	defer index.Close()

	stories := memory.NewStoryManager(index, embedder, memory.NewNarrator(generator), generator)

	eng := engine.New(sessions, ledger, tracker, stories, router.New(generator))
	eng.Start()
	defer eng.Stop()

	var sender *gmail.Sender
	if os.Getenv("GMAIL_CLIENT_ID") != "" {
		sender = gmail.NewSender(gmail.NewTokenManager(gmail.TokenConfig{
			ClientID:     os.Getenv("GMAIL_CLIENT_ID"),
			ClientSecret: os.Getenv("GMAIL_CLIENT_SECRET"),
			RefreshToken: os.Getenv("GMAIL_REFRESH_TOKEN"),
		}), "")
		log.Printf("[MAIN] Gmail sending enabled")
	} else {
		log.Printf("[MAIN] Gmail credentials not set, send endpoint disabled")
	}

	srv := &http.Server{
		Addr:              envOr("STEVE_ADDR", ":8080"),
		Handler:           server.New(eng, sessions, ledger, tracker, stories, sender).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("[MAIN] Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[MAIN] Server: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Printf("[MAIN] Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[MAIN] Shutdown: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
