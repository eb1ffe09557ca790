// Package server exposes the orchestrator to the UI layer: the chat
// endpoint, per-app submissions, the gmail send path, and the memory
// and session admin surface.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/steveconnect/steve-go/core"
	"github.com/steveconnect/steve-go/engine"
	"github.com/steveconnect/steve-go/gmail"
	"github.com/steveconnect/steve-go/memory"
	"github.com/steveconnect/steve-go/session"
)

// Server handles the inbound API surface. All state lives in the
// components it wires together.
type Server struct {
	engine   *engine.Engine
	sessions *session.Store
	ledger   *session.Ledger
	tracker  *session.Tracker
	stories  *memory.StoryManager

	// sender is nil when gmail credentials are not configured; the send
	// endpoint then answers 503.
	sender *gmail.Sender
}

// New creates a server over the assembled components.
func New(eng *engine.Engine, sessions *session.Store, ledger *session.Ledger, tracker *session.Tracker, stories *memory.StoryManager, sender *gmail.Sender) *Server {
	return &Server{
		engine:   eng,
		sessions: sessions,
		ledger:   ledger,
		tracker:  tracker,
		stories:  stories,
		sender:   sender,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /apps/{app}/submit", s.handleAppSubmit)
	mux.HandleFunc("POST /gmail/send", s.handleGmailSend)
	mux.HandleFunc("GET /memory/search", s.handleMemorySearch)
	mux.HandleFunc("GET /memory/stats", s.handleMemoryStats)
	mux.HandleFunc("GET /session/{id}/context", s.handleSessionContext)
	mux.HandleFunc("POST /session/{id}/reset", s.handleSessionReset)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id"`
	TurnID    string `json:"turn_id,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "message and user_id are required")
		return
	}

	result, err := s.engine.HandleTurn(r.Context(), &core.TurnInput{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Message:   req.Message,
		TurnID:    req.TurnID,
	})
	if err != nil {
		log.Printf("[SERVER] Chat turn failed: %v", err)
		writeError(w, http.StatusInternalServerError, "turn failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type appSubmitRequest struct {
	SessionID string         `json:"session_id"`
	Action    string         `json:"action"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func (s *Server) handleAppSubmit(w http.ResponseWriter, r *http.Request) {
	app, ok := core.ParseApp(r.PathValue("app"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown app")
		return
	}

	var req appSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if req.Action == "" {
		req.Action = "submit_data"
	}

	event, err := s.engine.RecordAppAction(r.Context(), req.SessionID, app, req.Action, req.Payload)
	if err != nil {
		if errors.Is(err, core.ErrInvalidSession) {
			writeError(w, http.StatusNotFound, "invalid or inactive session")
			return
		}
		log.Printf("[SERVER] App submit failed: %v", err)
		writeError(w, http.StatusInternalServerError, "submit failed")
		return
	}
	writeJSON(w, http.StatusOK, event)
}

type gmailSendRequest struct {
	SessionID  string `json:"session_id,omitempty"`
	To         string `json:"to"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	SenderName string `json:"sender_name,omitempty"`
}

func (s *Server) handleGmailSend(w http.ResponseWriter, r *http.Request) {
	if s.sender == nil {
		writeError(w, http.StatusServiceUnavailable, "gmail is not configured")
		return
	}

	var req gmailSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.sender.Send(r.Context(), &gmail.Message{
		To:         req.To,
		Subject:    req.Subject,
		Body:       req.Body,
		SenderName: req.SenderName,
	})
	if err != nil {
		var sendErr *core.SendError
		switch {
		case errors.Is(err, core.ErrRefreshFailed):
			writeError(w, http.StatusBadGateway, "cannot send: please reconnect the Gmail account")
		case errors.As(err, &sendErr):
			writeError(w, http.StatusBadGateway, sendErr.Reason)
		default:
			log.Printf("[SERVER] Gmail send failed: %v", err)
			writeError(w, http.StatusInternalServerError, "send failed")
		}
		return
	}

	// The send becomes workspace history like any other app action.
	if req.SessionID != "" {
		_, err := s.engine.RecordAppAction(r.Context(), req.SessionID, core.AppGmail, "send_email", map[string]any{
			"to":         req.To,
			"subject":    req.Subject,
			"message_id": result.MessageID,
		})
		if err != nil {
			log.Printf("[SERVER] Recording send event failed: %v", err)
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	topK := 5
	if raw := r.URL.Query().Get("k"); raw != "" {
		if k, err := strconv.Atoi(raw); err == nil && k > 0 && k <= 50 {
			topK = k
		}
	}

	records, err := s.stories.Search(r.Context(), query, topK)
	if err != nil {
		log.Printf("[SERVER] Memory search failed: %v", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	type hit struct {
		ID         string            `json:"id"`
		Narrative  string            `json:"narrative"`
		Similarity float32           `json:"similarity"`
		Metadata   map[string]string `json:"metadata"`
		CreatedAt  string            `json:"created_at"`
	}
	hits := make([]hit, 0, len(records))
	for _, rec := range records {
		hits = append(hits, hit{
			ID:         rec.ID,
			Narrative:  rec.Narrative,
			Similarity: rec.Similarity,
			Metadata:   rec.Metadata,
			CreatedAt:  rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": query, "results": hits})
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stories.IndexStats())
}

func (s *Server) handleSessionContext(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	state, err := s.tracker.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "app state unavailable")
		return
	}
	events, err := s.ledger.List(r.Context(), id)
	if err != nil {
		log.Printf("[SERVER] Event list failed: %v", err)
		writeError(w, http.StatusInternalServerError, "events unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session":   sess,
		"app_state": state,
		"events":    events,
	})
}

func (s *Server) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	if err := s.sessions.Deactivate(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}

	fresh, err := s.sessions.Create(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	writeJSON(w, http.StatusOK, fresh)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[SERVER] Encoding response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
