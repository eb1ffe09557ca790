package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/steveconnect/steve-go/core"
)

const turnTimeout = 60 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The UI layer terminates in the same deployment; origin policy is
	// enforced upstream.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsError struct {
	Error string `json:"error"`
}

// handleWS runs the chat loop over a websocket: one chatRequest in,
// one TurnResult out, until the client hangs up. Each turn gets its
// own deadline so a stuck generator does not wedge the connection.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[SERVER] WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[SERVER] WebSocket connected: %s", r.RemoteAddr)

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[SERVER] WebSocket read failed: %v", err)
			}
			return
		}

		if req.Message == "" || req.UserID == "" {
			if err := conn.WriteJSON(wsError{Error: "message and user_id are required"}); err != nil {
				return
			}
			continue
		}

		ctx, cancel := context.WithTimeout(r.Context(), turnTimeout)
		result, err := s.engine.HandleTurn(ctx, &core.TurnInput{
			UserID:    req.UserID,
			SessionID: req.SessionID,
			Message:   req.Message,
			TurnID:    req.TurnID,
		})
		cancel()
		if err != nil {
			log.Printf("[SERVER] WebSocket turn failed: %v", err)
			if err := conn.WriteJSON(wsError{Error: "turn failed"}); err != nil {
				return
			}
			continue
		}

		if err := conn.WriteJSON(result); err != nil {
			log.Printf("[SERVER] WebSocket write failed: %v", err)
			return
		}
	}
}
