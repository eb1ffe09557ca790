package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/steveconnect/steve-go/core"
)

// Tracker records which app a session is currently in. One live row
// per session, overwritten on every transition with the previous app
// kept for "go back" semantics. Only routing decisions and explicit
// app-open actions mutate it.
type Tracker struct {
	db *sql.DB
}

// NewTracker creates a tracker over the shared database.
func NewTracker(db *sql.DB) *Tracker {
	return &Tracker{db: db}
}

// Current returns the session's active app name, empty for overview.
func (t *Tracker) Current(ctx context.Context, sessionID string) (string, error) {
	state, err := t.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return state.CurrentApp, nil
}

// Get returns the full app state for a session.
func (t *Tracker) Get(ctx context.Context, sessionID string) (*core.AppState, error) {
	var (
		state     core.AppState
		stateJSON string
		updatedAt string
	)
	err := t.db.QueryRowContext(ctx,
		`SELECT session_id, current_app, previous_app, state_data, updated_at
		 FROM app_states WHERE session_id = ?`, sessionID,
	).Scan(&state.SessionID, &state.CurrentApp, &state.PreviousApp, &stateJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("load app state: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &state.StateData); err != nil {
		return nil, fmt.Errorf("unmarshal state data: %w", err)
	}
	state.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &state, nil
}

// Set transitions the session to newApp (empty = overview) and returns
// the app that was active before. The read and the write happen in one
// transaction so the recorded previous_app is always the true
// predecessor, even under overlapping requests in the same session.
func (t *Tracker) Set(ctx context.Context, sessionID, newApp string) (string, error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT current_app FROM app_states WHERE session_id = ?`, sessionID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return "", core.ErrInvalidSession
	}
	if err != nil {
		return "", fmt.Errorf("read current app: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE app_states SET current_app = ?, previous_app = ?, updated_at = ? WHERE session_id = ?`,
		newApp, current, time.Now().UTC().Format(time.RFC3339Nano), sessionID,
	); err != nil {
		return "", fmt.Errorf("write transition: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit transition: %w", err)
	}

	log.Printf("[APPSTATE] Session %s: %s -> %s", sessionID, displayApp(current), displayApp(newApp))
	return current, nil
}

// SetStateData replaces the free-form payload for the active app.
func (t *Tracker) SetStateData(ctx context.Context, sessionID string, data map[string]any) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal state data: %w", err)
	}
	res, err := t.db.ExecContext(ctx,
		`UPDATE app_states SET state_data = ?, updated_at = ? WHERE session_id = ?`,
		string(dataJSON), time.Now().UTC().Format(time.RFC3339Nano), sessionID,
	)
	if err != nil {
		return fmt.Errorf("write state data: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrInvalidSession
	}
	return nil
}

func displayApp(app string) string {
	if app == "" {
		return "overview"
	}
	return app
}
