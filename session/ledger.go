package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/steveconnect/steve-go/core"
)

// Ledger is the append-only log of per-app interaction events. Events
// are immutable once written; corrections are new events. The ledger
// doubles as the durable work queue for narrative enrichment: events
// carry a summarized flag the background worker flips after indexing.
type Ledger struct {
	db *sql.DB
}

// NewLedger creates a ledger over the shared database.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Append writes one event for an active session, in the same
// transaction as the session's updated_at touch so within-session
// event order matches turn acceptance order. When turnID is non-empty
// and an event with that turnID already exists, the existing event is
// returned and nothing is written (idempotent client retries).
//
// Fails with core.ErrInvalidSession for unknown or inactive sessions.
func (l *Ledger) Append(ctx context.Context, sessionID, appName, action string, payload map[string]any, turnID string) (*core.ContextEvent, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var active int
	err = tx.QueryRowContext(ctx,
		`SELECT active FROM sessions WHERE id = ?`, sessionID,
	).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && active == 0) {
		return nil, core.ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}

	now := time.Now().UTC()
	event := &core.ContextEvent{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		App:       appName,
		Action:    action,
		Payload:   payload,
		TurnID:    turnID,
		CreatedAt: now,
	}

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO context_events (id, session_id, app_name, action, payload, turn_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, sessionID, appName, action, string(payloadJSON), turnID,
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 && turnID != "" {
		// Duplicate turn: hand back the event the first attempt wrote.
		existing, err := scanEvent(tx.QueryRowContext(ctx,
			`SELECT id, session_id, app_name, action, payload, turn_id, created_at
			 FROM context_events WHERE turn_id = ?`, turnID))
		if err != nil {
			return nil, fmt.Errorf("load duplicate event: %w", err)
		}
		log.Printf("[LEDGER] Duplicate turn %s, returning event %s", turnID, existing.ID)
		return existing, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		now.Format(time.RFC3339Nano), sessionID,
	); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}

	return event, nil
}

// Get retrieves one event by ID. Raw events stay retrievable by exact
// lookup even when no narrative was ever produced for them.
func (l *Ledger) Get(ctx context.Context, id string) (*core.ContextEvent, error) {
	event, err := scanEvent(l.db.QueryRowContext(ctx,
		`SELECT id, session_id, app_name, action, payload, turn_id, created_at
		 FROM context_events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s not found", id)
	}
	return event, err
}

// List returns a session's events in append order.
func (l *Ledger) List(ctx context.Context, sessionID string) ([]*core.ContextEvent, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, session_id, app_name, action, payload, turn_id, created_at
		 FROM context_events WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []*core.ContextEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Unsummarized returns up to limit events that have no memory record
// yet, oldest first.
func (l *Ledger) Unsummarized(ctx context.Context, limit int) ([]*core.ContextEvent, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, session_id, app_name, action, payload, turn_id, created_at
		 FROM context_events WHERE summarized = 0 ORDER BY seq ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("scan unsummarized: %w", err)
	}
	defer rows.Close()

	var events []*core.ContextEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// MarkSummarized records that a memory record now exists for the
// event. The event payload itself is never touched.
func (l *Ledger) MarkSummarized(ctx context.Context, eventID string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE context_events SET summarized = 1 WHERE id = ?`, eventID)
	if err != nil {
		return fmt.Errorf("mark summarized: %w", err)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*core.ContextEvent, error) {
	var (
		event       core.ContextEvent
		payloadJSON string
		createdAt   string
	)
	if err := row.Scan(&event.ID, &event.SessionID, &event.App, &event.Action,
		&payloadJSON, &event.TurnID, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	event.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &event, nil
}
