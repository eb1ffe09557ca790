// Package session provides the durable state of the orchestrator: the
// session store, the append-only context ledger, and the app state
// tracker. All three share one SQLite database.
package session

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	active     INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);

CREATE TABLE IF NOT EXISTS context_events (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	session_id TEXT NOT NULL,
	app_name   TEXT NOT NULL,
	action     TEXT NOT NULL,
	payload    TEXT NOT NULL,
	turn_id    TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	summarized INTEGER NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_turn_id
	ON context_events(turn_id) WHERE turn_id <> '';
CREATE INDEX IF NOT EXISTS idx_events_session_id ON context_events(session_id);
CREATE INDEX IF NOT EXISTS idx_events_summarized ON context_events(summarized);

CREATE TABLE IF NOT EXISTS app_states (
	session_id   TEXT PRIMARY KEY,
	current_app  TEXT NOT NULL DEFAULT '',
	previous_app TEXT NOT NULL DEFAULT '',
	state_data   TEXT NOT NULL DEFAULT '{}',
	updated_at   TEXT NOT NULL
);
`

// Open opens (or creates) the orchestrator database and initializes
// the schema. WAL mode keeps concurrent readers off the writer's back.
func Open(path string) (*sql.DB, error) {
	// The pragmas ride on the DSN so they apply to every connection in
	// the database/sql pool, not just the one that ran an Exec. _txlock
	// makes transactions take the write lock at BEGIN; a deferred
	// read-to-write upgrade returns SQLITE_BUSY immediately without
	// consulting the busy timeout.
	db, err := sql.Open("sqlite",
		path+"?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}
