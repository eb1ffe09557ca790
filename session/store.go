package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"

	"github.com/steveconnect/steve-go/core"
)

// Store is the durable record of conversation sessions. A ristretto
// read cache sits in front of lookups; every write invalidates the
// cached row, so a cache hit is at worst slightly stale, never wrong
// in a way a write path depends on (writers always go to the DB).
type Store struct {
	db    *sql.DB
	cache *ristretto.Cache

	// idleTimeout deactivates sessions lazily on access once they have
	// been untouched for this long. Zero disables the policy.
	idleTimeout time.Duration
}

// NewStore creates a session store over the shared database.
func NewStore(db *sql.DB, idleTimeout time.Duration) (*Store, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("session cache: %w", err)
	}
	return &Store{db: db, cache: cache, idleTimeout: idleTimeout}, nil
}

// Create opens a new active session for the user. The session's app
// state row is created alongside it, with no app active (overview).
func (s *Store) Create(ctx context.Context, userID string) (*core.Session, error) {
	now := time.Now().UTC()
	sess := &core.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		Active:    true,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create session: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at, updated_at, active) VALUES (?, ?, ?, ?, 1)`,
		sess.ID, userID, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO app_states (session_id, updated_at) VALUES (?, ?)`,
		sess.ID, now.Format(time.RFC3339Nano),
	); err != nil {
		return nil, fmt.Errorf("insert app state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create session: %w", err)
	}

	log.Printf("[SESSION] Created session %s for user %s", sess.ID, userID)
	return sess, nil
}

// Get returns the session, or core.ErrInvalidSession if unknown. A
// session idle past the timeout is deactivated on the way out.
func (s *Store) Get(ctx context.Context, id string) (*core.Session, error) {
	if cached, ok := s.cache.Get(id); ok {
		if sess, ok := cached.(*core.Session); ok && !s.expired(sess) {
			return sess, nil
		}
	}

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.expired(sess) {
		log.Printf("[SESSION] Session %s idle past %s, deactivating", id, s.idleTimeout)
		if err := s.Deactivate(ctx, id); err != nil {
			return nil, err
		}
		sess.Active = false
		return sess, nil
	}

	s.cache.Set(id, sess, 1)
	return sess, nil
}

// Touch bumps updated_at to now. Idempotent; last write wins.
func (s *Store) Touch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrInvalidSession
	}
	s.cache.Del(id)
	return nil
}

// Deactivate marks the session inactive. The row is kept forever.
func (s *Store) Deactivate(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id,
	); err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	s.cache.Del(id)
	return nil
}

// Close releases the cache.
func (s *Store) Close() {
	s.cache.Close()
}

func (s *Store) expired(sess *core.Session) bool {
	return s.idleTimeout > 0 && sess.Active &&
		time.Since(sess.UpdatedAt) > s.idleTimeout
}

func (s *Store) load(ctx context.Context, id string) (*core.Session, error) {
	var (
		sess                 core.Session
		createdAt, updatedAt string
		active               int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, updated_at, active FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.UserID, &createdAt, &updatedAt, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	sess.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	sess.Active = active == 1
	return &sess, nil
}
