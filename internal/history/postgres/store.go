// Package postgres implements history.Store on PostgreSQL.
//
// One conversation_turns table, one pgxpool.Pool. Migrate runs automatically
// on construction so a fresh database works without manual setup.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samvaad-ai/samvaad/internal/history"
)

var _ history.Store = (*Store)(nil)

// Store persists conversation turns in PostgreSQL. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database at dsn, verifies the connection, and ensures
// the schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Migrate creates the conversation_turns table and its index if they do not
// exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS conversation_turns (
		    id         BIGSERIAL PRIMARY KEY,
		    session_id TEXT        NOT NULL,
		    role       TEXT        NOT NULL,
		    text       TEXT        NOT NULL,
		    language   TEXT        NOT NULL DEFAULT '',
		    timestamp  TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS conversation_turns_timestamp_idx
		    ON conversation_turns (timestamp);`

	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating conversation_turns: %w", err)
	}
	return nil
}

// Append implements history.Store.
func (s *Store) Append(ctx context.Context, turn history.Turn) error {
	const q = `
		INSERT INTO conversation_turns (session_id, role, text, language, timestamp)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, q,
		turn.SessionID,
		string(turn.Role),
		turn.Text,
		turn.Language,
		turn.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("history store: append: %w", err)
	}
	return nil
}

// Recent implements history.Store. Turns come back oldest-first; limit <= 0
// returns everything.
func (s *Store) Recent(ctx context.Context, limit int) ([]history.Turn, error) {
	q := `
		SELECT session_id, role, text, language, timestamp
		FROM   conversation_turns
		ORDER  BY id DESC`
	args := []any{}
	if limit > 0 {
		q += "\nLIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history store: recent: %w", err)
	}

	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.Turn, error) {
		var (
			t    history.Turn
			role string
		)
		if err := row.Scan(&t.SessionID, &role, &t.Text, &t.Language, &t.Timestamp); err != nil {
			return history.Turn{}, err
		}
		t.Role = history.Role(role)
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("history store: scan rows: %w", err)
	}

	// The query is newest-first so LIMIT trims the right end; flip back to
	// chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	if turns == nil {
		turns = []history.Turn{}
	}
	return turns, nil
}

// Clear implements history.Store.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM conversation_turns`); err != nil {
		return fmt.Errorf("history store: clear: %w", err)
	}
	return nil
}

// Ping verifies the database connection. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
