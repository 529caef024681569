package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samvaad-ai/samvaad/internal/history"
	"github.com/samvaad-ai/samvaad/internal/history/postgres"
)

// newTestStore creates a Store against the database named by
// SAMVAAD_TEST_POSTGRES_DSN with a clean conversation_turns table, or skips
// the test when the variable is unset.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("SAMVAAD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SAMVAAD_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS conversation_turns`); err != nil {
		t.Fatalf("dropping table: %v", err)
	}

	store, err := postgres.New(ctx, dsn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestStore_AppendAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	turns := []history.Turn{
		{SessionID: "s1", Role: history.RoleUser, Text: "नमस्ते", Language: "hi", Timestamp: base},
		{SessionID: "s1", Role: history.RoleAssistant, Text: "नमस्ते! कैसे हैं आप?", Language: "hi", Timestamp: base.Add(time.Second)},
		{SessionID: "s2", Role: history.RoleUser, Text: "hello", Language: "en", Timestamp: base.Add(2 * time.Second)},
	}
	for _, turn := range turns {
		if err := store.Append(ctx, turn); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent returned %d turns, want 3", len(got))
	}
	if got[0].Text != "नमस्ते" || got[2].Text != "hello" {
		t.Error("turns not returned oldest-first")
	}
	if got[0].Role != history.RoleUser || got[0].Language != "hi" {
		t.Errorf("turn 0 = %+v", got[0])
	}

	limited, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(limited) != 2 || limited[0].Text != "नमस्ते! कैसे हैं आप?" {
		t.Errorf("Recent(2) = %+v, want the 2 newest turns oldest-first", limited)
	}
}

func TestStore_Clear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Append(ctx, history.Turn{SessionID: "s1", Role: history.RoleUser, Text: "hello", Timestamp: time.Now()})
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	got, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Recent after Clear returned %d turns, want 0", len(got))
	}
}
