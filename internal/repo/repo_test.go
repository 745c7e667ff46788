package repo_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"petscreen/internal/db"
	"petscreen/internal/domain"
	"petscreen/internal/events"
	"petscreen/internal/migrate"
	"petscreen/internal/repo"
)

func newTestRepo(t *testing.T) (repo.Repo, *sql.DB) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}, conn
}

func appendEvent(t *testing.T, conn *sql.DB, evtType, applicationID string) {
	t.Helper()
	ctx := context.Background()
	w := events.Writer{DB: conn, Now: func() time.Time {
		return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	}}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := w.Append(ctx, tx, evtType, applicationID, repo.StepSputum, "tester", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestLatestEventIDEmptyLog(t *testing.T) {
	r, _ := newTestRepo(t)
	id, err := r.LatestEventID(context.Background(), "")
	if err != nil {
		t.Fatalf("latest id: %v", err)
	}
	if id != 0 {
		t.Fatalf("empty log should report 0, got %d", id)
	}
}

func TestEventsAfterAdvancesCursor(t *testing.T) {
	r, conn := newTestRepo(t)
	ctx := context.Background()
	appendEvent(t, conn, "sputum.collection.saved", "app-1")
	appendEvent(t, conn, "sputum.results.saved", "app-1")

	cursor, err := r.LatestEventID(ctx, "app-1")
	if err != nil {
		t.Fatalf("latest id: %v", err)
	}
	if cursor == 0 {
		t.Fatal("expected a non-zero cursor after appends")
	}

	// Nothing new yet.
	batch, err := r.EventsAfter(ctx, 100, cursor, "app-1")
	if err != nil {
		t.Fatalf("events after: %v", err)
	}
	if len(batch) != 0 {
		t.Fatalf("expected no events past the cursor, got %d", len(batch))
	}

	appendEvent(t, conn, "sputum.submitted", "app-1")
	appendEvent(t, conn, "step.saved", "app-2")

	batch, err = r.EventsAfter(ctx, 100, cursor, "app-1")
	if err != nil {
		t.Fatalf("events after: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("expected only app-1's new event, got %d", len(batch))
	}
	if batch[0].Type != "sputum.submitted" {
		t.Fatalf("type = %q", batch[0].Type)
	}
	if batch[0].ID <= cursor {
		t.Fatalf("event id %d should sit past cursor %d", batch[0].ID, cursor)
	}
}

func TestEventsAfterReturnsAscendingOrder(t *testing.T) {
	r, conn := newTestRepo(t)
	ctx := context.Background()
	for _, typ := range []string{"first", "second", "third"} {
		appendEvent(t, conn, typ, "app-1")
	}

	batch, err := r.EventsAfter(ctx, 100, 0, "")
	if err != nil {
		t.Fatalf("events after: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("expected 3 events, got %d", len(batch))
	}
	for i := 1; i < len(batch); i++ {
		if batch[i].ID <= batch[i-1].ID {
			t.Fatalf("events out of order: %d then %d", batch[i-1].ID, batch[i].ID)
		}
	}
	if batch[0].Type != "first" || batch[2].Type != "third" {
		t.Fatalf("order = %q, %q, %q", batch[0].Type, batch[1].Type, batch[2].Type)
	}
}

func TestAPIKeyListAndDelete(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	keys := []domain.APIKey{
		{ID: "k1", ActorID: "dr-jones", Name: "clinic laptop", KeyHash: repo.HashAPIKey("secret-1"), CreatedAt: "2025-06-15T12:00:00Z"},
		{ID: "k2", ActorID: "dr-jones", Name: "integration", KeyHash: repo.HashAPIKey("secret-2"), CreatedAt: "2025-06-15T12:01:00Z"},
		{ID: "k3", ActorID: "someone-else", KeyHash: repo.HashAPIKey("secret-3"), CreatedAt: "2025-06-15T12:02:00Z"},
	}
	for _, key := range keys {
		if err := r.InsertAPIKey(ctx, nil, key); err != nil {
			t.Fatalf("insert %s: %v", key.ID, err)
		}
	}

	listed, err := r.ListAPIKeys(ctx, "dr-jones")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected dr-jones's 2 keys, got %d", len(listed))
	}

	if err := r.DeleteAPIKey(ctx, "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	listed, err = r.ListAPIKeys(ctx, "dr-jones")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "k2" {
		t.Fatalf("expected only k2 to remain, got %+v", listed)
	}
}
