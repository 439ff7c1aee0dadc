package activity

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"planboard/internal/db"
	"planboard/internal/migrate"
	"planboard/internal/repo"
)

func TestAppendIsPartOfTransaction(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	w := Writer{Now: func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }}
	r := repo.Repo{DB: conn}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append(ctx, tx, Entry{ActorID: "u1", Action: "team.create", EntityType: "team", EntityID: "t1", OrgID: "o1", Description: "created team"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}
	items, err := r.ListActivity(ctx, conn, repo.ActivityFilters{OrgID: "o1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Fatalf("rolled back entry should not persist, got %d", len(items))
	}

	if err := r.WithTx(ctx, func(tx *sql.Tx) error {
		return w.Append(ctx, tx, Entry{ActorID: "u1", Action: "team.create", EntityType: "team", EntityID: "t1", OrgID: "o1", Description: "created team"})
	}); err != nil {
		t.Fatalf("append committed: %v", err)
	}
	items, err = r.ListActivity(ctx, conn, repo.ActivityFilters{OrgID: "o1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Action != "team.create" || !items[0].CreatedAt.Equal(w.Now()) {
		t.Fatalf("unexpected activity %+v", items)
	}
}

func TestAppendRejectsIncompleteEntry(t *testing.T) {
	w := Writer{}
	if err := w.Append(context.Background(), nil, Entry{Action: "x"}); err == nil {
		t.Fatalf("expected error for entry without actor")
	}
}
