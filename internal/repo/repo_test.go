package repo_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"planboard/internal/db"
	"planboard/internal/domain"
	"planboard/internal/migrate"
	"planboard/internal/repo"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time { return base.AddDate(0, 0, n) }

func setupDB(t *testing.T) (*sql.DB, repo.Repo) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn, repo.Repo{DB: conn}
}

// seedProject inserts a user, org, team and project with id "p1".
func seedProject(t *testing.T, conn *sql.DB, r repo.Repo) {
	t.Helper()
	ctx := context.Background()
	steps := []error{
		r.InsertUser(ctx, conn, domain.User{ID: "u1", Name: "Ada", Email: "ada@example.com", Role: domain.RoleAdmin, CreatedAt: base, UpdatedAt: base}),
		r.InsertOrganization(ctx, conn, domain.Organization{ID: "o1", Name: "Acme", JoinCode: "ABCDEF012345", CreatedBy: "u1", CreatedAt: base, UpdatedAt: base}),
		r.InsertTeam(ctx, conn, domain.Team{ID: "t1", OrgID: "o1", Name: "Platform", CreatedBy: "u1", CreatedAt: base, UpdatedAt: base}),
		r.InsertProject(ctx, conn, domain.Project{ID: "p1", OrgID: "o1", TeamID: "t1", Name: "Billing", Status: domain.ProjectPlanning, Priority: domain.PriorityMedium, CreatedBy: "u1", CreatedAt: base, UpdatedAt: base}),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("seed step %d: %v", i, err)
		}
	}
}

func insertSprint(t *testing.T, conn *sql.DB, r repo.Repo, id, name string, start, end time.Time) {
	t.Helper()
	err := r.InsertSprint(context.Background(), conn, domain.Sprint{
		ID: id, ProjectID: "p1", Name: name, Status: domain.SprintPlanning,
		StartDate: start, EndDate: end, Order: 1, CreatedBy: "u1", CreatedAt: base, UpdatedAt: base,
	})
	if err != nil {
		t.Fatalf("insert sprint %s: %v", id, err)
	}
}

func TestOverlappingSprintUsesHalfOpenWindows(t *testing.T) {
	conn, r := setupDB(t)
	seedProject(t, conn, r)
	ctx := context.Background()
	insertSprint(t, conn, r, "s1", "Sprint 1", day(1), day(8))

	if _, err := r.OverlappingSprint(ctx, conn, "p1", day(8), day(15), ""); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("adjacent window should not overlap, got %v", err)
	}
	got, err := r.OverlappingSprint(ctx, conn, "p1", day(7), day(9), "")
	if err != nil {
		t.Fatalf("overlap lookup: %v", err)
	}
	if got.ID != "s1" {
		t.Fatalf("expected s1, got %s", got.ID)
	}
	if _, err := r.OverlappingSprint(ctx, conn, "p1", day(2), day(3), "s1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("excluded sprint should be ignored, got %v", err)
	}

	if err := r.SoftDeleteSprint(ctx, conn, "s1", day(2)); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := r.OverlappingSprint(ctx, conn, "p1", day(2), day(3), ""); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("deleted sprint should not block, got %v", err)
	}
}

func TestNamesAreCheckedAgainstActiveRowsOnly(t *testing.T) {
	conn, r := setupDB(t)
	seedProject(t, conn, r)
	ctx := context.Background()
	insertSprint(t, conn, r, "s1", "Sprint 1", day(1), day(8))

	id, err := r.SprintNameTaken(ctx, conn, "p1", "Sprint 1", "")
	if err != nil || id != "s1" {
		t.Fatalf("expected s1 to hold the name, got %q %v", id, err)
	}
	if id, _ := r.SprintNameTaken(ctx, conn, "p1", "Sprint 1", "s1"); id != "" {
		t.Fatalf("a sprint does not conflict with itself, got %q", id)
	}
	if err := r.SoftDeleteSprint(ctx, conn, "s1", day(2)); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if id, _ := r.SprintNameTaken(ctx, conn, "p1", "Sprint 1", ""); id != "" {
		t.Fatalf("deleted sprint should free its name, got %q", id)
	}
	if err := r.SoftDeleteSprint(ctx, conn, "s1", day(3)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second soft delete should report not found, got %v", err)
	}
	if next, err := r.NextSprintOrder(ctx, conn, "p1"); err != nil || next != 2 {
		t.Fatalf("next order counts deleted sprints, got %d %v", next, err)
	}
}

func TestListTasksMatchesWholeLabels(t *testing.T) {
	conn, r := setupDB(t)
	seedProject(t, conn, r)
	ctx := context.Background()
	for _, tc := range []struct {
		id     string
		labels []string
	}{
		{"k1", []string{"backend", "api"}},
		{"k2", []string{"backend-ops"}},
		{"k3", nil},
	} {
		err := r.InsertTask(ctx, conn, domain.Task{
			ID: tc.id, ProjectID: "p1", Title: tc.id, Status: domain.TaskTodo, Priority: domain.PriorityLow,
			DueDate: day(10), Labels: tc.labels, CreatedBy: "u1", CreatedAt: base, UpdatedAt: base,
		})
		if err != nil {
			t.Fatalf("insert %s: %v", tc.id, err)
		}
	}
	tasks, err := r.ListTasks(ctx, conn, repo.TaskFilters{ProjectID: "p1", Label: "backend"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "k1" {
		t.Fatalf("expected only k1, got %+v", tasks)
	}
	all, err := r.ListTasks(ctx, conn, repo.TaskFilters{ProjectID: "p1"})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(all))
	}
}

func TestListActivityPagesNewestFirst(t *testing.T) {
	conn, r := setupDB(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		org := "o1"
		if i == 4 {
			org = "o2"
		}
		if _, err := conn.ExecContext(ctx, `INSERT INTO activity_logs(actor_id,action,entity_type,entity_id,organization_id,description,created_at) VALUES (?,?,?,?,?,?,?)`,
			"u1", "task.create", "task", "k1", org, "created", repo.FormatTime(day(i))); err != nil {
			t.Fatalf("insert activity: %v", err)
		}
	}
	page, err := r.ListActivity(ctx, conn, repo.ActivityFilters{OrgID: "o1", Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].ID != 4 || page[1].ID != 3 {
		t.Fatalf("unexpected first page: %+v", page)
	}
	next, err := r.ListActivity(ctx, conn, repo.ActivityFilters{OrgID: "o1", BeforeID: page[1].ID, Limit: 2})
	if err != nil {
		t.Fatalf("list next: %v", err)
	}
	if len(next) != 2 || next[0].ID != 2 || next[1].ID != 1 {
		t.Fatalf("unexpected second page: %+v", next)
	}
	if !next[0].CreatedAt.Equal(day(1)) {
		t.Fatalf("created_at round trip: %v", next[0].CreatedAt)
	}
}
