package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"planboard/internal/apperr"
	"planboard/internal/config"
	"planboard/internal/db"
	"planboard/internal/domain"
	"planboard/internal/engine"
	"planboard/internal/logging"
	"planboard/internal/migrate"
	"planboard/internal/repo"
)

var fixedNow = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

type testEnv struct {
	Engine  engine.Engine
	Ctx     context.Context
	Admin   engine.Actor
	Owner   engine.Actor
	Lead    engine.Actor
	Dev     engine.Actor
	Member  engine.Actor
	Org     domain.Organization
	Team    domain.Team
	Project domain.Project
}

// newTestEnv builds an org whose team is led by Lead, with one project owned by Lead
// where Dev is a DEVELOPER. Member only belongs to the org.
func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default(), logging.Discard())
	eng.Now = func() time.Time { return fixedNow }
	env := testEnv{Engine: eng, Ctx: ctx}

	admin, err := eng.CreateUser(ctx, engine.Actor{}, engine.UserAttrs{Name: "Admin", Email: "admin@example.com"})
	if err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	if admin.Role != domain.RoleAdmin {
		t.Fatalf("bootstrap user role = %s, want ADMIN", admin.Role)
	}
	env.Admin = engine.Actor{ID: admin.ID, Role: admin.Role}
	mk := func(name string) engine.Actor {
		u, err := eng.CreateUser(ctx, env.Admin, engine.UserAttrs{Name: name, Email: name + "@example.com"})
		if err != nil {
			t.Fatalf("create user %s: %v", name, err)
		}
		return engine.Actor{ID: u.ID, Role: u.Role}
	}
	env.Owner, env.Lead, env.Dev, env.Member = mk("owner"), mk("lead"), mk("dev"), mk("member")

	env.Org, err = eng.CreateOrganization(ctx, env.Owner, engine.OrganizationAttrs{Name: "Acme", ContactEmail: "ops@acme.test"})
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	for _, a := range []engine.Actor{env.Lead, env.Dev, env.Member} {
		if _, err := eng.JoinOrganization(ctx, a, env.Org.JoinCode); err != nil {
			t.Fatalf("join org: %v", err)
		}
	}
	env.Team, err = eng.CreateTeam(ctx, env.Owner, env.Org.ID, engine.TeamAttrs{Name: "Platform"})
	if err != nil {
		t.Fatalf("create team: %v", err)
	}
	if _, err := eng.TransferLeadership(ctx, env.Owner, env.Team.ID, env.Lead.ID); err != nil {
		t.Fatalf("transfer leadership: %v", err)
	}
	env.Project, err = eng.CreateProject(ctx, env.Lead, env.Team.ID, engine.ProjectAttrs{Name: "Billing"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := eng.AddProjectMembers(ctx, env.Lead, env.Project.ID, engine.MembersAttrs{UserIDs: []string{env.Dev.ID}, Role: "DEVELOPER"}); err != nil {
		t.Fatalf("add project member: %v", err)
	}
	return env
}

func requireCode(t *testing.T, err error, code string, status int) *apperr.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	ae, ok := apperr.As(err)
	if !ok {
		t.Fatalf("expected *apperr.Error with code %s, got %T: %v", code, err, err)
	}
	if ae.Code != code || ae.Status != status {
		t.Fatalf("got code=%s status=%d (%v), want code=%s status=%d", ae.Code, ae.Status, ae, code, status)
	}
	return ae
}

func (env testEnv) sprint(t *testing.T, name string, start, end time.Time) domain.Sprint {
	t.Helper()
	s, err := env.Engine.CreateSprint(env.Ctx, env.Lead, env.Project.ID, engine.SprintAttrs{Name: name, StartDate: start, EndDate: end})
	if err != nil {
		t.Fatalf("create sprint %s: %v", name, err)
	}
	return s
}

func (env testEnv) task(t *testing.T, title string, mod func(*engine.TaskAttrs)) domain.Task {
	t.Helper()
	attrs := engine.TaskAttrs{Title: title, Priority: "MEDIUM", DueDate: day(20)}
	if mod != nil {
		mod(&attrs)
	}
	task, err := env.Engine.CreateTask(env.Ctx, env.Dev, env.Project.ID, attrs)
	if err != nil {
		t.Fatalf("create task %s: %v", title, err)
	}
	return task
}

func TestSprintOverlapIsRejected(t *testing.T) {
	env := newTestEnv(t)
	a := env.sprint(t, "A", day(0), day(14))

	_, err := env.Engine.CreateSprint(env.Ctx, env.Lead, env.Project.ID, engine.SprintAttrs{Name: "B", StartDate: day(7), EndDate: day(21)})
	ae := requireCode(t, err, apperr.CodeSprintOverlap, 400)
	overlap, ok := ae.Details["overlappingSprint"].(map[string]any)
	if !ok || overlap["id"] != a.ID {
		t.Fatalf("overlappingSprint = %#v, want id %s", ae.Details["overlappingSprint"], a.ID)
	}

	// windows are half open, so back to back sprints are fine
	env.sprint(t, "C", day(14), day(28))

	sprints, err := env.Engine.ListSprints(env.Ctx, env.Member, env.Project.ID)
	if err != nil {
		t.Fatalf("list sprints: %v", err)
	}
	for i := range sprints {
		for j := i + 1; j < len(sprints); j++ {
			if sprints[i].Overlaps(sprints[j].StartDate, sprints[j].EndDate) {
				t.Fatalf("sprints %s and %s overlap", sprints[i].Name, sprints[j].Name)
			}
		}
	}
	if len(sprints) != 2 || sprints[0].Order >= sprints[1].Order {
		t.Fatalf("expected 2 ordered sprints, got %+v", sprints)
	}
}

func TestSprintWindowAndDuplicateName(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateSprint(env.Ctx, env.Lead, env.Project.ID, engine.SprintAttrs{Name: "X", StartDate: day(5), EndDate: day(5)})
	requireCode(t, err, apperr.CodeInvalidWindow, 400)

	env.sprint(t, "X", day(0), day(7))
	_, err = env.Engine.CreateSprint(env.Ctx, env.Lead, env.Project.ID, engine.SprintAttrs{Name: "X", StartDate: day(30), EndDate: day(37)})
	requireCode(t, err, apperr.CodeDuplicateName, 409)
}

func TestWindowsCompareAtStoredPrecision(t *testing.T) {
	env := newTestEnv(t)
	start := day(40).Add(250 * time.Microsecond)
	_, err := env.Engine.CreateSprint(env.Ctx, env.Lead, env.Project.ID, engine.SprintAttrs{Name: "Blink", StartDate: start, EndDate: start.Add(500 * time.Microsecond)})
	requireCode(t, err, apperr.CodeInvalidWindow, 400)

	end := start.Add(500 * time.Microsecond)
	_, err = env.Engine.CreateProject(env.Ctx, env.Lead, env.Team.ID, engine.ProjectAttrs{Name: "Blink", StartDate: &start, EndDate: &end})
	requireCode(t, err, apperr.CodeInvalidWindow, 400)

	s := env.sprint(t, "Fine", day(40).Add(123456789), day(47).Add(987654321))
	got, err := env.Engine.GetSprint(env.Ctx, env.Lead, s.ID)
	if err != nil {
		t.Fatalf("get sprint: %v", err)
	}
	if !got.StartDate.Equal(s.StartDate) || !got.EndDate.Equal(s.EndDate) {
		t.Fatalf("stored window %s..%s, returned %s..%s", got.StartDate, got.EndDate, s.StartDate, s.EndDate)
	}
	if want := day(40).Add(123 * time.Millisecond); !s.StartDate.Equal(want) {
		t.Fatalf("start = %s, want %s", s.StartDate, want)
	}

	task := env.task(t, "due", func(a *engine.TaskAttrs) { a.DueDate = day(20).Add(1500 * time.Microsecond) })
	stored, err := env.Engine.Repo.GetTask(env.Ctx, env.Engine.DB, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.DueDate.Equal(task.DueDate) {
		t.Fatalf("stored due %s, returned %s", stored.DueDate, task.DueDate)
	}
}

func TestSprintUpdateExcludesOwnWindow(t *testing.T) {
	env := newTestEnv(t)
	a := env.sprint(t, "A", day(0), day(14))
	env.sprint(t, "B", day(14), day(28))

	end := day(10)
	if _, err := env.Engine.UpdateSprint(env.Ctx, env.Lead, a.ID, engine.SprintUpdate{EndDate: &end}); err != nil {
		t.Fatalf("shrink own window: %v", err)
	}
	end = day(20)
	_, err := env.Engine.UpdateSprint(env.Ctx, env.Lead, a.ID, engine.SprintUpdate{EndDate: &end})
	requireCode(t, err, apperr.CodeSprintOverlap, 400)
}

func TestSprintTransitions(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{"PLANNING", "ACTIVE", true},
		{"PLANNING", "COMPLETED", true},
		{"ACTIVE", "COMPLETED", true},
		{"ACTIVE", "PLANNING", false},
		{"COMPLETED", "ACTIVE", false},
		{"COMPLETED", "PLANNING", false},
	}
	for _, c := range cases {
		t.Run(c.from+"->"+c.to, func(t *testing.T) {
			env := newTestEnv(t)
			s, err := env.Engine.CreateSprint(env.Ctx, env.Lead, env.Project.ID, engine.SprintAttrs{
				Name: "S", StartDate: day(0), EndDate: day(14), Status: c.from,
			})
			if err != nil {
				t.Fatalf("create sprint: %v", err)
			}
			_, err = env.Engine.UpdateSprintStatus(env.Ctx, env.Lead, s.ID, c.to)
			if c.ok {
				if err != nil {
					t.Fatalf("transition: %v", err)
				}
				return
			}
			ae := requireCode(t, err, apperr.CodeInvalidTransition, 400)
			if !errors.Is(err, apperr.ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition")
			}
			allowed, _ := ae.Details["allowed"].([]string)
			want := engine.AllowedSprintTransitions(domain.SprintStatus(c.from))
			if len(allowed) != len(want) {
				t.Fatalf("allowed = %v, want %v", allowed, want)
			}
		})
	}
}

func TestSprintSameStatusIsNoop(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t, "S", day(0), day(14))
	if s.Status != domain.SprintActive {
		t.Fatalf("derived status = %s, want ACTIVE", s.Status)
	}
	before, err := env.Engine.ListActivity(env.Ctx, env.Owner, repo.ActivityFilters{OrgID: env.Org.ID, EntityID: s.ID})
	if err != nil {
		t.Fatal(err)
	}
	got, err := env.Engine.UpdateSprintStatus(env.Ctx, env.Lead, s.ID, "ACTIVE")
	if err != nil || got.Status != domain.SprintActive {
		t.Fatalf("same status: %v", err)
	}
	after, err := env.Engine.ListActivity(env.Ctx, env.Owner, repo.ActivityFilters{OrgID: env.Org.ID, EntityID: s.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(before) {
		t.Fatalf("no-op transition wrote activity: %d -> %d entries", len(before), len(after))
	}
}

func TestSprintCompletionNeedsFinishedTasks(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t, "S", day(0), day(14))
	var tasks []domain.Task
	for _, title := range []string{"a", "b", "c"} {
		tasks = append(tasks, env.task(t, title, func(a *engine.TaskAttrs) { a.SprintID = s.ID }))
	}

	_, err := env.Engine.UpdateSprintStatus(env.Ctx, env.Lead, s.ID, "COMPLETED")
	ae := requireCode(t, err, apperr.CodeIncompleteTasks, 400)
	if ae.Details["incompleteTasks"] != 3 {
		t.Fatalf("incompleteTasks = %v, want 3", ae.Details["incompleteTasks"])
	}

	_, err = env.Engine.DeleteSprint(env.Ctx, env.Lead, s.ID)
	requireCode(t, err, apperr.CodeUnfinishedTasks, 400)

	for i, task := range tasks {
		status := "DONE"
		if i == 2 {
			status = "CANCELED"
		}
		if _, err := env.Engine.UpdateTaskStatus(env.Ctx, env.Dev, task.ID, status); err != nil {
			t.Fatalf("finish task: %v", err)
		}
	}
	done, err := env.Engine.UpdateSprintStatus(env.Ctx, env.Lead, s.ID, "COMPLETED")
	if err != nil || done.Status != domain.SprintCompleted {
		t.Fatalf("complete sprint: %v", err)
	}
}

func TestSprintCannotStartEarly(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t, "Later", day(31), day(45))
	if s.Status != domain.SprintPlanning {
		t.Fatalf("derived status = %s, want PLANNING", s.Status)
	}
	_, err := env.Engine.UpdateSprintStatus(env.Ctx, env.Lead, s.ID, "ACTIVE")
	requireCode(t, err, apperr.CodeSprintNotStarted, 400)
}

func TestSprintRestoreRechecksOverlap(t *testing.T) {
	env := newTestEnv(t)
	a := env.sprint(t, "A", day(31), day(45))
	if _, err := env.Engine.DeleteSprint(env.Ctx, env.Lead, a.ID); err != nil {
		t.Fatalf("delete sprint: %v", err)
	}
	if _, err := env.Engine.GetSprint(env.Ctx, env.Lead, a.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("deleted sprint lookup: %v", err)
	}
	env.sprint(t, "B", day(40), day(50))
	_, err := env.Engine.RestoreSprint(env.Ctx, env.Lead, a.ID)
	requireCode(t, err, apperr.CodeSprintOverlap, 400)
}

func TestTaskCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateTask(env.Ctx, env.Dev, env.Project.ID, engine.TaskAttrs{Priority: "LOW", DueDate: day(3)})
	ae := requireCode(t, err, apperr.CodeInvalidField, 400)
	if ae.Field != "title" {
		t.Fatalf("field = %s, want title", ae.Field)
	}

	_, err = env.Engine.CreateTask(env.Ctx, env.Dev, env.Project.ID, engine.TaskAttrs{Title: "x", Priority: "SOMEDAY", DueDate: day(3)})
	ae = requireCode(t, err, apperr.CodeInvalidField, 400)
	if ae.Field != "priority" || ae.Details["allowed"] == nil {
		t.Fatalf("expected priority enum error, got %+v", ae)
	}

	_, err = env.Engine.CreateTask(env.Ctx, env.Dev, env.Project.ID, engine.TaskAttrs{Title: "x", Priority: "LOW"})
	ae = requireCode(t, err, apperr.CodeInvalidField, 400)
	if ae.Field != "dueDate" {
		t.Fatalf("field = %s, want dueDate", ae.Field)
	}
}

func TestTaskReferencesStayInProject(t *testing.T) {
	env := newTestEnv(t)
	other, err := env.Engine.CreateProject(env.Ctx, env.Lead, env.Team.ID, engine.ProjectAttrs{Name: "Other"})
	if err != nil {
		t.Fatal(err)
	}
	foreignSprint, err := env.Engine.CreateSprint(env.Ctx, env.Lead, other.ID, engine.SprintAttrs{Name: "F", StartDate: day(0), EndDate: day(7)})
	if err != nil {
		t.Fatal(err)
	}
	foreignTask, err := env.Engine.CreateTask(env.Ctx, env.Lead, other.ID, engine.TaskAttrs{Title: "f", Priority: "LOW", DueDate: day(4)})
	if err != nil {
		t.Fatal(err)
	}

	_, err = env.Engine.CreateTask(env.Ctx, env.Dev, env.Project.ID, engine.TaskAttrs{Title: "x", Priority: "LOW", DueDate: day(3), SprintID: foreignSprint.ID})
	requireCode(t, err, apperr.CodeSprintNotFound, 404)
	_, err = env.Engine.CreateTask(env.Ctx, env.Dev, env.Project.ID, engine.TaskAttrs{Title: "x", Priority: "LOW", DueDate: day(3), ParentID: foreignTask.ID})
	requireCode(t, err, apperr.CodeParentNotFound, 404)
	// member of the org but not of the project, and a user that does not exist
	for _, who := range []string{env.Member.ID, "nobody"} {
		_, err = env.Engine.CreateTask(env.Ctx, env.Dev, env.Project.ID, engine.TaskAttrs{Title: "x", Priority: "LOW", DueDate: day(3), AssignedTo: who})
		requireCode(t, err, apperr.CodeAssignedUserMissing, 404)
	}

	task := env.task(t, "ok", func(a *engine.TaskAttrs) {
		a.AssignedTo = env.Dev.ID
		a.Labels = []string{"api", "api", " backend "}
	})
	if len(task.Labels) != 2 || task.Labels[0] != "api" || task.Labels[1] != "backend" {
		t.Fatalf("labels = %v", task.Labels)
	}
	found, err := env.Engine.ListTasks(env.Ctx, env.Member, repo.TaskFilters{ProjectID: env.Project.ID, Label: "backend"})
	if err != nil || len(found) != 1 || found[0].ID != task.ID {
		t.Fatalf("filter by label: %v %+v", err, found)
	}
}

func TestTaskHierarchyRejectsSelfParentAndCycles(t *testing.T) {
	env := newTestEnv(t)
	t1 := env.task(t, "t1", nil)
	self := t1.ID
	_, err := env.Engine.UpdateTask(env.Ctx, env.Dev, t1.ID, engine.TaskUpdate{ParentID: &self})
	ae := requireCode(t, err, apperr.CodeSelfParent, 400)
	if ae.Message != "task cannot be its own parent" {
		t.Fatalf("message = %q", ae.Message)
	}

	t2 := env.task(t, "t2", func(a *engine.TaskAttrs) { a.ParentID = t1.ID })
	t3 := env.task(t, "t3", func(a *engine.TaskAttrs) { a.ParentID = t2.ID })
	parent := t3.ID
	_, err = env.Engine.UpdateTask(env.Ctx, env.Dev, t1.ID, engine.TaskUpdate{ParentID: &parent})
	requireCode(t, err, apperr.CodeCyclicHierarchy, 400)

	// walking parent pointers from any task must terminate without revisiting
	for _, start := range []string{t1.ID, t2.ID, t3.ID} {
		seen := map[string]bool{}
		cur := start
		for cur != "" {
			if seen[cur] {
				t.Fatalf("cycle through %s", cur)
			}
			seen[cur] = true
			task, err := env.Engine.GetTask(env.Ctx, env.Dev, cur)
			if err != nil {
				t.Fatal(err)
			}
			cur = ""
			if task.ParentID != nil {
				cur = *task.ParentID
			}
		}
	}

	clear := ""
	moved, err := env.Engine.UpdateTask(env.Ctx, env.Dev, t3.ID, engine.TaskUpdate{ParentID: &clear})
	if err != nil || moved.ParentID != nil {
		t.Fatalf("clear parent: %v %+v", err, moved.ParentID)
	}
}

func TestTaskStatusAndPriorityEnums(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, "t", nil)
	_, err := env.Engine.UpdateTaskStatus(env.Ctx, env.Dev, task.ID, "NOT_A_STATUS")
	ae := requireCode(t, err, apperr.CodeInvalidField, 400)
	if ae.Field != "status" {
		t.Fatalf("field = %s", ae.Field)
	}
	_, err = env.Engine.UpdateTaskPriority(env.Ctx, env.Dev, task.ID, "NOW")
	requireCode(t, err, apperr.CodeInvalidField, 400)

	got, err := env.Engine.UpdateTaskPriority(env.Ctx, env.Dev, task.ID, "URGENT")
	if err != nil || got.Priority != domain.PriorityUrgent {
		t.Fatalf("priority: %v", err)
	}
	_, err = env.Engine.UpdateTaskStatus(env.Ctx, env.Member, task.ID, "DONE")
	requireCode(t, err, apperr.CodeForbidden, 403)
}

func TestTaskDeleteAndRestoreSubtree(t *testing.T) {
	env := newTestEnv(t)
	root := env.task(t, "root", nil)
	child := env.task(t, "child", func(a *engine.TaskAttrs) { a.ParentID = root.ID })
	grandchild := env.task(t, "grandchild", func(a *engine.TaskAttrs) { a.ParentID = child.ID })

	res, err := env.Engine.DeleteTask(env.Ctx, env.Lead, root.ID, false)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res.Subtasks != 2 || res.Task.DeletedAt == nil {
		t.Fatalf("delete result = %+v", res)
	}
	_, err = env.Engine.DeleteTask(env.Ctx, env.Lead, root.ID, false)
	requireCode(t, err, apperr.CodeAlreadyDeleted, 400)

	_, err = env.Engine.RestoreTask(env.Ctx, env.Lead, child.ID, false)
	requireCode(t, err, apperr.CodeParentNotFound, 404)

	restored, err := env.Engine.RestoreTask(env.Ctx, env.Lead, root.ID, true)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Subtasks != 2 || restored.Task.DeletedAt != nil {
		t.Fatalf("restore result = %+v", restored)
	}
	for _, id := range []string{root.ID, child.ID, grandchild.ID} {
		if _, err := env.Engine.GetTask(env.Ctx, env.Dev, id); err != nil {
			t.Fatalf("task %s not active after restore: %v", id, err)
		}
	}
	_, err = env.Engine.RestoreTask(env.Ctx, env.Lead, root.ID, false)
	requireCode(t, err, apperr.CodeNotDeleted, 400)
}

func TestPermanentTaskDeleteIsAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	root := env.task(t, "root", nil)
	env.task(t, "child", func(a *engine.TaskAttrs) { a.ParentID = root.ID })

	_, err := env.Engine.DeleteTask(env.Ctx, env.Lead, root.ID, true)
	requireCode(t, err, apperr.CodeForbidden, 403)

	res, err := env.Engine.DeleteTask(env.Ctx, env.Admin, root.ID, true)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if !res.Permanent || res.Subtasks != 1 {
		t.Fatalf("purge result = %+v", res)
	}
	if _, err := env.Engine.RestoreTask(env.Ctx, env.Admin, root.ID, true); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("purged task restore: %v", err)
	}
}

func TestTeamDeleteCascadesOneLevel(t *testing.T) {
	env := newTestEnv(t)
	second, err := env.Engine.CreateProject(env.Ctx, env.Lead, env.Team.ID, engine.ProjectAttrs{Name: "Search"})
	if err != nil {
		t.Fatal(err)
	}
	s := env.sprint(t, "S", day(0), day(7))

	res, err := env.Engine.DeleteTeam(env.Ctx, env.Owner, env.Team.ID)
	if err != nil {
		t.Fatalf("delete team: %v", err)
	}
	if res.DeletedProjectsCount != 2 {
		t.Fatalf("deletedProjectsCount = %d, want 2", res.DeletedProjectsCount)
	}
	for _, id := range []string{env.Project.ID, second.ID} {
		p, err := env.Engine.Repo.GetProject(env.Ctx, env.Engine.DB, id)
		if err != nil || p.DeletedAt == nil {
			t.Fatalf("project %s not soft-deleted: %v", id, err)
		}
	}
	// sprints are below the cascade
	sp, err := env.Engine.Repo.GetSprint(env.Ctx, env.Engine.DB, s.ID)
	if err != nil || sp.DeletedAt != nil {
		t.Fatalf("sprint touched by team cascade: %v", err)
	}

	if _, err := env.Engine.RestoreTeam(env.Ctx, env.Owner, env.Team.ID); err != nil {
		t.Fatalf("restore team: %v", err)
	}
	projects, err := env.Engine.ListProjects(env.Ctx, env.Member, repo.ProjectFilters{TeamID: env.Team.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 0 {
		t.Fatalf("team restore revived %d projects", len(projects))
	}
	if _, err := env.Engine.RestoreProject(env.Ctx, env.Lead, env.Project.ID); err != nil {
		t.Fatalf("restore project: %v", err)
	}
}

func TestTeamDeleteRollsBackWhenActivityFails(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.DB.ExecContext(env.Ctx, "DROP TABLE activity_logs"); err != nil {
		t.Fatalf("drop activity_logs: %v", err)
	}

	_, err := env.Engine.DeleteTeam(env.Ctx, env.Owner, env.Team.ID)
	if err == nil {
		t.Fatal("delete team succeeded without an activity log")
	}
	if status := apperr.HTTPStatus(err); status < 500 {
		t.Fatalf("status = %d (%v), want 5xx", status, err)
	}

	team, err := env.Engine.Repo.GetTeam(env.Ctx, env.Engine.DB, env.Team.ID)
	if err != nil || team.DeletedAt != nil {
		t.Fatalf("team not left active: %v %+v", err, team.DeletedAt)
	}
	p, err := env.Engine.Repo.GetProject(env.Ctx, env.Engine.DB, env.Project.ID)
	if err != nil || p.DeletedAt != nil {
		t.Fatalf("project not left active: %v %+v", err, p.DeletedAt)
	}
}

func TestRemovingOnlyLeaderIsRejected(t *testing.T) {
	env := newTestEnv(t)
	err := env.Engine.RemoveTeamMember(env.Ctx, env.Owner, env.Team.ID, env.Lead.ID)
	requireCode(t, err, apperr.CodeLastElevatedMember, 400)

	members, err := env.Engine.ListTeamMembers(env.Ctx, env.Member, env.Team.ID)
	if err != nil {
		t.Fatal(err)
	}
	leaders := 0
	for _, m := range members {
		if m.Role == string(domain.TeamLeader) {
			leaders++
			if m.UserID != env.Lead.ID {
				t.Fatalf("leader changed to %s", m.UserID)
			}
		}
	}
	if leaders != 1 {
		t.Fatalf("leaders = %d, want 1", leaders)
	}

	err = env.Engine.RemoveProjectMember(env.Ctx, env.Lead, env.Project.ID, env.Lead.ID)
	requireCode(t, err, apperr.CodeLastElevatedMember, 400)
	_, err = env.Engine.UpdateProjectMemberRole(env.Ctx, env.Lead, env.Project.ID, env.Lead.ID, "DEVELOPER")
	requireCode(t, err, apperr.CodeLastElevatedMember, 400)
}

func TestAddMembersReportsBatch(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.AddTeamMembers(env.Ctx, env.Lead, env.Team.ID, engine.MembersAttrs{
		UserIDs: []string{env.Dev.ID, env.Lead.ID, "ghost", env.Dev.ID},
	})
	if err != nil {
		t.Fatalf("add members: %v", err)
	}
	if res.AddedCount != 1 || res.SkippedCount != 1 || len(res.Invalid) != 1 || res.Invalid[0] != "ghost" {
		t.Fatalf("result = %+v", res)
	}

	_, err = env.Engine.AddTeamMembers(env.Ctx, env.Lead, env.Team.ID, engine.MembersAttrs{UserIDs: []string{"ghost", "phantom"}})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("all-invalid batch: %v", err)
	}

	// removed members come back through the same row
	if err := env.Engine.RemoveTeamMember(env.Ctx, env.Lead, env.Team.ID, env.Dev.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	res, err = env.Engine.AddTeamMembers(env.Ctx, env.Lead, env.Team.ID, engine.MembersAttrs{UserIDs: []string{env.Dev.ID}})
	if err != nil || res.AddedCount != 1 {
		t.Fatalf("re-add: %v %+v", err, res)
	}
}

func TestAddTeamMembersRejectsLeaderRole(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.AddTeamMembers(env.Ctx, env.Lead, env.Team.ID, engine.MembersAttrs{UserIDs: []string{env.Dev.ID}, Role: "LEADER"})
	ae := requireCode(t, err, apperr.CodeInvalidField, 400)
	if ae.Field != "role" {
		t.Fatalf("field = %q, want role", ae.Field)
	}
	members, err := env.Engine.ListTeamMembers(env.Ctx, env.Lead, env.Team.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range members {
		if m.UserID == env.Dev.ID {
			t.Fatalf("rejected batch still added %s as %s", m.UserID, m.Role)
		}
	}

	res, err := env.Engine.AddTeamMembers(env.Ctx, env.Lead, env.Team.ID, engine.MembersAttrs{UserIDs: []string{env.Dev.ID}, Role: "MEMBER"})
	if err != nil || res.AddedCount != 1 {
		t.Fatalf("explicit MEMBER role: %v %+v", err, res)
	}
}

func TestNamesAreUniqueAmongActiveOnly(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateTeam(env.Ctx, env.Owner, env.Org.ID, engine.TeamAttrs{Name: "Platform"})
	requireCode(t, err, apperr.CodeDuplicateName, 409)

	if _, err := env.Engine.DeleteTeam(env.Ctx, env.Owner, env.Team.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateTeam(env.Ctx, env.Owner, env.Org.ID, engine.TeamAttrs{Name: "Platform"}); err != nil {
		t.Fatalf("reuse deleted name: %v", err)
	}
	_, err = env.Engine.RestoreTeam(env.Ctx, env.Owner, env.Team.ID)
	requireCode(t, err, apperr.CodeDuplicateName, 409)
	_, err = env.Engine.DeleteTeam(env.Ctx, env.Owner, env.Team.ID)
	requireCode(t, err, apperr.CodeAlreadyDeleted, 400)
}

func TestAuthorizationByRelationship(t *testing.T) {
	env := newTestEnv(t)
	name := "Renamed"

	_, err := env.Engine.UpdateTeam(env.Ctx, env.Member, env.Team.ID, engine.TeamUpdate{Name: &name})
	ae := requireCode(t, err, apperr.CodeForbidden, 403)
	if ae.Message != "team.update requires platform admin, organization owner or team leader" {
		t.Fatalf("reason = %q", ae.Message)
	}
	if _, err := env.Engine.GetTeam(env.Ctx, env.Member, env.Team.ID); err != nil {
		t.Fatalf("member read: %v", err)
	}
	if _, err := env.Engine.UpdateTeam(env.Ctx, env.Lead, env.Team.ID, engine.TeamUpdate{Name: &name}); err != nil {
		t.Fatalf("leader update: %v", err)
	}
	// a team leader may act on the team's projects
	if _, err := env.Engine.CreateSprint(env.Ctx, env.Lead, env.Project.ID, engine.SprintAttrs{Name: "S", StartDate: day(0), EndDate: day(7)}); err != nil {
		t.Fatalf("leader sprint: %v", err)
	}
	// contributors cannot schedule
	_, err = env.Engine.CreateSprint(env.Ctx, env.Dev, env.Project.ID, engine.SprintAttrs{Name: "T", StartDate: day(8), EndDate: day(9)})
	requireCode(t, err, apperr.CodeForbidden, 403)

	dept, err := env.Engine.CreateDepartment(env.Ctx, env.Owner, env.Org.ID, engine.DepartmentAttrs{Name: "Eng", ManagerID: env.Member.ID})
	if err != nil {
		t.Fatalf("create department: %v", err)
	}
	deptID := dept.ID
	if _, err := env.Engine.UpdateTeam(env.Ctx, env.Owner, env.Team.ID, engine.TeamUpdate{DepartmentID: &deptID}); err != nil {
		t.Fatalf("attach department: %v", err)
	}
	// the department manager now qualifies for the team
	if _, err := env.Engine.UpdateTeam(env.Ctx, env.Member, env.Team.ID, engine.TeamUpdate{Name: &name}); err != nil {
		t.Fatalf("manager update: %v", err)
	}

	outsider, err := env.Engine.CreateUser(env.Ctx, env.Admin, engine.UserAttrs{Name: "out", Email: "out@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.GetProject(env.Ctx, engine.Actor{ID: outsider.ID, Role: outsider.Role}, env.Project.ID)
	requireCode(t, err, apperr.CodeForbidden, 403)
	if _, err := env.Engine.GetProject(env.Ctx, env.Admin, env.Project.ID); err != nil {
		t.Fatalf("admin read: %v", err)
	}
}

func TestOrganizationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateOrganization(env.Ctx, env.Member, engine.OrganizationAttrs{Name: "Acme", ContactEmail: "x@acme.test"})
	requireCode(t, err, apperr.CodeDuplicateName, 409)

	_, err = env.Engine.JoinOrganization(env.Ctx, env.Dev, env.Org.JoinCode)
	requireCode(t, err, apperr.CodeAlreadyMember, 400)

	_, err = env.Engine.VerifyOrganization(env.Ctx, env.Owner, env.Org.ID, true)
	requireCode(t, err, apperr.CodeForbidden, 403)
	org, err := env.Engine.VerifyOrganization(env.Ctx, env.Admin, env.Org.ID, true)
	if err != nil || !org.Verified {
		t.Fatalf("verify: %v", err)
	}

	err = env.Engine.RemoveOrgMember(env.Ctx, env.Owner, env.Org.ID, env.Owner.ID)
	requireCode(t, err, apperr.CodeLastElevatedMember, 400)
	if _, err := env.Engine.AddOwner(env.Ctx, env.Owner, env.Org.ID, env.Lead.ID); err != nil {
		t.Fatalf("add owner: %v", err)
	}
	if err := env.Engine.RemoveOrgMember(env.Ctx, env.Owner, env.Org.ID, env.Owner.ID); err != nil {
		t.Fatalf("owner leaves: %v", err)
	}

	if _, err := env.Engine.DeleteOrganization(env.Ctx, env.Lead, env.Org.ID); err != nil {
		t.Fatalf("delete org: %v", err)
	}
	orgs, err := env.Engine.ListOrganizations(env.Ctx, env.Lead)
	if err != nil || len(orgs) != 0 {
		t.Fatalf("deleted org still listed: %v %d", err, len(orgs))
	}
	// org delete does not cascade
	if _, err := env.Engine.Repo.GetTeam(env.Ctx, env.Engine.DB, env.Team.ID); err != nil {
		t.Fatal(err)
	}
	restored, err := env.Engine.RestoreOrganization(env.Ctx, env.Lead, env.Org.ID)
	if err != nil || restored.DeletedAt != nil {
		t.Fatalf("restore org: %v", err)
	}
	_, err = env.Engine.RestoreOrganization(env.Ctx, env.Lead, env.Org.ID)
	requireCode(t, err, apperr.CodeNotDeleted, 400)
}

func TestActivityIsRecordedPerMutation(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, "logged", nil)
	logs, err := env.Engine.ListActivity(env.Ctx, env.Member, repo.ActivityFilters{OrgID: env.Org.ID, EntityType: "task", EntityID: task.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].Action != "task.created" || logs[0].ActorID != env.Dev.ID {
		t.Fatalf("activity = %+v", logs)
	}

	// a rejected mutation leaves no trace
	_, _ = env.Engine.UpdateTaskStatus(env.Ctx, env.Member, task.ID, "DONE")
	logs, err = env.Engine.ListActivity(env.Ctx, env.Member, repo.ActivityFilters{OrgID: env.Org.ID, EntityID: task.ID})
	if err != nil || len(logs) != 1 {
		t.Fatalf("activity after denial: %v %d", err, len(logs))
	}
}
