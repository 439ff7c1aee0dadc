package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"planboard/internal/config"
	"planboard/internal/db"
	"planboard/internal/domain"
	"planboard/internal/engine"
	"planboard/internal/logging"
	"planboard/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default(), logging.Discard())
	e.Now = func() time.Time { return time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC) }
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret, Issuer: "planboard"},
		Logger:   logging.Discard(),
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func bearer(t *testing.T, userID string) map[string]string {
	t.Helper()
	token, err := IssueToken(testSecret, "planboard", userID, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error
}

func mustDecode(t *testing.T, data []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal: %v (%s)", err, string(data))
	}
}

type fixture struct {
	srv     *testServer
	admin   map[string]string
	adminID string
	team    domain.Team
	project domain.Project
}

// newFixture bootstraps an admin who owns an org, leads a team and owns a project.
func newFixture(t *testing.T) fixture {
	t.Helper()
	srv, cleanup := newTestServer(t)
	t.Cleanup(cleanup)
	c := srv.Client()

	res, data := doJSON(t, c, http.MethodPost, srv.URL+"/v1/users", map[string]any{"name": "Admin", "email": "admin@example.com"}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("bootstrap user: %d %s", res.StatusCode, string(data))
	}
	var admin domain.User
	mustDecode(t, data, &admin)
	if admin.Role != domain.RoleAdmin {
		t.Fatalf("bootstrap role = %s", admin.Role)
	}
	f := fixture{srv: srv, admin: bearer(t, admin.ID), adminID: admin.ID}

	res, data = doJSON(t, c, http.MethodPost, srv.URL+"/v1/organizations", map[string]any{"name": "Acme", "contactEmail": "ops@acme.test"}, f.admin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create org: %d %s", res.StatusCode, string(data))
	}
	var org domain.Organization
	mustDecode(t, data, &org)

	res, data = doJSON(t, c, http.MethodPost, srv.URL+"/v1/organizations/"+org.ID+"/teams", map[string]any{"name": "Platform"}, f.admin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create team: %d %s", res.StatusCode, string(data))
	}
	mustDecode(t, data, &f.team)

	res, data = doJSON(t, c, http.MethodPost, srv.URL+"/v1/teams/"+f.team.ID+"/projects", map[string]any{"name": "Billing"}, f.admin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, string(data))
	}
	mustDecode(t, data, &f.project)
	return f
}

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestHealthAndAuthentication(t *testing.T) {
	f := newFixture(t)
	c := f.srv.Client()

	res, data := doJSON(t, c, http.MethodGet, f.srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, c, http.MethodGet, f.srv.URL+"/v1/users/me", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous me: %d %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, c, http.MethodGet, f.srv.URL+"/v1/users/me", nil, map[string]string{"Authorization": "Bearer not-a-jwt"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", res.StatusCode)
	}
	res, data = doJSON(t, c, http.MethodGet, f.srv.URL+"/v1/users/me", nil, f.admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}

	// registration is closed once a user exists
	res, data = doJSON(t, c, http.MethodPost, f.srv.URL+"/v1/users", map[string]any{"name": "Eve", "email": "eve@example.com"}, nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("anonymous registration: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, c, http.MethodPost, f.srv.URL+"/v1/users", map[string]any{"name": "Eve", "email": "eve@example.com"}, f.admin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("admin creates user: %d %s", res.StatusCode, string(data))
	}
}

func TestSprintOverlapReturnsConflictingSprint(t *testing.T) {
	f := newFixture(t)
	c := f.srv.Client()
	url := f.srv.URL + "/v1/projects/" + f.project.ID + "/sprints"

	res, data := doJSON(t, c, http.MethodPost, url, map[string]any{"name": "Sprint 1", "startDate": day(0), "endDate": day(14)}, f.admin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create sprint 1: %d %s", res.StatusCode, string(data))
	}
	var first domain.Sprint
	mustDecode(t, data, &first)

	res, data = doJSON(t, c, http.MethodPost, url, map[string]any{"name": "Sprint 2", "startDate": day(7), "endDate": day(21)}, f.admin)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 overlap, got %d %s", res.StatusCode, string(data))
	}
	body := decodeError(t, data)
	if body.Code != "sprint_overlap" {
		t.Fatalf("code = %s", body.Code)
	}
	overlap, _ := body.Details["overlappingSprint"].(map[string]any)
	if overlap["id"] != first.ID {
		t.Fatalf("overlappingSprint = %v, want id %s", body.Details["overlappingSprint"], first.ID)
	}
}

func TestSprintCompletionReportsIncompleteTasks(t *testing.T) {
	f := newFixture(t)
	c := f.srv.Client()

	res, data := doJSON(t, c, http.MethodPost, f.srv.URL+"/v1/projects/"+f.project.ID+"/sprints",
		map[string]any{"name": "Sprint 1", "startDate": day(0), "endDate": day(14)}, f.admin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create sprint: %d %s", res.StatusCode, string(data))
	}
	var sprint domain.Sprint
	mustDecode(t, data, &sprint)
	if sprint.Status != domain.SprintActive {
		t.Fatalf("sprint status = %s", sprint.Status)
	}
	for _, title := range []string{"a", "b", "c"} {
		res, data := doJSON(t, c, http.MethodPost, f.srv.URL+"/v1/projects/"+f.project.ID+"/tasks", map[string]any{
			"title": title, "priority": "HIGH", "dueDate": day(10), "sprintId": sprint.ID,
		}, f.admin)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create task: %d %s", res.StatusCode, string(data))
		}
	}

	res, data = doJSON(t, c, http.MethodPatch, f.srv.URL+"/v1/sprints/"+sprint.ID+"/status", map[string]any{"status": "COMPLETED"}, f.admin)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}
	body := decodeError(t, data)
	if body.Code != "incomplete_tasks" || body.Details["incompleteTasks"] != float64(3) {
		t.Fatalf("error = %+v", body)
	}

	res, data = doJSON(t, c, http.MethodPatch, f.srv.URL+"/v1/sprints/"+sprint.ID+"/status", map[string]any{"status": "PLANNING"}, f.admin)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected invalid transition, got %d %s", res.StatusCode, string(data))
	}
	if body := decodeError(t, data); body.Code != "invalid_transition" || body.Details["allowed"] == nil {
		t.Fatalf("error = %+v", body)
	}
}

func TestTaskValidationAndSelfParent(t *testing.T) {
	f := newFixture(t)
	c := f.srv.Client()
	tasksURL := f.srv.URL + "/v1/projects/" + f.project.ID + "/tasks"

	res, data := doJSON(t, c, http.MethodPost, tasksURL, map[string]any{"priority": "LOW", "dueDate": day(3)}, f.admin)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing title: %d %s", res.StatusCode, string(data))
	}
	if body := decodeError(t, data); body.Code != "invalid_field" || body.Field != "title" {
		t.Fatalf("error = %+v", body)
	}

	res, data = doJSON(t, c, http.MethodPost, tasksURL, map[string]any{"title": "t", "priority": "LOW", "dueDate": day(3)}, f.admin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	var task domain.Task
	mustDecode(t, data, &task)

	res, data = doJSON(t, c, http.MethodPut, f.srv.URL+"/v1/tasks/"+task.ID, map[string]any{"parentId": task.ID}, f.admin)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("self parent: %d %s", res.StatusCode, string(data))
	}
	if body := decodeError(t, data); body.Code != "self_parent" || body.Message != "task cannot be its own parent" {
		t.Fatalf("error = %+v", body)
	}

	res, data = doJSON(t, c, http.MethodGet, f.srv.URL+"/v1/tasks/does-not-exist", nil, f.admin)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing task: %d %s", res.StatusCode, string(data))
	}
}

func TestTeamLeaderAndCascade(t *testing.T) {
	f := newFixture(t)
	c := f.srv.Client()

	res, data := doJSON(t, c, http.MethodDelete, f.srv.URL+"/v1/teams/"+f.team.ID+"/members/"+f.adminID, nil, f.admin)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("remove only leader: %d %s", res.StatusCode, string(data))
	}
	if body := decodeError(t, data); body.Code != "last_elevated_member" {
		t.Fatalf("error = %+v", body)
	}

	res, data = doJSON(t, c, http.MethodPost, f.srv.URL+"/v1/teams/"+f.team.ID+"/projects", map[string]any{"name": "Search"}, f.admin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, c, http.MethodPost, f.srv.URL+"/v1/teams/"+f.team.ID+"/projects", map[string]any{"name": "Search"}, f.admin)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate project: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, c, http.MethodDelete, f.srv.URL+"/v1/teams/"+f.team.ID, nil, f.admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete team: %d %s", res.StatusCode, string(data))
	}
	var deleted struct {
		Team                 domain.Team `json:"team"`
		DeletedProjectsCount int         `json:"deletedProjectsCount"`
	}
	mustDecode(t, data, &deleted)
	if deleted.DeletedProjectsCount != 2 || deleted.Team.DeletedAt == nil {
		t.Fatalf("delete result = %+v", deleted)
	}
	res, data = doJSON(t, c, http.MethodGet, f.srv.URL+"/v1/projects/"+f.project.ID, nil, f.admin)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("project after team delete: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, c, http.MethodDelete, f.srv.URL+"/v1/teams/"+f.team.ID, nil, f.admin)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("second delete: %d %s", res.StatusCode, string(data))
	}
}
