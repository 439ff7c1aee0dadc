package planboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Planboard HTTP API client.
type Client struct {
	// BaseURL includes the API base path, e.g. http://localhost:8080/v1.
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// User represents the API user model.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Organization represents the API organization model (partial).
type Organization struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContactEmail string `json:"contactEmail"`
	Verified     bool   `json:"verified"`
	JoinCode     string `json:"joinCode,omitempty"`
}

type Team struct {
	ID           string  `json:"id"`
	OrgID        string  `json:"organizationId"`
	DepartmentID *string `json:"departmentId,omitempty"`
	Name         string  `json:"name"`
}

type Project struct {
	ID       string `json:"id"`
	TeamID   string `json:"teamId"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
	Progress int    `json:"progress"`
}

type Sprint struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Order     int       `json:"order"`
}

// Task represents the API task model (partial).
type Task struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	SprintID   *string   `json:"sprintId,omitempty"`
	ParentID   *string   `json:"parentId,omitempty"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	Priority   string    `json:"priority"`
	DueDate    time.Time `json:"dueDate"`
	AssignedTo *string   `json:"assignedTo,omitempty"`
	Labels     []string  `json:"labels"`
}

// NewTask is the body of CreateTask. Priority and DueDate are required.
type NewTask struct {
	Title      string    `json:"title"`
	Priority   string    `json:"priority"`
	DueDate    time.Time `json:"dueDate"`
	SprintID   string    `json:"sprintId,omitempty"`
	ParentID   string    `json:"parentId,omitempty"`
	AssignedTo string    `json:"assignedTo,omitempty"`
	Labels     []string  `json:"labels,omitempty"`
}

type TaskFilters struct {
	Status     string
	SprintID   string
	AssignedTo string
	ParentID   string
	Label      string
}

// Activity represents an activity log entry.
type Activity struct {
	ID          int64     `json:"id"`
	ActorID     string    `json:"actorId"`
	Action      string    `json:"action"`
	EntityType  string    `json:"entityType"`
	EntityID    string    `json:"entityId"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// APIError wraps non-2xx responses. Code, Field and Details come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Field      string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateUser registers a user. With an empty token it bootstraps the first ADMIN.
func (c *Client) CreateUser(ctx context.Context, name, email string) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodPost, "users", map[string]any{"name": name, "email": email}, &resp)
	return resp, err
}

// Me returns the user behind the bearer token.
func (c *Client) Me(ctx context.Context) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "users/me", nil, &resp)
	return resp, err
}

func (c *Client) CreateOrganization(ctx context.Context, name, contactEmail string) (Organization, error) {
	var resp Organization
	err := c.do(ctx, http.MethodPost, "organizations", map[string]any{"name": name, "contactEmail": contactEmail}, &resp)
	return resp, err
}

// JoinOrganization joins the organization owning code as MEMBER.
func (c *Client) JoinOrganization(ctx context.Context, code string) (Organization, error) {
	var resp Organization
	err := c.do(ctx, http.MethodPost, "organizations/join", map[string]any{"joinCode": code}, &resp)
	return resp, err
}

func (c *Client) CreateTeam(ctx context.Context, orgID, name string) (Team, error) {
	var resp Team
	err := c.do(ctx, http.MethodPost, path("organizations", orgID, "teams"), map[string]any{"name": name}, &resp)
	return resp, err
}

func (c *Client) CreateProject(ctx context.Context, teamID, name string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, path("teams", teamID, "projects"), map[string]any{"name": name}, &resp)
	return resp, err
}

// CreateSprint schedules a sprint over [start, end).
func (c *Client) CreateSprint(ctx context.Context, projectID, name string, start, end time.Time) (Sprint, error) {
	body := map[string]any{"name": name, "startDate": start, "endDate": end}
	var resp Sprint
	err := c.do(ctx, http.MethodPost, path("projects", projectID, "sprints"), body, &resp)
	return resp, err
}

func (c *Client) UpdateSprintStatus(ctx context.Context, sprintID, status string) (Sprint, error) {
	var resp Sprint
	err := c.do(ctx, http.MethodPatch, path("sprints", sprintID, "status"), map[string]any{"status": status}, &resp)
	return resp, err
}

func (c *Client) CreateTask(ctx context.Context, projectID string, t NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, path("projects", projectID, "tasks"), t, &resp)
	return resp, err
}

func (c *Client) ListTasks(ctx context.Context, projectID string, f TaskFilters) ([]Task, error) {
	q := url.Values{}
	for k, v := range map[string]string{"status": f.Status, "sprintId": f.SprintID, "assignedTo": f.AssignedTo, "parentId": f.ParentID, "label": f.Label} {
		if v != "" {
			q.Set(k, v)
		}
	}
	endpoint := path("projects", projectID, "tasks")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) UpdateTaskStatus(ctx context.Context, taskID, status string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, path("tasks", taskID, "status"), map[string]any{"status": status}, &resp)
	return resp, err
}

// DeleteTask soft deletes a task with its subtasks and returns how many subtasks went
// with it.
func (c *Client) DeleteTask(ctx context.Context, taskID string, permanent bool) (int, error) {
	var resp struct {
		Deleted int `json:"deletedSubtasksCount"`
	}
	endpoint := path("tasks", taskID)
	if permanent {
		endpoint += "?permanent=true"
	}
	err := c.do(ctx, http.MethodDelete, endpoint, nil, &resp)
	return resp.Deleted, err
}

// Activity returns entries of an organization newest first. before pages backwards
// from an entry id; zero starts at the newest.
func (c *Client) Activity(ctx context.Context, orgID string, limit int, before int64) ([]Activity, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if before > 0 {
		q.Set("before", strconv.FormatInt(before, 10))
	}
	endpoint := path("organizations", orgID, "activity")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Activity
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Field   string         `json:"field"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Field = envelope.Error.Field
			apiErr.Details = envelope.Error.Details
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func path(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return strings.Join(escaped, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
