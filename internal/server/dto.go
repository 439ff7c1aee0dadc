package server

import (
	"time"

	"planboard/internal/domain"
	"planboard/internal/engine"
)

// Request payloads. Fields are optional at the schema level so that missing values
// reach the engine and come back as field-level validation errors.

type CreateUserRequest struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty" enum:"USER,ADMIN"`
}

type CreateOrganizationRequest struct {
	Name         string `json:"name,omitempty"`
	ContactEmail string `json:"contactEmail,omitempty"`
}

type JoinOrganizationRequest struct {
	JoinCode string `json:"joinCode,omitempty"`
}

type VerifyOrganizationRequest struct {
	Verified *bool `json:"verified,omitempty"`
}

type UserRefRequest struct {
	UserID string `json:"userId,omitempty"`
}

type CreateDepartmentRequest struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	ManagerID   string `json:"managerId,omitempty"`
}

type CreateTeamRequest struct {
	Name         string `json:"name,omitempty"`
	Description  string `json:"description,omitempty"`
	DepartmentID string `json:"departmentId,omitempty"`
}

type CreateProjectRequest struct {
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	Progress    int        `json:"progress,omitempty"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
}

type AddMembersRequest struct {
	UserIDs []string `json:"userIds,omitempty"`
	Role    string   `json:"role,omitempty"`
}

type MemberRoleRequest struct {
	Role string `json:"role,omitempty"`
}

type CreateSprintRequest struct {
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
	Goal        string     `json:"goal,omitempty"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	Status      string     `json:"status,omitempty"`
	Order       *int       `json:"order,omitempty"`
}

type StatusRequest struct {
	Status string `json:"status,omitempty"`
}

type PriorityRequest struct {
	Priority string `json:"priority,omitempty"`
}

type CreateTaskRequest struct {
	Title          string     `json:"title,omitempty"`
	Description    string     `json:"description,omitempty"`
	Priority       string     `json:"priority,omitempty"`
	Status         string     `json:"status,omitempty"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	SprintID       string     `json:"sprintId,omitempty"`
	ParentID       string     `json:"parentId,omitempty"`
	AssignedTo     string     `json:"assignedTo,omitempty"`
	Labels         []string   `json:"labels,omitempty"`
	EstimatedHours *float64   `json:"estimatedHours,omitempty"`
	ActualHours    *float64   `json:"actualHours,omitempty"`
}

func timeValue(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func (r CreateProjectRequest) attrs() engine.ProjectAttrs {
	return engine.ProjectAttrs{
		Name: r.Name, Description: r.Description, Status: r.Status, Priority: r.Priority,
		Progress: r.Progress, StartDate: r.StartDate, EndDate: r.EndDate,
	}
}

func (r CreateSprintRequest) attrs() engine.SprintAttrs {
	return engine.SprintAttrs{
		Name: r.Name, Description: r.Description, Goal: r.Goal,
		StartDate: timeValue(r.StartDate), EndDate: timeValue(r.EndDate),
		Status: r.Status, Order: r.Order,
	}
}

func (r CreateTaskRequest) attrs() engine.TaskAttrs {
	return engine.TaskAttrs{
		Title: r.Title, Description: r.Description, Priority: r.Priority, Status: r.Status,
		DueDate: timeValue(r.DueDate), SprintID: r.SprintID, ParentID: r.ParentID,
		AssignedTo: r.AssignedTo, Labels: r.Labels,
		EstimatedHours: r.EstimatedHours, ActualHours: r.ActualHours,
	}
}

// Responses

type userOutput struct {
	Body domain.User `json:"body"`
}

type usersOutput struct {
	Body []domain.User `json:"body"`
}

type orgOutput struct {
	Body domain.Organization `json:"body"`
}

type orgsOutput struct {
	Body []domain.Organization `json:"body"`
}

type departmentOutput struct {
	Body domain.Department `json:"body"`
}

type departmentsOutput struct {
	Body []domain.Department `json:"body"`
}

type teamOutput struct {
	Body domain.Team `json:"body"`
}

type teamsOutput struct {
	Body []domain.Team `json:"body"`
}

type teamDeleteOutput struct {
	Body engine.TeamDeleteResult `json:"body"`
}

type projectOutput struct {
	Body domain.Project `json:"body"`
}

type projectsOutput struct {
	Body []domain.Project `json:"body"`
}

type membershipOutput struct {
	Body domain.Membership `json:"body"`
}

type membershipsOutput struct {
	Body []domain.Membership `json:"body"`
}

type membersResultOutput struct {
	Body engine.MembersResult `json:"body"`
}

type sprintOutput struct {
	Body domain.Sprint `json:"body"`
}

type sprintsOutput struct {
	Body []domain.Sprint `json:"body"`
}

type taskOutput struct {
	Body domain.Task `json:"body"`
}

type tasksOutput struct {
	Body []domain.Task `json:"body"`
}

type taskDeleteOutput struct {
	Body engine.TaskDeleteResult `json:"body"`
}

type taskRestoreOutput struct {
	Body engine.TaskRestoreResult `json:"body"`
}

type activityOutput struct {
	Body []domain.ActivityLog `json:"body"`
}
