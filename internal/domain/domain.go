package domain

import "time"

type GlobalRole string

const (
	RoleUser  GlobalRole = "USER"
	RoleAdmin GlobalRole = "ADMIN"
)

type User struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      GlobalRole `json:"role" enum:"USER,ADMIN"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

type OrgRole string

const (
	OrgOwner  OrgRole = "OWNER"
	OrgMember OrgRole = "MEMBER"
)

type Organization struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	ContactEmail string     `json:"contactEmail"`
	Verified     bool       `json:"verified"`
	JoinCode     string     `json:"joinCode,omitempty"`
	CreatedBy    string     `json:"createdBy"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	DeletedAt    *time.Time `json:"deletedAt"`
}

type Department struct {
	ID          string     `json:"id"`
	OrgID       string     `json:"organizationId"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	ManagerID   string     `json:"managerId"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeletedAt   *time.Time `json:"deletedAt"`
}

type TeamRole string

const (
	TeamLeader TeamRole = "LEADER"
	TeamMember TeamRole = "MEMBER"
)

type Team struct {
	ID           string     `json:"id"`
	OrgID        string     `json:"organizationId"`
	DepartmentID *string    `json:"departmentId,omitempty"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	CreatedBy    string     `json:"createdBy"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	DeletedAt    *time.Time `json:"deletedAt"`
}

type ProjectStatus string

const (
	ProjectPlanning  ProjectStatus = "PLANNING"
	ProjectActive    ProjectStatus = "ACTIVE"
	ProjectOnHold    ProjectStatus = "ON_HOLD"
	ProjectCompleted ProjectStatus = "COMPLETED"
	ProjectCanceled  ProjectStatus = "CANCELED"
)

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

type ProjectRole string

const (
	ProjectOwner        ProjectRole = "PROJECT_OWNER"
	ProjectDeveloper    ProjectRole = "DEVELOPER"
	ProjectTester       ProjectRole = "TESTER"
	ProjectDesigner     ProjectRole = "DESIGNER"
	ProjectProductOwner ProjectRole = "PRODUCT_OWNER"
	ProjectMember       ProjectRole = "MEMBER"
)

type Project struct {
	ID          string        `json:"id"`
	OrgID       string        `json:"organizationId"`
	TeamID      string        `json:"teamId"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Status      ProjectStatus `json:"status" enum:"PLANNING,ACTIVE,ON_HOLD,COMPLETED,CANCELED"`
	Priority    Priority      `json:"priority" enum:"LOW,MEDIUM,HIGH,URGENT"`
	Progress    int           `json:"progress" minimum:"0" maximum:"100"`
	StartDate   *time.Time    `json:"startDate,omitempty"`
	EndDate     *time.Time    `json:"endDate,omitempty"`
	CreatedBy   string        `json:"createdBy"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	DeletedAt   *time.Time    `json:"deletedAt"`
}

// Membership is a user's role inside an organization, team or project. Role holds the
// scope-specific role value.
type Membership struct {
	ScopeID   string     `json:"scopeId"`
	UserID    string     `json:"userId"`
	Role      string     `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

func (m Membership) Active() bool { return m.DeletedAt == nil }

type SprintStatus string

const (
	SprintPlanning  SprintStatus = "PLANNING"
	SprintActive    SprintStatus = "ACTIVE"
	SprintCompleted SprintStatus = "COMPLETED"
)

type Sprint struct {
	ID          string       `json:"id"`
	ProjectID   string       `json:"projectId"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Goal        string       `json:"goal"`
	Status      SprintStatus `json:"status" enum:"PLANNING,ACTIVE,COMPLETED"`
	StartDate   time.Time    `json:"startDate"`
	EndDate     time.Time    `json:"endDate"`
	Order       int          `json:"order"`
	CreatedBy   string       `json:"createdBy"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	DeletedAt   *time.Time   `json:"deletedAt"`
}

// Overlaps reports whether s shares an instant with the half-open window [start,end).
func (s Sprint) Overlaps(start, end time.Time) bool {
	return s.StartDate.Before(end) && s.EndDate.After(start)
}

type TaskStatus string

const (
	TaskTodo       TaskStatus = "TODO"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskReview     TaskStatus = "REVIEW"
	TaskBlocked    TaskStatus = "BLOCKED"
	TaskDone       TaskStatus = "DONE"
	TaskCanceled   TaskStatus = "CANCELED"
)

type Task struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"projectId"`
	SprintID       *string    `json:"sprintId,omitempty"`
	ParentID       *string    `json:"parentId,omitempty"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         TaskStatus `json:"status" enum:"TODO,IN_PROGRESS,REVIEW,BLOCKED,DONE,CANCELED"`
	Priority       Priority   `json:"priority" enum:"LOW,MEDIUM,HIGH,URGENT"`
	DueDate        time.Time  `json:"dueDate"`
	AssignedTo     *string    `json:"assignedTo,omitempty"`
	Labels         []string   `json:"labels"`
	EstimatedHours *float64   `json:"estimatedHours,omitempty"`
	ActualHours    *float64   `json:"actualHours,omitempty"`
	CreatedBy      string     `json:"createdBy"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	DeletedAt      *time.Time `json:"deletedAt"`
}

type ActivityLog struct {
	ID             int64     `json:"id"`
	ActorID        string    `json:"actorId"`
	Action         string    `json:"action"`
	EntityType     string    `json:"entityType"`
	EntityID       string    `json:"entityId"`
	OrganizationID string    `json:"organizationId,omitempty"`
	Description    string    `json:"description"`
	CreatedAt      time.Time `json:"createdAt"`
}

var (
	ProjectStatuses = []string{string(ProjectPlanning), string(ProjectActive), string(ProjectOnHold), string(ProjectCompleted), string(ProjectCanceled)}
	Priorities      = []string{string(PriorityLow), string(PriorityMedium), string(PriorityHigh), string(PriorityUrgent)}
	ProjectRoles    = []string{string(ProjectOwner), string(ProjectDeveloper), string(ProjectTester), string(ProjectDesigner), string(ProjectProductOwner), string(ProjectMember)}
	SprintStatuses  = []string{string(SprintPlanning), string(SprintActive), string(SprintCompleted)}
	TaskStatuses    = []string{string(TaskTodo), string(TaskInProgress), string(TaskReview), string(TaskBlocked), string(TaskDone), string(TaskCanceled)}
)
