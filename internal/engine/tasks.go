package engine

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"planboard/internal/apperr"
	"planboard/internal/domain"
	"planboard/internal/engine/authz"
	"planboard/internal/repo"
)

type TaskAttrs struct {
	Title          string    `json:"title" validate:"notblank,max=300"`
	Description    string    `json:"description,omitempty" validate:"max=10000"`
	Priority       string    `json:"priority" validate:"required,oneof=LOW MEDIUM HIGH URGENT"`
	Status         string    `json:"status,omitempty" validate:"omitempty,oneof=TODO IN_PROGRESS REVIEW BLOCKED DONE CANCELED"`
	DueDate        time.Time `json:"dueDate" validate:"required"`
	SprintID       string    `json:"sprintId,omitempty"`
	ParentID       string    `json:"parentId,omitempty"`
	AssignedTo     string    `json:"assignedTo,omitempty"`
	Labels         []string  `json:"labels,omitempty" validate:"omitempty,max=50,dive,notblank,max=50"`
	EstimatedHours *float64  `json:"estimatedHours,omitempty" validate:"omitempty,gte=0"`
	ActualHours    *float64  `json:"actualHours,omitempty" validate:"omitempty,gte=0"`
}

// TaskUpdate changes the listed fields. An empty SprintID, ParentID or AssignedTo
// clears the reference.
type TaskUpdate struct {
	Title          *string    `json:"title,omitempty" validate:"omitempty,notblank,max=300"`
	Description    *string    `json:"description,omitempty" validate:"omitempty,max=10000"`
	Priority       *string    `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Status         *string    `json:"status,omitempty" validate:"omitempty,oneof=TODO IN_PROGRESS REVIEW BLOCKED DONE CANCELED"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	SprintID       *string    `json:"sprintId,omitempty"`
	ParentID       *string    `json:"parentId,omitempty"`
	AssignedTo     *string    `json:"assignedTo,omitempty"`
	Labels         []string   `json:"labels,omitempty" validate:"omitempty,max=50,dive,notblank,max=50"`
	EstimatedHours *float64   `json:"estimatedHours,omitempty" validate:"omitempty,gte=0"`
	ActualHours    *float64   `json:"actualHours,omitempty" validate:"omitempty,gte=0"`
}

type TaskDeleteResult struct {
	Task      domain.Task `json:"task"`
	Permanent bool        `json:"permanent"`
	// Subtasks counts descendants deleted along with the task.
	Subtasks int `json:"deletedSubtasksCount"`
}

type TaskRestoreResult struct {
	Task     domain.Task `json:"task"`
	Subtasks int         `json:"restoredSubtasksCount"`
}

func (e Engine) taskProject(ctx context.Context, q repo.DBTX, actor Actor, projectID string, act string, kind func(string) authz.Action) (domain.Project, error) {
	p, err := e.activeProject(ctx, q, projectID)
	if err != nil {
		return p, err
	}
	chain, err := e.projectChain(ctx, q, p)
	if err != nil {
		return p, err
	}
	return p, e.authorize(ctx, q, actor, kind(act), chain)
}

// normalizeLabels trims, dedupes and sorts labels.
func normalizeLabels(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, l := range in {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (e Engine) taskSprint(ctx context.Context, q repo.DBTX, projectID, sprintID string) error {
	s, err := e.Repo.GetSprint(ctx, q, sprintID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	if err != nil || s.DeletedAt != nil || s.ProjectID != projectID {
		return apperr.NotFoundCode(apperr.CodeSprintNotFound, "sprint %s not found in project %s", sprintID, projectID).
			WithDetail("sprintId", sprintID)
	}
	return nil
}

func (e Engine) taskParent(ctx context.Context, q repo.DBTX, projectID, parentID string) error {
	t, err := e.Repo.GetTask(ctx, q, parentID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	if err != nil || t.DeletedAt != nil || t.ProjectID != projectID {
		return apperr.NotFoundCode(apperr.CodeParentNotFound, "parent task %s not found in project %s", parentID, projectID).
			WithDetail("parentId", parentID)
	}
	return nil
}

// taskAssignee covers both an unknown user and a non-member with one error.
func (e Engine) taskAssignee(ctx context.Context, q repo.DBTX, projectID, userID string) error {
	ok, err := e.Repo.IsMember(ctx, q, repo.ProjectMembers, projectID, userID, "")
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFoundCode(apperr.CodeAssignedUserMissing, "assigned user %s not found", userID).
			WithDetail("assignedTo", userID)
	}
	return nil
}

// ensureAcyclic walks the ancestors of parentID and fails when taskID is among them.
func (e Engine) ensureAcyclic(ctx context.Context, q repo.DBTX, taskID, parentID string) error {
	seen := map[string]bool{}
	cur := parentID
	for cur != "" {
		if cur == taskID {
			return apperr.BadRequest(apperr.CodeCyclicHierarchy, "setting parent %s would create a cycle", parentID).
				WithDetail("parentId", parentID)
		}
		if seen[cur] {
			// an existing loop above the new parent; taskID is not part of it
			return nil
		}
		seen[cur] = true
		t, err := e.Repo.GetTask(ctx, q, cur)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		cur = deref(t.ParentID)
	}
	return nil
}

func (e Engine) CreateTask(ctx context.Context, actor Actor, projectID string, attrs TaskAttrs) (domain.Task, error) {
	if err := validate(attrs); err != nil {
		return domain.Task{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	p, err := e.taskProject(ctx, tx, actor, projectID, "task.create", contribute)
	if err != nil {
		return domain.Task{}, err
	}
	sprintID := strings.TrimSpace(attrs.SprintID)
	if sprintID != "" {
		if err := e.taskSprint(ctx, tx, p.ID, sprintID); err != nil {
			return domain.Task{}, err
		}
	}
	parentID := strings.TrimSpace(attrs.ParentID)
	if parentID != "" {
		if err := e.taskParent(ctx, tx, p.ID, parentID); err != nil {
			return domain.Task{}, err
		}
	}
	assignee := strings.TrimSpace(attrs.AssignedTo)
	if assignee != "" {
		if err := e.taskAssignee(ctx, tx, p.ID, assignee); err != nil {
			return domain.Task{}, err
		}
	}
	now := e.now()
	t := domain.Task{
		ID:             newID(),
		ProjectID:      p.ID,
		SprintID:       optionalString(sprintID),
		ParentID:       optionalString(parentID),
		Title:          strings.TrimSpace(attrs.Title),
		Description:    attrs.Description,
		Status:         domain.TaskTodo,
		Priority:       domain.Priority(attrs.Priority),
		DueDate:        storedTime(attrs.DueDate),
		AssignedTo:     optionalString(assignee),
		Labels:         normalizeLabels(attrs.Labels),
		EstimatedHours: attrs.EstimatedHours,
		ActualHours:    attrs.ActualHours,
		CreatedBy:      actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if attrs.Status != "" {
		t.Status = domain.TaskStatus(attrs.Status)
	}
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.record(ctx, tx, actor, "task.created", "task", t.ID, p.OrgID, "created task %q in project %s", t.Title, p.Name); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, actor Actor, id string) (domain.Task, error) {
	t, err := e.activeTask(ctx, e.DB, id)
	if err != nil {
		return t, err
	}
	if _, err := e.taskProject(ctx, e.DB, actor, t.ProjectID, "task.read", read); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) ListTasks(ctx context.Context, actor Actor, f repo.TaskFilters) ([]domain.Task, error) {
	if f.Status != "" {
		if err := validateEnum("status", f.Status, domain.TaskStatuses); err != nil {
			return nil, err
		}
	}
	if _, err := e.taskProject(ctx, e.DB, actor, f.ProjectID, "task.list", read); err != nil {
		return nil, err
	}
	ts, err := e.Repo.ListTasks(ctx, e.DB, f)
	if ts == nil {
		ts = []domain.Task{}
	}
	return ts, err
}

// UpdateTask applies attrs. A new parent is checked for self reference, then for a
// cycle through its ancestors, then like on create.
func (e Engine) UpdateTask(ctx context.Context, actor Actor, id string, attrs TaskUpdate) (domain.Task, error) {
	if err := validate(attrs); err != nil {
		return domain.Task{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.activeTask(ctx, tx, id)
	if err != nil {
		return t, err
	}
	p, err := e.taskProject(ctx, tx, actor, t.ProjectID, "task.update", contribute)
	if err != nil {
		return t, err
	}
	if attrs.ParentID != nil {
		parentID := strings.TrimSpace(*attrs.ParentID)
		if parentID == t.ID {
			return t, apperr.BadRequest(apperr.CodeSelfParent, "task cannot be its own parent").WithDetail("parentId", parentID)
		}
		if parentID != "" {
			if err := e.ensureAcyclic(ctx, tx, t.ID, parentID); err != nil {
				return t, err
			}
			if err := e.taskParent(ctx, tx, t.ProjectID, parentID); err != nil {
				return t, err
			}
		}
		t.ParentID = optionalString(parentID)
	}
	if attrs.SprintID != nil {
		sprintID := strings.TrimSpace(*attrs.SprintID)
		if sprintID != "" {
			if err := e.taskSprint(ctx, tx, t.ProjectID, sprintID); err != nil {
				return t, err
			}
		}
		t.SprintID = optionalString(sprintID)
	}
	if attrs.AssignedTo != nil {
		assignee := strings.TrimSpace(*attrs.AssignedTo)
		if assignee != "" {
			if err := e.taskAssignee(ctx, tx, t.ProjectID, assignee); err != nil {
				return t, err
			}
		}
		t.AssignedTo = optionalString(assignee)
	}
	if attrs.Title != nil {
		t.Title = strings.TrimSpace(*attrs.Title)
	}
	if attrs.Description != nil {
		t.Description = *attrs.Description
	}
	if attrs.Priority != nil {
		t.Priority = domain.Priority(*attrs.Priority)
	}
	if attrs.Status != nil {
		t.Status = domain.TaskStatus(*attrs.Status)
	}
	if attrs.DueDate != nil {
		if attrs.DueDate.IsZero() {
			return t, apperr.Validation("dueDate", "dueDate is required")
		}
		t.DueDate = storedTime(*attrs.DueDate)
	}
	if attrs.Labels != nil {
		t.Labels = normalizeLabels(attrs.Labels)
	}
	if attrs.EstimatedHours != nil {
		t.EstimatedHours = attrs.EstimatedHours
	}
	if attrs.ActualHours != nil {
		t.ActualHours = attrs.ActualHours
	}
	t.UpdatedAt = e.now()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.record(ctx, tx, actor, "task.updated", "task", t.ID, p.OrgID, "updated task %q", t.Title); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) UpdateTaskStatus(ctx context.Context, actor Actor, id, status string) (domain.Task, error) {
	if err := validateEnum("status", status, domain.TaskStatuses); err != nil {
		return domain.Task{}, err
	}
	return e.setTaskField(ctx, actor, id, "task.update_status", func(t *domain.Task) (string, bool) {
		from := t.Status
		t.Status = domain.TaskStatus(status)
		return "moved task %q from " + string(from) + " to " + status, from != t.Status
	})
}

func (e Engine) UpdateTaskPriority(ctx context.Context, actor Actor, id, priority string) (domain.Task, error) {
	if err := validateEnum("priority", priority, domain.Priorities); err != nil {
		return domain.Task{}, err
	}
	return e.setTaskField(ctx, actor, id, "task.update_priority", func(t *domain.Task) (string, bool) {
		from := t.Priority
		t.Priority = domain.Priority(priority)
		return "changed priority of task %q from " + string(from) + " to " + priority, from != t.Priority
	})
}

// setTaskField runs a single-field change. apply returns the activity description,
// formatted with the task title, and whether anything changed.
func (e Engine) setTaskField(ctx context.Context, actor Actor, id, action string, apply func(*domain.Task) (string, bool)) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.activeTask(ctx, tx, id)
	if err != nil {
		return t, err
	}
	p, err := e.taskProject(ctx, tx, actor, t.ProjectID, action, contribute)
	if err != nil {
		return t, err
	}
	desc, changed := apply(&t)
	if !changed {
		return t, nil
	}
	t.UpdatedAt = e.now()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.record(ctx, tx, actor, action, "task", t.ID, p.OrgID, desc, t.Title); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// DeleteTask soft-deletes the task with its active descendants. With permanent set,
// platform admins physically remove the whole subtree instead.
func (e Engine) DeleteTask(ctx context.Context, actor Actor, id string, permanent bool) (TaskDeleteResult, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return TaskDeleteResult{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTask(ctx, tx, id)
	if err != nil {
		return TaskDeleteResult{}, missing(err, "task", id)
	}
	p, err := e.Repo.GetProject(ctx, tx, t.ProjectID)
	if err != nil {
		return TaskDeleteResult{}, missing(err, "project", t.ProjectID)
	}
	chain, err := e.projectChain(ctx, tx, p)
	if err != nil {
		return TaskDeleteResult{}, err
	}
	if permanent {
		if err := e.authorizeWith(ctx, adminOnly, tx, actor, mutate("task.delete_permanent"), chain); err != nil {
			return TaskDeleteResult{}, err
		}
	} else if err := e.authorize(ctx, tx, actor, mutate("task.delete"), chain); err != nil {
		return TaskDeleteResult{}, err
	}
	res := TaskDeleteResult{Task: t, Permanent: permanent}
	now := e.now()
	if permanent {
		n, err := e.purgeSubtree(ctx, tx, t.ID)
		if err != nil {
			return TaskDeleteResult{}, err
		}
		res.Subtasks = n
		if err := e.record(ctx, tx, actor, "task.purged", "task", t.ID, p.OrgID, "permanently deleted task %q and %d subtask(s)", t.Title, n); err != nil {
			return TaskDeleteResult{}, err
		}
	} else {
		if t.DeletedAt != nil {
			return TaskDeleteResult{}, apperr.AlreadyDeleted("task", id)
		}
		if err := e.Repo.SoftDeleteTask(ctx, tx, t.ID, now); err != nil {
			return TaskDeleteResult{}, err
		}
		n, err := e.cascadeSubtasks(ctx, tx, t.ID, now)
		if err != nil {
			return TaskDeleteResult{}, err
		}
		res.Subtasks = n
		res.Task.DeletedAt = &now
		res.Task.UpdatedAt = now
		if err := e.record(ctx, tx, actor, "task.deleted", "task", t.ID, p.OrgID, "deleted task %q and %d subtask(s)", t.Title, n); err != nil {
			return TaskDeleteResult{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return TaskDeleteResult{}, err
	}
	return res, nil
}

// cascadeSubtasks soft-deletes every active descendant of taskID.
func (e Engine) cascadeSubtasks(ctx context.Context, tx *sql.Tx, taskID string, at time.Time) (int, error) {
	children, err := e.Repo.ListChildren(ctx, tx, taskID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range children {
		if c.DeletedAt == nil {
			if err := e.Repo.SoftDeleteTask(ctx, tx, c.ID, at); err != nil {
				return n, err
			}
			n++
		}
		m, err := e.cascadeSubtasks(ctx, tx, c.ID, at)
		if err != nil {
			return n, err
		}
		n += m
	}
	return n, nil
}

// purgeSubtree removes the task and its descendants, deepest first, and returns the
// number of descendants removed.
func (e Engine) purgeSubtree(ctx context.Context, tx *sql.Tx, taskID string) (int, error) {
	children, err := e.Repo.ListChildren(ctx, tx, taskID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range children {
		m, err := e.purgeSubtree(ctx, tx, c.ID)
		if err != nil {
			return n, err
		}
		n += m + 1
	}
	if err := e.Repo.DeleteTask(ctx, tx, taskID); err != nil {
		return n, err
	}
	e.log().WithFields(logrus.Fields{"task_id": taskID, "subtasks": n}).Debug("task purged")
	return n, nil
}

// RestoreTask restores a deleted task whose parent, if any, is active. With
// restoreSubtasks set, deleted descendants at any depth come back too.
func (e Engine) RestoreTask(ctx context.Context, actor Actor, id string, restoreSubtasks bool) (TaskRestoreResult, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return TaskRestoreResult{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTask(ctx, tx, id)
	if err != nil {
		return TaskRestoreResult{}, missing(err, "task", id)
	}
	p, err := e.taskProject(ctx, tx, actor, t.ProjectID, "task.restore", mutate)
	if err != nil {
		return TaskRestoreResult{}, err
	}
	if t.DeletedAt == nil {
		return TaskRestoreResult{}, apperr.NotDeleted("task", id)
	}
	if t.ParentID != nil {
		if err := e.taskParent(ctx, tx, t.ProjectID, *t.ParentID); err != nil {
			return TaskRestoreResult{}, err
		}
	}
	now := e.now()
	if err := e.Repo.RestoreTask(ctx, tx, t.ID, now); err != nil {
		return TaskRestoreResult{}, err
	}
	res := TaskRestoreResult{Task: t}
	res.Task.DeletedAt = nil
	res.Task.UpdatedAt = now
	if restoreSubtasks {
		n, err := e.restoreSubtasks(ctx, tx, t.ID, now)
		if err != nil {
			return TaskRestoreResult{}, err
		}
		res.Subtasks = n
	}
	if err := e.record(ctx, tx, actor, "task.restored", "task", t.ID, p.OrgID, "restored task %q and %d subtask(s)", t.Title, res.Subtasks); err != nil {
		return TaskRestoreResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return TaskRestoreResult{}, err
	}
	return res, nil
}

func (e Engine) restoreSubtasks(ctx context.Context, tx *sql.Tx, taskID string, at time.Time) (int, error) {
	children, err := e.Repo.ListChildren(ctx, tx, taskID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range children {
		if c.DeletedAt != nil {
			if err := e.Repo.RestoreTask(ctx, tx, c.ID, at); err != nil {
				return n, err
			}
			n++
		}
		m, err := e.restoreSubtasks(ctx, tx, c.ID, at)
		if err != nil {
			return n, err
		}
		n += m
	}
	return n, nil
}
