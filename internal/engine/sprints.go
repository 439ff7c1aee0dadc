package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"planboard/internal/apperr"
	"planboard/internal/domain"
	"planboard/internal/repo"
)

type SprintAttrs struct {
	Name        string    `json:"name" validate:"notblank,max=200"`
	Description string    `json:"description,omitempty" validate:"max=5000"`
	Goal        string    `json:"goal,omitempty" validate:"max=2000"`
	StartDate   time.Time `json:"startDate" validate:"required"`
	EndDate     time.Time `json:"endDate" validate:"required"`
	// Status overrides the status derived from the window.
	Status string `json:"status,omitempty" validate:"omitempty,oneof=PLANNING ACTIVE COMPLETED"`
	Order  *int   `json:"order,omitempty" validate:"omitempty,gte=0"`
}

type SprintUpdate struct {
	Name        *string    `json:"name,omitempty" validate:"omitempty,notblank,max=200"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=5000"`
	Goal        *string    `json:"goal,omitempty" validate:"omitempty,max=2000"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	Order       *int       `json:"order,omitempty" validate:"omitempty,gte=0"`
}

var sprintTransitions = map[domain.SprintStatus][]domain.SprintStatus{
	domain.SprintPlanning:  {domain.SprintActive, domain.SprintCompleted},
	domain.SprintActive:    {domain.SprintCompleted},
	domain.SprintCompleted: {},
}

// AllowedSprintTransitions lists the legal targets of from.
func AllowedSprintTransitions(from domain.SprintStatus) []string {
	out := []string{}
	for _, s := range sprintTransitions[from] {
		out = append(out, string(s))
	}
	return out
}

func ensureSprintTransition(from, to domain.SprintStatus) error {
	for _, s := range sprintTransitions[from] {
		if s == to {
			return nil
		}
	}
	return apperr.InvalidTransition("sprint", string(from), string(to), AllowedSprintTransitions(from))
}

// defaultSprintStatus derives a status from where now falls in [start,end).
func defaultSprintStatus(now, start, end time.Time) domain.SprintStatus {
	switch {
	case now.Before(start):
		return domain.SprintPlanning
	case now.Before(end):
		return domain.SprintActive
	default:
		return domain.SprintCompleted
	}
}

func sprintWindow(start, end time.Time) error {
	return checkWindow(&start, &end)
}

// ensureNoOverlap rejects [start,end) when it intersects another active sprint of the
// project. excludeID skips the sprint being changed.
func (e Engine) ensureNoOverlap(ctx context.Context, q repo.DBTX, projectID string, start, end time.Time, excludeID string) error {
	other, err := e.Repo.OverlappingSprint(ctx, q, projectID, start, end, excludeID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return apperr.StateConflict(apperr.CodeSprintOverlap, "sprint window overlaps sprint %s", other.Name).
		WithDetail("overlappingSprint", map[string]any{
			"id":        other.ID,
			"name":      other.Name,
			"startDate": other.StartDate,
			"endDate":   other.EndDate,
		})
}

func (e Engine) sprintProject(ctx context.Context, q repo.DBTX, actor Actor, s domain.Sprint, act string, write bool) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, q, s.ProjectID)
	if err != nil {
		return p, missing(err, "project", s.ProjectID)
	}
	chain, err := e.projectChain(ctx, q, p)
	if err != nil {
		return p, err
	}
	action := read(act)
	if write {
		action = mutate(act)
	}
	return p, e.authorize(ctx, q, actor, action, chain)
}

func (e Engine) CreateSprint(ctx context.Context, actor Actor, projectID string, attrs SprintAttrs) (domain.Sprint, error) {
	if err := validate(attrs); err != nil {
		return domain.Sprint{}, err
	}
	start, end := storedTime(attrs.StartDate), storedTime(attrs.EndDate)
	if err := sprintWindow(start, end); err != nil {
		return domain.Sprint{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Sprint{}, err
	}
	defer tx.Rollback()

	p, err := e.activeProject(ctx, tx, projectID)
	if err != nil {
		return domain.Sprint{}, err
	}
	chain, err := e.projectChain(ctx, tx, p)
	if err != nil {
		return domain.Sprint{}, err
	}
	if err := e.authorize(ctx, tx, actor, mutate("sprint.create"), chain); err != nil {
		return domain.Sprint{}, err
	}
	if err := e.ensureNoOverlap(ctx, tx, p.ID, start, end, ""); err != nil {
		return domain.Sprint{}, err
	}
	name := strings.TrimSpace(attrs.Name)
	taken, err := e.Repo.SprintNameTaken(ctx, tx, p.ID, name, "")
	if err := ensureName("sprint", name, taken, err); err != nil {
		return domain.Sprint{}, err
	}
	now := e.now()
	s := domain.Sprint{
		ID:          newID(),
		ProjectID:   p.ID,
		Name:        name,
		Description: attrs.Description,
		Goal:        attrs.Goal,
		Status:      defaultSprintStatus(now, start, end),
		StartDate:   start,
		EndDate:     end,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if attrs.Status != "" {
		s.Status = domain.SprintStatus(attrs.Status)
	}
	if attrs.Order != nil {
		s.Order = *attrs.Order
	} else {
		s.Order, err = e.Repo.NextSprintOrder(ctx, tx, p.ID)
		if err != nil {
			return domain.Sprint{}, err
		}
	}
	if err := e.Repo.InsertSprint(ctx, tx, s); err != nil {
		return domain.Sprint{}, err
	}
	if err := e.record(ctx, tx, actor, "sprint.created", "sprint", s.ID, p.OrgID, "created sprint %s (%s) in project %s", s.Name, s.Status, p.Name); err != nil {
		return domain.Sprint{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Sprint{}, err
	}
	return s, nil
}

func (e Engine) GetSprint(ctx context.Context, actor Actor, id string) (domain.Sprint, error) {
	s, err := e.activeSprint(ctx, e.DB, id)
	if err != nil {
		return s, err
	}
	if _, err := e.sprintProject(ctx, e.DB, actor, s, "sprint.read", false); err != nil {
		return s, err
	}
	return s, nil
}

func (e Engine) ListSprints(ctx context.Context, actor Actor, projectID string) ([]domain.Sprint, error) {
	p, err := e.activeProject(ctx, e.DB, projectID)
	if err != nil {
		return nil, err
	}
	chain, err := e.projectChain(ctx, e.DB, p)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, e.DB, actor, read("sprint.list"), chain); err != nil {
		return nil, err
	}
	ss, err := e.Repo.ListSprints(ctx, e.DB, p.ID)
	if ss == nil {
		ss = []domain.Sprint{}
	}
	return ss, err
}

// UpdateSprint re-validates name and window as on create, ignoring the sprint's own
// current window.
func (e Engine) UpdateSprint(ctx context.Context, actor Actor, id string, attrs SprintUpdate) (domain.Sprint, error) {
	if err := validate(attrs); err != nil {
		return domain.Sprint{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Sprint{}, err
	}
	defer tx.Rollback()

	s, err := e.activeSprint(ctx, tx, id)
	if err != nil {
		return s, err
	}
	p, err := e.sprintProject(ctx, tx, actor, s, "sprint.update", true)
	if err != nil {
		return s, err
	}
	if attrs.StartDate != nil {
		s.StartDate = storedTime(*attrs.StartDate)
	}
	if attrs.EndDate != nil {
		s.EndDate = storedTime(*attrs.EndDate)
	}
	if attrs.StartDate != nil || attrs.EndDate != nil {
		if err := sprintWindow(s.StartDate, s.EndDate); err != nil {
			return s, err
		}
		if err := e.ensureNoOverlap(ctx, tx, s.ProjectID, s.StartDate, s.EndDate, s.ID); err != nil {
			return s, err
		}
	}
	if attrs.Name != nil {
		name := strings.TrimSpace(*attrs.Name)
		if name != s.Name {
			taken, err := e.Repo.SprintNameTaken(ctx, tx, s.ProjectID, name, s.ID)
			if err := ensureName("sprint", name, taken, err); err != nil {
				return s, err
			}
			s.Name = name
		}
	}
	if attrs.Description != nil {
		s.Description = *attrs.Description
	}
	if attrs.Goal != nil {
		s.Goal = *attrs.Goal
	}
	if attrs.Order != nil {
		s.Order = *attrs.Order
	}
	s.UpdatedAt = e.now()
	if err := e.Repo.UpdateSprint(ctx, tx, s); err != nil {
		return s, err
	}
	if err := e.record(ctx, tx, actor, "sprint.updated", "sprint", s.ID, p.OrgID, "updated sprint %s", s.Name); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	return s, nil
}

// UpdateSprintStatus applies an explicit transition. Requesting the current status
// succeeds without writing anything.
func (e Engine) UpdateSprintStatus(ctx context.Context, actor Actor, id, status string) (domain.Sprint, error) {
	if err := validateEnum("status", status, domain.SprintStatuses); err != nil {
		return domain.Sprint{}, err
	}
	to := domain.SprintStatus(status)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Sprint{}, err
	}
	defer tx.Rollback()

	s, err := e.activeSprint(ctx, tx, id)
	if err != nil {
		return s, err
	}
	p, err := e.sprintProject(ctx, tx, actor, s, "sprint.update_status", true)
	if err != nil {
		return s, err
	}
	if s.Status == to {
		return s, nil
	}
	if err := ensureSprintTransition(s.Status, to); err != nil {
		return s, err
	}
	now := e.now()
	switch to {
	case domain.SprintActive:
		if now.Before(s.StartDate) {
			return s, apperr.StateConflict(apperr.CodeSprintNotStarted, "sprint %s starts at %s and cannot be activated yet",
				s.Name, s.StartDate.Format(time.RFC3339)).WithDetail("startDate", s.StartDate)
		}
	case domain.SprintCompleted:
		n, err := e.unfinishedTasks(ctx, tx, s.ID)
		if err != nil {
			return s, err
		}
		if n > 0 {
			return s, apperr.StateConflict(apperr.CodeIncompleteTasks, "sprint %s has %d incomplete task(s)", s.Name, n).
				WithDetail("incompleteTasks", n)
		}
	}
	from := s.Status
	s.Status = to
	s.UpdatedAt = now
	if err := e.Repo.UpdateSprint(ctx, tx, s); err != nil {
		return s, err
	}
	if err := e.record(ctx, tx, actor, "sprint.status", "sprint", s.ID, p.OrgID, "moved sprint %s from %s to %s", s.Name, from, to); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	return s, nil
}

func (e Engine) unfinishedTasks(ctx context.Context, tx *sql.Tx, sprintID string) (int, error) {
	return e.Repo.CountUnfinishedSprintTasks(ctx, tx, sprintID, e.finishedStatuses())
}

// DeleteSprint soft-deletes the sprint. An ACTIVE sprint with unfinished tasks is kept.
func (e Engine) DeleteSprint(ctx context.Context, actor Actor, id string) (domain.Sprint, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Sprint{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetSprint(ctx, tx, id)
	if err != nil {
		return s, missing(err, "sprint", id)
	}
	p, err := e.sprintProject(ctx, tx, actor, s, "sprint.delete", true)
	if err != nil {
		return s, err
	}
	if s.DeletedAt != nil {
		return s, apperr.AlreadyDeleted("sprint", id)
	}
	if s.Status == domain.SprintActive {
		n, err := e.unfinishedTasks(ctx, tx, s.ID)
		if err != nil {
			return s, err
		}
		if n > 0 {
			return s, apperr.StateConflict(apperr.CodeUnfinishedTasks, "active sprint %s has %d unfinished task(s)", s.Name, n).
				WithDetail("unfinishedTasks", n)
		}
	}
	now := e.now()
	if err := e.Repo.SoftDeleteSprint(ctx, tx, id, now); err != nil {
		return s, err
	}
	if err := e.record(ctx, tx, actor, "sprint.deleted", "sprint", s.ID, p.OrgID, "deleted sprint %s", s.Name); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	s.DeletedAt = &now
	s.UpdatedAt = now
	return s, nil
}

// RestoreSprint brings a sprint back when its name and window are still free.
func (e Engine) RestoreSprint(ctx context.Context, actor Actor, id string) (domain.Sprint, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Sprint{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetSprint(ctx, tx, id)
	if err != nil {
		return s, missing(err, "sprint", id)
	}
	p, err := e.sprintProject(ctx, tx, actor, s, "sprint.restore", true)
	if err != nil {
		return s, err
	}
	if s.DeletedAt == nil {
		return s, apperr.NotDeleted("sprint", id)
	}
	if p.DeletedAt != nil {
		return s, apperr.NotFound("project", p.ID)
	}
	if err := e.ensureNoOverlap(ctx, tx, s.ProjectID, s.StartDate, s.EndDate, s.ID); err != nil {
		return s, err
	}
	taken, err := e.Repo.SprintNameTaken(ctx, tx, s.ProjectID, s.Name, s.ID)
	if err := ensureName("sprint", s.Name, taken, err); err != nil {
		return s, err
	}
	now := e.now()
	if err := e.Repo.RestoreSprint(ctx, tx, id, now); err != nil {
		return s, err
	}
	if err := e.record(ctx, tx, actor, "sprint.restored", "sprint", s.ID, p.OrgID, "restored sprint %s", s.Name); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	s.DeletedAt = nil
	s.UpdatedAt = now
	return s, nil
}
