package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"planboard/internal/apperr"
	"planboard/internal/domain"
	"planboard/internal/repo"
)

type ProjectAttrs struct {
	Name        string     `json:"name" validate:"notblank,max=200"`
	Description string     `json:"description,omitempty" validate:"max=5000"`
	Status      string     `json:"status,omitempty" validate:"omitempty,oneof=PLANNING ACTIVE ON_HOLD COMPLETED CANCELED"`
	Priority    string     `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Progress    int        `json:"progress,omitempty" validate:"gte=0,lte=100"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
}

type ProjectUpdate struct {
	Name        *string    `json:"name,omitempty" validate:"omitempty,notblank,max=200"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=5000"`
	Status      *string    `json:"status,omitempty" validate:"omitempty,oneof=PLANNING ACTIVE ON_HOLD COMPLETED CANCELED"`
	Priority    *string    `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Progress    *int       `json:"progress,omitempty" validate:"omitempty,gte=0,lte=100"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
}

// CreateProject creates the project under an active team and makes the actor its
// PROJECT_OWNER.
func (e Engine) CreateProject(ctx context.Context, actor Actor, teamID string, attrs ProjectAttrs) (domain.Project, error) {
	if err := validate(attrs); err != nil {
		return domain.Project{}, err
	}
	start, end := utcPtr(attrs.StartDate), utcPtr(attrs.EndDate)
	if err := checkWindow(start, end); err != nil {
		return domain.Project{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	t, err := e.activeTeam(ctx, tx, teamID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := e.authorize(ctx, tx, actor, mutate("project.create"), teamChain(t)); err != nil {
		return domain.Project{}, err
	}
	if err := e.requireActor(ctx, tx, actor); err != nil {
		return domain.Project{}, err
	}
	name := strings.TrimSpace(attrs.Name)
	taken, err := e.Repo.ProjectNameTaken(ctx, tx, t.ID, name, "")
	if err := ensureName("project", name, taken, err); err != nil {
		return domain.Project{}, err
	}
	now := e.now()
	p := domain.Project{
		ID:          newID(),
		OrgID:       t.OrgID,
		TeamID:      t.ID,
		Name:        name,
		Description: attrs.Description,
		Status:      domain.ProjectPlanning,
		Priority:    domain.PriorityMedium,
		Progress:    attrs.Progress,
		StartDate:   start,
		EndDate:     end,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if attrs.Status != "" {
		p.Status = domain.ProjectStatus(attrs.Status)
	}
	if attrs.Priority != "" {
		p.Priority = domain.Priority(attrs.Priority)
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Repo.UpsertMember(ctx, tx, repo.ProjectMembers, domain.Membership{
		ScopeID: p.ID, UserID: actor.ID, Role: string(domain.ProjectOwner), CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := e.record(ctx, tx, actor, "project.created", "project", p.ID, p.OrgID, "created project %s in team %s", p.Name, t.Name); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) GetProject(ctx context.Context, actor Actor, id string) (domain.Project, error) {
	p, err := e.activeProject(ctx, e.DB, id)
	if err != nil {
		return p, err
	}
	chain, err := e.projectChain(ctx, e.DB, p)
	if err != nil {
		return p, err
	}
	if err := e.authorize(ctx, e.DB, actor, read("project.read"), chain); err != nil {
		return p, err
	}
	return p, nil
}

func (e Engine) ListProjects(ctx context.Context, actor Actor, f repo.ProjectFilters) ([]domain.Project, error) {
	if f.Status != "" {
		if err := validateEnum("status", f.Status, domain.ProjectStatuses); err != nil {
			return nil, err
		}
	}
	t, err := e.activeTeam(ctx, e.DB, f.TeamID)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, e.DB, actor, read("project.list"), teamChain(t)); err != nil {
		return nil, err
	}
	ps, err := e.Repo.ListProjects(ctx, e.DB, f)
	if ps == nil {
		ps = []domain.Project{}
	}
	return ps, err
}

func (e Engine) UpdateProject(ctx context.Context, actor Actor, id string, attrs ProjectUpdate) (domain.Project, error) {
	if err := validate(attrs); err != nil {
		return domain.Project{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := e.activeProject(ctx, tx, id)
	if err != nil {
		return p, err
	}
	chain, err := e.projectChain(ctx, tx, p)
	if err != nil {
		return p, err
	}
	if err := e.authorize(ctx, tx, actor, mutate("project.update"), chain); err != nil {
		return p, err
	}
	if attrs.Name != nil {
		name := strings.TrimSpace(*attrs.Name)
		if name != p.Name {
			taken, err := e.Repo.ProjectNameTaken(ctx, tx, p.TeamID, name, p.ID)
			if err := ensureName("project", name, taken, err); err != nil {
				return p, err
			}
			p.Name = name
		}
	}
	if attrs.Description != nil {
		p.Description = *attrs.Description
	}
	if attrs.Status != nil {
		p.Status = domain.ProjectStatus(*attrs.Status)
	}
	if attrs.Priority != nil {
		p.Priority = domain.Priority(*attrs.Priority)
	}
	if attrs.Progress != nil {
		p.Progress = *attrs.Progress
	}
	if attrs.StartDate != nil {
		p.StartDate = utcPtr(attrs.StartDate)
	}
	if attrs.EndDate != nil {
		p.EndDate = utcPtr(attrs.EndDate)
	}
	if err := checkWindow(p.StartDate, p.EndDate); err != nil {
		return p, err
	}
	p.UpdatedAt = e.now()
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.record(ctx, tx, actor, "project.updated", "project", p.ID, p.OrgID, "updated project %s", p.Name); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

// DeleteProject soft-deletes the project; its sprints and tasks keep their state.
func (e Engine) DeleteProject(ctx context.Context, actor Actor, id string) (domain.Project, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProject(ctx, tx, id)
	if err != nil {
		return p, missing(err, "project", id)
	}
	chain, err := e.projectChain(ctx, tx, p)
	if err != nil {
		return p, err
	}
	if err := e.authorize(ctx, tx, actor, mutate("project.delete"), chain); err != nil {
		return p, err
	}
	if p.DeletedAt != nil {
		return p, apperr.AlreadyDeleted("project", id)
	}
	now := e.now()
	if err := e.Repo.SoftDeleteProject(ctx, tx, id, now); err != nil {
		return p, err
	}
	if err := e.record(ctx, tx, actor, "project.deleted", "project", p.ID, p.OrgID, "deleted project %s", p.Name); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	p.DeletedAt = &now
	p.UpdatedAt = now
	return p, nil
}

// RestoreProject needs the owning team to be active again.
func (e Engine) RestoreProject(ctx context.Context, actor Actor, id string) (domain.Project, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProject(ctx, tx, id)
	if err != nil {
		return p, missing(err, "project", id)
	}
	chain, err := e.projectChain(ctx, tx, p)
	if err != nil {
		return p, err
	}
	if err := e.authorize(ctx, tx, actor, mutate("project.restore"), chain); err != nil {
		return p, err
	}
	if p.DeletedAt == nil {
		return p, apperr.NotDeleted("project", id)
	}
	if _, err := e.activeTeam(ctx, tx, p.TeamID); err != nil {
		return p, err
	}
	taken, err := e.Repo.ProjectNameTaken(ctx, tx, p.TeamID, p.Name, p.ID)
	if err := ensureName("project", p.Name, taken, err); err != nil {
		return p, err
	}
	now := e.now()
	if err := e.Repo.RestoreProject(ctx, tx, id, now); err != nil {
		return p, err
	}
	if err := e.record(ctx, tx, actor, "project.restored", "project", p.ID, p.OrgID, "restored project %s", p.Name); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	p.DeletedAt = nil
	p.UpdatedAt = now
	return p, nil
}

// AddProjectMembers adds the users with one role, MEMBER by default.
func (e Engine) AddProjectMembers(ctx context.Context, actor Actor, projectID string, attrs MembersAttrs) (MembersResult, error) {
	if err := validate(attrs); err != nil {
		return MembersResult{}, err
	}
	role := attrs.Role
	if role == "" {
		role = string(domain.ProjectMember)
	}
	if err := validateEnum("role", role, domain.ProjectRoles); err != nil {
		return MembersResult{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return MembersResult{}, err
	}
	defer tx.Rollback()

	p, err := e.activeProject(ctx, tx, projectID)
	if err != nil {
		return MembersResult{}, err
	}
	chain, err := e.projectChain(ctx, tx, p)
	if err != nil {
		return MembersResult{}, err
	}
	if err := e.authorize(ctx, tx, actor, mutate("project.add_members"), chain); err != nil {
		return MembersResult{}, err
	}
	res, err := e.addMembers(ctx, tx, repo.ProjectMembers, p.ID, p.OrgID, attrs.UserIDs, role)
	if err != nil {
		return res, err
	}
	if err := e.record(ctx, tx, actor, "project.members_added", "project", p.ID, p.OrgID, "added %d %s member(s) to project %s, skipped %d, invalid %d",
		res.AddedCount, role, p.Name, res.SkippedCount, len(res.Invalid)); err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	return res, nil
}

// RemoveProjectMember rejects removing the project's last PROJECT_OWNER.
func (e Engine) RemoveProjectMember(ctx context.Context, actor Actor, projectID, userID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	p, err := e.activeProject(ctx, tx, projectID)
	if err != nil {
		return err
	}
	chain, err := e.projectChain(ctx, tx, p)
	if err != nil {
		return err
	}
	if err := e.authorize(ctx, tx, actor, mutate("project.remove_member"), chain); err != nil {
		return err
	}
	if _, err := e.removeMember(ctx, tx, repo.ProjectMembers, "project", p.ID, userID, string(domain.ProjectOwner)); err != nil {
		return err
	}
	if err := e.record(ctx, tx, actor, "project.member_removed", "project", p.ID, p.OrgID, "removed member %s from project %s", userID, p.Name); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateProjectMemberRole changes a member's role; demoting the last PROJECT_OWNER is
// rejected.
func (e Engine) UpdateProjectMemberRole(ctx context.Context, actor Actor, projectID, userID, role string) (domain.Membership, error) {
	if err := validateEnum("role", role, domain.ProjectRoles); err != nil {
		return domain.Membership{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Membership{}, err
	}
	defer tx.Rollback()

	p, err := e.activeProject(ctx, tx, projectID)
	if err != nil {
		return domain.Membership{}, err
	}
	chain, err := e.projectChain(ctx, tx, p)
	if err != nil {
		return domain.Membership{}, err
	}
	if err := e.authorize(ctx, tx, actor, mutate("project.update_member"), chain); err != nil {
		return domain.Membership{}, err
	}
	m, err := e.Repo.GetMembership(ctx, tx, repo.ProjectMembers, p.ID, userID)
	if err != nil || !m.Active() {
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return m, err
		}
		return m, apperr.NotFoundCode(apperr.CodeNotFound, "user %s is not a member of project %s", userID, p.ID).
			WithDetail("userId", userID)
	}
	if m.Role == role {
		return m, nil
	}
	if m.Role == string(domain.ProjectOwner) {
		if err := e.ensureNotLastElevated(ctx, tx, repo.ProjectMembers, "project", p.ID, m.Role); err != nil {
			return m, err
		}
	}
	now := e.now()
	if err := e.Repo.SetMemberRole(ctx, tx, repo.ProjectMembers, p.ID, userID, role, now); err != nil {
		return m, err
	}
	if err := e.record(ctx, tx, actor, "project.member_role", "project", p.ID, p.OrgID, "changed role of %s in project %s from %s to %s", userID, p.Name, m.Role, role); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	m.Role = role
	m.UpdatedAt = now
	return m, nil
}

func (e Engine) ListProjectMembers(ctx context.Context, actor Actor, projectID string) ([]domain.Membership, error) {
	p, err := e.activeProject(ctx, e.DB, projectID)
	if err != nil {
		return nil, err
	}
	chain, err := e.projectChain(ctx, e.DB, p)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, e.DB, actor, read("project.members"), chain); err != nil {
		return nil, err
	}
	return e.listMembers(ctx, repo.ProjectMembers, p.ID)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := storedTime(*t)
	return &u
}
