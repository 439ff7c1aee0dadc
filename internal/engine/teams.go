package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"planboard/internal/apperr"
	"planboard/internal/domain"
	"planboard/internal/engine/authz"
	"planboard/internal/repo"
)

type TeamAttrs struct {
	Name         string `json:"name" validate:"notblank,max=200"`
	Description  string `json:"description,omitempty" validate:"max=2000"`
	DepartmentID string `json:"departmentId,omitempty"`
}

// TeamUpdate changes the listed fields. An empty DepartmentID detaches the team.
type TeamUpdate struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,notblank,max=200"`
	Description  *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	DepartmentID *string `json:"departmentId,omitempty"`
}

type TeamDeleteResult struct {
	Team                 domain.Team `json:"team"`
	DeletedProjectsCount int         `json:"deletedProjectsCount"`
}

func (e Engine) teamDepartment(ctx context.Context, q repo.DBTX, orgID, departmentID string) error {
	if departmentID == "" {
		return nil
	}
	d, err := e.activeDepartment(ctx, q, departmentID)
	if err != nil {
		return err
	}
	if d.OrgID != orgID {
		return apperr.NotFound("department", departmentID)
	}
	return nil
}

// CreateTeam creates the team and makes the actor its LEADER.
func (e Engine) CreateTeam(ctx context.Context, actor Actor, orgID string, attrs TeamAttrs) (domain.Team, error) {
	if err := validate(attrs); err != nil {
		return domain.Team{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Team{}, err
	}
	defer tx.Rollback()

	if _, err := e.activeOrg(ctx, tx, orgID); err != nil {
		return domain.Team{}, err
	}
	deptID := strings.TrimSpace(attrs.DepartmentID)
	if err := e.teamDepartment(ctx, tx, orgID, deptID); err != nil {
		return domain.Team{}, err
	}
	if err := e.authorize(ctx, tx, actor, mutate("team.create"), authz.Chain{OrgID: orgID, DepartmentID: deptID}); err != nil {
		return domain.Team{}, err
	}
	if err := e.requireActor(ctx, tx, actor); err != nil {
		return domain.Team{}, err
	}
	name := strings.TrimSpace(attrs.Name)
	taken, err := e.Repo.TeamNameTaken(ctx, tx, orgID, name, "")
	if err := ensureName("team", name, taken, err); err != nil {
		return domain.Team{}, err
	}
	now := e.now()
	t := domain.Team{
		ID:           newID(),
		OrgID:        orgID,
		DepartmentID: optionalString(deptID),
		Name:         name,
		Description:  attrs.Description,
		CreatedBy:    actor.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.Repo.InsertTeam(ctx, tx, t); err != nil {
		return domain.Team{}, err
	}
	if err := e.Repo.UpsertMember(ctx, tx, repo.TeamMembers, domain.Membership{
		ScopeID: t.ID, UserID: actor.ID, Role: string(domain.TeamLeader), CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		return domain.Team{}, err
	}
	if err := e.record(ctx, tx, actor, "team.created", "team", t.ID, orgID, "created team %s", t.Name); err != nil {
		return domain.Team{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Team{}, err
	}
	return t, nil
}

func (e Engine) GetTeam(ctx context.Context, actor Actor, id string) (domain.Team, error) {
	t, err := e.activeTeam(ctx, e.DB, id)
	if err != nil {
		return t, err
	}
	if err := e.authorize(ctx, e.DB, actor, read("team.read"), teamChain(t)); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) ListTeams(ctx context.Context, actor Actor, f repo.TeamFilters) ([]domain.Team, error) {
	if _, err := e.activeOrg(ctx, e.DB, f.OrgID); err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, e.DB, actor, read("team.list"), orgChain(f.OrgID)); err != nil {
		return nil, err
	}
	ts, err := e.Repo.ListTeams(ctx, e.DB, f)
	if ts == nil {
		ts = []domain.Team{}
	}
	return ts, err
}

func (e Engine) UpdateTeam(ctx context.Context, actor Actor, id string, attrs TeamUpdate) (domain.Team, error) {
	if err := validate(attrs); err != nil {
		return domain.Team{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Team{}, err
	}
	defer tx.Rollback()

	t, err := e.activeTeam(ctx, tx, id)
	if err != nil {
		return t, err
	}
	if err := e.authorize(ctx, tx, actor, mutate("team.update"), teamChain(t)); err != nil {
		return t, err
	}
	if attrs.Name != nil {
		name := strings.TrimSpace(*attrs.Name)
		if name != t.Name {
			taken, err := e.Repo.TeamNameTaken(ctx, tx, t.OrgID, name, t.ID)
			if err := ensureName("team", name, taken, err); err != nil {
				return t, err
			}
			t.Name = name
		}
	}
	if attrs.Description != nil {
		t.Description = *attrs.Description
	}
	if attrs.DepartmentID != nil {
		deptID := strings.TrimSpace(*attrs.DepartmentID)
		if err := e.teamDepartment(ctx, tx, t.OrgID, deptID); err != nil {
			return t, err
		}
		t.DepartmentID = optionalString(deptID)
	}
	t.UpdatedAt = e.now()
	if err := e.Repo.UpdateTeam(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.record(ctx, tx, actor, "team.updated", "team", t.ID, t.OrgID, "updated team %s", t.Name); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// DeleteTeam soft-deletes the team and, one level down, its active projects.
func (e Engine) DeleteTeam(ctx context.Context, actor Actor, id string) (TeamDeleteResult, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return TeamDeleteResult{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTeam(ctx, tx, id)
	if err != nil {
		return TeamDeleteResult{}, missing(err, "team", id)
	}
	if err := e.authorize(ctx, tx, actor, mutate("team.delete"), teamChain(t)); err != nil {
		return TeamDeleteResult{}, err
	}
	if t.DeletedAt != nil {
		return TeamDeleteResult{}, apperr.AlreadyDeleted("team", id)
	}
	now := e.now()
	if err := e.Repo.SoftDeleteTeam(ctx, tx, id, now); err != nil {
		return TeamDeleteResult{}, err
	}
	n, err := e.cascadeTeamProjects(ctx, tx, t, now)
	if err != nil {
		return TeamDeleteResult{}, err
	}
	if err := e.record(ctx, tx, actor, "team.deleted", "team", t.ID, t.OrgID, "deleted team %s and %d project(s)", t.Name, n); err != nil {
		return TeamDeleteResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return TeamDeleteResult{}, err
	}
	t.DeletedAt = &now
	t.UpdatedAt = now
	return TeamDeleteResult{Team: t, DeletedProjectsCount: n}, nil
}

// cascadeTeamProjects soft-deletes the team's active projects. It does not descend
// into sprints, tasks or memberships.
func (e Engine) cascadeTeamProjects(ctx context.Context, tx *sql.Tx, t domain.Team, at time.Time) (int, error) {
	n, err := e.Repo.SoftDeleteTeamProjects(ctx, tx, t.ID, at)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.log().WithFields(logrus.Fields{"team_id": t.ID, "projects": n}).Info("team delete cascaded to projects")
	}
	return n, nil
}

// RestoreTeam restores the team only; projects deleted with it stay deleted.
func (e Engine) RestoreTeam(ctx context.Context, actor Actor, id string) (domain.Team, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Team{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTeam(ctx, tx, id)
	if err != nil {
		return t, missing(err, "team", id)
	}
	if err := e.authorize(ctx, tx, actor, mutate("team.restore"), teamChain(t)); err != nil {
		return t, err
	}
	if t.DeletedAt == nil {
		return t, apperr.NotDeleted("team", id)
	}
	if _, err := e.activeOrg(ctx, tx, t.OrgID); err != nil {
		return t, err
	}
	taken, err := e.Repo.TeamNameTaken(ctx, tx, t.OrgID, t.Name, t.ID)
	if err := ensureName("team", t.Name, taken, err); err != nil {
		return t, err
	}
	now := e.now()
	if err := e.Repo.RestoreTeam(ctx, tx, id, now); err != nil {
		return t, err
	}
	if err := e.record(ctx, tx, actor, "team.restored", "team", t.ID, t.OrgID, "restored team %s", t.Name); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	t.DeletedAt = nil
	t.UpdatedAt = now
	return t, nil
}

// AddTeamMembers adds MEMBER memberships in one transaction. Leadership moves only
// through TransferLeadership.
func (e Engine) AddTeamMembers(ctx context.Context, actor Actor, teamID string, attrs MembersAttrs) (MembersResult, error) {
	if err := validate(attrs); err != nil {
		return MembersResult{}, err
	}
	if attrs.Role != "" && attrs.Role != string(domain.TeamMember) {
		return MembersResult{}, apperr.Validation("role", "team members are added as MEMBER; use the leader endpoint to transfer leadership")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return MembersResult{}, err
	}
	defer tx.Rollback()

	t, err := e.activeTeam(ctx, tx, teamID)
	if err != nil {
		return MembersResult{}, err
	}
	if err := e.authorize(ctx, tx, actor, mutate("team.add_members"), teamChain(t)); err != nil {
		return MembersResult{}, err
	}
	res, err := e.addMembers(ctx, tx, repo.TeamMembers, t.ID, t.OrgID, attrs.UserIDs, string(domain.TeamMember))
	if err != nil {
		return res, err
	}
	if err := e.record(ctx, tx, actor, "team.members_added", "team", t.ID, t.OrgID, "added %d member(s) to team %s, skipped %d, invalid %d",
		res.AddedCount, t.Name, res.SkippedCount, len(res.Invalid)); err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	return res, nil
}

// RemoveTeamMember rejects removing the team's only LEADER.
func (e Engine) RemoveTeamMember(ctx context.Context, actor Actor, teamID, userID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.activeTeam(ctx, tx, teamID)
	if err != nil {
		return err
	}
	if err := e.authorize(ctx, tx, actor, mutate("team.remove_member"), teamChain(t)); err != nil {
		return err
	}
	if _, err := e.removeMember(ctx, tx, repo.TeamMembers, "team", t.ID, userID, string(domain.TeamLeader)); err != nil {
		return err
	}
	if err := e.record(ctx, tx, actor, "team.member_removed", "team", t.ID, t.OrgID, "removed member %s from team %s", userID, t.Name); err != nil {
		return err
	}
	return tx.Commit()
}

// TransferLeadership makes userID the team's LEADER and demotes the current leaders to
// MEMBER, keeping exactly one LEADER.
func (e Engine) TransferLeadership(ctx context.Context, actor Actor, teamID, userID string) (domain.Membership, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Membership{}, err
	}
	defer tx.Rollback()

	t, err := e.activeTeam(ctx, tx, teamID)
	if err != nil {
		return domain.Membership{}, err
	}
	if err := e.authorize(ctx, tx, actor, mutate("team.transfer_leadership"), teamChain(t)); err != nil {
		return domain.Membership{}, err
	}
	ok, err := e.Repo.IsMember(ctx, tx, repo.OrgMembers, t.OrgID, userID, "")
	if err != nil {
		return domain.Membership{}, err
	}
	if !ok {
		return domain.Membership{}, apperr.NotFoundCode(apperr.CodeNotFound, "user %s is not a member of the organization", userID).
			WithDetail("userId", userID)
	}
	now := e.now()
	members, err := e.Repo.ListMembers(ctx, tx, repo.TeamMembers, t.ID)
	if err != nil {
		return domain.Membership{}, err
	}
	for _, m := range members {
		if m.Role == string(domain.TeamLeader) && m.UserID != userID {
			if err := e.Repo.SetMemberRole(ctx, tx, repo.TeamMembers, t.ID, m.UserID, string(domain.TeamMember), now); err != nil {
				return domain.Membership{}, err
			}
		}
	}
	m := domain.Membership{ScopeID: t.ID, UserID: userID, Role: string(domain.TeamLeader), CreatedAt: now, UpdatedAt: now}
	if prev, err := e.Repo.GetMembership(ctx, tx, repo.TeamMembers, t.ID, userID); err == nil && prev.Active() {
		m.CreatedAt = prev.CreatedAt
	} else if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return domain.Membership{}, err
	}
	if err := e.Repo.UpsertMember(ctx, tx, repo.TeamMembers, m); err != nil {
		return domain.Membership{}, err
	}
	if err := e.record(ctx, tx, actor, "team.leader_changed", "team", t.ID, t.OrgID, "made %s leader of team %s", userID, t.Name); err != nil {
		return domain.Membership{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Membership{}, err
	}
	return m, nil
}

func (e Engine) ListTeamMembers(ctx context.Context, actor Actor, teamID string) ([]domain.Membership, error) {
	t, err := e.activeTeam(ctx, e.DB, teamID)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, e.DB, actor, read("team.members"), teamChain(t)); err != nil {
		return nil, err
	}
	return e.listMembers(ctx, repo.TeamMembers, t.ID)
}
