package authz

import (
	"context"
	"errors"

	"planboard/internal/domain"
	"planboard/internal/repo"
)

// StoreFacts reads relationships through Q, usually the caller's transaction.
type StoreFacts struct {
	Repo repo.Repo
	Q    repo.DBTX
}

func (s StoreFacts) IsOrgOwner(ctx context.Context, orgID, userID string) (bool, error) {
	return s.Repo.IsMember(ctx, s.Q, repo.OrgMembers, orgID, userID, string(domain.OrgOwner))
}

func (s StoreFacts) IsOrgMember(ctx context.Context, orgID, userID string) (bool, error) {
	return s.Repo.IsMember(ctx, s.Q, repo.OrgMembers, orgID, userID, "")
}

// IsTeamLeader holds for the team's creator and for an active LEADER member.
func (s StoreFacts) IsTeamLeader(ctx context.Context, teamID, userID string) (bool, error) {
	t, err := s.Repo.GetTeam(ctx, s.Q, teamID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if t.CreatedBy == userID {
		return true, nil
	}
	return s.Repo.IsMember(ctx, s.Q, repo.TeamMembers, teamID, userID, string(domain.TeamLeader))
}

// IsProjectOwner holds for the project's creator and for an active PROJECT_OWNER member.
func (s StoreFacts) IsProjectOwner(ctx context.Context, projectID, userID string) (bool, error) {
	p, err := s.Repo.GetProject(ctx, s.Q, projectID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if p.CreatedBy == userID {
		return true, nil
	}
	return s.Repo.IsMember(ctx, s.Q, repo.ProjectMembers, projectID, userID, string(domain.ProjectOwner))
}

func (s StoreFacts) IsProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	return s.Repo.IsMember(ctx, s.Q, repo.ProjectMembers, projectID, userID, "")
}

func (s StoreFacts) IsDepartmentManager(ctx context.Context, departmentID, userID string) (bool, error) {
	d, err := s.Repo.GetDepartment(ctx, s.Q, departmentID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return d.DeletedAt == nil && d.ManagerID == userID, nil
}
