package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"planboard/internal/apperr"
	"planboard/internal/domain"
	"planboard/internal/repo"
)

// MembersResult reports a membership batch. Ids that were already active members are
// skipped; unknown users and users outside the organization are invalid.
type MembersResult struct {
	Added        []string `json:"added"`
	Skipped      []string `json:"skipped"`
	Invalid      []string `json:"invalid"`
	AddedCount   int      `json:"addedCount"`
	SkippedCount int      `json:"skippedCount"`
}

type MembersAttrs struct {
	UserIDs []string `json:"userIds" validate:"required,min=1,max=200,dive,notblank"`
	Role    string   `json:"role,omitempty"`
}

// addMembers applies the whole batch inside tx. It fails with NotFound only when
// every id is invalid.
func (e Engine) addMembers(ctx context.Context, tx *sql.Tx, scope repo.MemberScope, scopeID, orgID string, userIDs []string, role string) (MembersResult, error) {
	res := MembersResult{Added: []string{}, Skipped: []string{}, Invalid: []string{}}
	now := e.now()
	seen := map[string]bool{}
	for _, raw := range userIDs {
		id := strings.TrimSpace(raw)
		if seen[id] {
			continue
		}
		seen[id] = true
		ok, err := e.Repo.IsMember(ctx, tx, repo.OrgMembers, orgID, id, "")
		if err != nil {
			return res, err
		}
		if !ok {
			res.Invalid = append(res.Invalid, id)
			continue
		}
		m, err := e.Repo.GetMembership(ctx, tx, scope, scopeID, id)
		switch {
		case err == nil && m.Active():
			res.Skipped = append(res.Skipped, id)
			continue
		case err != nil && !errors.Is(err, repo.ErrNotFound):
			return res, err
		}
		if err := e.Repo.UpsertMember(ctx, tx, scope, domain.Membership{
			ScopeID: scopeID, UserID: id, Role: role, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return res, err
		}
		res.Added = append(res.Added, id)
	}
	res.AddedCount = len(res.Added)
	res.SkippedCount = len(res.Skipped)
	if len(res.Added) == 0 && len(res.Skipped) == 0 {
		return res, apperr.NotFoundCode(apperr.CodeNotFound, "none of the users %s were found in the organization", strings.Join(res.Invalid, ", ")).
			WithDetail("invalid", res.Invalid)
	}
	return res, nil
}

// removeMember rejects removing the last holder of elevated.
func (e Engine) removeMember(ctx context.Context, tx *sql.Tx, scope repo.MemberScope, entity, scopeID, userID, elevated string) (domain.Membership, error) {
	m, err := e.Repo.GetMembership(ctx, tx, scope, scopeID, userID)
	if err != nil || !m.Active() {
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return m, err
		}
		return m, apperr.NotFoundCode(apperr.CodeNotFound, "user %s is not a member of %s %s", userID, entity, scopeID).
			WithDetail("userId", userID)
	}
	if m.Role == elevated {
		if err := e.ensureNotLastElevated(ctx, tx, scope, entity, scopeID, elevated); err != nil {
			return m, err
		}
	}
	if err := e.Repo.RemoveMember(ctx, tx, scope, scopeID, userID, e.now()); err != nil {
		return m, err
	}
	return m, nil
}

func (e Engine) ensureNotLastElevated(ctx context.Context, q repo.DBTX, scope repo.MemberScope, entity, scopeID, elevated string) error {
	n, err := e.Repo.CountRole(ctx, q, scope, scopeID, elevated)
	if err != nil {
		return err
	}
	if n <= 1 {
		return apperr.StateConflict(apperr.CodeLastElevatedMember, "cannot remove the only %s of %s %s", elevated, entity, scopeID).
			WithDetail("role", elevated)
	}
	return nil
}

func (e Engine) listMembers(ctx context.Context, scope repo.MemberScope, scopeID string) ([]domain.Membership, error) {
	ms, err := e.Repo.ListMembers(ctx, e.DB, scope, scopeID)
	if ms == nil {
		ms = []domain.Membership{}
	}
	return ms, err
}
