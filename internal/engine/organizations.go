package engine

import (
	"context"
	"errors"
	"strings"

	"planboard/internal/apperr"
	"planboard/internal/domain"
	"planboard/internal/engine/authz"
	"planboard/internal/repo"
)

type OrganizationAttrs struct {
	Name         string `json:"name" validate:"notblank,max=200"`
	ContactEmail string `json:"contactEmail" validate:"required,email"`
}

type OrganizationUpdate struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,notblank,max=200"`
	ContactEmail *string `json:"contactEmail,omitempty" validate:"omitempty,email"`
}

func orgChain(id string) authz.Chain { return authz.Chain{OrgID: id} }

// CreateOrganization creates the org and makes the actor its OWNER.
func (e Engine) CreateOrganization(ctx context.Context, actor Actor, attrs OrganizationAttrs) (domain.Organization, error) {
	if err := validate(attrs); err != nil {
		return domain.Organization{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Organization{}, err
	}
	defer tx.Rollback()

	if err := e.requireActor(ctx, tx, actor); err != nil {
		return domain.Organization{}, err
	}
	name := strings.TrimSpace(attrs.Name)
	taken, err := e.Repo.OrganizationNameTaken(ctx, tx, name, "")
	if err := ensureName("organization", name, taken, err); err != nil {
		return domain.Organization{}, err
	}
	now := e.now()
	o := domain.Organization{
		ID:           newID(),
		Name:         name,
		ContactEmail: strings.TrimSpace(attrs.ContactEmail),
		JoinCode:     newJoinCode(),
		CreatedBy:    actor.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.Repo.InsertOrganization(ctx, tx, o); err != nil {
		return domain.Organization{}, err
	}
	if err := e.Repo.UpsertMember(ctx, tx, repo.OrgMembers, domain.Membership{
		ScopeID: o.ID, UserID: actor.ID, Role: string(domain.OrgOwner), CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		return domain.Organization{}, err
	}
	if err := e.record(ctx, tx, actor, "organization.created", "organization", o.ID, o.ID, "created organization %s", o.Name); err != nil {
		return domain.Organization{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Organization{}, err
	}
	return o, nil
}

func (e Engine) GetOrganization(ctx context.Context, actor Actor, id string) (domain.Organization, error) {
	o, err := e.activeOrg(ctx, e.DB, id)
	if err != nil {
		return o, err
	}
	if err := e.authorize(ctx, e.DB, actor, read("organization.read"), orgChain(id)); err != nil {
		return o, err
	}
	return o, nil
}

// ListOrganizations lists the actor's organizations; platform admins see all.
func (e Engine) ListOrganizations(ctx context.Context, actor Actor) ([]domain.Organization, error) {
	memberID := actor.ID
	if actor.IsAdmin() {
		memberID = ""
	}
	orgs, err := e.Repo.ListOrganizations(ctx, e.DB, memberID)
	if orgs == nil {
		orgs = []domain.Organization{}
	}
	return orgs, err
}

func (e Engine) UpdateOrganization(ctx context.Context, actor Actor, id string, attrs OrganizationUpdate) (domain.Organization, error) {
	if err := validate(attrs); err != nil {
		return domain.Organization{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Organization{}, err
	}
	defer tx.Rollback()

	o, err := e.activeOrg(ctx, tx, id)
	if err != nil {
		return o, err
	}
	if err := e.authorize(ctx, tx, actor, mutate("organization.update"), orgChain(id)); err != nil {
		return o, err
	}
	if attrs.Name != nil {
		name := strings.TrimSpace(*attrs.Name)
		if name != o.Name {
			taken, err := e.Repo.OrganizationNameTaken(ctx, tx, name, o.ID)
			if err := ensureName("organization", name, taken, err); err != nil {
				return o, err
			}
			o.Name = name
		}
	}
	if attrs.ContactEmail != nil {
		o.ContactEmail = strings.TrimSpace(*attrs.ContactEmail)
	}
	o.UpdatedAt = e.now()
	if err := e.Repo.UpdateOrganization(ctx, tx, o); err != nil {
		return o, err
	}
	if err := e.record(ctx, tx, actor, "organization.updated", "organization", o.ID, o.ID, "updated organization %s", o.Name); err != nil {
		return o, err
	}
	if err := tx.Commit(); err != nil {
		return o, err
	}
	return o, nil
}

// DeleteOrganization soft-deletes the org only; departments, teams and projects keep
// their state.
func (e Engine) DeleteOrganization(ctx context.Context, actor Actor, id string) (domain.Organization, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Organization{}, err
	}
	defer tx.Rollback()

	o, err := e.Repo.GetOrganization(ctx, tx, id)
	if err != nil {
		return o, missing(err, "organization", id)
	}
	if err := e.authorize(ctx, tx, actor, mutate("organization.delete"), orgChain(id)); err != nil {
		return o, err
	}
	if o.DeletedAt != nil {
		return o, apperr.AlreadyDeleted("organization", id)
	}
	now := e.now()
	if err := e.Repo.SoftDeleteOrganization(ctx, tx, id, now); err != nil {
		return o, err
	}
	if err := e.record(ctx, tx, actor, "organization.deleted", "organization", o.ID, o.ID, "deleted organization %s", o.Name); err != nil {
		return o, err
	}
	if err := tx.Commit(); err != nil {
		return o, err
	}
	o.DeletedAt = &now
	o.UpdatedAt = now
	return o, nil
}

func (e Engine) RestoreOrganization(ctx context.Context, actor Actor, id string) (domain.Organization, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Organization{}, err
	}
	defer tx.Rollback()

	o, err := e.Repo.GetOrganization(ctx, tx, id)
	if err != nil {
		return o, missing(err, "organization", id)
	}
	if err := e.authorize(ctx, tx, actor, mutate("organization.restore"), orgChain(id)); err != nil {
		return o, err
	}
	if o.DeletedAt == nil {
		return o, apperr.NotDeleted("organization", id)
	}
	taken, err := e.Repo.OrganizationNameTaken(ctx, tx, o.Name, o.ID)
	if err := ensureName("organization", o.Name, taken, err); err != nil {
		return o, err
	}
	now := e.now()
	if err := e.Repo.RestoreOrganization(ctx, tx, id, now); err != nil {
		return o, err
	}
	if err := e.record(ctx, tx, actor, "organization.restored", "organization", o.ID, o.ID, "restored organization %s", o.Name); err != nil {
		return o, err
	}
	if err := tx.Commit(); err != nil {
		return o, err
	}
	o.DeletedAt = nil
	o.UpdatedAt = now
	return o, nil
}

// JoinOrganization enrolls the actor as MEMBER of the org holding code.
func (e Engine) JoinOrganization(ctx context.Context, actor Actor, code string) (domain.Organization, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.Organization{}, apperr.Validation("joinCode", "joinCode is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Organization{}, err
	}
	defer tx.Rollback()

	if err := e.requireActor(ctx, tx, actor); err != nil {
		return domain.Organization{}, err
	}
	o, err := e.Repo.GetOrganizationByJoinCode(ctx, tx, code)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return o, apperr.NotFoundCode(apperr.CodeNotFound, "no organization uses join code %s", code)
		}
		return o, err
	}
	ok, err := e.Repo.IsMember(ctx, tx, repo.OrgMembers, o.ID, actor.ID, "")
	if err != nil {
		return o, err
	}
	if ok {
		return o, apperr.StateConflict(apperr.CodeAlreadyMember, "already a member of organization %s", o.Name).
			WithDetail("organizationId", o.ID)
	}
	now := e.now()
	if err := e.Repo.UpsertMember(ctx, tx, repo.OrgMembers, domain.Membership{
		ScopeID: o.ID, UserID: actor.ID, Role: string(domain.OrgMember), CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		return o, err
	}
	if err := e.record(ctx, tx, actor, "organization.joined", "organization", o.ID, o.ID, "joined organization %s", o.Name); err != nil {
		return o, err
	}
	if err := tx.Commit(); err != nil {
		return o, err
	}
	return o, nil
}

func (e Engine) RegenerateJoinCode(ctx context.Context, actor Actor, id string) (domain.Organization, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Organization{}, err
	}
	defer tx.Rollback()

	o, err := e.activeOrg(ctx, tx, id)
	if err != nil {
		return o, err
	}
	if err := e.authorize(ctx, tx, actor, mutate("organization.join_code"), orgChain(id)); err != nil {
		return o, err
	}
	o.JoinCode = newJoinCode()
	o.UpdatedAt = e.now()
	if err := e.Repo.UpdateOrganization(ctx, tx, o); err != nil {
		return o, err
	}
	if err := e.record(ctx, tx, actor, "organization.join_code", "organization", o.ID, o.ID, "regenerated join code of %s", o.Name); err != nil {
		return o, err
	}
	if err := tx.Commit(); err != nil {
		return o, err
	}
	return o, nil
}

// VerifyOrganization sets the verification flag. Platform admins only.
func (e Engine) VerifyOrganization(ctx context.Context, actor Actor, id string, verified bool) (domain.Organization, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Organization{}, err
	}
	defer tx.Rollback()

	o, err := e.activeOrg(ctx, tx, id)
	if err != nil {
		return o, err
	}
	if err := e.authorizeWith(ctx, adminOnly, tx, actor, mutate("organization.verify"), orgChain(id)); err != nil {
		return o, err
	}
	if o.Verified == verified {
		return o, nil
	}
	o.Verified = verified
	o.UpdatedAt = e.now()
	if err := e.Repo.UpdateOrganization(ctx, tx, o); err != nil {
		return o, err
	}
	if err := e.record(ctx, tx, actor, "organization.verified", "organization", o.ID, o.ID, "set verified=%t on %s", verified, o.Name); err != nil {
		return o, err
	}
	if err := tx.Commit(); err != nil {
		return o, err
	}
	return o, nil
}

// AddOwner grants OWNER to a user, adding them to the org when needed.
func (e Engine) AddOwner(ctx context.Context, actor Actor, orgID, userID string) (domain.Membership, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Membership{}, err
	}
	defer tx.Rollback()

	o, err := e.activeOrg(ctx, tx, orgID)
	if err != nil {
		return domain.Membership{}, err
	}
	if err := e.authorize(ctx, tx, actor, mutate("organization.add_owner"), orgChain(orgID)); err != nil {
		return domain.Membership{}, err
	}
	u, err := e.Repo.GetUser(ctx, tx, userID)
	if err != nil {
		return domain.Membership{}, missing(err, "user", userID)
	}
	now := e.now()
	m := domain.Membership{ScopeID: orgID, UserID: u.ID, Role: string(domain.OrgOwner), CreatedAt: now, UpdatedAt: now}
	if prev, err := e.Repo.GetMembership(ctx, tx, repo.OrgMembers, orgID, u.ID); err == nil && prev.Active() {
		if prev.Role == string(domain.OrgOwner) {
			return prev, nil
		}
		m.CreatedAt = prev.CreatedAt
	} else if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return domain.Membership{}, err
	}
	if err := e.Repo.UpsertMember(ctx, tx, repo.OrgMembers, m); err != nil {
		return domain.Membership{}, err
	}
	if err := e.record(ctx, tx, actor, "organization.owner_added", "organization", o.ID, o.ID, "added owner %s to %s", u.Email, o.Name); err != nil {
		return domain.Membership{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Membership{}, err
	}
	return m, nil
}

// RemoveOrgMember removes a member. Members may remove themselves; the last OWNER
// cannot be removed.
func (e Engine) RemoveOrgMember(ctx context.Context, actor Actor, orgID, userID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	o, err := e.activeOrg(ctx, tx, orgID)
	if err != nil {
		return err
	}
	if actor.ID != userID {
		if err := e.authorize(ctx, tx, actor, mutate("organization.remove_member"), orgChain(orgID)); err != nil {
			return err
		}
	}
	if _, err := e.removeMember(ctx, tx, repo.OrgMembers, "organization", orgID, userID, string(domain.OrgOwner)); err != nil {
		return err
	}
	if err := e.record(ctx, tx, actor, "organization.member_removed", "organization", o.ID, o.ID, "removed member %s from %s", userID, o.Name); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) ListOrgMembers(ctx context.Context, actor Actor, orgID string) ([]domain.Membership, error) {
	if _, err := e.activeOrg(ctx, e.DB, orgID); err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, e.DB, actor, read("organization.members"), orgChain(orgID)); err != nil {
		return nil, err
	}
	return e.listMembers(ctx, repo.OrgMembers, orgID)
}
