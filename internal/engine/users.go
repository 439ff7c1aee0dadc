package engine

import (
	"context"
	"errors"
	"strings"

	"planboard/internal/apperr"
	"planboard/internal/domain"
	"planboard/internal/repo"
)

type UserAttrs struct {
	Name  string `json:"name" validate:"notblank,max=200"`
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role,omitempty" validate:"omitempty,oneof=USER ADMIN"`
}

// CreateUser registers a user. The first user of an empty store bootstraps the
// platform and becomes ADMIN unless a role is given; afterwards only ADMIN may create
// users.
func (e Engine) CreateUser(ctx context.Context, actor Actor, attrs UserAttrs) (domain.User, error) {
	if err := validate(attrs); err != nil {
		return domain.User{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	count, err := e.Repo.CountUsers(ctx, tx)
	if err != nil {
		return domain.User{}, err
	}
	bootstrap := count == 0
	role := domain.GlobalRole(attrs.Role)
	if bootstrap {
		if role == "" {
			role = domain.RoleAdmin
		}
	} else {
		if err := e.authorizeWith(ctx, adminOnly, tx, actor, mutate("user.create"), authzNoChain); err != nil {
			return domain.User{}, err
		}
		if role == "" {
			role = domain.RoleUser
		}
	}
	email := strings.ToLower(strings.TrimSpace(attrs.Email))
	if existing, err := e.Repo.GetUserByEmail(ctx, tx, email); err == nil {
		return domain.User{}, apperr.Duplicate("user", email, existing.ID)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	now := e.now()
	u := domain.User{
		ID:        newID(),
		Name:      strings.TrimSpace(attrs.Name),
		Email:     email,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	by := actor
	if bootstrap || by.ID == "" {
		by = Actor{ID: u.ID, Role: u.Role}
	}
	if err := e.record(ctx, tx, by, "user.created", "user", u.ID, "", "created user %s (%s)", u.Email, u.Role); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (e Engine) GetUser(ctx context.Context, id string) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, e.DB, id)
	if err != nil {
		return u, missing(err, "user", id)
	}
	return u, nil
}

func (e Engine) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := e.Repo.GetUserByEmail(ctx, e.DB, email)
	if err != nil {
		return u, missing(err, "user", email)
	}
	return u, nil
}

// ListUsers is restricted to platform admins.
func (e Engine) ListUsers(ctx context.Context, actor Actor) ([]domain.User, error) {
	if err := e.authorizeWith(ctx, adminOnly, e.DB, actor, read("user.list"), authzNoChain); err != nil {
		return nil, err
	}
	return e.Repo.ListUsers(ctx, e.DB)
}
