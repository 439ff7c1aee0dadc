package engine

import (
	"context"
	"database/sql"
	"strings"

	"planboard/internal/apperr"
	"planboard/internal/domain"
	"planboard/internal/engine/authz"
	"planboard/internal/repo"
)

type DepartmentAttrs struct {
	Name        string `json:"name" validate:"notblank,max=200"`
	Description string `json:"description,omitempty" validate:"max=2000"`
	ManagerID   string `json:"managerId" validate:"notblank"`
}

type DepartmentUpdate struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,notblank,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	ManagerID   *string `json:"managerId,omitempty" validate:"omitempty,notblank"`
}

func departmentChain(d domain.Department) authz.Chain {
	return authz.Chain{OrgID: d.OrgID, DepartmentID: d.ID}
}

func (e Engine) ensureManager(ctx context.Context, tx *sql.Tx, orgID, managerID string) error {
	ok, err := e.Repo.IsMember(ctx, tx, repo.OrgMembers, orgID, managerID, "")
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Validation("managerId", "managerId %s must be an active member of the organization", managerID)
	}
	return nil
}

func (e Engine) CreateDepartment(ctx context.Context, actor Actor, orgID string, attrs DepartmentAttrs) (domain.Department, error) {
	if err := validate(attrs); err != nil {
		return domain.Department{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Department{}, err
	}
	defer tx.Rollback()

	if _, err := e.activeOrg(ctx, tx, orgID); err != nil {
		return domain.Department{}, err
	}
	if err := e.authorize(ctx, tx, actor, mutate("department.create"), orgChain(orgID)); err != nil {
		return domain.Department{}, err
	}
	managerID := strings.TrimSpace(attrs.ManagerID)
	if err := e.ensureManager(ctx, tx, orgID, managerID); err != nil {
		return domain.Department{}, err
	}
	name := strings.TrimSpace(attrs.Name)
	taken, err := e.Repo.DepartmentNameTaken(ctx, tx, orgID, name, "")
	if err := ensureName("department", name, taken, err); err != nil {
		return domain.Department{}, err
	}
	now := e.now()
	d := domain.Department{
		ID:          newID(),
		OrgID:       orgID,
		Name:        name,
		Description: attrs.Description,
		ManagerID:   managerID,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertDepartment(ctx, tx, d); err != nil {
		return domain.Department{}, err
	}
	if err := e.record(ctx, tx, actor, "department.created", "department", d.ID, orgID, "created department %s managed by %s", d.Name, d.ManagerID); err != nil {
		return domain.Department{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Department{}, err
	}
	return d, nil
}

func (e Engine) GetDepartment(ctx context.Context, actor Actor, id string) (domain.Department, error) {
	d, err := e.activeDepartment(ctx, e.DB, id)
	if err != nil {
		return d, err
	}
	if err := e.authorize(ctx, e.DB, actor, read("department.read"), departmentChain(d)); err != nil {
		return d, err
	}
	return d, nil
}

func (e Engine) ListDepartments(ctx context.Context, actor Actor, orgID string) ([]domain.Department, error) {
	if _, err := e.activeOrg(ctx, e.DB, orgID); err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, e.DB, actor, read("department.list"), orgChain(orgID)); err != nil {
		return nil, err
	}
	ds, err := e.Repo.ListDepartments(ctx, e.DB, orgID)
	if ds == nil {
		ds = []domain.Department{}
	}
	return ds, err
}

func (e Engine) UpdateDepartment(ctx context.Context, actor Actor, id string, attrs DepartmentUpdate) (domain.Department, error) {
	if err := validate(attrs); err != nil {
		return domain.Department{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Department{}, err
	}
	defer tx.Rollback()

	d, err := e.activeDepartment(ctx, tx, id)
	if err != nil {
		return d, err
	}
	if err := e.authorize(ctx, tx, actor, mutate("department.update"), departmentChain(d)); err != nil {
		return d, err
	}
	if attrs.Name != nil {
		name := strings.TrimSpace(*attrs.Name)
		if name != d.Name {
			taken, err := e.Repo.DepartmentNameTaken(ctx, tx, d.OrgID, name, d.ID)
			if err := ensureName("department", name, taken, err); err != nil {
				return d, err
			}
			d.Name = name
		}
	}
	if attrs.Description != nil {
		d.Description = *attrs.Description
	}
	if attrs.ManagerID != nil {
		managerID := strings.TrimSpace(*attrs.ManagerID)
		if err := e.ensureManager(ctx, tx, d.OrgID, managerID); err != nil {
			return d, err
		}
		d.ManagerID = managerID
	}
	d.UpdatedAt = e.now()
	if err := e.Repo.UpdateDepartment(ctx, tx, d); err != nil {
		return d, err
	}
	if err := e.record(ctx, tx, actor, "department.updated", "department", d.ID, d.OrgID, "updated department %s", d.Name); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	return d, nil
}

// DeleteDepartment does not cascade: teams of the department stay active.
func (e Engine) DeleteDepartment(ctx context.Context, actor Actor, id string) (domain.Department, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Department{}, err
	}
	defer tx.Rollback()

	d, err := e.Repo.GetDepartment(ctx, tx, id)
	if err != nil {
		return d, missing(err, "department", id)
	}
	if err := e.authorize(ctx, tx, actor, mutate("department.delete"), orgChain(d.OrgID)); err != nil {
		return d, err
	}
	if d.DeletedAt != nil {
		return d, apperr.AlreadyDeleted("department", id)
	}
	now := e.now()
	if err := e.Repo.SoftDeleteDepartment(ctx, tx, id, now); err != nil {
		return d, err
	}
	if err := e.record(ctx, tx, actor, "department.deleted", "department", d.ID, d.OrgID, "deleted department %s", d.Name); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	d.DeletedAt = &now
	d.UpdatedAt = now
	return d, nil
}

func (e Engine) RestoreDepartment(ctx context.Context, actor Actor, id string) (domain.Department, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Department{}, err
	}
	defer tx.Rollback()

	d, err := e.Repo.GetDepartment(ctx, tx, id)
	if err != nil {
		return d, missing(err, "department", id)
	}
	if err := e.authorize(ctx, tx, actor, mutate("department.restore"), orgChain(d.OrgID)); err != nil {
		return d, err
	}
	if d.DeletedAt == nil {
		return d, apperr.NotDeleted("department", id)
	}
	if _, err := e.activeOrg(ctx, tx, d.OrgID); err != nil {
		return d, err
	}
	taken, err := e.Repo.DepartmentNameTaken(ctx, tx, d.OrgID, d.Name, d.ID)
	if err := ensureName("department", d.Name, taken, err); err != nil {
		return d, err
	}
	now := e.now()
	if err := e.Repo.RestoreDepartment(ctx, tx, id, now); err != nil {
		return d, err
	}
	if err := e.record(ctx, tx, actor, "department.restored", "department", d.ID, d.OrgID, "restored department %s", d.Name); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	d.DeletedAt = nil
	d.UpdatedAt = now
	return d, nil
}
