package repo

import (
	"context"
	"time"

	"planboard/internal/domain"
)

const departmentColumns = `id,org_id,name,description,manager_id,created_by,created_at,updated_at,deleted_at`

func scanDepartment(s scanner) (domain.Department, error) {
	var d domain.Department
	err := s.Scan(&d.ID, &d.OrgID, &d.Name, &d.Description, &d.ManagerID, &d.CreatedBy,
		timeScan{&d.CreatedAt}, timeScan{&d.UpdatedAt}, nullTimeScan{&d.DeletedAt})
	return d, notFound(err)
}

func (r Repo) InsertDepartment(ctx context.Context, q DBTX, d domain.Department) error {
	_, err := q.ExecContext(ctx, `INSERT INTO departments(`+departmentColumns+`) VALUES (?,?,?,?,?,?,?,?,NULL)`,
		d.ID, d.OrgID, d.Name, d.Description, d.ManagerID, d.CreatedBy, FormatTime(d.CreatedAt), FormatTime(d.UpdatedAt))
	return err
}

func (r Repo) UpdateDepartment(ctx context.Context, q DBTX, d domain.Department) error {
	res, err := q.ExecContext(ctx, `UPDATE departments SET name=?, description=?, manager_id=?, updated_at=? WHERE id=? AND deleted_at IS NULL`,
		d.Name, d.Description, d.ManagerID, FormatTime(d.UpdatedAt), d.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetDepartment(ctx context.Context, q DBTX, id string) (domain.Department, error) {
	return scanDepartment(q.QueryRowContext(ctx, `SELECT `+departmentColumns+` FROM departments WHERE id=?`, id))
}

func (r Repo) ListDepartments(ctx context.Context, q DBTX, orgID string) ([]domain.Department, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+departmentColumns+` FROM departments WHERE org_id=? AND deleted_at IS NULL ORDER BY name`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) DepartmentNameTaken(ctx context.Context, q DBTX, orgID, name, excludeID string) (string, error) {
	return activeNameID(ctx, q, "departments", "org_id", orgID, name, excludeID)
}

func (r Repo) SoftDeleteDepartment(ctx context.Context, q DBTX, id string, at time.Time) error {
	return softDelete(ctx, q, "departments", id, at)
}

func (r Repo) RestoreDepartment(ctx context.Context, q DBTX, id string, at time.Time) error {
	return restore(ctx, q, "departments", id, at)
}
