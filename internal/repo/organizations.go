package repo

import (
	"context"
	"time"

	"planboard/internal/domain"
)

const orgColumns = `id,name,contact_email,verified,join_code,created_by,created_at,updated_at,deleted_at`

func scanOrg(s scanner) (domain.Organization, error) {
	var o domain.Organization
	err := s.Scan(&o.ID, &o.Name, &o.ContactEmail, &o.Verified, &o.JoinCode, &o.CreatedBy,
		timeScan{&o.CreatedAt}, timeScan{&o.UpdatedAt}, nullTimeScan{&o.DeletedAt})
	return o, notFound(err)
}

func (r Repo) InsertOrganization(ctx context.Context, q DBTX, o domain.Organization) error {
	_, err := q.ExecContext(ctx, `INSERT INTO organizations(`+orgColumns+`) VALUES (?,?,?,?,?,?,?,?,NULL)`,
		o.ID, o.Name, o.ContactEmail, o.Verified, o.JoinCode, o.CreatedBy, FormatTime(o.CreatedAt), FormatTime(o.UpdatedAt))
	return err
}

func (r Repo) UpdateOrganization(ctx context.Context, q DBTX, o domain.Organization) error {
	res, err := q.ExecContext(ctx, `UPDATE organizations SET name=?, contact_email=?, verified=?, join_code=?, updated_at=? WHERE id=? AND deleted_at IS NULL`,
		o.Name, o.ContactEmail, o.Verified, o.JoinCode, FormatTime(o.UpdatedAt), o.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetOrganization returns the org whether or not it is deleted.
func (r Repo) GetOrganization(ctx context.Context, q DBTX, id string) (domain.Organization, error) {
	return scanOrg(q.QueryRowContext(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id=?`, id))
}

func (r Repo) GetOrganizationByJoinCode(ctx context.Context, q DBTX, code string) (domain.Organization, error) {
	return scanOrg(q.QueryRowContext(ctx, `SELECT `+orgColumns+` FROM organizations WHERE join_code=? AND deleted_at IS NULL`, code))
}

// ListOrganizations lists active orgs; a non-empty memberID limits the result to orgs
// where that user is an active member.
func (r Repo) ListOrganizations(ctx context.Context, q DBTX, memberID string) ([]domain.Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE deleted_at IS NULL`
	var args []any
	if memberID != "" {
		query += ` AND id IN (SELECT org_id FROM org_members WHERE user_id=? AND deleted_at IS NULL)`
		args = append(args, memberID)
	}
	rows, err := q.QueryContext(ctx, query+` ORDER BY name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Organization
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) OrganizationNameTaken(ctx context.Context, q DBTX, name, excludeID string) (string, error) {
	return activeNameID(ctx, q, "organizations", "", "", name, excludeID)
}

func (r Repo) SoftDeleteOrganization(ctx context.Context, q DBTX, id string, at time.Time) error {
	return softDelete(ctx, q, "organizations", id, at)
}

func (r Repo) RestoreOrganization(ctx context.Context, q DBTX, id string, at time.Time) error {
	return restore(ctx, q, "organizations", id, at)
}
