package repo

import (
	"context"
	"database/sql"
	"time"

	"planboard/internal/domain"
)

const teamColumns = `id,org_id,department_id,name,description,created_by,created_at,updated_at,deleted_at`

func scanTeam(s scanner) (domain.Team, error) {
	var t domain.Team
	var dept sql.NullString
	err := s.Scan(&t.ID, &t.OrgID, &dept, &t.Name, &t.Description, &t.CreatedBy,
		timeScan{&t.CreatedAt}, timeScan{&t.UpdatedAt}, nullTimeScan{&t.DeletedAt})
	t.DepartmentID = stringPtr(dept)
	return t, notFound(err)
}

func (r Repo) InsertTeam(ctx context.Context, q DBTX, t domain.Team) error {
	_, err := q.ExecContext(ctx, `INSERT INTO teams(`+teamColumns+`) VALUES (?,?,?,?,?,?,?,?,NULL)`,
		t.ID, t.OrgID, nullableString(t.DepartmentID), t.Name, t.Description, t.CreatedBy, FormatTime(t.CreatedAt), FormatTime(t.UpdatedAt))
	return err
}

func (r Repo) UpdateTeam(ctx context.Context, q DBTX, t domain.Team) error {
	res, err := q.ExecContext(ctx, `UPDATE teams SET department_id=?, name=?, description=?, updated_at=? WHERE id=? AND deleted_at IS NULL`,
		nullableString(t.DepartmentID), t.Name, t.Description, FormatTime(t.UpdatedAt), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTeam(ctx context.Context, q DBTX, id string) (domain.Team, error) {
	return scanTeam(q.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE id=?`, id))
}

type TeamFilters struct {
	OrgID        string
	DepartmentID string
}

func (r Repo) ListTeams(ctx context.Context, q DBTX, f TeamFilters) ([]domain.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE org_id=? AND deleted_at IS NULL`
	args := []any{f.OrgID}
	if f.DepartmentID != "" {
		query += ` AND department_id=?`
		args = append(args, f.DepartmentID)
	}
	rows, err := q.QueryContext(ctx, query+` ORDER BY name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) TeamNameTaken(ctx context.Context, q DBTX, orgID, name, excludeID string) (string, error) {
	return activeNameID(ctx, q, "teams", "org_id", orgID, name, excludeID)
}

func (r Repo) SoftDeleteTeam(ctx context.Context, q DBTX, id string, at time.Time) error {
	return softDelete(ctx, q, "teams", id, at)
}

func (r Repo) RestoreTeam(ctx context.Context, q DBTX, id string, at time.Time) error {
	return restore(ctx, q, "teams", id, at)
}

// SoftDeleteTeamProjects stamps deleted_at on the team's active projects and returns how
// many were affected. It touches projects only.
func (r Repo) SoftDeleteTeamProjects(ctx context.Context, q DBTX, teamID string, at time.Time) (int, error) {
	res, err := q.ExecContext(ctx, `UPDATE projects SET deleted_at=?, updated_at=? WHERE team_id=? AND deleted_at IS NULL`,
		FormatTime(at), FormatTime(at), teamID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
