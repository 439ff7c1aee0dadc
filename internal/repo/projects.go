package repo

import (
	"context"
	"time"

	"planboard/internal/domain"
)

const projectColumns = `id,org_id,team_id,name,description,status,priority,progress,start_date,end_date,created_by,created_at,updated_at,deleted_at`

func scanProject(s scanner) (domain.Project, error) {
	var p domain.Project
	err := s.Scan(&p.ID, &p.OrgID, &p.TeamID, &p.Name, &p.Description, &p.Status, &p.Priority, &p.Progress,
		nullTimeScan{&p.StartDate}, nullTimeScan{&p.EndDate}, &p.CreatedBy,
		timeScan{&p.CreatedAt}, timeScan{&p.UpdatedAt}, nullTimeScan{&p.DeletedAt})
	return p, notFound(err)
}

func (r Repo) InsertProject(ctx context.Context, q DBTX, p domain.Project) error {
	_, err := q.ExecContext(ctx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,NULL)`,
		p.ID, p.OrgID, p.TeamID, p.Name, p.Description, p.Status, p.Priority, p.Progress,
		timeArg(p.StartDate), timeArg(p.EndDate), p.CreatedBy, FormatTime(p.CreatedAt), FormatTime(p.UpdatedAt))
	return err
}

func (r Repo) UpdateProject(ctx context.Context, q DBTX, p domain.Project) error {
	res, err := q.ExecContext(ctx, `UPDATE projects SET name=?, description=?, status=?, priority=?, progress=?, start_date=?, end_date=?, updated_at=?
WHERE id=? AND deleted_at IS NULL`,
		p.Name, p.Description, p.Status, p.Priority, p.Progress, timeArg(p.StartDate), timeArg(p.EndDate), FormatTime(p.UpdatedAt), p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetProject(ctx context.Context, q DBTX, id string) (domain.Project, error) {
	return scanProject(q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

type ProjectFilters struct {
	TeamID string
	Status string
}

func (r Repo) ListProjects(ctx context.Context, q DBTX, f ProjectFilters) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE team_id=? AND deleted_at IS NULL`
	args := []any{f.TeamID}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, f.Status)
	}
	rows, err := q.QueryContext(ctx, query+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) ProjectNameTaken(ctx context.Context, q DBTX, teamID, name, excludeID string) (string, error) {
	return activeNameID(ctx, q, "projects", "team_id", teamID, name, excludeID)
}

func (r Repo) SoftDeleteProject(ctx context.Context, q DBTX, id string, at time.Time) error {
	return softDelete(ctx, q, "projects", id, at)
}

func (r Repo) RestoreProject(ctx context.Context, q DBTX, id string, at time.Time) error {
	return restore(ctx, q, "projects", id, at)
}
