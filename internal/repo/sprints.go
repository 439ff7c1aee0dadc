package repo

import (
	"context"
	"strings"
	"time"

	"planboard/internal/domain"
)

const sprintColumns = `id,project_id,name,description,goal,status,start_date,end_date,order_index,created_by,created_at,updated_at,deleted_at`

func scanSprint(s scanner) (domain.Sprint, error) {
	var sp domain.Sprint
	err := s.Scan(&sp.ID, &sp.ProjectID, &sp.Name, &sp.Description, &sp.Goal, &sp.Status,
		timeScan{&sp.StartDate}, timeScan{&sp.EndDate}, &sp.Order, &sp.CreatedBy,
		timeScan{&sp.CreatedAt}, timeScan{&sp.UpdatedAt}, nullTimeScan{&sp.DeletedAt})
	return sp, notFound(err)
}

func (r Repo) InsertSprint(ctx context.Context, q DBTX, s domain.Sprint) error {
	_, err := q.ExecContext(ctx, `INSERT INTO sprints(`+sprintColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,NULL)`,
		s.ID, s.ProjectID, s.Name, s.Description, s.Goal, s.Status, FormatTime(s.StartDate), FormatTime(s.EndDate),
		s.Order, s.CreatedBy, FormatTime(s.CreatedAt), FormatTime(s.UpdatedAt))
	return err
}

func (r Repo) UpdateSprint(ctx context.Context, q DBTX, s domain.Sprint) error {
	res, err := q.ExecContext(ctx, `UPDATE sprints SET name=?, description=?, goal=?, status=?, start_date=?, end_date=?, order_index=?, updated_at=?
WHERE id=? AND deleted_at IS NULL`,
		s.Name, s.Description, s.Goal, s.Status, FormatTime(s.StartDate), FormatTime(s.EndDate), s.Order, FormatTime(s.UpdatedAt), s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetSprint(ctx context.Context, q DBTX, id string) (domain.Sprint, error) {
	return scanSprint(q.QueryRowContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE id=?`, id))
}

// ListSprints returns the project's active sprints by order index, then start.
func (r Repo) ListSprints(ctx context.Context, q DBTX, projectID string) ([]domain.Sprint, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE project_id=? AND deleted_at IS NULL ORDER BY order_index, start_date, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Sprint
	for rows.Next() {
		s, err := scanSprint(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// OverlappingSprint returns the first active sprint of the project, other than excludeID,
// whose window intersects [start,end).
func (r Repo) OverlappingSprint(ctx context.Context, q DBTX, projectID string, start, end time.Time, excludeID string) (domain.Sprint, error) {
	return scanSprint(q.QueryRowContext(ctx, `SELECT `+sprintColumns+` FROM sprints
WHERE project_id=? AND deleted_at IS NULL AND id<>? AND start_date < ? AND end_date > ?
ORDER BY start_date LIMIT 1`, projectID, excludeID, FormatTime(end), FormatTime(start)))
}

func (r Repo) SprintNameTaken(ctx context.Context, q DBTX, projectID, name, excludeID string) (string, error) {
	return activeNameID(ctx, q, "sprints", "project_id", projectID, name, excludeID)
}

// NextSprintOrder is one past the highest order index in the project, active or not.
func (r Repo) NextSprintOrder(ctx context.Context, q DBTX, projectID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(order_index), 0) + 1 FROM sprints WHERE project_id=?`, projectID).Scan(&n)
	return n, err
}

// CountUnfinishedSprintTasks counts active tasks of the sprint whose status is not in
// finished.
func (r Repo) CountUnfinishedSprintTasks(ctx context.Context, q DBTX, sprintID string, finished []string) (int, error) {
	query := `SELECT COUNT(*) FROM tasks WHERE sprint_id=? AND deleted_at IS NULL`
	args := []any{sprintID}
	if len(finished) > 0 {
		query += ` AND status NOT IN (` + strings.TrimSuffix(strings.Repeat("?,", len(finished)), ",") + `)`
		for _, s := range finished {
			args = append(args, s)
		}
	}
	var n int
	err := q.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (r Repo) SoftDeleteSprint(ctx context.Context, q DBTX, id string, at time.Time) error {
	return softDelete(ctx, q, "sprints", id, at)
}

func (r Repo) RestoreSprint(ctx context.Context, q DBTX, id string, at time.Time) error {
	return restore(ctx, q, "sprints", id, at)
}
