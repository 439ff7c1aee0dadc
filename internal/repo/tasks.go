package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"planboard/internal/domain"
)

const taskColumns = `id,project_id,sprint_id,parent_id,title,description,status,priority,due_date,assigned_to,labels_json,estimated_hours,actual_hours,created_by,created_at,updated_at,deleted_at`

func scanTask(s scanner) (domain.Task, error) {
	var (
		t                  domain.Task
		sprintID, parentID sql.NullString
		assignedTo         sql.NullString
		labelsJSON         string
		estimated, actual  sql.NullFloat64
	)
	err := s.Scan(&t.ID, &t.ProjectID, &sprintID, &parentID, &t.Title, &t.Description, &t.Status, &t.Priority,
		timeScan{&t.DueDate}, &assignedTo, &labelsJSON, &estimated, &actual, &t.CreatedBy,
		timeScan{&t.CreatedAt}, timeScan{&t.UpdatedAt}, nullTimeScan{&t.DeletedAt})
	if err != nil {
		return t, notFound(err)
	}
	t.SprintID = stringPtr(sprintID)
	t.ParentID = stringPtr(parentID)
	t.AssignedTo = stringPtr(assignedTo)
	if estimated.Valid {
		t.EstimatedHours = &estimated.Float64
	}
	if actual.Valid {
		t.ActualHours = &actual.Float64
	}
	t.Labels = []string{}
	if labelsJSON != "" {
		if err := json.Unmarshal([]byte(labelsJSON), &t.Labels); err != nil {
			return t, fmt.Errorf("task %s labels: %w", t.ID, err)
		}
	}
	return t, nil
}

func labelsArg(labels []string) (string, error) {
	if labels == nil {
		labels = []string{}
	}
	b, err := json.Marshal(labels)
	return string(b), err
}

func floatArg(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func (r Repo) InsertTask(ctx context.Context, q DBTX, t domain.Task) error {
	labels, err := labelsArg(t.Labels)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,NULL)`,
		t.ID, t.ProjectID, nullableString(t.SprintID), nullableString(t.ParentID), t.Title, t.Description, t.Status, t.Priority,
		FormatTime(t.DueDate), nullableString(t.AssignedTo), labels, floatArg(t.EstimatedHours), floatArg(t.ActualHours),
		t.CreatedBy, FormatTime(t.CreatedAt), FormatTime(t.UpdatedAt))
	return err
}

func (r Repo) UpdateTask(ctx context.Context, q DBTX, t domain.Task) error {
	labels, err := labelsArg(t.Labels)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `UPDATE tasks SET sprint_id=?, parent_id=?, title=?, description=?, status=?, priority=?, due_date=?,
assigned_to=?, labels_json=?, estimated_hours=?, actual_hours=?, updated_at=? WHERE id=? AND deleted_at IS NULL`,
		nullableString(t.SprintID), nullableString(t.ParentID), t.Title, t.Description, t.Status, t.Priority, FormatTime(t.DueDate),
		nullableString(t.AssignedTo), labels, floatArg(t.EstimatedHours), floatArg(t.ActualHours), FormatTime(t.UpdatedAt), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTask returns the task whether or not it is deleted.
func (r Repo) GetTask(ctx context.Context, q DBTX, id string) (domain.Task, error) {
	return scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

type TaskFilters struct {
	ProjectID  string
	Status     string
	SprintID   string
	AssignedTo string
	ParentID   string
	Label      string
}

// ListTasks returns active tasks matching f.
func (r Repo) ListTasks(ctx context.Context, q DBTX, f TaskFilters) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE project_id=? AND deleted_at IS NULL`
	args := []any{f.ProjectID}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, f.Status)
	}
	if f.SprintID != "" {
		query += ` AND sprint_id=?`
		args = append(args, f.SprintID)
	}
	if f.AssignedTo != "" {
		query += ` AND assigned_to=?`
		args = append(args, f.AssignedTo)
	}
	if f.ParentID != "" {
		query += ` AND parent_id=?`
		args = append(args, f.ParentID)
	}
	if f.Label != "" {
		query += ` AND EXISTS (SELECT 1 FROM json_each(tasks.labels_json) WHERE json_each.value=?)`
		args = append(args, f.Label)
	}
	rows, err := q.QueryContext(ctx, query+` ORDER BY due_date, created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListChildren returns every direct subtask, deleted or not.
func (r Repo) ListChildren(ctx context.Context, q DBTX, parentID string) ([]domain.Task, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE parent_id=? ORDER BY created_at, id`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) SoftDeleteTask(ctx context.Context, q DBTX, id string, at time.Time) error {
	return softDelete(ctx, q, "tasks", id, at)
}

func (r Repo) RestoreTask(ctx context.Context, q DBTX, id string, at time.Time) error {
	return restore(ctx, q, "tasks", id, at)
}

// DeleteTask removes the row. Children must be removed first.
func (r Repo) DeleteTask(ctx context.Context, q DBTX, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
