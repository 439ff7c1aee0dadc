package repo

import (
	"context"
	"database/sql"

	"planboard/internal/domain"
)

type ActivityFilters struct {
	OrgID      string
	EntityType string
	EntityID   string
	// BeforeID pages backwards from an activity id.
	BeforeID int64
	Limit    int
}

// ListActivity returns the newest entries first.
func (r Repo) ListActivity(ctx context.Context, q DBTX, f ActivityFilters) ([]domain.ActivityLog, error) {
	query := `SELECT id,actor_id,action,entity_type,entity_id,organization_id,description,created_at FROM activity_logs WHERE 1=1`
	var args []any
	if f.OrgID != "" {
		query += ` AND organization_id=?`
		args = append(args, f.OrgID)
	}
	if f.EntityType != "" {
		query += ` AND entity_type=?`
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		query += ` AND entity_id=?`
		args = append(args, f.EntityID)
	}
	if f.BeforeID > 0 {
		query += ` AND id<?`
		args = append(args, f.BeforeID)
	}
	limit := f.Limit
	switch {
	case limit <= 0:
		limit = 50
	case limit > 500:
		limit = 500
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ActivityLog
	for rows.Next() {
		var (
			a   domain.ActivityLog
			org sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.ActorID, &a.Action, &a.EntityType, &a.EntityID, &org, &a.Description, timeScan{&a.CreatedAt}); err != nil {
			return nil, err
		}
		a.OrganizationID = org.String
		res = append(res, a)
	}
	return res, rows.Err()
}
