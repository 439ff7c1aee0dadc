package engine

import (
	"context"

	"planboard/internal/domain"
	"planboard/internal/repo"
)

// ListActivity returns an organization's audit trail, newest first. Any active member
// may read it.
func (e Engine) ListActivity(ctx context.Context, actor Actor, f repo.ActivityFilters) ([]domain.ActivityLog, error) {
	if _, err := e.activeOrg(ctx, e.DB, f.OrgID); err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, e.DB, actor, read("activity.list"), orgChain(f.OrgID)); err != nil {
		return nil, err
	}
	logs, err := e.Repo.ListActivity(ctx, e.DB, f)
	if logs == nil {
		logs = []domain.ActivityLog{}
	}
	return logs, err
}
