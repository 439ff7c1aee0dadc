package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"planboard/internal/domain"
)

// MemberScope selects one of the membership tables. All three share a layout keyed by
// (scope id, user id).
type MemberScope struct {
	table    string
	scopeCol string
}

var (
	OrgMembers     = MemberScope{table: "org_members", scopeCol: "org_id"}
	TeamMembers    = MemberScope{table: "team_members", scopeCol: "team_id"}
	ProjectMembers = MemberScope{table: "project_members", scopeCol: "project_id"}
)

func (s MemberScope) String() string { return s.table }

func (s MemberScope) columns() string {
	return fmt.Sprintf(`%s,user_id,role,created_at,updated_at,deleted_at`, s.scopeCol)
}

func scanMembership(sc scanner) (domain.Membership, error) {
	var m domain.Membership
	err := sc.Scan(&m.ScopeID, &m.UserID, &m.Role, timeScan{&m.CreatedAt}, timeScan{&m.UpdatedAt}, nullTimeScan{&m.DeletedAt})
	return m, notFound(err)
}

// GetMembership returns the row even when it was removed; check Active().
func (r Repo) GetMembership(ctx context.Context, q DBTX, scope MemberScope, scopeID, userID string) (domain.Membership, error) {
	return scanMembership(q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s=? AND user_id=?`, scope.columns(), scope.table, scope.scopeCol),
		scopeID, userID))
}

// UpsertMember inserts the membership or reactivates a removed one with the new role.
func (r Repo) UpsertMember(ctx context.Context, q DBTX, scope MemberScope, m domain.Membership) error {
	_, err := q.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s(%s) VALUES (?,?,?,?,?,NULL)
ON CONFLICT(%s,user_id) DO UPDATE SET role=excluded.role, updated_at=excluded.updated_at, deleted_at=NULL`,
		scope.table, scope.columns(), scope.scopeCol),
		m.ScopeID, m.UserID, m.Role, FormatTime(m.CreatedAt), FormatTime(m.UpdatedAt))
	return err
}

func (r Repo) RemoveMember(ctx context.Context, q DBTX, scope MemberScope, scopeID, userID string, at time.Time) error {
	res, err := q.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET deleted_at=?, updated_at=? WHERE %s=? AND user_id=? AND deleted_at IS NULL`, scope.table, scope.scopeCol),
		FormatTime(at), FormatTime(at), scopeID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetMemberRole(ctx context.Context, q DBTX, scope MemberScope, scopeID, userID, role string, at time.Time) error {
	res, err := q.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET role=?, updated_at=? WHERE %s=? AND user_id=? AND deleted_at IS NULL`, scope.table, scope.scopeCol),
		role, FormatTime(at), scopeID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMembers returns active memberships of active users.
func (r Repo) ListMembers(ctx context.Context, q DBTX, scope MemberScope, scopeID string) ([]domain.Membership, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`SELECT m.%s,m.user_id,m.role,m.created_at,m.updated_at,m.deleted_at
FROM %s m JOIN users u ON u.id=m.user_id
WHERE m.%s=? AND m.deleted_at IS NULL AND u.deleted_at IS NULL
ORDER BY m.created_at, m.user_id`, scope.scopeCol, scope.table, scope.scopeCol), scopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// CountRole counts active memberships holding role.
func (r Repo) CountRole(ctx context.Context, q DBTX, scope MemberScope, scopeID, role string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s=? AND role=? AND deleted_at IS NULL`, scope.table, scope.scopeCol),
		scopeID, role).Scan(&n)
	return n, err
}

// IsMember reports an active membership of an active user. An empty role matches any.
func (r Repo) IsMember(ctx context.Context, q DBTX, scope MemberScope, scopeID, userID, role string) (bool, error) {
	query := fmt.Sprintf(`SELECT 1 FROM %s m JOIN users u ON u.id=m.user_id
WHERE m.%s=? AND m.user_id=? AND m.deleted_at IS NULL AND u.deleted_at IS NULL`, scope.table, scope.scopeCol)
	args := []any{scopeID, userID}
	if role != "" {
		query += ` AND m.role=?`
		args = append(args, role)
	}
	var one int
	err := q.QueryRowContext(ctx, query+` LIMIT 1`, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}
