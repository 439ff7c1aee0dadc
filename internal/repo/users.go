package repo

import (
	"context"

	"planboard/internal/domain"
)

const userColumns = `id,name,email,role,created_at,updated_at,deleted_at`

func scanUser(s scanner) (domain.User, error) {
	var u domain.User
	err := s.Scan(&u.ID, &u.Name, &u.Email, &u.Role, timeScan{&u.CreatedAt}, timeScan{&u.UpdatedAt}, nullTimeScan{&u.DeletedAt})
	return u, notFound(err)
}

func (r Repo) InsertUser(ctx context.Context, q DBTX, u domain.User) error {
	_, err := q.ExecContext(ctx, `INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?,?,?)`,
		u.ID, u.Name, u.Email, u.Role, FormatTime(u.CreatedAt), FormatTime(u.UpdatedAt), timeArg(u.DeletedAt))
	return err
}

// GetUser returns an active user.
func (r Repo) GetUser(ctx context.Context, q DBTX, id string) (domain.User, error) {
	return scanUser(q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=? AND deleted_at IS NULL`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, q DBTX, email string) (domain.User, error) {
	return scanUser(q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=? AND deleted_at IS NULL`, email))
}

func (r Repo) CountUsers(ctx context.Context, q DBTX) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE deleted_at IS NULL`).Scan(&n)
	return n, err
}

func (r Repo) ListUsers(ctx context.Context, q DBTX) ([]domain.User, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
