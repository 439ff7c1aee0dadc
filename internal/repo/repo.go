package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx so every primitive can run inside the
// caller's unit of work.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// WithTx runs fn in a transaction, committing only when fn returns nil.
func (r Repo) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000Z"

func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// tolerate values written by hand or by older tooling
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC(), err
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return FormatTime(*t)
}

type timeScan struct {
	dst *time.Time
}

func (ts timeScan) Scan(src any) error {
	s, err := textOf(src)
	if err != nil {
		return err
	}
	t, err := ParseTime(s)
	if err != nil {
		return err
	}
	*ts.dst = t
	return nil
}

type nullTimeScan struct {
	dst **time.Time
}

func (ts nullTimeScan) Scan(src any) error {
	if src == nil {
		*ts.dst = nil
		return nil
	}
	s, err := textOf(src)
	if err != nil {
		return err
	}
	t, err := ParseTime(s)
	if err != nil {
		return err
	}
	*ts.dst = &t
	return nil
}

func textOf(src any) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case time.Time:
		return FormatTime(v), nil
	default:
		return "", fmt.Errorf("unsupported time value %T", src)
	}
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableString(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	s := ns.String
	return &s
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// softDelete stamps deleted_at on an active row.
func softDelete(ctx context.Context, q DBTX, table, id string, at time.Time) error {
	res, err := q.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET deleted_at=?, updated_at=? WHERE id=? AND deleted_at IS NULL`, table),
		FormatTime(at), FormatTime(at), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// restore clears deleted_at on a deleted row.
func restore(ctx context.Context, q DBTX, table, id string, at time.Time) error {
	res, err := q.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET deleted_at=NULL, updated_at=? WHERE id=? AND deleted_at IS NOT NULL`, table),
		FormatTime(at), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// activeNameID returns the id of an active row in scope named name, excluding
// excludeID, or "" when the name is free.
func activeNameID(ctx context.Context, q DBTX, table, scopeCol, scopeID, name, excludeID string) (string, error) {
	query := fmt.Sprintf(`SELECT id FROM %s WHERE name=? AND deleted_at IS NULL AND id<>?`, table)
	args := []any{name, excludeID}
	if scopeCol != "" {
		query += fmt.Sprintf(` AND %s=?`, scopeCol)
		args = append(args, scopeID)
	}
	var id string
	err := q.QueryRowContext(ctx, query+` LIMIT 1`, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}
