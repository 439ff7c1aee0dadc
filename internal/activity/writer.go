// Package activity appends audit entries inside the caller's transaction. A failed
// append must fail the mutation it describes, so Append never swallows errors.
package activity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"planboard/internal/repo"
)

// Entry describes one mutation.
type Entry struct {
	ActorID     string
	Action      string
	EntityType  string
	EntityID    string
	OrgID       string
	Description string
}

type Writer struct {
	Now    func() time.Time
	Logger logrus.FieldLogger
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) error {
	if e.ActorID == "" || e.Action == "" || e.EntityType == "" || e.EntityID == "" {
		return fmt.Errorf("activity entry incomplete: %+v", e)
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := repo.FormatTime(now())
	if _, err := tx.ExecContext(ctx, `INSERT INTO activity_logs(actor_id,action,entity_type,entity_id,organization_id,description,created_at) VALUES (?,?,?,?,?,?,?)`,
		e.ActorID, e.Action, e.EntityType, e.EntityID, nullable(e.OrgID), e.Description, ts); err != nil {
		return fmt.Errorf("append activity %s: %w", e.Action, err)
	}
	if w.Logger != nil {
		w.Logger.WithFields(logrus.Fields{
			"action":    e.Action,
			"entity":    e.EntityType,
			"entity_id": e.EntityID,
			"actor_id":  e.ActorID,
		}).Debug(e.Description)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
