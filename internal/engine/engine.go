package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"planboard/internal/activity"
	"planboard/internal/apperr"
	"planboard/internal/config"
	"planboard/internal/domain"
	"planboard/internal/engine/authz"
	"planboard/internal/repo"
	"planboard/internal/validation"
)

// Actor is the authenticated caller of every engine operation.
type Actor = authz.Actor

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Activity activity.Writer
	Authz    authz.Resolver
	Config   *config.Config
	Logger   logrus.FieldLogger
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config, logger logrus.FieldLogger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	e := Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Authz:  authz.New(),
		Config: cfg,
		Logger: logger,
		Now:    time.Now,
	}
	e.Activity = activity.Writer{Logger: logger}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) log() logrus.FieldLogger {
	if e.Logger != nil {
		return e.Logger
	}
	return logrus.StandardLogger()
}

func (e Engine) finishedStatuses() []string {
	if e.Config != nil && len(e.Config.Tasks.FinishedStatuses) > 0 {
		return e.Config.Tasks.FinishedStatuses
	}
	return []string{string(domain.TaskDone), string(domain.TaskCanceled)}
}

// storedTime rounds t to the precision timestamps keep in the store.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func mutate(name string) authz.Action     { return authz.Action{Name: name, Kind: authz.Mutate} }
func read(name string) authz.Action       { return authz.Action{Name: name, Kind: authz.Read} }
func contribute(name string) authz.Action { return authz.Action{Name: name, Kind: authz.Contribute} }

// authorize resolves act against facts read through q and turns a denial into a
// Forbidden error carrying the resolver's reason.
func (e Engine) authorize(ctx context.Context, q repo.DBTX, actor Actor, act authz.Action, chain authz.Chain) error {
	return e.authorizeWith(ctx, e.Authz, q, actor, act, chain)
}

func (e Engine) authorizeWith(ctx context.Context, r authz.Resolver, q repo.DBTX, actor Actor, act authz.Action, chain authz.Chain) error {
	if len(r.Rules) == 0 {
		r = authz.New()
	}
	d, err := r.Resolve(ctx, authz.StoreFacts{Repo: e.Repo, Q: q}, actor, act, chain)
	if err != nil {
		return err
	}
	if !d.Allowed {
		e.log().WithFields(logrus.Fields{"action": act.Name, "actor_id": actor.ID}).Debug(d.Reason)
		return apperr.Forbidden(d.Reason)
	}
	return nil
}

var (
	adminOnly    = authz.Resolver{Rules: []authz.Rule{authz.PlatformAdmin}}
	authzNoChain = authz.Chain{}
)

// record appends the activity entry for a mutation inside tx.
func (e Engine) record(ctx context.Context, tx *sql.Tx, actor Actor, action, entityType, entityID, orgID, format string, args ...any) error {
	w := e.Activity
	w.Now = e.now
	return w.Append(ctx, tx, activity.Entry{
		ActorID:     actor.ID,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		OrgID:       orgID,
		Description: fmt.Sprintf(format, args...),
	})
}

func newID() string {
	return uuid.NewString()
}

func newJoinCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

func validate(attrs any) error {
	return validation.Struct(attrs)
}

// validateEnum reports value as a field error naming allowed when it is not one of them.
func validateEnum(field, value string, allowed []string) error {
	return validation.Var(field, value, "required,oneof="+strings.Join(allowed, " "))
}

// missing maps a repo miss to a NotFound for entity.
func missing(err error, entity, id string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.NotFound(entity, id)
	}
	return err
}

func (e Engine) requireActor(ctx context.Context, q repo.DBTX, actor Actor) error {
	if actor.ID == "" {
		return apperr.Forbidden("an authenticated actor is required")
	}
	if _, err := e.Repo.GetUser(ctx, q, actor.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return apperr.Forbidden(fmt.Sprintf("actor %s is not an active user", actor.ID))
		}
		return err
	}
	return nil
}

func (e Engine) activeOrg(ctx context.Context, q repo.DBTX, id string) (domain.Organization, error) {
	o, err := e.Repo.GetOrganization(ctx, q, id)
	if err != nil {
		return o, missing(err, "organization", id)
	}
	if o.DeletedAt != nil {
		return o, apperr.NotFound("organization", id)
	}
	return o, nil
}

func (e Engine) activeDepartment(ctx context.Context, q repo.DBTX, id string) (domain.Department, error) {
	d, err := e.Repo.GetDepartment(ctx, q, id)
	if err != nil {
		return d, missing(err, "department", id)
	}
	if d.DeletedAt != nil {
		return d, apperr.NotFound("department", id)
	}
	return d, nil
}

func (e Engine) activeTeam(ctx context.Context, q repo.DBTX, id string) (domain.Team, error) {
	t, err := e.Repo.GetTeam(ctx, q, id)
	if err != nil {
		return t, missing(err, "team", id)
	}
	if t.DeletedAt != nil {
		return t, apperr.NotFound("team", id)
	}
	return t, nil
}

func (e Engine) activeProject(ctx context.Context, q repo.DBTX, id string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, q, id)
	if err != nil {
		return p, missing(err, "project", id)
	}
	if p.DeletedAt != nil {
		return p, apperr.NotFound("project", id)
	}
	return p, nil
}

func (e Engine) activeSprint(ctx context.Context, q repo.DBTX, id string) (domain.Sprint, error) {
	s, err := e.Repo.GetSprint(ctx, q, id)
	if err != nil {
		return s, missing(err, "sprint", id)
	}
	if s.DeletedAt != nil {
		return s, apperr.NotFound("sprint", id)
	}
	return s, nil
}

func (e Engine) activeTask(ctx context.Context, q repo.DBTX, id string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, q, id)
	if err != nil {
		return t, missing(err, "task", id)
	}
	if t.DeletedAt != nil {
		return t, apperr.NotFound("task", id)
	}
	return t, nil
}

func teamChain(t domain.Team) authz.Chain {
	c := authz.Chain{OrgID: t.OrgID, TeamID: t.ID}
	if t.DepartmentID != nil {
		c.DepartmentID = *t.DepartmentID
	}
	return c
}

// projectChain resolves the owning chain of a project, including the team's
// department. The team is read even when deleted.
func (e Engine) projectChain(ctx context.Context, q repo.DBTX, p domain.Project) (authz.Chain, error) {
	c := authz.Chain{OrgID: p.OrgID, TeamID: p.TeamID, ProjectID: p.ID}
	t, err := e.Repo.GetTeam(ctx, q, p.TeamID)
	if err != nil {
		return c, missing(err, "team", p.TeamID)
	}
	if t.DepartmentID != nil {
		c.DepartmentID = *t.DepartmentID
	}
	return c, nil
}

// ensureName returns Duplicate when taken names an active sibling.
func ensureName(entity, name string, taken string, err error) error {
	if err != nil {
		return err
	}
	if taken != "" {
		return apperr.Duplicate(entity, name, taken)
	}
	return nil
}

func checkWindow(start, end *time.Time) error {
	if start == nil || end == nil {
		return nil
	}
	if !start.Before(*end) {
		return apperr.BadRequest(apperr.CodeInvalidWindow, "startDate must be before endDate").
			WithDetail("startDate", start.UTC().Format(time.RFC3339)).
			WithDetail("endDate", end.UTC().Format(time.RFC3339))
	}
	return nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
