// Package authz decides whether an actor may perform an action on an entity, given the
// actor's global role and its relationships along the entity's owning chain.
package authz

import (
	"context"
	"fmt"
	"strings"

	"planboard/internal/domain"
)

type Kind int

const (
	// Mutate actions need an elevated relationship.
	Mutate Kind = iota
	// Read actions also accept any active organization member.
	Read
	// Contribute actions also accept any active member of the chain's project.
	Contribute
)

type Action struct {
	Name string
	Kind Kind
}

func (a Action) String() string { return a.Name }

type Actor struct {
	ID   string
	Role domain.GlobalRole
}

func (a Actor) IsAdmin() bool { return a.Role == domain.RoleAdmin }

// Chain is the owning chain of the target entity. Empty ids are absent links.
type Chain struct {
	OrgID        string
	DepartmentID string
	TeamID       string
	ProjectID    string
}

// Facts answers relationship questions, normally from the store inside the caller's
// transaction.
type Facts interface {
	IsOrgOwner(ctx context.Context, orgID, userID string) (bool, error)
	IsOrgMember(ctx context.Context, orgID, userID string) (bool, error)
	IsTeamLeader(ctx context.Context, teamID, userID string) (bool, error)
	IsProjectOwner(ctx context.Context, projectID, userID string) (bool, error)
	IsProjectMember(ctx context.Context, projectID, userID string) (bool, error)
	IsDepartmentManager(ctx context.Context, departmentID, userID string) (bool, error)
}

// Rule is one predicate of the union. Role names the relationship for denial messages.
type Rule struct {
	Name    string
	Role    string
	Applies func(Action, Chain) bool
	Check   func(ctx context.Context, f Facts, a Actor, c Chain) (bool, error)
}

type Decision struct {
	Allowed bool
	Rule    string
	Reason  string
}

var (
	PlatformAdmin = Rule{
		Name:    "platform_admin",
		Role:    "platform admin",
		Applies: func(Action, Chain) bool { return true },
		Check: func(_ context.Context, _ Facts, a Actor, _ Chain) (bool, error) {
			return a.IsAdmin(), nil
		},
	}
	OrgOwner = Rule{
		Name:    "org_owner",
		Role:    "organization owner",
		Applies: func(_ Action, c Chain) bool { return c.OrgID != "" },
		Check: func(ctx context.Context, f Facts, a Actor, c Chain) (bool, error) {
			return f.IsOrgOwner(ctx, c.OrgID, a.ID)
		},
	}
	TeamLeader = Rule{
		Name:    "team_leader",
		Role:    "team leader",
		Applies: func(_ Action, c Chain) bool { return c.TeamID != "" },
		Check: func(ctx context.Context, f Facts, a Actor, c Chain) (bool, error) {
			return f.IsTeamLeader(ctx, c.TeamID, a.ID)
		},
	}
	ProjectOwner = Rule{
		Name:    "project_owner",
		Role:    "project owner",
		Applies: func(_ Action, c Chain) bool { return c.ProjectID != "" },
		Check: func(ctx context.Context, f Facts, a Actor, c Chain) (bool, error) {
			return f.IsProjectOwner(ctx, c.ProjectID, a.ID)
		},
	}
	DepartmentManager = Rule{
		Name:    "department_manager",
		Role:    "department manager",
		Applies: func(_ Action, c Chain) bool { return c.DepartmentID != "" },
		Check: func(ctx context.Context, f Facts, a Actor, c Chain) (bool, error) {
			return f.IsDepartmentManager(ctx, c.DepartmentID, a.ID)
		},
	}
	ProjectContributor = Rule{
		Name:    "project_contributor",
		Role:    "project member",
		Applies: func(act Action, c Chain) bool { return act.Kind == Contribute && c.ProjectID != "" },
		Check: func(ctx context.Context, f Facts, a Actor, c Chain) (bool, error) {
			return f.IsProjectMember(ctx, c.ProjectID, a.ID)
		},
	}
	OrgMemberRead = Rule{
		Name:    "org_member_read",
		Role:    "organization member",
		Applies: func(act Action, c Chain) bool { return act.Kind == Read && c.OrgID != "" },
		Check: func(ctx context.Context, f Facts, a Actor, c Chain) (bool, error) {
			return f.IsOrgMember(ctx, c.OrgID, a.ID)
		},
	}
)

// DefaultRules is the full union in evaluation order, cheapest first.
func DefaultRules() []Rule {
	return []Rule{PlatformAdmin, OrgOwner, TeamLeader, ProjectOwner, DepartmentManager, ProjectContributor, OrgMemberRead}
}

type Resolver struct {
	Rules []Rule
}

func New() Resolver {
	return Resolver{Rules: DefaultRules()}
}

// Resolve allows the action when any applicable rule holds. Store failures are returned
// as errors, never as denials.
func (r Resolver) Resolve(ctx context.Context, f Facts, a Actor, act Action, c Chain) (Decision, error) {
	var roles []string
	for _, rule := range r.Rules {
		if !rule.Applies(act, c) {
			continue
		}
		roles = append(roles, rule.Role)
		if a.ID == "" && rule.Name != PlatformAdmin.Name {
			continue
		}
		ok, err := rule.Check(ctx, f, a, c)
		if err != nil {
			return Decision{}, fmt.Errorf("authz %s: %w", rule.Name, err)
		}
		if ok {
			return Decision{Allowed: true, Rule: rule.Name}, nil
		}
	}
	return Decision{Reason: denialReason(act, roles)}, nil
}

func denialReason(act Action, roles []string) string {
	switch len(roles) {
	case 0:
		return fmt.Sprintf("%s is not permitted", act.Name)
	case 1:
		return fmt.Sprintf("%s requires %s", act.Name, roles[0])
	default:
		return fmt.Sprintf("%s requires %s or %s", act.Name, strings.Join(roles[:len(roles)-1], ", "), roles[len(roles)-1])
	}
}
