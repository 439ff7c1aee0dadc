package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planboard/internal/domain"
)

// fakeFacts keys every relationship by "scope|user".
type fakeFacts struct {
	owners, members, leaders, projectOwners, projectMembers, managers map[string]bool
	err                                                               error
}

func key(scope, user string) string { return scope + "|" + user }

func (f fakeFacts) IsOrgOwner(_ context.Context, org, user string) (bool, error) {
	return f.owners[key(org, user)], f.err
}
func (f fakeFacts) IsOrgMember(_ context.Context, org, user string) (bool, error) {
	return f.members[key(org, user)], f.err
}
func (f fakeFacts) IsTeamLeader(_ context.Context, team, user string) (bool, error) {
	return f.leaders[key(team, user)], f.err
}
func (f fakeFacts) IsProjectOwner(_ context.Context, p, user string) (bool, error) {
	return f.projectOwners[key(p, user)], f.err
}
func (f fakeFacts) IsProjectMember(_ context.Context, p, user string) (bool, error) {
	return f.projectMembers[key(p, user)], f.err
}
func (f fakeFacts) IsDepartmentManager(_ context.Context, d, user string) (bool, error) {
	return f.managers[key(d, user)], f.err
}

var (
	teamUpdate = Action{Name: "team.update", Kind: Mutate}
	teamRead   = Action{Name: "team.read", Kind: Read}
	taskCreate = Action{Name: "task.create", Kind: Contribute}
)

func TestEachRuleGrantsIndependently(t *testing.T) {
	ctx := context.Background()
	chain := Chain{OrgID: "o1", DepartmentID: "d1", TeamID: "t1", ProjectID: "p1"}
	cases := []struct {
		name  string
		facts fakeFacts
		actor Actor
		rule  string
	}{
		{"admin", fakeFacts{}, Actor{ID: "u", Role: domain.RoleAdmin}, "platform_admin"},
		{"owner", fakeFacts{owners: map[string]bool{"o1|u": true}}, Actor{ID: "u"}, "org_owner"},
		{"leader", fakeFacts{leaders: map[string]bool{"t1|u": true}}, Actor{ID: "u"}, "team_leader"},
		{"project owner", fakeFacts{projectOwners: map[string]bool{"p1|u": true}}, Actor{ID: "u"}, "project_owner"},
		{"manager", fakeFacts{managers: map[string]bool{"d1|u": true}}, Actor{ID: "u"}, "department_manager"},
	}
	r := New()
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d, err := r.Resolve(ctx, c.facts, c.actor, teamUpdate, chain)
			require.NoError(t, err)
			assert.True(t, d.Allowed)
			assert.Equal(t, c.rule, d.Rule)
		})
	}
}

func TestMembershipOnlyGrantsReads(t *testing.T) {
	ctx := context.Background()
	facts := fakeFacts{members: map[string]bool{"o1|u": true}}
	chain := Chain{OrgID: "o1", TeamID: "t1"}
	r := New()

	d, err := r.Resolve(ctx, facts, Actor{ID: "u"}, teamRead, chain)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, "org_member_read", d.Rule)

	d, err = r.Resolve(ctx, facts, Actor{ID: "u"}, teamUpdate, chain)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "team.update requires platform admin, organization owner or team leader", d.Reason)
}

func TestProjectMemberContributes(t *testing.T) {
	ctx := context.Background()
	facts := fakeFacts{projectMembers: map[string]bool{"p1|dev": true}}
	chain := Chain{OrgID: "o1", TeamID: "t1", ProjectID: "p1"}
	r := New()

	d, err := r.Resolve(ctx, facts, Actor{ID: "dev"}, taskCreate, chain)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = r.Resolve(ctx, facts, Actor{ID: "dev"}, Action{Name: "sprint.create", Kind: Mutate}, chain)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestRuleOnlyAppliesToPresentChainLinks(t *testing.T) {
	facts := fakeFacts{leaders: map[string]bool{"|u": true}}
	d, err := New().Resolve(context.Background(), facts, Actor{ID: "u"}, teamUpdate, Chain{OrgID: "o1"})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "team.update requires platform admin or organization owner", d.Reason)
}

func TestStoreErrorsAreNotDenials(t *testing.T) {
	boom := errors.New("db locked")
	_, err := New().Resolve(context.Background(), fakeFacts{err: boom}, Actor{ID: "u"}, teamUpdate, Chain{OrgID: "o1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
