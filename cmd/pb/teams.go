package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"planboard/internal/app"
	"planboard/internal/engine"
	"planboard/internal/repo"
)

func teamCmd() *cobra.Command {
	team := &cobra.Command{Use: "team", Short: "Manage teams"}

	var name, description, department string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a team led by the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), nil, func(ctx context.Context, a *app.App, actor engine.Actor, orgID string) error {
				t, err := a.Engine.CreateTeam(ctx, actor, orgID, engine.TeamAttrs{Name: name, Description: description, DepartmentID: department})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("Created team %s\n", t.ID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "team name")
	create.Flags().StringVar(&description, "description", "", "description")
	create.Flags().StringVar(&department, "department", "", "department id")

	var filterDept string
	list := &cobra.Command{
		Use:   "list",
		Short: "List teams in the current organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), nil, func(ctx context.Context, a *app.App, actor engine.Actor, orgID string) error {
				items, err := a.Engine.ListTeams(ctx, actor, repo.TeamFilters{OrgID: orgID, DepartmentID: filterDept})
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, t := range items {
					dept := ""
					if t.DepartmentID != nil {
						dept = *t.DepartmentID
					}
					rows = append(rows, table.Row{t.ID, t.Name, dept})
				}
				return printJSONOrTable(items, table.Row{"ID", "Name", "Department"}, rows)
			})
		},
	}
	list.Flags().StringVar(&filterDept, "department", "", "only teams of this department")

	show := &cobra.Command{
		Use:   "show <team-id>",
		Short: "Show a team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				t, err := a.Engine.GetTeam(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}

	var newName, newDescription, newDepartment string
	update := &cobra.Command{
		Use:   "update <team-id>",
		Short: "Update a team (an empty --department detaches it)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				t, err := a.Engine.UpdateTeam(ctx, actor, args[0], engine.TeamUpdate{
					Name:         optionalString(cmd, "name", newName),
					Description:  optionalString(cmd, "description", newDescription),
					DepartmentID: optionalString(cmd, "department", newDepartment),
				})
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	update.Flags().StringVar(&newName, "name", "", "new name")
	update.Flags().StringVar(&newDescription, "description", "", "new description")
	update.Flags().StringVar(&newDepartment, "department", "", "department id")

	del := &cobra.Command{
		Use:   "delete <team-id>",
		Short: "Soft delete a team and its projects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				res, err := a.Engine.DeleteTeam(ctx, actor, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Deleted team %s and %d project(s)\n", res.Team.ID, res.DeletedProjectsCount)
				return nil
			})
		},
	}

	restore := &cobra.Command{
		Use:   "restore <team-id>",
		Short: "Restore a team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				t, err := a.Engine.RestoreTeam(ctx, actor, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Restored team %s\n", t.ID)
				return nil
			})
		},
	}

	members := &cobra.Command{
		Use:   "members <team-id>",
		Short: "List team members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				items, err := a.Engine.ListTeamMembers(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printMembers(items)
			})
		},
	}

	addMembers := &cobra.Command{
		Use:   "add-members <team-id> <user-id>...",
		Short: "Add organization members to a team",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				res, err := a.Engine.AddTeamMembers(ctx, actor, args[0], engine.MembersAttrs{UserIDs: args[1:]})
				if err != nil {
					return err
				}
				return printMembersResult(res)
			})
		},
	}

	removeMember := &cobra.Command{
		Use:   "remove-member <team-id> <user-id>",
		Short: "Remove a team member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				if err := a.Engine.RemoveTeamMember(ctx, actor, args[0], args[1]); err != nil {
					return err
				}
				fmt.Printf("Removed %s from team %s\n", args[1], args[0])
				return nil
			})
		},
	}

	leader := &cobra.Command{
		Use:   "leader <team-id> <user-id>",
		Short: "Hand team leadership to another member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				m, err := a.Engine.TransferLeadership(ctx, actor, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Printf("%s now leads team %s\n", m.UserID, args[0])
				return nil
			})
		},
	}

	team.AddCommand(create, list, show, update, del, restore, members, addMembers, removeMember, leader)
	return team
}

func printMembersResult(res engine.MembersResult) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	fmt.Printf("Added %d, skipped %d\n", res.AddedCount, res.SkippedCount)
	for _, id := range res.Invalid {
		fmt.Printf("  invalid: %s\n", id)
	}
	return nil
}
