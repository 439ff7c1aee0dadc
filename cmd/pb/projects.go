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

func projectCmd() *cobra.Command {
	project := &cobra.Command{Use: "project", Short: "Manage projects"}

	var (
		name, description, status, priority, start, end string
		progress                                        int
	)
	create := &cobra.Command{
		Use:   "create <team-id>",
		Short: "Create a project owned by the acting user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs := engine.ProjectAttrs{Name: name, Description: description, Status: status, Priority: priority, Progress: progress}
			var err error
			if attrs.StartDate, err = optionalDate(cmd, "start", start); err != nil {
				return err
			}
			if attrs.EndDate, err = optionalDate(cmd, "end", end); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				p, err := a.Engine.CreateProject(ctx, actor, args[0], attrs)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Created project %s\n", p.ID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "project name")
	create.Flags().StringVar(&description, "description", "", "description")
	create.Flags().StringVar(&status, "status", "", "PLANNING, ACTIVE, ON_HOLD, COMPLETED or CANCELED")
	create.Flags().StringVar(&priority, "priority", "", "LOW, MEDIUM, HIGH or URGENT")
	create.Flags().IntVar(&progress, "progress", 0, "progress 0-100")
	create.Flags().StringVar(&start, "start", "", "start date")
	create.Flags().StringVar(&end, "end", "", "end date")

	var filterStatus string
	list := &cobra.Command{
		Use:   "list <team-id>",
		Short: "List projects of a team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				items, err := a.Engine.ListProjects(ctx, actor, repo.ProjectFilters{TeamID: args[0], Status: filterStatus})
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, p := range items {
					rows = append(rows, table.Row{p.ID, p.Name, p.Status, p.Priority, fmt.Sprintf("%d%%", p.Progress), dateString(p.EndDate)})
				}
				return printJSONOrTable(items, table.Row{"ID", "Name", "Status", "Priority", "Progress", "Ends"}, rows)
			})
		},
	}
	list.Flags().StringVar(&filterStatus, "status", "", "status filter")

	show := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				p, err := a.Engine.GetProject(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}

	update := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Update a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs := engine.ProjectUpdate{
				Name:        optionalString(cmd, "name", name),
				Description: optionalString(cmd, "description", description),
				Status:      optionalString(cmd, "status", status),
				Priority:    optionalString(cmd, "priority", priority),
				Progress:    optionalInt(cmd, "progress", progress),
			}
			var err error
			if attrs.StartDate, err = optionalDate(cmd, "start", start); err != nil {
				return err
			}
			if attrs.EndDate, err = optionalDate(cmd, "end", end); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				p, err := a.Engine.UpdateProject(ctx, actor, args[0], attrs)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	update.Flags().StringVar(&name, "name", "", "new name")
	update.Flags().StringVar(&description, "description", "", "new description")
	update.Flags().StringVar(&status, "status", "", "new status")
	update.Flags().StringVar(&priority, "priority", "", "new priority")
	update.Flags().IntVar(&progress, "progress", 0, "progress 0-100")
	update.Flags().StringVar(&start, "start", "", "start date")
	update.Flags().StringVar(&end, "end", "", "end date")

	del := &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Soft delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				p, err := a.Engine.DeleteProject(ctx, actor, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Deleted project %s\n", p.ID)
				return nil
			})
		},
	}

	restore := &cobra.Command{
		Use:   "restore <project-id>",
		Short: "Restore a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				p, err := a.Engine.RestoreProject(ctx, actor, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Restored project %s\n", p.ID)
				return nil
			})
		},
	}

	members := &cobra.Command{
		Use:   "members <project-id>",
		Short: "List project members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				items, err := a.Engine.ListProjectMembers(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printMembers(items)
			})
		},
	}

	var memberRole string
	addMembers := &cobra.Command{
		Use:   "add-members <project-id> <user-id>...",
		Short: "Add organization members to a project",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				res, err := a.Engine.AddProjectMembers(ctx, actor, args[0], engine.MembersAttrs{UserIDs: args[1:], Role: memberRole})
				if err != nil {
					return err
				}
				return printMembersResult(res)
			})
		},
	}
	addMembers.Flags().StringVar(&memberRole, "role", "", "project role (default MEMBER)")

	setRole := &cobra.Command{
		Use:   "set-role <project-id> <user-id> <role>",
		Short: "Change a project member's role",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				m, err := a.Engine.UpdateProjectMemberRole(ctx, actor, args[0], args[1], args[2])
				if err != nil {
					return err
				}
				fmt.Printf("%s is now %s\n", m.UserID, m.Role)
				return nil
			})
		},
	}

	removeMember := &cobra.Command{
		Use:   "remove-member <project-id> <user-id>",
		Short: "Remove a project member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				if err := a.Engine.RemoveProjectMember(ctx, actor, args[0], args[1]); err != nil {
					return err
				}
				fmt.Printf("Removed %s from project %s\n", args[1], args[0])
				return nil
			})
		},
	}

	project.AddCommand(create, list, show, update, del, restore, members, addMembers, setRole, removeMember)
	return project
}
