package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"planboard/internal/app"
	"planboard/internal/domain"
	"planboard/internal/engine"
)

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}

	var name, email, role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a user (the first one becomes ADMIN)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				u, err := a.Engine.CreateUser(ctx, actor, engine.UserAttrs{Name: name, Email: email, Role: role})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(u)
				}
				fmt.Printf("Created user %s (%s, %s)\n", u.ID, u.Email, u.Role)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "display name")
	create.Flags().StringVar(&email, "email", "", "email address")
	create.Flags().StringVar(&role, "role", "", "USER or ADMIN")

	list := &cobra.Command{
		Use:   "list",
		Short: "List users (ADMIN)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				users, err := a.Engine.ListUsers(ctx, actor)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(users))
				for _, u := range users {
					rows = append(rows, table.Row{u.ID, u.Name, u.Email, u.Role})
				}
				return printJSONOrTable(users, table.Row{"ID", "Name", "Email", "Role"}, rows)
			})
		},
	}

	use := &cobra.Command{
		Use:   "use <id|email>",
		Short: "Act as this user by default (writes PLANBOARD_ACTOR to .env)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			viper.Set("actor", args[0])
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				if err := setEnvValue(a.Workspace, envActor, actor.ID); err != nil {
					return err
				}
				fmt.Printf("Acting as %s\n", actor.ID)
				return nil
			})
		},
	}

	me := &cobra.Command{
		Use:   "me",
		Short: "Show the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				if actor.ID == "" {
					return fmt.Errorf("--as or %s is required", envActor)
				}
				u, err := a.Engine.GetUser(ctx, actor.ID)
				if err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}

	user.AddCommand(create, list, use, me)
	return user
}

func orgCmd() *cobra.Command {
	org := &cobra.Command{Use: "org", Short: "Manage organizations"}

	var name, email string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an organization owned by the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				o, err := a.Engine.CreateOrganization(ctx, actor, engine.OrganizationAttrs{Name: name, ContactEmail: email})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(o)
				}
				fmt.Printf("Created organization %s (join code %s)\n", o.ID, o.JoinCode)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "organization name")
	create.Flags().StringVar(&email, "contact-email", "", "contact email")

	list := &cobra.Command{
		Use:   "list",
		Short: "List organizations visible to the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				orgs, err := a.Engine.ListOrganizations(ctx, actor)
				if err != nil {
					return err
				}
				return printOrgs(orgs)
			})
		},
	}

	show := &cobra.Command{
		Use:   "show [org-id]",
		Short: "Show an organization",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), args, func(ctx context.Context, a *app.App, actor engine.Actor, orgID string) error {
				o, err := a.Engine.GetOrganization(ctx, actor, orgID)
				if err != nil {
					return err
				}
				return printJSON(o)
			})
		},
	}

	var newName, newEmail string
	update := &cobra.Command{
		Use:   "update [org-id]",
		Short: "Rename an organization or change its contact email",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), args, func(ctx context.Context, a *app.App, actor engine.Actor, orgID string) error {
				o, err := a.Engine.UpdateOrganization(ctx, actor, orgID, engine.OrganizationUpdate{
					Name:         optionalString(cmd, "name", newName),
					ContactEmail: optionalString(cmd, "contact-email", newEmail),
				})
				if err != nil {
					return err
				}
				return printJSON(o)
			})
		},
	}
	update.Flags().StringVar(&newName, "name", "", "new name")
	update.Flags().StringVar(&newEmail, "contact-email", "", "new contact email")

	join := &cobra.Command{
		Use:   "join <code>",
		Short: "Join an organization with its join code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				o, err := a.Engine.JoinOrganization(ctx, actor, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Joined %s (%s)\n", o.Name, o.ID)
				return nil
			})
		},
	}

	use := &cobra.Command{
		Use:   "use <org-id>",
		Short: "Set the default organization (writes PLANBOARD_ORG to .env)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				o, err := a.Engine.GetOrganization(ctx, actor, args[0])
				if err != nil {
					return err
				}
				if err := setEnvValue(a.Workspace, envOrg, o.ID); err != nil {
					return err
				}
				fmt.Printf("Using organization %s (%s)\n", o.Name, o.ID)
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete [org-id]",
		Short: "Soft delete an organization",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), args, func(ctx context.Context, a *app.App, actor engine.Actor, orgID string) error {
				o, err := a.Engine.DeleteOrganization(ctx, actor, orgID)
				if err != nil {
					return err
				}
				fmt.Printf("Deleted organization %s\n", o.ID)
				return nil
			})
		},
	}

	restore := &cobra.Command{
		Use:   "restore [org-id]",
		Short: "Restore a deleted organization",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), args, func(ctx context.Context, a *app.App, actor engine.Actor, orgID string) error {
				o, err := a.Engine.RestoreOrganization(ctx, actor, orgID)
				if err != nil {
					return err
				}
				fmt.Printf("Restored organization %s\n", o.ID)
				return nil
			})
		},
	}

	var unverify bool
	verify := &cobra.Command{
		Use:   "verify [org-id]",
		Short: "Mark an organization verified (ADMIN)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), args, func(ctx context.Context, a *app.App, actor engine.Actor, orgID string) error {
				o, err := a.Engine.VerifyOrganization(ctx, actor, orgID, !unverify)
				if err != nil {
					return err
				}
				fmt.Printf("Organization %s verified=%t\n", o.ID, o.Verified)
				return nil
			})
		},
	}
	verify.Flags().BoolVar(&unverify, "revoke", false, "clear the verified flag")

	code := &cobra.Command{
		Use:   "join-code [org-id]",
		Short: "Regenerate the join code",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), args, func(ctx context.Context, a *app.App, actor engine.Actor, orgID string) error {
				o, err := a.Engine.RegenerateJoinCode(ctx, actor, orgID)
				if err != nil {
					return err
				}
				fmt.Println(o.JoinCode)
				return nil
			})
		},
	}

	members := &cobra.Command{
		Use:   "members [org-id]",
		Short: "List organization members",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), args, func(ctx context.Context, a *app.App, actor engine.Actor, orgID string) error {
				items, err := a.Engine.ListOrgMembers(ctx, actor, orgID)
				if err != nil {
					return err
				}
				return printMembers(items)
			})
		},
	}

	addOwner := &cobra.Command{
		Use:   "add-owner <user-id>",
		Short: "Promote a member to OWNER",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), nil, func(ctx context.Context, a *app.App, actor engine.Actor, orgID string) error {
				m, err := a.Engine.AddOwner(ctx, actor, orgID, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s is now %s\n", m.UserID, m.Role)
				return nil
			})
		},
	}

	removeMember := &cobra.Command{
		Use:   "remove-member <user-id>",
		Short: "Remove a member from the organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), nil, func(ctx context.Context, a *app.App, actor engine.Actor, orgID string) error {
				if err := a.Engine.RemoveOrgMember(ctx, actor, orgID, args[0]); err != nil {
					return err
				}
				fmt.Printf("Removed %s\n", args[0])
				return nil
			})
		},
	}

	org.AddCommand(create, list, show, update, join, use, del, restore, verify, code, members, addOwner, removeMember)
	return org
}

func departmentCmd() *cobra.Command {
	dept := &cobra.Command{Use: "dept", Aliases: []string{"department"}, Short: "Manage departments"}

	var name, description, manager string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a department in the current organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), nil, func(ctx context.Context, a *app.App, actor engine.Actor, orgID string) error {
				d, err := a.Engine.CreateDepartment(ctx, actor, orgID, engine.DepartmentAttrs{Name: name, Description: description, ManagerID: manager})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("Created department %s\n", d.ID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "department name")
	create.Flags().StringVar(&description, "description", "", "description")
	create.Flags().StringVar(&manager, "manager", "", "manager user id")

	list := &cobra.Command{
		Use:   "list",
		Short: "List departments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), nil, func(ctx context.Context, a *app.App, actor engine.Actor, orgID string) error {
				items, err := a.Engine.ListDepartments(ctx, actor, orgID)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, d := range items {
					rows = append(rows, table.Row{d.ID, d.Name, d.ManagerID})
				}
				return printJSONOrTable(items, table.Row{"ID", "Name", "Manager"}, rows)
			})
		},
	}

	var newName, newDescription, newManager string
	update := &cobra.Command{
		Use:   "update <department-id>",
		Short: "Update a department",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				d, err := a.Engine.UpdateDepartment(ctx, actor, args[0], engine.DepartmentUpdate{
					Name:        optionalString(cmd, "name", newName),
					Description: optionalString(cmd, "description", newDescription),
					ManagerID:   optionalString(cmd, "manager", newManager),
				})
				if err != nil {
					return err
				}
				return printJSON(d)
			})
		},
	}
	update.Flags().StringVar(&newName, "name", "", "new name")
	update.Flags().StringVar(&newDescription, "description", "", "new description")
	update.Flags().StringVar(&newManager, "manager", "", "new manager user id")

	del := &cobra.Command{
		Use:   "delete <department-id>",
		Short: "Soft delete a department",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				d, err := a.Engine.DeleteDepartment(ctx, actor, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Deleted department %s\n", d.ID)
				return nil
			})
		},
	}

	restore := &cobra.Command{
		Use:   "restore <department-id>",
		Short: "Restore a department",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				d, err := a.Engine.RestoreDepartment(ctx, actor, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Restored department %s\n", d.ID)
				return nil
			})
		},
	}

	dept.AddCommand(create, list, update, del, restore)
	return dept
}

// withOrg resolves the organization from the first arg, falling back to --org.
func withOrg(ctx context.Context, args []string, fn func(context.Context, *app.App, engine.Actor, string) error) error {
	orgID := ""
	if len(args) > 0 {
		orgID = args[0]
	} else {
		var err error
		if orgID, err = requireOrg(); err != nil {
			return err
		}
	}
	return withEngine(ctx, func(ctx context.Context, a *app.App, actor engine.Actor) error {
		return fn(ctx, a, actor, orgID)
	})
}

func printOrgs(orgs []domain.Organization) error {
	rows := make([]table.Row, 0, len(orgs))
	for _, o := range orgs {
		rows = append(rows, table.Row{o.ID, o.Name, o.ContactEmail, o.Verified})
	}
	return printJSONOrTable(orgs, table.Row{"ID", "Name", "Contact", "Verified"}, rows)
}

func printMembers(items []domain.Membership) error {
	rows := make([]table.Row, 0, len(items))
	for _, m := range items {
		rows = append(rows, table.Row{m.UserID, m.Role, m.CreatedAt.Format("2006-01-02")})
	}
	return printJSONOrTable(items, table.Row{"User", "Role", "Since"}, rows)
}
