package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/list"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"planboard/internal/app"
	"planboard/internal/domain"
	"planboard/internal/engine"
	"planboard/internal/repo"
)

func sprintCmd() *cobra.Command {
	sprint := &cobra.Command{Use: "sprint", Short: "Manage sprints"}

	var (
		name, description, goal, start, end, status string
		order                                       int
	)
	create := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Schedule a sprint; windows may not overlap within a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			startAt, err := parseDate(start)
			if err != nil {
				return err
			}
			endAt, err := parseDate(end)
			if err != nil {
				return err
			}
			attrs := engine.SprintAttrs{
				Name: name, Description: description, Goal: goal, Status: status,
				StartDate: startAt, EndDate: endAt, Order: optionalInt(cmd, "order", order),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				s, err := a.Engine.CreateSprint(ctx, actor, args[0], attrs)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Printf("Created sprint %s (%s)\n", s.ID, s.Status)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "sprint name")
	create.Flags().StringVar(&description, "description", "", "description")
	create.Flags().StringVar(&goal, "goal", "", "sprint goal")
	create.Flags().StringVar(&start, "start", "", "start date")
	create.Flags().StringVar(&end, "end", "", "end date")
	create.Flags().StringVar(&status, "status", "", "explicit status (derived from the window by default)")
	create.Flags().IntVar(&order, "order", 0, "display order (default last)")

	listCmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List sprints of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				items, err := a.Engine.ListSprints(ctx, actor, args[0])
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, s := range items {
					rows = append(rows, table.Row{s.Order, s.ID, s.Name, s.Status, s.StartDate.Format("2006-01-02"), s.EndDate.Format("2006-01-02")})
				}
				return printJSONOrTable(items, table.Row{"#", "ID", "Name", "Status", "Start", "End"}, rows)
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <sprint-id>",
		Short: "Show a sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				s, err := a.Engine.GetSprint(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	}

	update := &cobra.Command{
		Use:   "update <sprint-id>",
		Short: "Update a sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs := engine.SprintUpdate{
				Name:        optionalString(cmd, "name", name),
				Description: optionalString(cmd, "description", description),
				Goal:        optionalString(cmd, "goal", goal),
				Order:       optionalInt(cmd, "order", order),
			}
			var err error
			if attrs.StartDate, err = optionalDate(cmd, "start", start); err != nil {
				return err
			}
			if attrs.EndDate, err = optionalDate(cmd, "end", end); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				s, err := a.Engine.UpdateSprint(ctx, actor, args[0], attrs)
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	}
	update.Flags().StringVar(&name, "name", "", "new name")
	update.Flags().StringVar(&description, "description", "", "new description")
	update.Flags().StringVar(&goal, "goal", "", "new goal")
	update.Flags().StringVar(&start, "start", "", "new start date")
	update.Flags().StringVar(&end, "end", "", "new end date")
	update.Flags().IntVar(&order, "order", 0, "display order")

	setStatus := &cobra.Command{
		Use:   "status <sprint-id> <PLANNING|ACTIVE|COMPLETED>",
		Short: "Move a sprint through its lifecycle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				s, err := a.Engine.UpdateSprintStatus(ctx, actor, args[0], strings.ToUpper(args[1]))
				if err != nil {
					return err
				}
				fmt.Printf("Sprint %s is %s\n", s.ID, s.Status)
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <sprint-id>",
		Short: "Soft delete a sprint without unfinished tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				s, err := a.Engine.DeleteSprint(ctx, actor, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Deleted sprint %s\n", s.ID)
				return nil
			})
		},
	}

	restore := &cobra.Command{
		Use:   "restore <sprint-id>",
		Short: "Restore a sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				s, err := a.Engine.RestoreSprint(ctx, actor, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Restored sprint %s\n", s.ID)
				return nil
			})
		},
	}

	sprint.AddCommand(create, listCmd, show, update, setStatus, del, restore)
	return sprint
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}

	var (
		title, description, priority, status, due string
		sprintID, parentID, assignee              string
		labels                                    []string
		estimate, actual                          float64
	)
	addTaskFlags := func(cmd *cobra.Command) {
		cmd.Flags().StringVar(&title, "title", "", "task title")
		cmd.Flags().StringVar(&description, "description", "", "description")
		cmd.Flags().StringVar(&priority, "priority", "", "LOW, MEDIUM, HIGH or URGENT")
		cmd.Flags().StringVar(&status, "status", "", "TODO, IN_PROGRESS, REVIEW, BLOCKED, DONE or CANCELED")
		cmd.Flags().StringVar(&due, "due", "", "due date")
		cmd.Flags().StringVar(&sprintID, "sprint", "", "sprint id")
		cmd.Flags().StringVar(&parentID, "parent", "", "parent task id")
		cmd.Flags().StringVar(&assignee, "assignee", "", "assigned user id")
		cmd.Flags().StringSliceVar(&labels, "label", nil, "label (repeatable)")
		cmd.Flags().Float64Var(&estimate, "estimate", 0, "estimated hours")
		cmd.Flags().Float64Var(&actual, "actual", 0, "actual hours")
	}

	create := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dueAt, err := parseDate(due)
			if err != nil {
				return err
			}
			attrs := engine.TaskAttrs{
				Title: title, Description: description, Priority: strings.ToUpper(priority), Status: strings.ToUpper(status),
				DueDate: dueAt, SprintID: sprintID, ParentID: parentID, AssignedTo: assignee, Labels: labels,
				EstimatedHours: optionalFloat(cmd, "estimate", estimate),
				ActualHours:    optionalFloat(cmd, "actual", actual),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				t, err := a.Engine.CreateTask(ctx, actor, args[0], attrs)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("Created task %s\n", t.ID)
				return nil
			})
		},
	}
	addTaskFlags(create)

	update := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update a task (empty --sprint, --parent or --assignee clears it)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs := engine.TaskUpdate{
				Title:          optionalString(cmd, "title", title),
				Description:    optionalString(cmd, "description", description),
				Priority:       optionalString(cmd, "priority", strings.ToUpper(priority)),
				Status:         optionalString(cmd, "status", strings.ToUpper(status)),
				SprintID:       optionalString(cmd, "sprint", sprintID),
				ParentID:       optionalString(cmd, "parent", parentID),
				AssignedTo:     optionalString(cmd, "assignee", assignee),
				EstimatedHours: optionalFloat(cmd, "estimate", estimate),
				ActualHours:    optionalFloat(cmd, "actual", actual),
			}
			if cmd.Flags().Changed("label") {
				attrs.Labels = labels
			}
			var err error
			if attrs.DueDate, err = optionalDate(cmd, "due", due); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				t, err := a.Engine.UpdateTask(ctx, actor, args[0], attrs)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	addTaskFlags(update)

	var filters repo.TaskFilters
	listCmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List tasks of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters.ProjectID = args[0]
			filters.Status = strings.ToUpper(filters.Status)
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				items, err := a.Engine.ListTasks(ctx, actor, filters)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, t := range items {
					rows = append(rows, table.Row{t.ID, t.Title, t.Status, t.Priority, t.DueDate.Format("2006-01-02"), deref(t.AssignedTo), strings.Join(t.Labels, ",")})
				}
				return printJSONOrTable(items, table.Row{"ID", "Title", "Status", "Priority", "Due", "Assignee", "Labels"}, rows)
			})
		},
	}
	listCmd.Flags().StringVar(&filters.Status, "status", "", "status filter")
	listCmd.Flags().StringVar(&filters.SprintID, "sprint", "", "sprint filter")
	listCmd.Flags().StringVar(&filters.AssignedTo, "assignee", "", "assignee filter")
	listCmd.Flags().StringVar(&filters.ParentID, "parent", "", "parent task filter")
	listCmd.Flags().StringVar(&filters.Label, "label", "", "label filter")

	tree := &cobra.Command{
		Use:   "tree <project-id>",
		Short: "Show the task hierarchy of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				items, err := a.Engine.ListTasks(ctx, actor, repo.TaskFilters{ProjectID: args[0]})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printTaskTree(items)
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				t, err := a.Engine.GetTask(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}

	setStatus := &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Set task status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				t, err := a.Engine.UpdateTaskStatus(ctx, actor, args[0], strings.ToUpper(args[1]))
				if err != nil {
					return err
				}
				fmt.Printf("Task %s is %s\n", t.ID, t.Status)
				return nil
			})
		},
	}

	setPriority := &cobra.Command{
		Use:   "priority <task-id> <priority>",
		Short: "Set task priority",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				t, err := a.Engine.UpdateTaskPriority(ctx, actor, args[0], strings.ToUpper(args[1]))
				if err != nil {
					return err
				}
				fmt.Printf("Task %s priority %s\n", t.ID, t.Priority)
				return nil
			})
		},
	}

	var permanent bool
	del := &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task and its subtasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				res, err := a.Engine.DeleteTask(ctx, actor, args[0], permanent)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				kind := "Deleted"
				if res.Permanent {
					kind = "Permanently deleted"
				}
				fmt.Printf("%s task %s and %d subtask(s)\n", kind, res.Task.ID, res.Subtasks)
				return nil
			})
		},
	}
	del.Flags().BoolVar(&permanent, "permanent", false, "remove rows instead of soft delete (ADMIN)")

	var withSubtasks bool
	restore := &cobra.Command{
		Use:   "restore <task-id>",
		Short: "Restore a deleted task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				res, err := a.Engine.RestoreTask(ctx, actor, args[0], withSubtasks)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Restored task %s and %d subtask(s)\n", res.Task.ID, res.Subtasks)
				return nil
			})
		},
	}
	restore.Flags().BoolVar(&withSubtasks, "subtasks", false, "also restore deleted subtasks")

	task.AddCommand(create, update, listCmd, tree, show, setStatus, setPriority, del, restore)
	return task
}

// printTaskTree renders tasks under their parents. Tasks whose parent is not in the
// list are shown as roots.
func printTaskTree(tasks []domain.Task) {
	byID := map[string]bool{}
	for _, t := range tasks {
		byID[t.ID] = true
	}
	children := map[string][]domain.Task{}
	var roots []domain.Task
	for _, t := range tasks {
		if t.ParentID != nil && byID[*t.ParentID] {
			children[*t.ParentID] = append(children[*t.ParentID], t)
			continue
		}
		roots = append(roots, t)
	}
	byCreated := func(items []domain.Task) {
		sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	}
	lw := list.NewWriter()
	lw.SetOutputMirror(os.Stdout)
	lw.SetStyle(list.StyleConnectedRounded)
	var walk func(items []domain.Task)
	walk = func(items []domain.Task) {
		byCreated(items)
		for _, t := range items {
			lw.AppendItem(fmt.Sprintf("%s [%s] %s (%s)", t.Title, t.Status, t.ID, t.Priority))
			if kids := children[t.ID]; len(kids) > 0 {
				lw.Indent()
				walk(kids)
				lw.UnIndent()
			}
		}
	}
	walk(roots)
	if len(roots) == 0 {
		fmt.Println("no tasks")
		return
	}
	lw.Render()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
