package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"planboard/internal/engine"
	"planboard/internal/repo"
)

type taskPath struct {
	TaskID string `path:"task_id"`
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      CreateTaskRequest `json:"body"`
	}) (*taskOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, actor, input.ProjectID, input.Body.attrs())
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		Status     string `query:"status"`
		SprintID   string `query:"sprintId"`
		AssignedTo string `query:"assignedTo"`
		ParentID   string `query:"parentId"`
		Label      string `query:"label"`
	}) (*tasksOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListTasks(ctx, actor, repo.TaskFilters{
			ProjectID:  input.ProjectID,
			Status:     input.Status,
			SprintID:   input.SprintID,
			AssignedTo: input.AssignedTo,
			ParentID:   input.ParentID,
			Label:      input.Label,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &tasksOutput{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*taskOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.GetTask(ctx, actor, input.TaskID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{task_id}",
		Summary:     "Update task",
		Description: "An empty sprintId, parentId or assignedTo clears the reference.",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   engine.TaskUpdate `json:"body"`
	}) (*taskOutput, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateTask(ctx, actor, input.TaskID, input.Body)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-status",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}/status",
		Summary:     "Set task status",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string        `path:"task_id"`
		Body   StatusRequest `json:"body"`
	}) (*taskOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateTaskStatus(ctx, actor, input.TaskID, input.Body.Status)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-priority",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}/priority",
		Summary:     "Set task priority",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string          `path:"task_id"`
		Body   PriorityRequest `json:"body"`
	}) (*taskOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateTaskPriority(ctx, actor, input.TaskID, input.Body.Priority)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{task_id}",
		Summary:     "Delete task and its subtasks",
		Description: "Soft delete by default. permanent=true removes the subtree and is restricted to platform admins.",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID    string `path:"task_id"`
		Permanent bool   `query:"permanent"`
	}) (*taskDeleteOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.DeleteTask(ctx, actor, input.TaskID, input.Permanent)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &taskDeleteOutput{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}/restore",
		Summary:     "Restore task",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID   string `path:"task_id"`
		Subtasks bool   `query:"subtasks" doc:"Also restore deleted descendants"`
	}) (*taskRestoreOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.RestoreTask(ctx, actor, input.TaskID, input.Subtasks)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &taskRestoreOutput{Body: res}, nil
	})
}
