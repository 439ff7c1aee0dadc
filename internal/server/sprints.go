package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"planboard/internal/engine"
)

type sprintPath struct {
	SprintID string `path:"sprint_id"`
}

func registerSprints(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-sprint",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/sprints",
		Summary:       "Create sprint",
		Description:   "Sprint windows are half open and may not overlap another active sprint of the project.",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		Body      CreateSprintRequest `json:"body"`
	}) (*sprintOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.CreateSprint(ctx, actor, input.ProjectID, input.Body.attrs())
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &sprintOutput{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sprints",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/sprints",
		Summary:     "List sprints in order",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*sprintsOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListSprints(ctx, actor, input.ProjectID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &sprintsOutput{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-sprint",
		Method:      http.MethodGet,
		Path:        "/sprints/{sprint_id}",
		Summary:     "Get sprint",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *sprintPath) (*sprintOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.GetSprint(ctx, actor, input.SprintID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &sprintOutput{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-sprint",
		Method:      http.MethodPut,
		Path:        "/sprints/{sprint_id}",
		Summary:     "Update sprint",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		SprintID string              `path:"sprint_id"`
		Body     engine.SprintUpdate `json:"body"`
	}) (*sprintOutput, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.UpdateSprint(ctx, actor, input.SprintID, input.Body)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &sprintOutput{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-sprint-status",
		Method:      http.MethodPatch,
		Path:        "/sprints/{sprint_id}/status",
		Summary:     "Move sprint to another status",
		Description: "PLANNING -> ACTIVE -> COMPLETED, or PLANNING -> COMPLETED. Completion requires every task to be finished.",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		SprintID string        `path:"sprint_id"`
		Body     StatusRequest `json:"body"`
	}) (*sprintOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.UpdateSprintStatus(ctx, actor, input.SprintID, input.Body.Status)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &sprintOutput{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-sprint",
		Method:      http.MethodDelete,
		Path:        "/sprints/{sprint_id}",
		Summary:     "Soft-delete sprint",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *sprintPath) (*sprintOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.DeleteSprint(ctx, actor, input.SprintID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &sprintOutput{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-sprint",
		Method:      http.MethodPatch,
		Path:        "/sprints/{sprint_id}/restore",
		Summary:     "Restore sprint",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *sprintPath) (*sprintOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.RestoreSprint(ctx, actor, input.SprintID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &sprintOutput{Body: s}, nil
	})
}
