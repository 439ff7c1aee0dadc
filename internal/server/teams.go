package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"planboard/internal/engine"
	"planboard/internal/repo"
)

type departmentPath struct {
	DepartmentID string `path:"department_id"`
}

type teamPath struct {
	TeamID string `path:"team_id"`
}

func registerDepartments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-department",
		Method:        http.MethodPost,
		Path:          "/organizations/{org_id}/departments",
		Summary:       "Create department",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		OrgID string                  `path:"org_id"`
		Body  CreateDepartmentRequest `json:"body"`
	}) (*departmentOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.CreateDepartment(ctx, actor, input.OrgID, engine.DepartmentAttrs{
			Name: input.Body.Name, Description: input.Body.Description, ManagerID: input.Body.ManagerID,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &departmentOutput{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-departments",
		Method:      http.MethodGet,
		Path:        "/organizations/{org_id}/departments",
		Summary:     "List departments",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *orgPath) (*departmentsOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListDepartments(ctx, actor, input.OrgID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &departmentsOutput{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-department",
		Method:      http.MethodGet,
		Path:        "/departments/{department_id}",
		Summary:     "Get department",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *departmentPath) (*departmentOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.GetDepartment(ctx, actor, input.DepartmentID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &departmentOutput{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-department",
		Method:      http.MethodPut,
		Path:        "/departments/{department_id}",
		Summary:     "Update department",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		DepartmentID string                  `path:"department_id"`
		Body         engine.DepartmentUpdate `json:"body"`
	}) (*departmentOutput, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.UpdateDepartment(ctx, actor, input.DepartmentID, input.Body)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &departmentOutput{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-department",
		Method:      http.MethodDelete,
		Path:        "/departments/{department_id}",
		Summary:     "Soft-delete department",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *departmentPath) (*departmentOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.DeleteDepartment(ctx, actor, input.DepartmentID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &departmentOutput{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-department",
		Method:      http.MethodPatch,
		Path:        "/departments/{department_id}/restore",
		Summary:     "Restore department",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *departmentPath) (*departmentOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.RestoreDepartment(ctx, actor, input.DepartmentID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &departmentOutput{Body: d}, nil
	})
}

func registerTeams(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-team",
		Method:        http.MethodPost,
		Path:          "/organizations/{org_id}/teams",
		Summary:       "Create team",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		OrgID string            `path:"org_id"`
		Body  CreateTeamRequest `json:"body"`
	}) (*teamOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTeam(ctx, actor, input.OrgID, engine.TeamAttrs{
			Name: input.Body.Name, Description: input.Body.Description, DepartmentID: input.Body.DepartmentID,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &teamOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-teams",
		Method:      http.MethodGet,
		Path:        "/organizations/{org_id}/teams",
		Summary:     "List teams",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID        string `path:"org_id"`
		DepartmentID string `query:"departmentId"`
	}) (*teamsOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListTeams(ctx, actor, repo.TeamFilters{OrgID: input.OrgID, DepartmentID: input.DepartmentID})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &teamsOutput{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-team",
		Method:      http.MethodGet,
		Path:        "/teams/{team_id}",
		Summary:     "Get team",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *teamPath) (*teamOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.GetTeam(ctx, actor, input.TeamID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &teamOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-team",
		Method:      http.MethodPut,
		Path:        "/teams/{team_id}",
		Summary:     "Update team",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TeamID string            `path:"team_id"`
		Body   engine.TeamUpdate `json:"body"`
	}) (*teamOutput, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateTeam(ctx, actor, input.TeamID, input.Body)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &teamOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-team",
		Method:      http.MethodDelete,
		Path:        "/teams/{team_id}",
		Summary:     "Soft-delete team and its projects",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *teamPath) (*teamDeleteOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.DeleteTeam(ctx, actor, input.TeamID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &teamDeleteOutput{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-team",
		Method:      http.MethodPatch,
		Path:        "/teams/{team_id}/restore",
		Summary:     "Restore team",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *teamPath) (*teamOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.RestoreTeam(ctx, actor, input.TeamID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &teamOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-team-members",
		Method:      http.MethodGet,
		Path:        "/teams/{team_id}/members",
		Summary:     "List team members",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *teamPath) (*membershipsOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListTeamMembers(ctx, actor, input.TeamID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &membershipsOutput{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-team-members",
		Method:      http.MethodPost,
		Path:        "/teams/{team_id}/members",
		Summary:     "Add team members",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TeamID string            `path:"team_id"`
		Body   AddMembersRequest `json:"body"`
	}) (*membersResultOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.AddTeamMembers(ctx, actor, input.TeamID, engine.MembersAttrs{UserIDs: input.Body.UserIDs, Role: input.Body.Role})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &membersResultOutput{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-team-member",
		Method:        http.MethodDelete,
		Path:          "/teams/{team_id}/members/{user_id}",
		Summary:       "Remove team member",
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		TeamID string `path:"team_id"`
		UserID string `path:"user_id"`
	}) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveTeamMember(ctx, actor, input.TeamID, input.UserID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transfer-team-leadership",
		Method:      http.MethodPost,
		Path:        "/teams/{team_id}/leader",
		Summary:     "Make a member the team leader",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TeamID string         `path:"team_id"`
		Body   UserRefRequest `json:"body"`
	}) (*membershipOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.TransferLeadership(ctx, actor, input.TeamID, input.Body.UserID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &membershipOutput{Body: m}, nil
	})
}
