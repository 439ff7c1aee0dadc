package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"planboard/internal/engine"
	"planboard/internal/repo"
)

type orgPath struct {
	OrgID string `path:"org_id"`
}

func registerOrganizations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-organization",
		Method:        http.MethodPost,
		Path:          "/organizations",
		Summary:       "Create organization",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateOrganizationRequest `json:"body"`
	}) (*orgOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.CreateOrganization(ctx, actor, engine.OrganizationAttrs{
			Name: input.Body.Name, ContactEmail: input.Body.ContactEmail,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &orgOutput{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-organizations",
		Method:      http.MethodGet,
		Path:        "/organizations",
		Summary:     "List organizations",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*orgsOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListOrganizations(ctx, actor)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &orgsOutput{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "join-organization",
		Method:      http.MethodPost,
		Path:        "/organizations/join",
		Summary:     "Join organization with a join code",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body JoinOrganizationRequest `json:"body"`
	}) (*orgOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.JoinOrganization(ctx, actor, input.Body.JoinCode)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &orgOutput{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-organization",
		Method:      http.MethodGet,
		Path:        "/organizations/{org_id}",
		Summary:     "Get organization",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *orgPath) (*orgOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.GetOrganization(ctx, actor, input.OrgID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &orgOutput{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-organization",
		Method:      http.MethodPut,
		Path:        "/organizations/{org_id}",
		Summary:     "Update organization",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		OrgID string                    `path:"org_id"`
		Body  engine.OrganizationUpdate `json:"body"`
	}) (*orgOutput, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.UpdateOrganization(ctx, actor, input.OrgID, input.Body)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &orgOutput{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-organization",
		Method:      http.MethodDelete,
		Path:        "/organizations/{org_id}",
		Summary:     "Soft-delete organization",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *orgPath) (*orgOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.DeleteOrganization(ctx, actor, input.OrgID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &orgOutput{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-organization",
		Method:      http.MethodPatch,
		Path:        "/organizations/{org_id}/restore",
		Summary:     "Restore organization",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *orgPath) (*orgOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.RestoreOrganization(ctx, actor, input.OrgID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &orgOutput{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-organization",
		Method:      http.MethodPost,
		Path:        "/organizations/{org_id}/verify",
		Summary:     "Mark organization verified",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		OrgID string                    `path:"org_id"`
		Body  VerifyOrganizationRequest `json:"body" required:"false"`
	}) (*orgOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		verified := true
		if input.Body.Verified != nil {
			verified = *input.Body.Verified
		}
		o, err := e.VerifyOrganization(ctx, actor, input.OrgID, verified)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &orgOutput{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "regenerate-join-code",
		Method:      http.MethodPost,
		Path:        "/organizations/{org_id}/join-code",
		Summary:     "Regenerate join code",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *orgPath) (*orgOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.RegenerateJoinCode(ctx, actor, input.OrgID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &orgOutput{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-organization-members",
		Method:      http.MethodGet,
		Path:        "/organizations/{org_id}/members",
		Summary:     "List organization members",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *orgPath) (*membershipsOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListOrgMembers(ctx, actor, input.OrgID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &membershipsOutput{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-organization-owner",
		Method:      http.MethodPost,
		Path:        "/organizations/{org_id}/owners",
		Summary:     "Add organization owner",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		OrgID string         `path:"org_id"`
		Body  UserRefRequest `json:"body"`
	}) (*membershipOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AddOwner(ctx, actor, input.OrgID, input.Body.UserID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &membershipOutput{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-organization-member",
		Method:        http.MethodDelete,
		Path:          "/organizations/{org_id}/members/{user_id}",
		Summary:       "Remove organization member",
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		OrgID  string `path:"org_id"`
		UserID string `path:"user_id"`
	}) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveOrgMember(ctx, actor, input.OrgID, input.UserID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func registerActivity(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-activity",
		Method:      http.MethodGet,
		Path:        "/organizations/{org_id}/activity",
		Summary:     "List organization activity, newest first",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID      string `path:"org_id"`
		EntityType string `query:"entityType"`
		EntityID   string `query:"entityId"`
		Before     int64  `query:"before" doc:"Return entries older than this activity id"`
		Limit      int    `query:"limit" default:"50"`
	}) (*activityOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListActivity(ctx, actor, repo.ActivityFilters{
			OrgID:      input.OrgID,
			EntityType: input.EntityType,
			EntityID:   input.EntityID,
			BeforeID:   input.Before,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &activityOutput{Body: items}, nil
	})
}
