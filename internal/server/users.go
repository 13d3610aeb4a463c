package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"movetrack/internal/domain"
	"movetrack/internal/engine"
)

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		users, err := e.ListUsers(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		for i := range users {
			users[i].Teams = nonNilSlice(users[i].Teams)
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: nonNilSlice(users)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "register-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Register a user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body RegisterUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.RegisterUser(ctx, engine.UserRegisterOptions{
			Name:                  input.Body.Name,
			Email:                 input.Body.Email,
			Password:              input.Body.Password,
			Teams:                 input.Body.Teams,
			Role:                  domain.Role(input.Body.Role),
			CanManageDismissals:   input.Body.CanManageDismissals,
			CanManageTransfersEtc: input.Body.CanManageTransfersEtc,
			ActorID:               actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		u.Teams = nonNilSlice(u.Teams)
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/users/{id}/api-keys",
		Summary:       "Create an API key; the key is only returned once",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		plain, key, err := e.CreateAPIKey(ctx, input.ID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{Key: plain, APIKey: key}}, nil
	})
}
