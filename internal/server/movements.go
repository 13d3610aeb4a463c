package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"movetrack/internal/domain"
	"movetrack/internal/engine"
	"movetrack/internal/repo"
)

type movementPath struct {
	ID string `path:"id"`
}

func registerTeams(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-teams",
		Method:      http.MethodGet,
		Path:        "/teams",
		Summary:     "List teams with their checklist for a movement type",
	}, func(ctx context.Context, input *struct {
		Type string `query:"type" enum:"dismissal,transfer,salary_change,promotion"`
	}) (*struct {
		Body []TeamResponse `json:"body"`
	}, error) {
		res := []TeamResponse{}
		for _, t := range e.Registry.Teams() {
			item := TeamResponse{ID: t.ID, Name: t.Name, Checklist: []string{}}
			if input.Type != "" {
				item.Checklist = nonNilSlice(e.Registry.ChecklistFor(domain.MovementType(input.Type), t.ID))
			}
			res = append(res, item)
		}
		return &struct {
			Body []TeamResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerMovements(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-movements",
		Method:      http.MethodGet,
		Path:        "/movements",
		Summary:     "List movements, newest first",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"pending,in_progress,completed"`
		Type   string `query:"type" enum:"dismissal,transfer,salary_change,promotion"`
		Team   string `query:"team"`
		Open   bool   `query:"open" doc:"only movements that are not completed"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body MovementList `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListMovements(ctx, repo.MovementFilters{
			Status:   domain.Status(input.Status),
			Type:     domain.MovementType(input.Type),
			Team:     input.Team,
			OpenOnly: input.Open,
			Limit:    normalizeLimit(input.Limit),
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MovementList `json:"body"`
		}{Body: MovementList{Items: mapMovements(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-movement",
		Method:        http.MethodPost,
		Path:          "/movements",
		Summary:       "Create a movement and notify the selected teams",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateMovementRequest `json:"body"`
	}) (*struct {
		Body MutationResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		details, err := input.Body.Details.toDomain()
		if err != nil {
			return nil, handleError(err)
		}
		out, err := e.CreateMovement(ctx, engine.MovementCreateOptions{
			Type:          domain.MovementType(input.Body.Type),
			EmployeeName:  input.Body.EmployeeName,
			SelectedTeams: input.Body.SelectedTeams,
			Details:       details,
			Deadline:      input.Body.Deadline,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MutationResponse `json:"body"`
		}{Body: mutationResponse(out)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-movement",
		Method:      http.MethodGet,
		Path:        "/movements/{id}",
		Summary:     "Get a movement with every team response",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *movementPath) (*struct {
		Body MovementResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.GetMovement(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MovementResponse `json:"body"`
		}{Body: movementResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-movement",
		Method:      http.MethodPatch,
		Path:        "/movements/{id}",
		Summary:     "Edit a movement; roster changes add and drop team responses",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body UpdateMovementRequest `json:"body"`
	}) (*struct {
		Body MutationResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.MovementUpdateOptions{
			ID:              input.ID,
			EmployeeName:    input.Body.EmployeeName,
			SelectedTeams:   input.Body.SelectedTeams,
			Deadline:        input.Body.Deadline,
			ExpectedVersion: input.Body.ExpectedVersion,
			ActorID:         actorID,
		}
		if input.Body.Details != nil {
			details, err := input.Body.Details.toDomain()
			if err != nil {
				return nil, handleError(err)
			}
			opts.Details = &details
		}
		out, err := e.UpdateMovement(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MutationResponse `json:"body"`
		}{Body: mutationResponse(out)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-movement",
		Method:        http.MethodDelete,
		Path:          "/movements/{id}",
		Summary:       "Delete a movement and its attachments",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *movementPath) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteMovement(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "preview-roster",
		Method:      http.MethodPost,
		Path:        "/movements/{id}/roster-preview",
		Summary:     "Show which responses a roster edit would add or discard",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body RosterPreviewRequest `json:"body"`
	}) (*struct {
		Body RosterPreviewResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		plan, err := e.PreviewRoster(ctx, input.ID, input.Body.SelectedTeams, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RosterPreviewResponse `json:"body"`
		}{Body: RosterPreviewResponse{Roster: plan, Destructive: plan.Destructive()}}, nil
	})
}
