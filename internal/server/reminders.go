package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"movetrack/internal/domain"
	"movetrack/internal/engine"
	"movetrack/internal/repo"
)

func parseToday(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	d, err := domain.ParseDate(v)
	if err != nil {
		return time.Time{}, &domain.ValidationError{Field: "today", Reason: "must be a YYYY-MM-DD date"}
	}
	return d, nil
}

func registerReminders(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "preview-reminders",
		Method:      http.MethodGet,
		Path:        "/reminders/preview",
		Summary:     "List the reminders a scan would send, without sending them",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Today string `query:"today" format:"date"`
	}) (*struct {
		Body ReminderReportResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		today, err := parseToday(input.Today)
		if err != nil {
			return nil, handleError(err)
		}
		report, err := e.RunReminders(ctx, engine.ReminderOptions{Today: today, DryRun: true, ActorID: actorID})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReminderReportResponse `json:"body"`
		}{Body: reminderReportResponse(report)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-reminders",
		Method:      http.MethodPost,
		Path:        "/reminders/run",
		Summary:     "Send deadline reminders now",
		Errors:      []int{http.StatusForbidden, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body RunRemindersRequest `json:"body"`
	}) (*struct {
		Body ReminderReportResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		today, err := parseToday(input.Body.Today)
		if err != nil {
			return nil, handleError(err)
		}
		report, err := e.RunReminders(ctx, engine.ReminderOptions{Today: today, DryRun: input.Body.DryRun, ActorID: actorID})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReminderReportResponse `json:"body"`
		}{Body: reminderReportResponse(report)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List audit events, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"movement,user"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body EventList `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.ListEvents(ctx, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Cursor:     cursorID,
			Limit:      limit + 1,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := EventList{Items: []domain.Event{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body EventList `json:"body"`
		}{Body: resp}, nil
	})
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}
