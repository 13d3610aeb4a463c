package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"movetrack/internal/attachments"
	"movetrack/internal/engine"
)

// multipart overhead allowed on top of the per-file cap
const uploadSlack = 1 << 20

func registerResponses(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "submit-response",
		Method:      http.MethodPut,
		Path:        "/movements/{id}/responses/{team_id}",
		Summary:     "Submit or resubmit a team's response",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID     string                `path:"id"`
		TeamID string                `path:"team_id"`
		Body   SubmitResponseRequest `json:"body"`
	}) (*struct {
		Body MovementResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.SubmitResponse(ctx, engine.ResponseSubmitOptions{
			MovementID:  input.ID,
			TeamID:      input.TeamID,
			Comment:     input.Body.Comment,
			Checklist:   input.Body.Checklist,
			Attachments: input.Body.Attachments,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MovementResponse `json:"body"`
		}{Body: movementResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-attachment",
		Method:        http.MethodDelete,
		Path:          "/movements/{id}/responses/{team_id}/attachments",
		Summary:       "Delete an uploaded attachment",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		TeamID string `path:"team_id"`
		URL    string `query:"url" required:"true"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		err := e.DeleteAttachment(ctx, engine.AttachmentDeleteOptions{
			MovementID: input.ID,
			TeamID:     input.TeamID,
			URL:        input.URL,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

// registerUploads mounts the multipart upload endpoint directly on the router.
func registerUploads(r chi.Router, basePath string, e engine.Engine) {
	pattern := path.Join(basePath, "movements/{id}/responses/{team_id}/attachments")
	r.Post(pattern, func(w http.ResponseWriter, req *http.Request) {
		actorID, authErr := actorIDFromContext(req.Context())
		if authErr != nil {
			respondStatusError(w, authErr)
			return
		}
		max := e.Config.MaxAttachmentBytes()
		req.Body = http.MaxBytesReader(w, req.Body, max+uploadSlack)
		if err := req.ParseMultipartForm(32 << 20); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				respondStatusError(w, handleError(attachments.ErrTooLarge))
				return
			}
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "multipart form with a file field is required", nil))
			return
		}
		defer req.MultipartForm.RemoveAll()
		file, header, err := req.FormFile("file")
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "multipart form with a file field is required", nil))
			return
		}
		defer file.Close()
		att, err := e.UploadAttachment(req.Context(), engine.AttachmentUploadOptions{
			MovementID: chi.URLParam(req, "id"),
			TeamID:     chi.URLParam(req, "team_id"),
			File: attachments.File{
				Name:        header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Size:        header.Size,
				Body:        file,
			},
			ActorID: actorID,
		})
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		writeJSON(w, http.StatusCreated, att)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

