package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"movetrack/internal/attachments"
	"movetrack/internal/domain"
	"movetrack/internal/engine/auth"
	"movetrack/internal/events"
	"movetrack/internal/movement"
	"movetrack/internal/repo"
	"movetrack/internal/sanitize"
)

// ResponseSubmitOptions carry one team's answer on a movement.
type ResponseSubmitOptions struct {
	MovementID  string
	TeamID      string
	Comment     string
	Checklist   map[string]bool
	Attachments []domain.Attachment
	ActorID     string
}

// SubmitResponse records a team's response and derives the movement status again. Only
// the team's own row is rewritten. No notification is sent.
func (e Engine) SubmitResponse(ctx context.Context, opts ResponseSubmitOptions) (domain.Movement, error) {
	team := strings.TrimSpace(opts.TeamID)
	atts := make([]domain.Attachment, 0, len(opts.Attachments))
	for _, a := range opts.Attachments {
		a.Name = sanitize.Text(a.Name)
		if strings.TrimSpace(a.URL) == "" || a.Name == "" {
			return domain.Movement{}, &domain.ValidationError{Field: "attachments", Reason: "every entry needs a name and url"}
		}
		atts = append(atts, a)
	}

	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Movement{}, storeErr("submit response", err)
	}
	defer tx.Rollback()

	actor, err := e.actor(ctx, tx, opts.ActorID)
	if err != nil {
		return domain.Movement{}, storeErr("submit response", err)
	}
	if err := auth.CanRespond(actor, team); err != nil {
		return domain.Movement{}, err
	}
	m, err := e.Repo.GetMovement(ctx, tx, opts.MovementID)
	if err != nil {
		return domain.Movement{}, storeErr("submit response", err)
	}
	if !m.HasTeam(team) {
		return domain.Movement{}, &domain.ValidationError{Field: "team_id", Reason: "team " + team + " is not responsible for this movement"}
	}
	if err := e.checkAttachments(atts, m.ID, team); err != nil {
		return domain.Movement{}, err
	}
	required := e.Registry.ChecklistFor(m.Type, team)
	next, err := movement.Submit(m.Responses[team], movement.Submission{
		Comment:     sanitize.Text(opts.Comment),
		Checklist:   opts.Checklist,
		Attachments: atts,
		ActorName:   actor.Name,
		ActorEmail:  actor.Email,
		Now:         e.now(),
	}, required)
	if err != nil {
		return domain.Movement{}, err
	}
	if err := e.Repo.UpsertResponse(ctx, tx, m.ID, team, next); err != nil {
		return domain.Movement{}, storeErr("submit response", err)
	}
	entry := next.History[len(next.History)-1]
	if err := e.Repo.AppendHistory(ctx, tx, m.ID, team, entry); err != nil {
		return domain.Movement{}, storeErr("submit response", err)
	}
	statuses, err := e.Repo.ResponseStatuses(ctx, tx, m.ID)
	if err != nil {
		return domain.Movement{}, storeErr("submit response", err)
	}
	status := movement.DeriveStatus(statuses, m.SelectedTeams)
	updatedAt := e.stamp()
	version, err := e.Repo.UpdateMovement(ctx, tx, m.ID, repo.MovementFields{Status: &status, UpdatedAt: updatedAt}, 0)
	if err != nil {
		return domain.Movement{}, storeErr("submit response", err)
	}
	if err := e.Events.Append(ctx, tx, events.ResponseSubmitted, "movement", m.ID, actor.ID, events.EventPayload{
		"team":            team,
		"action":          entry.Action,
		"attachments":     len(next.Attachments),
		"movement_status": status,
	}); err != nil {
		return domain.Movement{}, storeErr("submit response", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Movement{}, storeErr("submit response", err)
	}
	m.Responses[team] = next
	m.Status = status
	m.UpdatedAt = updatedAt
	m.Version = version
	return m, nil
}

// AttachmentUploadOptions describe a file a team member attaches ahead of submitting.
type AttachmentUploadOptions struct {
	MovementID string
	TeamID     string
	File       attachments.File
	ActorID    string
}

// UploadAttachment stores a file for a team response. Oversized files are rejected before
// the store is called. The returned attachment must be listed in the next submission.
func (e Engine) UploadAttachment(ctx context.Context, opts AttachmentUploadOptions) (domain.Attachment, error) {
	max := int64(0)
	if e.Config != nil {
		max = e.Config.MaxAttachmentBytes()
	}
	if err := attachments.CheckSize(opts.File, max); err != nil {
		return domain.Attachment{}, err
	}
	if e.Attachments == nil {
		return domain.Attachment{}, errors.New("attachment store not configured")
	}
	if err := e.checkResponder(ctx, opts.MovementID, opts.TeamID, opts.ActorID); err != nil {
		return domain.Attachment{}, err
	}
	att, err := e.Attachments.Upload(ctx, opts.File, opts.MovementID, opts.TeamID)
	if err != nil {
		e.logger().Error("attachment upload failed",
			zap.String("movement_id", opts.MovementID),
			zap.String("team", opts.TeamID),
			zap.String("file", opts.File.Name),
			zap.Error(err))
		return domain.Attachment{}, err
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.Events.Append(sctx, nil, events.AttachmentUploaded, "movement", opts.MovementID, opts.ActorID, events.EventPayload{
		"team": opts.TeamID,
		"name": att.Name,
		"url":  att.URL,
		"size": att.SizeBytes,
	}); err != nil {
		e.logger().Warn("attachment uploaded but audit event failed", zap.String("url", att.URL), zap.Error(err))
	}
	return att, nil
}

// AttachmentDeleteOptions name a previously uploaded file.
type AttachmentDeleteOptions struct {
	MovementID string
	TeamID     string
	URL        string
	ActorID    string
}

// DeleteAttachment removes a blob. Responses that still list it keep their entry until the
// team resubmits.
func (e Engine) DeleteAttachment(ctx context.Context, opts AttachmentDeleteOptions) error {
	if e.Attachments == nil {
		return errors.New("attachment store not configured")
	}
	if err := e.checkResponder(ctx, opts.MovementID, opts.TeamID, opts.ActorID); err != nil {
		return err
	}
	if !e.Attachments.Owns(opts.URL, opts.MovementID, opts.TeamID) {
		return auth.ForbiddenError{Permission: "team:" + opts.TeamID}
	}
	ok, err := e.Attachments.Delete(ctx, opts.URL)
	if err != nil {
		return err
	}
	if !ok {
		return repo.ErrNotFound
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.Events.Append(sctx, nil, events.AttachmentDeleted, "movement", opts.MovementID, opts.ActorID, events.EventPayload{
		"team": opts.TeamID,
		"url":  opts.URL,
	}); err != nil {
		e.logger().Warn("attachment deleted but audit event failed", zap.String("url", opts.URL), zap.Error(err))
	}
	return nil
}

func (e Engine) checkResponder(ctx context.Context, movementID, teamID, actorID string) error {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	actor, err := e.actor(ctx, nil, actorID)
	if err != nil {
		return storeErr("check responder", err)
	}
	if err := auth.CanRespond(actor, teamID); err != nil {
		return err
	}
	m, err := e.Repo.GetMovement(ctx, nil, movementID)
	if err != nil {
		return storeErr("check responder", err)
	}
	if !m.HasTeam(teamID) {
		return &domain.ValidationError{Field: "team_id", Reason: "team " + teamID + " is not responsible for this movement"}
	}
	return nil
}

// checkAttachments accepts only files uploaded for this movement and team within the size cap.
func (e Engine) checkAttachments(atts []domain.Attachment, movementID, teamID string) error {
	if len(atts) == 0 {
		return nil
	}
	max := int64(0)
	if e.Config != nil {
		max = e.Config.MaxAttachmentBytes()
	}
	for _, a := range atts {
		if a.SizeBytes < 0 {
			return &domain.ValidationError{Field: "attachments", Reason: a.Name + " has a negative size"}
		}
		if max > 0 && a.SizeBytes > max {
			return &domain.ValidationError{Field: "attachments", Reason: fmt.Sprintf("%s exceeds the %d byte limit", a.Name, max)}
		}
		if e.Attachments == nil || !e.Attachments.Owns(a.URL, movementID, teamID) {
			return &domain.ValidationError{Field: "attachments", Reason: a.Name + " was not uploaded for this team's response"}
		}
	}
	return nil
}
