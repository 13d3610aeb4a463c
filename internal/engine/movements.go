package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"movetrack/internal/domain"
	"movetrack/internal/engine/auth"
	"movetrack/internal/events"
	"movetrack/internal/movement"
	"movetrack/internal/notify"
	"movetrack/internal/repo"
	"movetrack/internal/sanitize"
)

// MovementCreateOptions are parameters for opening a movement.
type MovementCreateOptions struct {
	Type          domain.MovementType
	EmployeeName  string
	SelectedTeams []string
	Details       domain.Details
	Deadline      string
	ActorID       string
}

func (e Engine) CreateMovement(ctx context.Context, opts MovementCreateOptions) (Outcome, error) {
	if !opts.Type.Valid() {
		return Outcome{}, &domain.ValidationError{Field: "type", Reason: "must be one of dismissal, transfer, salary_change, promotion"}
	}
	name := sanitize.Text(opts.EmployeeName)
	if name == "" {
		return Outcome{}, &domain.ValidationError{Field: "employee_name", Reason: "must not be empty"}
	}
	teams, err := movement.NormalizeTeams(opts.SelectedTeams)
	if err != nil {
		return Outcome{}, err
	}
	if err := e.requireKnownTeams(teams); err != nil {
		return Outcome{}, err
	}
	details := opts.Details.MapText(sanitize.Text)
	if err := details.Validate(opts.Type); err != nil {
		return Outcome{}, err
	}
	deadline, err := parseDeadline(opts.Deadline)
	if err != nil {
		return Outcome{}, err
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	tx, err := e.DB.BeginTx(sctx, nil)
	if err != nil {
		return Outcome{}, storeErr("create movement", err)
	}
	defer tx.Rollback()

	actor, err := e.actor(sctx, tx, opts.ActorID)
	if err != nil {
		return Outcome{}, storeErr("create movement", err)
	}
	if err := auth.CanManage(actor, opts.Type); err != nil {
		return Outcome{}, err
	}
	now := e.stamp()
	m := domain.Movement{
		ID:            uuid.NewString(),
		Type:          opts.Type,
		EmployeeName:  name,
		SelectedTeams: teams,
		Status:        domain.StatusPending,
		Responses:     make(map[string]domain.TeamResponse, len(teams)),
		Details:       details,
		Deadline:      deadline,
		CreatedAt:     now,
		CreatedBy:     actor.Name,
		UpdatedAt:     now,
		Version:       1,
	}
	for _, t := range teams {
		m.Responses[t] = movement.NewResponse()
	}
	if err := e.Repo.InsertMovement(sctx, tx, m); err != nil {
		return Outcome{}, storeErr("create movement", err)
	}
	if err := e.Events.Append(sctx, tx, events.MovementCreated, "movement", m.ID, actor.ID, events.EventPayload{
		"type":           m.Type,
		"employee_name":  m.EmployeeName,
		"selected_teams": m.SelectedTeams,
	}); err != nil {
		return Outcome{}, storeErr("create movement", err)
	}
	if err := tx.Commit(); err != nil {
		return Outcome{}, storeErr("create movement", err)
	}
	e.logger().Info("movement created",
		zap.String("movement_id", m.ID),
		zap.String("type", string(m.Type)),
		zap.Strings("teams", m.SelectedTeams))

	out := Outcome{Movement: m}
	out.NotifyErr = e.notifyTeams(ctx, notify.EventMovementCreated, m, teams, "")
	return out, nil
}

// notifyTeams sends evt about m to the members of teams.
func (e Engine) notifyTeams(ctx context.Context, evt notify.Event, m domain.Movement, teams []string, updatedBy string) error {
	if e.Notifier == nil || len(teams) == 0 {
		return nil
	}
	recipients, err := e.recipients(ctx, teams)
	if err != nil {
		e.logger().Warn("saved but recipients could not be resolved", zap.String("movement_id", m.ID), zap.Error(err))
		return err
	}
	return e.dispatch(ctx, notify.Message{Event: evt, Items: []notify.Notification{{
		Movement:   notify.Summarize(m),
		Recipients: recipients,
		UpdatedBy:  updatedBy,
	}}})
}

func parseDeadline(v string) (*string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	t, err := domain.ParseDate(v)
	if err != nil {
		return nil, &domain.ValidationError{Field: "deadline", Reason: "must be a YYYY-MM-DD date"}
	}
	s := t.Format(domain.DateLayout)
	return &s, nil
}

// MovementUpdateOptions are parameters for editing a movement. Nil fields stay unchanged;
// an empty Deadline clears it.
type MovementUpdateOptions struct {
	ID              string
	EmployeeName    *string
	SelectedTeams   []string
	Details         *domain.Details
	Deadline        *string
	ExpectedVersion int
	ActorID         string
}

func (e Engine) UpdateMovement(ctx context.Context, opts MovementUpdateOptions) (Outcome, error) {
	var fields repo.MovementFields
	if opts.EmployeeName != nil {
		name := sanitize.Text(*opts.EmployeeName)
		if name == "" {
			return Outcome{}, &domain.ValidationError{Field: "employee_name", Reason: "must not be empty"}
		}
		fields.EmployeeName = &name
	}
	var teams []string
	if opts.SelectedTeams != nil {
		var err error
		if teams, err = movement.NormalizeTeams(opts.SelectedTeams); err != nil {
			return Outcome{}, err
		}
		if err := e.requireKnownTeams(teams); err != nil {
			return Outcome{}, err
		}
	}
	if opts.Deadline != nil {
		deadline, err := parseDeadline(*opts.Deadline)
		if err != nil {
			return Outcome{}, err
		}
		fields.Deadline = deadline
		fields.ClearDeadline = deadline == nil
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	tx, err := e.DB.BeginTx(sctx, nil)
	if err != nil {
		return Outcome{}, storeErr("update movement", err)
	}
	defer tx.Rollback()

	actor, err := e.actor(sctx, tx, opts.ActorID)
	if err != nil {
		return Outcome{}, storeErr("update movement", err)
	}
	m, err := e.Repo.GetMovement(sctx, tx, opts.ID)
	if err != nil {
		return Outcome{}, storeErr("update movement", err)
	}
	if err := auth.CanManage(actor, m.Type); err != nil {
		return Outcome{}, err
	}
	if opts.ExpectedVersion > 0 && opts.ExpectedVersion != m.Version {
		return Outcome{}, fmt.Errorf("movement %s is at version %d, expected %d: %w", m.ID, m.Version, opts.ExpectedVersion, repo.ErrConflict)
	}
	if opts.Details != nil {
		details := opts.Details.MapText(sanitize.Text)
		if err := details.Validate(m.Type); err != nil {
			return Outcome{}, err
		}
		fields.Details = &details
		m.Details = details
	}
	if fields.EmployeeName != nil {
		m.EmployeeName = *fields.EmployeeName
	}
	if opts.Deadline != nil {
		m.Deadline = fields.Deadline
	}

	plan := movement.PlanRoster(m.SelectedTeams, m.SelectedTeams, m.Responses)
	if teams != nil {
		m, plan = movement.ApplyRoster(m, teams)
		for _, t := range plan.Removed {
			if err := e.Repo.DeleteResponse(sctx, tx, m.ID, t); err != nil {
				return Outcome{}, storeErr("update movement", err)
			}
		}
		for _, t := range plan.Added {
			if err := e.Repo.UpsertResponse(sctx, tx, m.ID, t, m.Responses[t]); err != nil {
				return Outcome{}, storeErr("update movement", err)
			}
		}
		fields.SelectedTeams = m.SelectedTeams
	}
	status := movement.DeriveStatus(m.Responses, m.SelectedTeams)
	m.Status = status
	fields.Status = &status
	m.UpdatedAt = e.stamp()
	fields.UpdatedAt = m.UpdatedAt

	version, err := e.Repo.UpdateMovement(sctx, tx, m.ID, fields, m.Version)
	if err != nil {
		return Outcome{}, storeErr("update movement", err)
	}
	m.Version = version
	if err := e.Events.Append(sctx, tx, events.MovementUpdated, "movement", m.ID, actor.ID, events.EventPayload{
		"added":             plan.Added,
		"removed":           plan.Removed,
		"removed_completed": plan.RemovedCompleted,
		"version":           version,
	}); err != nil {
		return Outcome{}, storeErr("update movement", err)
	}
	if err := tx.Commit(); err != nil {
		return Outcome{}, storeErr("update movement", err)
	}
	if plan.Destructive() {
		e.logger().Warn("completed responses discarded by roster edit",
			zap.String("movement_id", m.ID),
			zap.Strings("teams", plan.RemovedCompleted))
	}

	out := Outcome{Movement: m, Roster: &plan}
	var notifyErrs []error
	if err := e.notifyTeams(ctx, notify.EventMovementCreated, m, plan.Added, ""); err != nil {
		notifyErrs = append(notifyErrs, err)
	}
	if err := e.notifyTeams(ctx, notify.EventMovementUpdated, m, m.SelectedTeams, actor.Name); err != nil {
		notifyErrs = append(notifyErrs, err)
	}
	out.NotifyErr = errors.Join(notifyErrs...)
	return out, nil
}

// PreviewRoster reports what replacing the roster of a movement with teams would do,
// without changing anything.
func (e Engine) PreviewRoster(ctx context.Context, id string, teams []string, actorID string) (movement.RosterPlan, error) {
	next, err := movement.NormalizeTeams(teams)
	if err != nil {
		return movement.RosterPlan{}, err
	}
	if err := e.requireKnownTeams(next); err != nil {
		return movement.RosterPlan{}, err
	}
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	actor, err := e.actor(ctx, nil, actorID)
	if err != nil {
		return movement.RosterPlan{}, storeErr("preview roster", err)
	}
	if err := auth.RequireAdmin(actor); err != nil {
		return movement.RosterPlan{}, err
	}
	m, err := e.Repo.GetMovement(ctx, nil, id)
	if err != nil {
		return movement.RosterPlan{}, storeErr("preview roster", err)
	}
	return movement.PlanRoster(m.SelectedTeams, next, m.Responses), nil
}

// DeleteMovement removes a movement with its responses. Attachment blobs are removed
// afterwards on a best effort basis.
func (e Engine) DeleteMovement(ctx context.Context, id, actorID string) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	tx, err := e.DB.BeginTx(sctx, nil)
	if err != nil {
		return storeErr("delete movement", err)
	}
	defer tx.Rollback()
	actor, err := e.actor(sctx, tx, actorID)
	if err != nil {
		return storeErr("delete movement", err)
	}
	m, err := e.Repo.GetMovement(sctx, tx, id)
	if err != nil {
		return storeErr("delete movement", err)
	}
	if err := auth.CanManage(actor, m.Type); err != nil {
		return err
	}
	if err := e.Repo.DeleteMovement(sctx, tx, id); err != nil {
		return storeErr("delete movement", err)
	}
	if err := e.Events.Append(sctx, tx, events.MovementDeleted, "movement", id, actor.ID, events.EventPayload{
		"employee_name": m.EmployeeName,
		"type":          m.Type,
	}); err != nil {
		return storeErr("delete movement", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("delete movement", err)
	}
	if e.Attachments == nil {
		return nil
	}
	for team, resp := range m.Responses {
		for _, a := range resp.Attachments {
			if _, err := e.Attachments.Delete(ctx, a.URL); err != nil {
				e.logger().Warn("failed to delete attachment of removed movement",
					zap.String("movement_id", id),
					zap.String("team", team),
					zap.String("url", a.URL),
					zap.Error(err))
			}
		}
	}
	return nil
}

func (e Engine) GetMovement(ctx context.Context, id, actorID string) (domain.Movement, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if _, err := e.actor(ctx, nil, actorID); err != nil {
		return domain.Movement{}, storeErr("load movement", err)
	}
	m, err := e.Repo.GetMovement(ctx, nil, id)
	return m, storeErr("load movement", err)
}

// ListMovements returns movements newest first.
func (e Engine) ListMovements(ctx context.Context, f repo.MovementFilters, actorID string) ([]domain.Movement, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if _, err := e.actor(ctx, nil, actorID); err != nil {
		return nil, storeErr("list movements", err)
	}
	ms, err := e.Repo.ListMovements(ctx, f)
	if err != nil {
		return nil, storeErr("list movements", err)
	}
	if ms == nil {
		ms = []domain.Movement{}
	}
	return ms, nil
}
