package engine

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"movetrack/internal/domain"
	"movetrack/internal/engine/auth"
	"movetrack/internal/events"
	"movetrack/internal/notify"
	"movetrack/internal/reminder"
	"movetrack/internal/repo"
)

const systemActor = "system"

// ReminderOptions control one reminder scan. A zero Today means the current date; an empty
// ActorID means the scan was started by the scheduler.
type ReminderOptions struct {
	Today   time.Time
	DryRun  bool
	ActorID string
}

type ReminderReport struct {
	Day              string           `json:"day" format:"date"`
	MovementsChecked int              `json:"movements_checked"`
	RemindersSent    int              `json:"reminders_sent"`
	Recipients       int              `json:"recipients"`
	AlreadySent      int              `json:"already_sent"`
	Retried          int              `json:"retried"`
	DryRun           bool             `json:"dry_run"`
	Groups           []reminder.Group `json:"groups"`
	NotifyErr        error            `json:"-"`
}

// retryBatch is a set of reminders already recorded today that some sinks still owe.
type retryBatch struct {
	sinks  []string
	groups []reminder.Group
}

// RunReminders scans open movements with a deadline and sends one batched deadline reminder
// for the movements due in one to three days. A movement is reminded at most once per
// calendar day. When some sinks fail, the reminder is recorded and only the failed sinks
// are retried by later runs that day; when the failure cannot be attributed to a sink,
// nothing is recorded and the whole batch is retried.
func (e Engine) RunReminders(ctx context.Context, opts ReminderOptions) (ReminderReport, error) {
	today := opts.Today
	if today.IsZero() {
		today = e.now()
	}
	day := today.Format(domain.DateLayout)
	report := ReminderReport{Day: day, DryRun: opts.DryRun, Groups: []reminder.Group{}}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	actorID := systemActor
	if opts.ActorID != "" {
		actor, err := e.actor(sctx, nil, opts.ActorID)
		if err != nil {
			return report, storeErr("run reminders", err)
		}
		if err := auth.RequireAdmin(actor); err != nil {
			return report, err
		}
		actorID = actor.ID
	}

	open, err := e.Repo.ListMovements(sctx, repo.MovementFilters{OpenOnly: true, WithDeadline: true})
	if err != nil {
		return report, storeErr("run reminders", err)
	}
	report.MovementsChecked = len(open)
	pendingTeams := map[string]struct{}{}
	for _, m := range open {
		for _, t := range m.PendingTeams() {
			pendingTeams[t] = struct{}{}
		}
	}
	teamIDs := make([]string, 0, len(pendingTeams))
	for t := range pendingTeams {
		teamIDs = append(teamIDs, t)
	}
	users, err := e.Repo.UsersByTeams(sctx, teamIDs)
	if err != nil {
		return report, storeErr("run reminders", err)
	}
	dir := reminder.NewDirectory(users, e.teamName)

	var (
		fresh   []reminder.Group
		retries []*retryBatch
		byKey   = map[string]*retryBatch{}
	)
	for _, g := range reminder.Select(open, dir, today) {
		sent, err := e.Repo.ReminderSentOn(sctx, g.Movement.ID, day)
		if err != nil {
			return report, storeErr("run reminders", err)
		}
		if !sent {
			fresh = append(fresh, g)
			report.Groups = append(report.Groups, g)
			report.Recipients += len(g.Recipients)
			continue
		}
		sinks, err := e.Repo.ReminderRetrySinks(sctx, g.Movement.ID, day)
		if err != nil {
			return report, storeErr("run reminders", err)
		}
		if len(sinks) == 0 {
			report.AlreadySent++
			continue
		}
		key := strings.Join(sinks, ",")
		b, ok := byKey[key]
		if !ok {
			b = &retryBatch{sinks: sinks}
			byKey[key] = b
			retries = append(retries, b)
		}
		b.groups = append(b.groups, g)
		report.Groups = append(report.Groups, g)
		report.Recipients += len(g.Recipients)
	}
	if opts.DryRun || len(report.Groups) == 0 {
		return report, nil
	}

	var notifyErrs []error
	if len(fresh) > 0 {
		err := e.dispatch(ctx, reminderMessage(fresh, nil))
		failed, attributed := notify.FailedSinks(err)
		if err == nil || attributed {
			if rerr := e.recordReminders(ctx, fresh, day, actorID, failed); rerr != nil {
				return report, rerr
			}
			report.RemindersSent = len(fresh)
		}
		if err != nil {
			notifyErrs = append(notifyErrs, err)
		}
	}
	for _, b := range retries {
		err := e.dispatch(ctx, reminderMessage(b.groups, b.sinks))
		failed, attributed := notify.FailedSinks(err)
		if err == nil || attributed {
			if rerr := e.clearRetries(ctx, b, day, failed); rerr != nil {
				return report, rerr
			}
			report.Retried += len(b.groups)
		}
		if err != nil {
			notifyErrs = append(notifyErrs, err)
		}
	}
	report.NotifyErr = errors.Join(notifyErrs...)
	e.logger().Info("deadline reminders sent",
		zap.String("day", day),
		zap.Int("movements", report.RemindersSent),
		zap.Int("retried", report.Retried),
		zap.Int("recipients", report.Recipients))
	return report, nil
}

func reminderMessage(groups []reminder.Group, sinks []string) notify.Message {
	msg := notify.Message{Event: notify.EventDeadlineReminder, Sinks: sinks}
	for _, g := range groups {
		msg.Items = append(msg.Items, notify.Notification{
			Movement:      notify.Summarize(g.Movement),
			Recipients:    g.Recipients,
			DaysRemaining: g.DaysRemaining,
		})
	}
	return msg
}

// recordReminders logs the batch as sent for day and keeps a retry row for every failed sink.
func (e Engine) recordReminders(ctx context.Context, groups []reminder.Group, day, actorID string, failed []string) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	tx, err := e.DB.BeginTx(sctx, nil)
	if err != nil {
		return storeErr("record reminders", err)
	}
	defer tx.Rollback()
	createdAt := e.stamp()
	for _, g := range groups {
		if err := e.Repo.RecordReminder(sctx, tx, g.Movement.ID, day, g.DaysRemaining, len(g.Recipients), createdAt); err != nil {
			return storeErr("record reminders", err)
		}
		for _, sink := range failed {
			if err := e.Repo.RecordReminderRetry(sctx, tx, g.Movement.ID, day, sink, g.DaysRemaining, createdAt); err != nil {
				return storeErr("record reminders", err)
			}
		}
		payload := events.EventPayload{
			"days_remaining": g.DaysRemaining,
			"pending_teams":  g.PendingTeams,
			"recipients":     len(g.Recipients),
		}
		if len(failed) > 0 {
			payload["failed_sinks"] = failed
		}
		if err := e.Events.Append(sctx, tx, events.ReminderSent, "movement", g.Movement.ID, actorID, payload); err != nil {
			return storeErr("record reminders", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storeErr("record reminders", err)
	}
	return nil
}

// clearRetries drops the retry rows of the sinks in b that delivered this time.
func (e Engine) clearRetries(ctx context.Context, b *retryBatch, day string, failed []string) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	tx, err := e.DB.BeginTx(sctx, nil)
	if err != nil {
		return storeErr("clear reminder retries", err)
	}
	defer tx.Rollback()
	for _, g := range b.groups {
		for _, sink := range b.sinks {
			if slices.Contains(failed, sink) {
				continue
			}
			if err := e.Repo.ClearReminderRetry(sctx, tx, g.Movement.ID, day, sink); err != nil {
				return storeErr("clear reminder retries", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return storeErr("clear reminder retries", err)
	}
	return nil
}
