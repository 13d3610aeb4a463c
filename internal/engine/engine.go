package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"movetrack/internal/attachments"
	"movetrack/internal/config"
	"movetrack/internal/domain"
	"movetrack/internal/engine/auth"
	"movetrack/internal/events"
	"movetrack/internal/movement"
	"movetrack/internal/notify"
	"movetrack/internal/registry"
	"movetrack/internal/repo"
)

// Notifier delivers notification messages after a mutation has been committed.
type Notifier interface {
	Dispatch(ctx context.Context, msg notify.Message) error
}

type Engine struct {
	DB          *sql.DB
	Repo        repo.Repo
	Events      events.Writer
	Config      *config.Config
	Registry    *registry.Registry
	Notifier    Notifier
	Attachments attachments.Store
	Log         *zap.Logger
	Now         func() time.Time
}

func New(db *sql.DB, cfg *config.Config, reg *registry.Registry) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Registry: reg,
		Log:      zap.NewNop(),
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

// Outcome is the result of a committed mutation. NotifyErr is set when the change was saved
// but some recipients may not have been notified.
type Outcome struct {
	Movement  domain.Movement      `json:"movement"`
	Roster    *movement.RosterPlan `json:"roster,omitempty"`
	NotifyErr error                `json:"-"`
}

// StoreError reports a storage failure; nothing from the attempted operation was saved.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s failed, data was not saved: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// storeErr passes domain errors through and wraps everything else as a StoreError.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *domain.ValidationError
		fe auth.ForbiddenError
		ae *attachments.Error
		se *StoreError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &fe), errors.As(err, &ae), errors.As(err, &se):
		return err
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, repo.ErrConflict),
		errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, attachments.ErrTooLarge):
		return err
	}
	return &StoreError{Op: op, Err: err}
}

func (e Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := config.DefaultStoreTimeout
	if e.Config != nil {
		timeout = e.Config.Timeouts.Store()
	}
	return context.WithTimeout(ctx, timeout)
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// actor loads the calling user. Unknown ids are refused rather than reported missing.
func (e Engine) actor(ctx context.Context, tx *sql.Tx, actorID string) (domain.User, error) {
	if actorID == "" {
		return domain.User{}, auth.ForbiddenError{Permission: "authenticated"}
	}
	u, err := e.Repo.GetUser(ctx, tx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, auth.ForbiddenError{Permission: "authenticated"}
	}
	return u, err
}

// Actor returns the user behind actorID.
func (e Engine) Actor(ctx context.Context, actorID string) (domain.User, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	u, err := e.actor(ctx, nil, actorID)
	return u, storeErr("load user", err)
}

func (e Engine) dispatch(ctx context.Context, msg notify.Message) error {
	if e.Notifier == nil {
		return nil
	}
	err := e.Notifier.Dispatch(ctx, msg)
	if err != nil {
		e.logger().Warn("saved but notification failed",
			zap.String("event", string(msg.Event)),
			zap.Error(err))
	}
	return err
}

// recipients resolves one recipient per user belonging to any of teams. The team shown
// is the first of teams the user belongs to.
func (e Engine) recipients(ctx context.Context, teams []string) ([]domain.Recipient, error) {
	users, err := e.Repo.UsersByTeams(ctx, teams)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}
	res := make([]domain.Recipient, 0, len(users))
	for _, u := range users {
		for _, t := range teams {
			if u.InTeam(t) {
				res = append(res, domain.Recipient{Email: u.Email, Name: u.Name, TeamID: t, TeamName: e.teamName(t)})
				break
			}
		}
	}
	return res, nil
}

func (e Engine) teamName(id string) string {
	if e.Registry == nil {
		return id
	}
	return e.Registry.TeamName(id)
}

func (e Engine) requireKnownTeams(teams []string) error {
	if e.Registry == nil {
		return errors.New("team registry not loaded")
	}
	for _, t := range teams {
		if _, ok := e.Registry.Team(t); !ok {
			return &domain.ValidationError{Field: "selected_teams", Reason: "references unknown team " + t}
		}
	}
	return nil
}
