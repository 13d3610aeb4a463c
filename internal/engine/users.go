package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"movetrack/internal/domain"
	"movetrack/internal/engine/auth"
	"movetrack/internal/events"
	"movetrack/internal/repo"
	"movetrack/internal/sanitize"
)

// UserRegisterOptions are parameters for adding a user. An empty ActorID is only used by
// local tooling with direct database access.
type UserRegisterOptions struct {
	Name                  string
	Email                 string
	Password              string
	Teams                 []string
	Role                  domain.Role
	CanManageDismissals   bool
	CanManageTransfersEtc bool
	ActorID               string
}

func (e Engine) RegisterUser(ctx context.Context, opts UserRegisterOptions) (domain.User, error) {
	name := sanitize.Text(opts.Name)
	if name == "" {
		return domain.User{}, &domain.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	email := repo.NormalizeEmail(opts.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return domain.User{}, &domain.ValidationError{Field: "email", Reason: "must be a valid address"}
	}
	role := opts.Role
	if role == "" {
		role = domain.RoleTeamMember
	}
	if !role.Valid() {
		return domain.User{}, &domain.ValidationError{Field: "role", Reason: "must be admin or team_member"}
	}
	teams := make([]string, 0, len(opts.Teams))
	seen := map[string]struct{}{}
	for _, t := range opts.Teams {
		t = strings.TrimSpace(t)
		if _, dup := seen[t]; dup || t == "" {
			continue
		}
		if _, ok := e.Registry.Team(t); !ok {
			return domain.User{}, &domain.ValidationError{Field: "teams", Reason: "references unknown team " + t}
		}
		seen[t] = struct{}{}
		teams = append(teams, t)
	}
	hash, err := auth.HashPassword(opts.Password)
	if err != nil {
		return domain.User{}, err
	}

	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, storeErr("register user", err)
	}
	defer tx.Rollback()
	actorID := systemActor
	if opts.ActorID != "" {
		actor, err := e.actor(ctx, tx, opts.ActorID)
		if err != nil {
			return domain.User{}, storeErr("register user", err)
		}
		if err := auth.RequireAdmin(actor); err != nil {
			return domain.User{}, err
		}
		actorID = actor.ID
	}
	u := domain.User{
		ID:                    uuid.NewString(),
		Name:                  name,
		Email:                 email,
		Teams:                 teams,
		Role:                  role,
		CanManageDismissals:   opts.CanManageDismissals,
		CanManageTransfersEtc: opts.CanManageTransfersEtc,
		CreatedAt:             e.stamp(),
	}
	if err := e.Repo.InsertUser(ctx, tx, u, hash); err != nil {
		return domain.User{}, storeErr("register user", err)
	}
	if err := e.Events.Append(ctx, tx, events.UserRegistered, "user", u.ID, actorID, events.EventPayload{
		"email": u.Email,
		"role":  u.Role,
		"teams": u.Teams,
	}); err != nil {
		return domain.User{}, storeErr("register user", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, storeErr("register user", err)
	}
	return u, nil
}

// SeedAdmin creates an administrator with every capability when no user exists yet.
// It reports whether a user was created.
func (e Engine) SeedAdmin(ctx context.Context, name, email, password string) (domain.User, bool, error) {
	n, err := e.Repo.CountUsers(ctx)
	if err != nil {
		return domain.User{}, false, storeErr("seed admin", err)
	}
	if n > 0 {
		return domain.User{}, false, nil
	}
	if name == "" {
		name = "Administrator"
	}
	u, err := e.RegisterUser(ctx, UserRegisterOptions{
		Name:                  name,
		Email:                 email,
		Password:              password,
		Role:                  domain.RoleAdmin,
		CanManageDismissals:   true,
		CanManageTransfersEtc: true,
	})
	if err != nil {
		return domain.User{}, false, err
	}
	return u, true, nil
}

// Authenticate checks an email and password pair.
func (e Engine) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	u, hash, err := e.Repo.GetUserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, storeErr("authenticate", err)
	}
	if err := auth.CheckPassword(hash, password); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (e Engine) ListUsers(ctx context.Context, actorID string) ([]domain.User, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if actorID != "" {
		actor, err := e.actor(ctx, nil, actorID)
		if err != nil {
			return nil, storeErr("list users", err)
		}
		if err := auth.RequireAdmin(actor); err != nil {
			return nil, err
		}
	}
	users, err := e.Repo.ListUsers(ctx)
	if err != nil {
		return nil, storeErr("list users", err)
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

// CreateAPIKey issues a key for userID. The plain key is only returned here; the store
// keeps its hash. Users may create keys for themselves, admins for anyone.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name, actorID string) (string, domain.APIKey, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", domain.APIKey{}, storeErr("create api key", err)
	}
	defer tx.Rollback()
	eventActor := systemActor
	if actorID != "" {
		actor, err := e.actor(ctx, tx, actorID)
		if err != nil {
			return "", domain.APIKey{}, storeErr("create api key", err)
		}
		if actor.ID != userID {
			if err := auth.RequireAdmin(actor); err != nil {
				return "", domain.APIKey{}, err
			}
		}
		eventActor = actor.ID
	}
	if _, err := e.Repo.GetUser(ctx, tx, userID); err != nil {
		return "", domain.APIKey{}, storeErr("create api key", err)
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", domain.APIKey{}, err
	}
	plain := "mt_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      sanitize.Text(name),
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.stamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return "", domain.APIKey{}, storeErr("create api key", err)
	}
	if err := e.Events.Append(ctx, tx, events.APIKeyCreated, "user", userID, eventActor, events.EventPayload{
		"key_id": key.ID,
		"name":   key.Name,
	}); err != nil {
		return "", domain.APIKey{}, storeErr("create api key", err)
	}
	if err := tx.Commit(); err != nil {
		return "", domain.APIKey{}, storeErr("create api key", err)
	}
	return plain, key, nil
}

// ResolveAPIKey returns the user owning key.
func (e Engine) ResolveAPIKey(ctx context.Context, key string) (domain.User, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	k, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(key))
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, storeErr("resolve api key", err)
	}
	u, err := e.Repo.GetUser(ctx, nil, k.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, auth.ErrInvalidCredentials
	}
	return u, storeErr("resolve api key", err)
}

// ListEvents returns audit events, newest first. Admin only.
func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters, actorID string) ([]domain.Event, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if actorID != "" {
		actor, err := e.actor(ctx, nil, actorID)
		if err != nil {
			return nil, storeErr("list events", err)
		}
		if err := auth.RequireAdmin(actor); err != nil {
			return nil, err
		}
	}
	evs, err := e.Repo.LatestEvents(ctx, f)
	if err != nil {
		return nil, storeErr("list events", err)
	}
	if evs == nil {
		evs = []domain.Event{}
	}
	return evs, nil
}
