package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"movetrack/internal/domain"
)

const userColumns = `id,name,email,role,can_manage_dismissals,can_manage_transfers_etc,created_at`

// NormalizeEmail lowercases and trims an address; logins compare normalized values.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// InsertUser stores a user and its team memberships. passwordHash must already be hashed.
func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User, passwordHash string) error {
	if u.ID == "" {
		return errors.New("id required")
	}
	if passwordHash == "" {
		return errors.New("password hash required")
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO users(`+userColumns+`,password_hash) VALUES (?,?,?,?,?,?,?,?)`,
		u.ID, u.Name, NormalizeEmail(u.Email), u.Role, boolInt(u.CanManageDismissals), boolInt(u.CanManageTransfersEtc), u.CreatedAt, passwordHash)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return fmt.Errorf("email %s already registered: %w", u.Email, ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	for i, team := range u.Teams {
		if _, err := r.q(tx).ExecContext(ctx, `INSERT INTO user_teams(user_id,team_id,position) VALUES (?,?,?)`, u.ID, team, i); err != nil {
			return fmt.Errorf("insert user team: %w", err)
		}
	}
	return nil
}

func scanUser(scan func(dest ...any) error) (domain.User, error) {
	var u domain.User
	var dismissals, transfers int
	if err := scan(&u.ID, &u.Name, &u.Email, &u.Role, &dismissals, &transfers, &u.CreatedAt); err != nil {
		return u, err
	}
	u.CanManageDismissals = dismissals != 0
	u.CanManageTransfersEtc = transfers != 0
	return u, nil
}

func (r Repo) GetUser(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	u, err := scanUser(r.q(tx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	if u.Teams, err = r.userTeams(ctx, tx, u.ID); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// GetUserByEmail returns the user and its password hash.
func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, string, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+`,password_hash FROM users WHERE email=?`, NormalizeEmail(email))
	var hash string
	u, err := scanUser(func(dest ...any) error {
		return row.Scan(append(dest, &hash)...)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, "", ErrNotFound
	}
	if err != nil {
		return domain.User{}, "", err
	}
	if u.Teams, err = r.userTeams(ctx, nil, u.ID); err != nil {
		return domain.User{}, "", err
	}
	return u, hash, nil
}

func (r Repo) userTeams(ctx context.Context, tx *sql.Tx, userID string) ([]string, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT team_id FROM user_teams WHERE user_id=? ORDER BY position, team_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	teams := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// ListUsers returns every user ordered by name.
func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	return r.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY name, id`)
}

// UsersByTeams returns users belonging to at least one of teamIDs. Each user carries all
// of its memberships, not only the matching ones.
func (r Repo) UsersByTeams(ctx context.Context, teamIDs []string) ([]domain.User, error) {
	if len(teamIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(teamIDs))
	for i, t := range teamIDs {
		args[i] = t
	}
	return r.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE id IN (
  SELECT user_id FROM user_teams WHERE team_id IN (`+placeholders(len(teamIDs))+`)
) ORDER BY name, id`, args...)
}

func (r Repo) queryUsers(ctx context.Context, query string, args ...any) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			rows.Close()
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for i := range users {
		if users[i].Teams, err = r.userTeams(ctx, nil, users[i].ID); err != nil {
			return nil, err
		}
	}
	return users, nil
}

func (r Repo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&n)
	return n, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
