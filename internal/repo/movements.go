package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"movetrack/internal/domain"
)

const movementColumns = `id,type,employee_name,selected_teams_json,status,details_json,deadline,created_at,created_by,updated_at,version`

type MovementFilters struct {
	Status   domain.Status
	Type     domain.MovementType
	Team     string
	OpenOnly bool
	// WithDeadline keeps only movements that have a deadline set.
	WithDeadline bool
	Limit        int
}

// InsertMovement stores a movement with its responses and their history.
func (r Repo) InsertMovement(ctx context.Context, tx *sql.Tx, m domain.Movement) error {
	teams, err := marshalJSON(m.SelectedTeams)
	if err != nil {
		return err
	}
	details, err := marshalJSON(m.Details)
	if err != nil {
		return err
	}
	if m.Version == 0 {
		m.Version = 1
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO movements(`+movementColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.Type, m.EmployeeName, teams, m.Status, details, nullablePtr(m.Deadline), m.CreatedAt, m.CreatedBy, m.UpdatedAt, m.Version)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	for _, team := range m.SelectedTeams {
		resp := m.Responses[team]
		if err := r.UpsertResponse(ctx, tx, m.ID, team, resp); err != nil {
			return err
		}
		for _, h := range resp.History {
			if err := r.AppendHistory(ctx, tx, m.ID, team, h); err != nil {
				return err
			}
		}
	}
	return nil
}

func scanMovement(scan func(dest ...any) error) (domain.Movement, error) {
	var (
		m        domain.Movement
		teams    string
		details  string
		deadline sql.NullString
	)
	if err := scan(&m.ID, &m.Type, &m.EmployeeName, &teams, &m.Status, &details, &deadline, &m.CreatedAt, &m.CreatedBy, &m.UpdatedAt, &m.Version); err != nil {
		return m, err
	}
	if err := json.Unmarshal([]byte(teams), &m.SelectedTeams); err != nil {
		return m, fmt.Errorf("decode selected teams of %s: %w", m.ID, err)
	}
	if err := json.Unmarshal([]byte(details), &m.Details); err != nil {
		return m, fmt.Errorf("decode details of %s: %w", m.ID, err)
	}
	m.Deadline = ptrFromNull(deadline)
	m.Responses = map[string]domain.TeamResponse{}
	return m, nil
}

// GetMovement loads one movement with all responses and history.
func (r Repo) GetMovement(ctx context.Context, tx *sql.Tx, id string) (domain.Movement, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT `+movementColumns+` FROM movements WHERE id=?`, id)
	m, err := scanMovement(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Movement{}, ErrNotFound
	}
	if err != nil {
		return domain.Movement{}, err
	}
	byID := map[string]*domain.Movement{m.ID: &m}
	if err := r.loadResponses(ctx, tx, byID); err != nil {
		return domain.Movement{}, err
	}
	return m, nil
}

// ListMovements returns movements newest first.
func (r Repo) ListMovements(ctx context.Context, f MovementFilters) ([]domain.Movement, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.OpenOnly {
		clauses = append(clauses, "status<>'completed'")
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.Team != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM team_responses tr WHERE tr.movement_id=movements.id AND tr.team_id=?)")
		args = append(args, f.Team)
	}
	if f.WithDeadline {
		clauses = append(clauses, "deadline IS NOT NULL AND deadline<>''")
	}
	query := `SELECT ` + movementColumns + ` FROM movements WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Movement
	for rows.Next() {
		m, err := scanMovement(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return res, nil
	}
	byID := make(map[string]*domain.Movement, len(res))
	for i := range res {
		byID[res[i].ID] = &res[i]
	}
	if err := r.loadResponses(ctx, nil, byID); err != nil {
		return nil, err
	}
	return res, nil
}

func (r Repo) loadResponses(ctx context.Context, tx *sql.Tx, byID map[string]*domain.Movement) error {
	ids := make([]any, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	in := placeholders(len(ids))
	rows, err := r.q(tx).QueryContext(ctx, `SELECT movement_id,team_id,status,COALESCE(comment,''),submitted_date,checklist_json,attachments_json
FROM team_responses WHERE movement_id IN (`+in+`)`, ids...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			movementID, teamID, checklist, attachments string
			submitted                                  sql.NullString
			resp                                       domain.TeamResponse
		)
		if err := rows.Scan(&movementID, &teamID, &resp.Status, &resp.Comment, &submitted, &checklist, &attachments); err != nil {
			return err
		}
		resp.SubmittedDate = ptrFromNull(submitted)
		resp.Checklist = map[string]bool{}
		if err := json.Unmarshal([]byte(checklist), &resp.Checklist); err != nil {
			return fmt.Errorf("decode checklist %s/%s: %w", movementID, teamID, err)
		}
		resp.Attachments = []domain.Attachment{}
		if err := json.Unmarshal([]byte(attachments), &resp.Attachments); err != nil {
			return fmt.Errorf("decode attachments %s/%s: %w", movementID, teamID, err)
		}
		resp.History = []domain.HistoryEntry{}
		if m, ok := byID[movementID]; ok {
			m.Responses[teamID] = resp
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	hist, err := r.q(tx).QueryContext(ctx, `SELECT movement_id,team_id,actor_name,actor_email,action,ts
FROM response_history WHERE movement_id IN (`+in+`) ORDER BY id ASC`, ids...)
	if err != nil {
		return err
	}
	defer hist.Close()
	for hist.Next() {
		var (
			movementID, teamID string
			h                  domain.HistoryEntry
		)
		if err := hist.Scan(&movementID, &teamID, &h.ActorName, &h.ActorEmail, &h.Action, &h.Timestamp); err != nil {
			return err
		}
		m, ok := byID[movementID]
		if !ok {
			continue
		}
		resp := m.Responses[teamID]
		resp.History = append(resp.History, h)
		m.Responses[teamID] = resp
	}
	return hist.Err()
}

// MovementFields lists the columns UpdateMovement may change; nil means unchanged.
type MovementFields struct {
	EmployeeName  *string
	SelectedTeams []string
	Status        *domain.Status
	Details       *domain.Details
	Deadline      *string
	ClearDeadline bool
	UpdatedAt     string
}

// UpdateMovement applies a partial update and bumps the version. When expectedVersion
// is positive the update only succeeds if the stored version still matches.
func (r Repo) UpdateMovement(ctx context.Context, tx *sql.Tx, id string, f MovementFields, expectedVersion int) (int, error) {
	fields := []string{"version=version+1"}
	var args []any
	if f.EmployeeName != nil {
		fields = append(fields, "employee_name=?")
		args = append(args, *f.EmployeeName)
	}
	if f.SelectedTeams != nil {
		teams, err := marshalJSON(f.SelectedTeams)
		if err != nil {
			return 0, err
		}
		fields = append(fields, "selected_teams_json=?")
		args = append(args, teams)
	}
	if f.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *f.Status)
	}
	if f.Details != nil {
		details, err := marshalJSON(*f.Details)
		if err != nil {
			return 0, err
		}
		fields = append(fields, "details_json=?")
		args = append(args, details)
	}
	switch {
	case f.ClearDeadline:
		fields = append(fields, "deadline=NULL")
	case f.Deadline != nil:
		fields = append(fields, "deadline=?")
		args = append(args, nullablePtr(f.Deadline))
	}
	if f.UpdatedAt != "" {
		fields = append(fields, "updated_at=?")
		args = append(args, f.UpdatedAt)
	}
	query := fmt.Sprintf(`UPDATE movements SET %s WHERE id=?`, strings.Join(fields, ","))
	args = append(args, id)
	if expectedVersion > 0 {
		query += ` AND version=?`
		args = append(args, expectedVersion)
	}
	res, err := r.q(tx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update movement: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		var version int
		err := r.q(tx).QueryRowContext(ctx, `SELECT version FROM movements WHERE id=?`, id).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		if err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("movement %s is at version %d, expected %d: %w", id, version, expectedVersion, ErrConflict)
	}
	var version int
	if err := r.q(tx).QueryRowContext(ctx, `SELECT version FROM movements WHERE id=?`, id).Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

// DeleteMovement hard-deletes a movement; responses, history and reminder log cascade.
func (r Repo) DeleteMovement(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM movements WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete movement: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertResponse writes one team's response row. History is appended separately.
func (r Repo) UpsertResponse(ctx context.Context, tx *sql.Tx, movementID, teamID string, resp domain.TeamResponse) error {
	if resp.Status == "" {
		resp.Status = domain.StatusPending
	}
	checklist := resp.Checklist
	if checklist == nil {
		checklist = map[string]bool{}
	}
	attachments := resp.Attachments
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	checklistJSON, err := marshalJSON(checklist)
	if err != nil {
		return err
	}
	attachmentsJSON, err := marshalJSON(attachments)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO team_responses(movement_id,team_id,status,comment,submitted_date,checklist_json,attachments_json)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(movement_id,team_id) DO UPDATE SET
  status=excluded.status,
  comment=excluded.comment,
  submitted_date=excluded.submitted_date,
  checklist_json=excluded.checklist_json,
  attachments_json=excluded.attachments_json`,
		movementID, teamID, resp.Status, nullable(resp.Comment), nullablePtr(resp.SubmittedDate), checklistJSON, attachmentsJSON)
	if err != nil {
		return fmt.Errorf("upsert response %s/%s: %w", movementID, teamID, err)
	}
	return nil
}

func (r Repo) DeleteResponse(ctx context.Context, tx *sql.Tx, movementID, teamID string) error {
	_, err := r.q(tx).ExecContext(ctx, `DELETE FROM team_responses WHERE movement_id=? AND team_id=?`, movementID, teamID)
	if err != nil {
		return fmt.Errorf("delete response %s/%s: %w", movementID, teamID, err)
	}
	return nil
}

func (r Repo) AppendHistory(ctx context.Context, tx *sql.Tx, movementID, teamID string, h domain.HistoryEntry) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO response_history(movement_id,team_id,actor_name,actor_email,action,ts) VALUES (?,?,?,?,?,?)`,
		movementID, teamID, h.ActorName, h.ActorEmail, h.Action, h.Timestamp)
	if err != nil {
		return fmt.Errorf("append history %s/%s: %w", movementID, teamID, err)
	}
	return nil
}

// ResponseStatuses returns the stored status of every response of a movement.
func (r Repo) ResponseStatuses(ctx context.Context, tx *sql.Tx, movementID string) (map[string]domain.TeamResponse, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT team_id,status FROM team_responses WHERE movement_id=?`, movementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]domain.TeamResponse{}
	for rows.Next() {
		var team string
		var resp domain.TeamResponse
		if err := rows.Scan(&team, &resp.Status); err != nil {
			return nil, err
		}
		res[team] = resp
	}
	return res, rows.Err()
}
