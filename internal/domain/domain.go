package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

type MovementType string

const (
	TypeDismissal    MovementType = "dismissal"
	TypeTransfer     MovementType = "transfer"
	TypeSalaryChange MovementType = "salary_change"
	TypePromotion    MovementType = "promotion"
)

// MovementTypes lists every supported type in display order.
var MovementTypes = []MovementType{TypeDismissal, TypeTransfer, TypeSalaryChange, TypePromotion}

func (t MovementType) Valid() bool {
	switch t {
	case TypeDismissal, TypeTransfer, TypeSalaryChange, TypePromotion:
		return true
	}
	return false
}

// Label returns the human readable name used in notifications.
func (t MovementType) Label() string {
	switch t {
	case TypeDismissal:
		return "Dismissal"
	case TypeTransfer:
		return "Transfer"
	case TypeSalaryChange:
		return "Salary change"
	case TypePromotion:
		return "Promotion"
	default:
		return string(t)
	}
}

func ParseMovementType(s string) (MovementType, error) {
	t := MovementType(strings.TrimSpace(strings.ToLower(s)))
	if !t.Valid() {
		return "", &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown movement type %q", s)}
	}
	return t, nil
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleTeamMember Role = "team_member"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleTeamMember
}

type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Attachment struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	SizeBytes  int64  `json:"size_bytes"`
	UploadedAt string `json:"uploaded_at" format:"date-time"`
}

type HistoryAction string

const (
	ActionCreated HistoryAction = "created"
	ActionUpdated HistoryAction = "updated"
)

type HistoryEntry struct {
	ActorName  string        `json:"actor_name"`
	ActorEmail string        `json:"actor_email"`
	Action     HistoryAction `json:"action" enum:"created,updated"`
	Timestamp  string        `json:"timestamp" format:"date-time"`
}

// TeamResponse is one team's answer on a movement.
type TeamResponse struct {
	Status        Status          `json:"status" enum:"pending,completed"`
	Comment       string          `json:"comment,omitempty"`
	SubmittedDate *string         `json:"submitted_date,omitempty" format:"date"`
	Checklist     map[string]bool `json:"checklist"`
	Attachments   []Attachment    `json:"attachments"`
	History       []HistoryEntry  `json:"history"`
}

type Movement struct {
	ID            string                  `json:"id"`
	Type          MovementType            `json:"type" enum:"dismissal,transfer,salary_change,promotion"`
	EmployeeName  string                  `json:"employee_name"`
	SelectedTeams []string                `json:"selected_teams"`
	Status        Status                  `json:"status" enum:"pending,in_progress,completed"`
	Responses     map[string]TeamResponse `json:"responses"`
	Details       Details                 `json:"details"`
	Deadline      *string                 `json:"deadline,omitempty" format:"date"`
	CreatedAt     string                  `json:"created_at" format:"date-time"`
	CreatedBy     string                  `json:"created_by"`
	UpdatedAt     string                  `json:"updated_at" format:"date-time"`
	Version       int                     `json:"version"`
}

// HasTeam reports whether team is part of the movement roster.
func (m Movement) HasTeam(team string) bool {
	for _, t := range m.SelectedTeams {
		if t == team {
			return true
		}
	}
	return false
}

// PendingTeams returns roster teams whose response is not completed, in roster order.
func (m Movement) PendingTeams() []string {
	var res []string
	for _, t := range m.SelectedTeams {
		if r, ok := m.Responses[t]; !ok || r.Status != StatusCompleted {
			res = append(res, t)
		}
	}
	return res
}

type User struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name"`
	Email                 string   `json:"email"`
	Teams                 []string `json:"teams"`
	Role                  Role     `json:"role" enum:"admin,team_member"`
	CanManageDismissals   bool     `json:"can_manage_dismissals"`
	CanManageTransfersEtc bool     `json:"can_manage_transfers_etc"`
	CreatedAt             string   `json:"created_at" format:"date-time"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

func (u User) InTeam(team string) bool {
	for _, t := range u.Teams {
		if t == team {
			return true
		}
	}
	return false
}

// Recipient is one addressee of a notification, tied to the team it was resolved through.
type Recipient struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	TeamID   string `json:"team_id"`
	TeamName string `json:"team_name"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload,omitempty"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}
