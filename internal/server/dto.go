package server

import (
	"github.com/shopspring/decimal"

	"movetrack/internal/domain"
	"movetrack/internal/engine"
	"movetrack/internal/movement"
	"movetrack/internal/reminder"
)

// Request payloads

type LoginRequest struct {
	Email    string `json:"email" example:"helena@example.com"`
	Password string `json:"password"`
}

// SalaryChangeBody and PromotionBody carry amounts as decimal strings.
type SalaryChangeBody struct {
	CurrentSalary string `json:"current_salary,omitempty" example:"3000.00"`
	NewSalary     string `json:"new_salary,omitempty" example:"3450.00"`
	EffectiveDate string `json:"effective_date,omitempty" format:"date"`
	Reason        string `json:"reason,omitempty"`
}

type PromotionBody struct {
	OldPosition   string `json:"old_position,omitempty"`
	NewPosition   string `json:"new_position,omitempty"`
	NewSalary     string `json:"new_salary,omitempty" example:"5200.50"`
	EffectiveDate string `json:"effective_date,omitempty" format:"date"`
}

type DetailsBody struct {
	Observation  string                   `json:"observation,omitempty"`
	Dismissal    *domain.DismissalDetails `json:"dismissal,omitempty"`
	Transfer     *domain.TransferDetails  `json:"transfer,omitempty"`
	SalaryChange *SalaryChangeBody        `json:"salary_change,omitempty"`
	Promotion    *PromotionBody           `json:"promotion,omitempty"`
}

type CreateMovementRequest struct {
	Type          string       `json:"type" enum:"dismissal,transfer,salary_change,promotion"`
	EmployeeName  string       `json:"employee_name" minLength:"1"`
	SelectedTeams []string     `json:"selected_teams" minItems:"1"`
	Details       *DetailsBody `json:"details,omitempty"`
	Deadline      string       `json:"deadline,omitempty" format:"date"`
}

type UpdateMovementRequest struct {
	EmployeeName    *string      `json:"employee_name,omitempty"`
	SelectedTeams   []string     `json:"selected_teams,omitempty"`
	Details         *DetailsBody `json:"details,omitempty"`
	Deadline        *string      `json:"deadline,omitempty" doc:"YYYY-MM-DD; an empty string clears the deadline"`
	ExpectedVersion int          `json:"expected_version,omitempty" doc:"reject the edit with 409 unless the movement is still at this version"`
}

type RosterPreviewRequest struct {
	SelectedTeams []string `json:"selected_teams" minItems:"1"`
}

type SubmitResponseRequest struct {
	Comment     string              `json:"comment"`
	Checklist   map[string]bool     `json:"checklist,omitempty"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}

type RegisterUserRequest struct {
	Name                  string   `json:"name"`
	Email                 string   `json:"email"`
	Password              string   `json:"password" minLength:"8"`
	Teams                 []string `json:"teams,omitempty"`
	Role                  string   `json:"role,omitempty" enum:"admin,team_member"`
	CanManageDismissals   bool     `json:"can_manage_dismissals,omitempty"`
	CanManageTransfersEtc bool     `json:"can_manage_transfers_etc,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type RunRemindersRequest struct {
	DryRun bool   `json:"dry_run,omitempty"`
	Today  string `json:"today,omitempty" format:"date" doc:"scan as of this date instead of today"`
}

// Response payloads

type LoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expires_at" format:"date-time"`
	User      domain.User `json:"user"`
}

type TeamResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Checklist []string `json:"checklist"`
}

type MovementResponse struct {
	ID            string                         `json:"id"`
	Type          domain.MovementType            `json:"type" enum:"dismissal,transfer,salary_change,promotion"`
	TypeLabel     string                         `json:"type_label"`
	EmployeeName  string                         `json:"employee_name"`
	SelectedTeams []string                       `json:"selected_teams"`
	Status        domain.Status                  `json:"status" enum:"pending,in_progress,completed"`
	Responses     map[string]domain.TeamResponse `json:"responses"`
	Details       DetailsBody                    `json:"details"`
	Deadline      string                         `json:"deadline,omitempty" format:"date"`
	CreatedAt     string                         `json:"created_at" format:"date-time"`
	CreatedBy     string                         `json:"created_by"`
	UpdatedAt     string                         `json:"updated_at" format:"date-time"`
	Version       int                            `json:"version"`
}

type MovementList struct {
	Items []MovementResponse `json:"items"`
}

type NotificationStatus struct {
	Delivered bool   `json:"delivered"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

type MutationResponse struct {
	Movement     MovementResponse     `json:"movement"`
	Roster       *movement.RosterPlan `json:"roster,omitempty"`
	Notification NotificationStatus   `json:"notification"`
}

type RosterPreviewResponse struct {
	Roster      movement.RosterPlan `json:"roster"`
	Destructive bool                `json:"destructive" doc:"true when completed responses would be discarded"`
}

type APIKeyResponse struct {
	Key    string        `json:"key" doc:"shown once"`
	APIKey domain.APIKey `json:"api_key"`
}

type ReminderGroupResponse struct {
	Movement      MovementResponse   `json:"movement"`
	PendingTeams  []string           `json:"pending_teams"`
	Recipients    []domain.Recipient `json:"recipients"`
	DaysRemaining int                `json:"days_remaining"`
}

type ReminderReportResponse struct {
	Day              string                  `json:"day" format:"date"`
	MovementsChecked int                     `json:"movements_checked"`
	RemindersSent    int                     `json:"reminders_sent"`
	Recipients       int                     `json:"recipients"`
	AlreadySent      int                     `json:"already_sent"`
	Retried          int                     `json:"retried"`
	DryRun           bool                    `json:"dry_run"`
	Groups           []ReminderGroupResponse `json:"groups"`
	Notification     NotificationStatus      `json:"notification"`
}

type EventList struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func parseAmount(field, v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, &domain.ValidationError{Field: field, Reason: "must be a decimal amount"}
	}
	return d, nil
}

func (b *DetailsBody) toDomain() (domain.Details, error) {
	if b == nil {
		return domain.Details{}, nil
	}
	d := domain.Details{
		Observation: b.Observation,
		Dismissal:   b.Dismissal,
		Transfer:    b.Transfer,
	}
	if s := b.SalaryChange; s != nil {
		current, err := parseAmount("details.salary_change.current_salary", s.CurrentSalary)
		if err != nil {
			return d, err
		}
		next, err := parseAmount("details.salary_change.new_salary", s.NewSalary)
		if err != nil {
			return d, err
		}
		d.SalaryChange = &domain.SalaryChangeDetails{CurrentSalary: current, NewSalary: next, EffectiveDate: s.EffectiveDate, Reason: s.Reason}
	}
	if p := b.Promotion; p != nil {
		salary, err := parseAmount("details.promotion.new_salary", p.NewSalary)
		if err != nil {
			return d, err
		}
		d.Promotion = &domain.PromotionDetails{OldPosition: p.OldPosition, NewPosition: p.NewPosition, NewSalary: salary, EffectiveDate: p.EffectiveDate}
	}
	return d, nil
}

func detailsBody(d domain.Details) DetailsBody {
	b := DetailsBody{Observation: d.Observation, Dismissal: d.Dismissal, Transfer: d.Transfer}
	if s := d.SalaryChange; s != nil {
		b.SalaryChange = &SalaryChangeBody{
			CurrentSalary: s.CurrentSalary.StringFixed(2),
			NewSalary:     s.NewSalary.StringFixed(2),
			EffectiveDate: s.EffectiveDate,
			Reason:        s.Reason,
		}
	}
	if p := d.Promotion; p != nil {
		b.Promotion = &PromotionBody{
			OldPosition:   p.OldPosition,
			NewPosition:   p.NewPosition,
			NewSalary:     p.NewSalary.StringFixed(2),
			EffectiveDate: p.EffectiveDate,
		}
	}
	return b
}

func movementResponse(m domain.Movement) MovementResponse {
	return MovementResponse{
		ID:            m.ID,
		Type:          m.Type,
		TypeLabel:     m.Type.Label(),
		EmployeeName:  m.EmployeeName,
		SelectedTeams: nonNilSlice(m.SelectedTeams),
		Status:        m.Status,
		Responses:     m.Responses,
		Details:       detailsBody(m.Details),
		Deadline:      stringOrEmpty(m.Deadline),
		CreatedAt:     m.CreatedAt,
		CreatedBy:     m.CreatedBy,
		UpdatedAt:     m.UpdatedAt,
		Version:       m.Version,
	}
}

func mapMovements(items []domain.Movement) []MovementResponse {
	res := make([]MovementResponse, 0, len(items))
	for _, m := range items {
		res = append(res, movementResponse(m))
	}
	return res
}

func notificationStatus(err error) NotificationStatus {
	if err == nil {
		return NotificationStatus{Delivered: true}
	}
	return NotificationStatus{Message: "saved, but some people may not have been notified", Error: err.Error()}
}

func mutationResponse(out engine.Outcome) MutationResponse {
	return MutationResponse{
		Movement:     movementResponse(out.Movement),
		Roster:       out.Roster,
		Notification: notificationStatus(out.NotifyErr),
	}
}

func reminderReportResponse(r engine.ReminderReport) ReminderReportResponse {
	res := ReminderReportResponse{
		Day:              r.Day,
		MovementsChecked: r.MovementsChecked,
		RemindersSent:    r.RemindersSent,
		Recipients:       r.Recipients,
		AlreadySent:      r.AlreadySent,
		Retried:          r.Retried,
		DryRun:           r.DryRun,
		Groups:           make([]ReminderGroupResponse, 0, len(r.Groups)),
		Notification:     notificationStatus(r.NotifyErr),
	}
	for _, g := range r.Groups {
		res.Groups = append(res.Groups, reminderGroupResponse(g))
	}
	return res
}

func reminderGroupResponse(g reminder.Group) ReminderGroupResponse {
	return ReminderGroupResponse{
		Movement:      movementResponse(g.Movement),
		PendingTeams:  nonNilSlice(g.PendingTeams),
		Recipients:    nonNilSlice(g.Recipients),
		DaysRemaining: g.DaysRemaining,
	}
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
