// Package movement holds the pure rules of the movement lifecycle: status derivation,
// response submission and roster reconciliation. Nothing here touches storage.
package movement

import (
	"fmt"
	"strings"
	"time"

	"movetrack/internal/domain"
)

// DeriveStatus is the single rule mapping team responses to the movement status.
func DeriveStatus(responses map[string]domain.TeamResponse, selectedTeams []string) domain.Status {
	if len(selectedTeams) == 0 {
		return domain.StatusPending
	}
	done := 0
	for _, team := range selectedTeams {
		if r, ok := responses[team]; ok && r.Status == domain.StatusCompleted {
			done++
		}
	}
	switch {
	case done == len(selectedTeams):
		return domain.StatusCompleted
	case done > 0:
		return domain.StatusInProgress
	default:
		return domain.StatusPending
	}
}

// NewResponse returns the empty response a team starts with.
func NewResponse() domain.TeamResponse {
	return domain.TeamResponse{
		Status:      domain.StatusPending,
		Checklist:   map[string]bool{},
		Attachments: []domain.Attachment{},
		History:     []domain.HistoryEntry{},
	}
}

// NormalizeTeams trims the roster and rejects empty or duplicated entries.
func NormalizeTeams(teams []string) ([]string, error) {
	if len(teams) == 0 {
		return nil, &domain.ValidationError{Field: "selected_teams", Reason: "must not be empty"}
	}
	out := make([]string, 0, len(teams))
	seen := make(map[string]struct{}, len(teams))
	for _, t := range teams {
		id := strings.TrimSpace(t)
		if id == "" {
			return nil, &domain.ValidationError{Field: "selected_teams", Reason: "contains an empty team id"}
		}
		if _, dup := seen[id]; dup {
			return nil, &domain.ValidationError{Field: "selected_teams", Reason: fmt.Sprintf("lists team %s twice", id)}
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// Submission is one team's answer as entered by a team member.
type Submission struct {
	Comment     string
	Checklist   map[string]bool
	Attachments []domain.Attachment
	ActorName   string
	ActorEmail  string
	Now         time.Time
}

// MissingItems returns the required checklist items not ticked in checklist.
func MissingItems(required []string, checklist map[string]bool) []string {
	var missing []string
	for _, item := range required {
		if !checklist[item] {
			missing = append(missing, item)
		}
	}
	return missing
}

// Submit applies a submission to the current response. On error the returned response
// is the unchanged input.
func Submit(current domain.TeamResponse, sub Submission, required []string) (domain.TeamResponse, error) {
	comment := strings.TrimSpace(sub.Comment)
	if comment == "" {
		return current, &domain.ValidationError{Field: "comment", Reason: "must not be empty"}
	}
	if missing := MissingItems(required, sub.Checklist); len(missing) > 0 {
		return current, &domain.ValidationError{
			Field:  "checklist",
			Reason: "is incomplete: " + strings.Join(missing, ", "),
		}
	}
	action := domain.ActionUpdated
	if len(current.History) == 0 {
		action = domain.ActionCreated
	}
	submitted := sub.Now.Format(domain.DateLayout)
	next := domain.TeamResponse{
		Status:        domain.StatusCompleted,
		Comment:       comment,
		SubmittedDate: &submitted,
		Checklist:     make(map[string]bool, len(sub.Checklist)),
		Attachments:   append([]domain.Attachment{}, sub.Attachments...),
		History:       make([]domain.HistoryEntry, 0, len(current.History)+1),
	}
	for k, v := range sub.Checklist {
		next.Checklist[k] = v
	}
	next.History = append(next.History, current.History...)
	next.History = append(next.History, domain.HistoryEntry{
		ActorName:  sub.ActorName,
		ActorEmail: sub.ActorEmail,
		Action:     action,
		Timestamp:  sub.Now.UTC().Format(time.RFC3339),
	})
	return next, nil
}
