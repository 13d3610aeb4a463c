// Package reminder decides which open movements are close enough to their deadline to
// warrant a reminder, and who should receive it.
package reminder

import (
	"math"
	"time"

	"movetrack/internal/domain"
)

// Window is the set of days-remaining values that trigger a reminder.
const (
	MinDays = 1
	MaxDays = 3
)

// Directory maps a team id to its members, already shaped as recipients of that team.
type Directory map[string][]domain.Recipient

// Group is the reminder batch entry for a single movement.
type Group struct {
	Movement      domain.Movement    `json:"movement"`
	PendingTeams  []string           `json:"pending_teams"`
	Recipients    []domain.Recipient `json:"recipients"`
	DaysRemaining int                `json:"days_remaining"`
}

// DaysRemaining counts calendar days from today to deadline, both taken at midnight.
func DaysRemaining(deadline, today time.Time) int {
	d := time.Date(deadline.Year(), deadline.Month(), deadline.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(d.Sub(t).Hours() / 24))
}

// Due reports whether m is a reminder candidate on today and the days left.
func Due(m domain.Movement, today time.Time) (int, bool) {
	if m.Status == domain.StatusCompleted || m.Deadline == nil || *m.Deadline == "" {
		return 0, false
	}
	deadline, err := domain.ParseDate(*m.Deadline)
	if err != nil {
		return 0, false
	}
	days := DaysRemaining(deadline, today)
	return days, days >= MinDays && days <= MaxDays
}

// Select builds one group per due movement. Recipients are expanded per pending team,
// so a member of two pending teams appears twice. Movements whose pending teams have no
// members are left out.
func Select(movements []domain.Movement, dir Directory, today time.Time) []Group {
	var groups []Group
	for _, m := range movements {
		days, ok := Due(m, today)
		if !ok {
			continue
		}
		pending := m.PendingTeams()
		if len(pending) == 0 {
			continue
		}
		var recipients []domain.Recipient
		for _, team := range pending {
			recipients = append(recipients, dir[team]...)
		}
		if len(recipients) == 0 {
			continue
		}
		groups = append(groups, Group{
			Movement:      m,
			PendingTeams:  pending,
			Recipients:    recipients,
			DaysRemaining: days,
		})
	}
	return groups
}

// NewDirectory expands users into per-team recipients. teamName resolves display names.
func NewDirectory(users []domain.User, teamName func(string) string) Directory {
	dir := Directory{}
	for _, u := range users {
		for _, team := range u.Teams {
			dir[team] = append(dir[team], domain.Recipient{
				Email:    u.Email,
				Name:     u.Name,
				TeamID:   team,
				TeamName: teamName(team),
			})
		}
	}
	return dir
}
