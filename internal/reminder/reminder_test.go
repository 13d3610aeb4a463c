package reminder

import (
	"testing"
	"time"

	"movetrack/internal/domain"
)

func date(s string) *string { return &s }

func open(id, deadline string, states map[string]domain.Status) domain.Movement {
	m := domain.Movement{ID: id, Status: domain.StatusPending, Responses: map[string]domain.TeamResponse{}}
	if deadline != "" {
		m.Deadline = date(deadline)
	}
	done := 0
	for team, st := range states {
		m.SelectedTeams = append(m.SelectedTeams, team)
		m.Responses[team] = domain.TeamResponse{Status: st}
		if st == domain.StatusCompleted {
			done++
		}
	}
	if done > 0 {
		m.Status = domain.StatusInProgress
	}
	return m
}

var dir = Directory{
	"a": {{Email: "a1@example.com", Name: "A One", TeamID: "a", TeamName: "A"}},
	"b": {
		{Email: "b1@example.com", Name: "B One", TeamID: "b", TeamName: "B"},
		{Email: "b2@example.com", Name: "B Two", TeamID: "b", TeamName: "B"},
	},
}

func TestSelectBoundaries(t *testing.T) {
	today := time.Date(2025, 11, 10, 15, 45, 0, 0, time.UTC)
	pending := map[string]domain.Status{"a": domain.StatusPending}
	movements := []domain.Movement{
		open("d1", "2025-11-11", pending),
		open("d2", "2025-11-12", pending),
		open("d3", "2025-11-13", pending),
		open("d4", "2025-11-14", pending),
		open("past", "2025-11-09", pending),
		open("today", "2025-11-10", pending),
		open("none", "", pending),
	}
	groups := Select(movements, dir, today)
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	for i, want := range []struct {
		id   string
		days int
	}{{"d1", 1}, {"d2", 2}, {"d3", 3}} {
		if groups[i].Movement.ID != want.id || groups[i].DaysRemaining != want.days {
			t.Fatalf("group %d = %s/%d, want %s/%d", i, groups[i].Movement.ID, groups[i].DaysRemaining, want.id, want.days)
		}
	}
}

func TestSelectOnlyPendingTeams(t *testing.T) {
	today := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	m := open("m", "2025-11-12", map[string]domain.Status{"a": domain.StatusCompleted, "b": domain.StatusPending})
	groups := Select([]domain.Movement{m}, dir, today)
	if len(groups) != 1 {
		t.Fatalf("expected one group, got %d", len(groups))
	}
	g := groups[0]
	if g.DaysRemaining != 2 || len(g.Recipients) != 2 {
		t.Fatalf("unexpected group %+v", g)
	}
	for _, r := range g.Recipients {
		if r.TeamID != "b" {
			t.Fatalf("recipient from completed team: %+v", r)
		}
	}
}

func TestSelectSkipsCompletedAndEmpty(t *testing.T) {
	today := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	done := open("done", "2025-11-11", map[string]domain.Status{"a": domain.StatusCompleted})
	done.Status = domain.StatusCompleted
	orphan := open("orphan", "2025-11-11", map[string]domain.Status{"c": domain.StatusPending})
	if groups := Select([]domain.Movement{done, orphan}, dir, today); len(groups) != 0 {
		t.Fatalf("expected no groups, got %+v", groups)
	}
}

func TestDirectoryExpandsPerMembership(t *testing.T) {
	users := []domain.User{
		{Name: "Multi", Email: "multi@example.com", Teams: []string{"a", "b"}},
		{Name: "Solo", Email: "solo@example.com", Teams: []string{"b"}},
	}
	d := NewDirectory(users, func(id string) string { return "Team " + id })
	m := open("m", "2025-11-11", map[string]domain.Status{"a": domain.StatusPending, "b": domain.StatusPending})
	groups := Select([]domain.Movement{m}, d, time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC))
	if len(groups) != 1 || len(groups[0].Recipients) != 3 {
		t.Fatalf("expected 3 expanded recipients, got %+v", groups)
	}
	count := 0
	for _, r := range groups[0].Recipients {
		if r.Email == "multi@example.com" {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("multi-team user should appear once per pending team, got %d", count)
	}
}

func TestDaysRemainingIgnoresTimeOfDay(t *testing.T) {
	deadline := time.Date(2025, 11, 11, 0, 0, 0, 0, time.UTC)
	late := time.Date(2025, 11, 10, 23, 59, 0, 0, time.FixedZone("BRT", -3*3600))
	if got := DaysRemaining(deadline, late); got != 1 {
		t.Fatalf("DaysRemaining = %d, want 1", got)
	}
}
