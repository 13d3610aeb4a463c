package movement

import "movetrack/internal/domain"

// RosterPlan describes how a roster edit reconciles existing responses.
// RemovedCompleted is the subset of Removed whose completed answer would be discarded.
type RosterPlan struct {
	Added            []string `json:"added"`
	Removed          []string `json:"removed"`
	RemovedCompleted []string `json:"removed_completed"`
	Kept             []string `json:"kept"`
}

// Destructive reports whether applying the plan throws away a completed response.
func (p RosterPlan) Destructive() bool { return len(p.RemovedCompleted) > 0 }

func (p RosterPlan) Changed() bool { return len(p.Added) > 0 || len(p.Removed) > 0 }

func PlanRoster(current, next []string, responses map[string]domain.TeamResponse) RosterPlan {
	plan := RosterPlan{Added: []string{}, Removed: []string{}, RemovedCompleted: []string{}, Kept: []string{}}
	inNext := make(map[string]struct{}, len(next))
	for _, t := range next {
		inNext[t] = struct{}{}
	}
	inCurrent := make(map[string]struct{}, len(current))
	for _, t := range current {
		inCurrent[t] = struct{}{}
		if _, ok := inNext[t]; ok {
			plan.Kept = append(plan.Kept, t)
			continue
		}
		plan.Removed = append(plan.Removed, t)
		if r, ok := responses[t]; ok && r.Status == domain.StatusCompleted {
			plan.RemovedCompleted = append(plan.RemovedCompleted, t)
		}
	}
	for _, t := range next {
		if _, ok := inCurrent[t]; !ok {
			plan.Added = append(plan.Added, t)
		}
	}
	return plan
}

// ApplyRoster reconciles m against the next roster: added teams get a fresh response,
// removed teams lose theirs, and the status is derived again. m is not modified.
func ApplyRoster(m domain.Movement, next []string) (domain.Movement, RosterPlan) {
	plan := PlanRoster(m.SelectedTeams, next, m.Responses)
	out := m
	out.SelectedTeams = append([]string(nil), next...)
	out.Responses = make(map[string]domain.TeamResponse, len(next))
	for _, t := range plan.Kept {
		out.Responses[t] = m.Responses[t]
	}
	for _, t := range plan.Added {
		out.Responses[t] = NewResponse()
	}
	out.Status = DeriveStatus(out.Responses, out.SelectedTeams)
	return out, plan
}
