package movement

import (
	"reflect"
	"testing"

	"movetrack/internal/domain"
)

func TestApplyRosterAddsFreshResponse(t *testing.T) {
	m := domain.Movement{
		SelectedTeams: []string{"finance"},
		Responses:     responses(map[string]domain.Status{"finance": domain.StatusCompleted}),
		Status:        domain.StatusCompleted,
	}
	out, plan := ApplyRoster(m, []string{"finance", "it"})
	if !reflect.DeepEqual(plan.Added, []string{"it"}) || len(plan.Removed) != 0 {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if !reflect.DeepEqual(out.Responses["it"], NewResponse()) {
		t.Fatalf("added team should start empty, got %+v", out.Responses["it"])
	}
	if out.Status != domain.StatusInProgress {
		t.Fatalf("status = %s, want in_progress", out.Status)
	}
	if len(m.Responses) != 1 {
		t.Fatalf("input movement was mutated")
	}
}

func TestApplyRosterDropsCompletedResponse(t *testing.T) {
	m := domain.Movement{
		SelectedTeams: []string{"finance", "it"},
		Responses:     responses(map[string]domain.Status{"finance": domain.StatusPending, "it": domain.StatusCompleted}),
		Status:        domain.StatusInProgress,
	}
	out, plan := ApplyRoster(m, []string{"finance"})
	if !plan.Destructive() || !reflect.DeepEqual(plan.RemovedCompleted, []string{"it"}) {
		t.Fatalf("expected destructive removal of it, got %+v", plan)
	}
	if _, ok := out.Responses["it"]; ok {
		t.Fatalf("removed team still has a response")
	}
	if len(out.Responses) != len(out.SelectedTeams) {
		t.Fatalf("responses and roster diverged: %v vs %v", out.Responses, out.SelectedTeams)
	}
	if out.Status != domain.StatusPending {
		t.Fatalf("status = %s, want pending", out.Status)
	}
}

func TestPlanRosterUnchanged(t *testing.T) {
	plan := PlanRoster([]string{"a", "b"}, []string{"b", "a"}, nil)
	if plan.Changed() {
		t.Fatalf("reordering should not change the roster: %+v", plan)
	}
	if !reflect.DeepEqual(plan.Kept, []string{"a", "b"}) {
		t.Fatalf("kept = %v", plan.Kept)
	}
}
