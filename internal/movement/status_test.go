package movement

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"movetrack/internal/domain"
)

func responses(states map[string]domain.Status) map[string]domain.TeamResponse {
	out := make(map[string]domain.TeamResponse, len(states))
	for team, st := range states {
		r := NewResponse()
		r.Status = st
		out[team] = r
	}
	return out
}

func TestDeriveStatus(t *testing.T) {
	teams := []string{"finance", "it"}
	cases := []struct {
		name   string
		states map[string]domain.Status
		want   domain.Status
	}{
		{"none done", map[string]domain.Status{"finance": domain.StatusPending, "it": domain.StatusPending}, domain.StatusPending},
		{"one done", map[string]domain.Status{"finance": domain.StatusPending, "it": domain.StatusCompleted}, domain.StatusInProgress},
		{"all done", map[string]domain.Status{"finance": domain.StatusCompleted, "it": domain.StatusCompleted}, domain.StatusCompleted},
		{"missing response counts as pending", map[string]domain.Status{"it": domain.StatusCompleted}, domain.StatusInProgress},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rs := responses(tc.states)
			got := DeriveStatus(rs, teams)
			if got != tc.want {
				t.Fatalf("DeriveStatus = %s, want %s", got, tc.want)
			}
			if again := DeriveStatus(rs, teams); again != got {
				t.Fatalf("recompute changed status: %s vs %s", again, got)
			}
		})
	}
	if got := DeriveStatus(nil, nil); got != domain.StatusPending {
		t.Fatalf("empty roster should be pending, got %s", got)
	}
}

func TestSubmitGatesOnChecklist(t *testing.T) {
	current := NewResponse()
	required := []string{"System access revoked", "Equipment returned"}
	sub := Submission{
		Comment:   "Access revoked",
		Checklist: map[string]bool{"System access revoked": true, "Equipment returned": false},
		Now:       time.Date(2025, 11, 10, 9, 0, 0, 0, time.UTC),
	}
	got, err := Submit(current, sub, required)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "checklist" {
		t.Fatalf("expected checklist validation error, got %v", err)
	}
	if !strings.Contains(ve.Reason, "Equipment returned") {
		t.Fatalf("reason should name the missing item: %s", ve.Reason)
	}
	if !reflect.DeepEqual(got, current) {
		t.Fatalf("response mutated on rejected submission: %+v", got)
	}
}

func TestSubmitRejectsBlankComment(t *testing.T) {
	current := NewResponse()
	_, err := Submit(current, Submission{Comment: "   ", Now: time.Now()}, nil)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "comment" {
		t.Fatalf("expected comment validation error, got %v", err)
	}
}

func TestSubmitAppendsHistory(t *testing.T) {
	now := time.Date(2025, 11, 10, 14, 30, 0, 0, time.UTC)
	first, err := Submit(NewResponse(), Submission{
		Comment:     " Access revoked ",
		Checklist:   map[string]bool{"a": true},
		Attachments: []domain.Attachment{{Name: "term.pdf", URL: "/files/term.pdf", SizeBytes: 10}},
		ActorName:   "Ana",
		ActorEmail:  "ana@example.com",
		Now:         now,
	}, []string{"a"})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if first.Status != domain.StatusCompleted || first.Comment != "Access revoked" {
		t.Fatalf("unexpected response %+v", first)
	}
	if first.SubmittedDate == nil || *first.SubmittedDate != "2025-11-10" {
		t.Fatalf("submitted date = %v", first.SubmittedDate)
	}
	if len(first.History) != 1 || first.History[0].Action != domain.ActionCreated {
		t.Fatalf("expected one created entry, got %+v", first.History)
	}

	second, err := Submit(first, Submission{Comment: "Edited", Checklist: map[string]bool{"a": true}, Now: now.Add(time.Hour)}, []string{"a"})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if len(second.History) != 2 || second.History[1].Action != domain.ActionUpdated {
		t.Fatalf("expected created then updated, got %+v", second.History)
	}
	if len(second.Attachments) != 0 {
		t.Fatalf("resubmission should overwrite attachments, got %+v", second.Attachments)
	}
	if len(first.History) != 1 {
		t.Fatalf("earlier response history was mutated")
	}
}

func TestNormalizeTeams(t *testing.T) {
	got, err := NormalizeTeams([]string{" finance", "it "})
	if err != nil || !reflect.DeepEqual(got, []string{"finance", "it"}) {
		t.Fatalf("normalize: %v %v", got, err)
	}
	for _, in := range [][]string{nil, {}, {"it", "it"}, {"it", " "}} {
		if _, err := NormalizeTeams(in); err == nil {
			t.Fatalf("expected error for %v", in)
		}
	}
}
