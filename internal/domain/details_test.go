package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDetailsValidate(t *testing.T) {
	cases := []struct {
		name    string
		typ     MovementType
		details Details
		wantErr string
	}{
		{name: "observation only", typ: TypeTransfer, details: Details{Observation: "note"}},
		{name: "matching dismissal", typ: TypeDismissal, details: Details{Dismissal: &DismissalDetails{Date: "2025-11-13", Company: "ACME"}}},
		{name: "mismatched variant", typ: TypeTransfer, details: Details{Dismissal: &DismissalDetails{}}, wantErr: "does not match"},
		{name: "two variants", typ: TypePromotion, details: Details{Promotion: &PromotionDetails{}, Transfer: &TransferDetails{}}, wantErr: "single"},
		{name: "bad date", typ: TypeTransfer, details: Details{Transfer: &TransferDetails{ChangeDate: "13/11/2025"}}, wantErr: "YYYY-MM-DD"},
		{name: "negative salary", typ: TypeSalaryChange, details: Details{SalaryChange: &SalaryChangeDetails{
			CurrentSalary: decimal.RequireFromString("3000.00"),
			NewSalary:     decimal.RequireFromString("-1"),
		}}, wantErr: "negative"},
		{name: "promotion ok", typ: TypePromotion, details: Details{Promotion: &PromotionDetails{
			NewPosition:   "Lead",
			NewSalary:     decimal.RequireFromString("5200.50"),
			EffectiveDate: "2025-12-01",
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.details.Validate(tc.typ)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
		})
	}
}

func TestDetailsMapTextCopiesVariants(t *testing.T) {
	d := Details{Observation: " a ", Transfer: &TransferDetails{NewSector: " b "}}
	out := d.MapText(strings.TrimSpace)
	if out.Observation != "a" || out.Transfer.NewSector != "b" {
		t.Fatalf("unexpected mapped details %+v", out)
	}
	if d.Transfer.NewSector != " b " {
		t.Fatalf("input details were mutated")
	}
}

func TestMovementPendingTeams(t *testing.T) {
	m := Movement{
		SelectedTeams: []string{"finance", "it", "timekeeping"},
		Responses: map[string]TeamResponse{
			"finance":     {Status: StatusCompleted},
			"it":          {Status: StatusPending},
			"timekeeping": {Status: StatusPending},
		},
	}
	got := m.PendingTeams()
	if strings.Join(got, ",") != "it,timekeeping" {
		t.Fatalf("pending teams = %v", got)
	}
}

func TestParseMovementType(t *testing.T) {
	if typ, err := ParseMovementType(" Salary_Change "); err != nil || typ != TypeSalaryChange {
		t.Fatalf("parse: %v %v", typ, err)
	}
	if _, err := ParseMovementType("hire"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}
