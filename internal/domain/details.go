package domain

import (
	"github.com/shopspring/decimal"
)

// Details carries the type-specific movement data. At most one variant is set and it
// must match the movement type; Observation is shared by every type.
type Details struct {
	Observation  string               `json:"observation,omitempty"`
	Dismissal    *DismissalDetails    `json:"dismissal,omitempty"`
	Transfer     *TransferDetails     `json:"transfer,omitempty"`
	SalaryChange *SalaryChangeDetails `json:"salary_change,omitempty"`
	Promotion    *PromotionDetails    `json:"promotion,omitempty"`
}

type DismissalDetails struct {
	Date    string `json:"date,omitempty"`
	Company string `json:"company,omitempty"`
	Sector  string `json:"sector,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type TransferDetails struct {
	OldPosition string `json:"old_position,omitempty"`
	NewPosition string `json:"new_position,omitempty"`
	OldSector   string `json:"old_sector,omitempty"`
	NewSector   string `json:"new_sector,omitempty"`
	ChangeDate  string `json:"change_date,omitempty"`
}

type SalaryChangeDetails struct {
	CurrentSalary decimal.Decimal `json:"current_salary"`
	NewSalary     decimal.Decimal `json:"new_salary"`
	EffectiveDate string          `json:"effective_date,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

type PromotionDetails struct {
	OldPosition   string          `json:"old_position,omitempty"`
	NewPosition   string          `json:"new_position,omitempty"`
	NewSalary     decimal.Decimal `json:"new_salary"`
	EffectiveDate string          `json:"effective_date,omitempty"`
}

// Variant returns the movement type implied by the set variant, or "" when none is set.
func (d Details) Variant() (MovementType, int) {
	var (
		t     MovementType
		count int
	)
	if d.Dismissal != nil {
		t, count = TypeDismissal, count+1
	}
	if d.Transfer != nil {
		t, count = TypeTransfer, count+1
	}
	if d.SalaryChange != nil {
		t, count = TypeSalaryChange, count+1
	}
	if d.Promotion != nil {
		t, count = TypePromotion, count+1
	}
	return t, count
}

// Validate checks the details against the movement type.
func (d Details) Validate(t MovementType) error {
	variant, count := d.Variant()
	if count > 1 {
		return invalid("details", "must carry a single type-specific section")
	}
	if count == 1 && variant != t {
		return invalid("details", "section "+string(variant)+" does not match movement type "+string(t))
	}
	switch {
	case d.Dismissal != nil:
		return validDate("details.dismissal.date", d.Dismissal.Date)
	case d.Transfer != nil:
		return validDate("details.transfer.change_date", d.Transfer.ChangeDate)
	case d.SalaryChange != nil:
		if d.SalaryChange.CurrentSalary.IsNegative() {
			return invalid("details.salary_change.current_salary", "must not be negative")
		}
		if d.SalaryChange.NewSalary.IsNegative() {
			return invalid("details.salary_change.new_salary", "must not be negative")
		}
		return validDate("details.salary_change.effective_date", d.SalaryChange.EffectiveDate)
	case d.Promotion != nil:
		if d.Promotion.NewSalary.IsNegative() {
			return invalid("details.promotion.new_salary", "must not be negative")
		}
		return validDate("details.promotion.effective_date", d.Promotion.EffectiveDate)
	}
	return nil
}

// MapText applies fn to every free-text field and returns the result.
func (d Details) MapText(fn func(string) string) Details {
	out := Details{Observation: fn(d.Observation)}
	if d.Dismissal != nil {
		v := *d.Dismissal
		v.Company, v.Sector, v.Reason = fn(v.Company), fn(v.Sector), fn(v.Reason)
		out.Dismissal = &v
	}
	if d.Transfer != nil {
		v := *d.Transfer
		v.OldPosition, v.NewPosition = fn(v.OldPosition), fn(v.NewPosition)
		v.OldSector, v.NewSector = fn(v.OldSector), fn(v.NewSector)
		out.Transfer = &v
	}
	if d.SalaryChange != nil {
		v := *d.SalaryChange
		v.Reason = fn(v.Reason)
		out.SalaryChange = &v
	}
	if d.Promotion != nil {
		v := *d.Promotion
		v.OldPosition, v.NewPosition = fn(v.OldPosition), fn(v.NewPosition)
		out.Promotion = &v
	}
	return out
}

func validDate(field, v string) error {
	if v == "" {
		return nil
	}
	if _, err := ParseDate(v); err != nil {
		return invalid(field, "must be a YYYY-MM-DD date")
	}
	return nil
}
