package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// LatePenaltyPolicy is an immutable deduction policy for submissions past a
// due date. The same algorithm serves quiz attempts and assignment grading.
type LatePenaltyPolicy struct {
	PercentPerDay     decimal.Decimal `json:"percent_per_day"`
	MaxPenaltyPercent decimal.Decimal `json:"max_penalty_percent"`
	GracePeriodHours  int             `json:"grace_period_hours"`
}

// NewLatePenaltyPolicy validates both percent values against [0, 100] at
// construction. Out-of-range input fails instead of being clamped, so a
// policy value in circulation is always trustworthy.
func NewLatePenaltyPolicy(percentPerDay, maxPenaltyPercent decimal.Decimal, graceHours int) (LatePenaltyPolicy, error) {
	if percentPerDay.IsNegative() || percentPerDay.GreaterThan(hundred) {
		return LatePenaltyPolicy{}, fmt.Errorf("percent_per_day must be within [0, 100], got %s", percentPerDay)
	}
	if maxPenaltyPercent.IsNegative() || maxPenaltyPercent.GreaterThan(hundred) {
		return LatePenaltyPolicy{}, fmt.Errorf("max_penalty_percent must be within [0, 100], got %s", maxPenaltyPercent)
	}
	if graceHours < 0 {
		return LatePenaltyPolicy{}, fmt.Errorf("grace_period_hours must be >= 0, got %d", graceHours)
	}
	return LatePenaltyPolicy{
		PercentPerDay:     percentPerDay,
		MaxPenaltyPercent: maxPenaltyPercent,
		GracePeriodHours:  graceHours,
	}, nil
}

// DaysLate counts days past the due date, any partial day rounding up.
// Submissions inside the grace window count as zero, but once the grace
// window is exceeded lateness is measured from the due date itself.
func (p LatePenaltyPolicy) DaysLate(dueAt, submittedAt time.Time) int {
	if !submittedAt.After(dueAt) {
		return 0
	}
	late := submittedAt.Sub(dueAt)
	if late <= time.Duration(p.GracePeriodHours)*time.Hour {
		return 0
	}
	days := int(late / (24 * time.Hour))
	if late%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// PenaltyPercent is the total deduction for the given lateness, capped at
// MaxPenaltyPercent.
func (p LatePenaltyPolicy) PenaltyPercent(dueAt, submittedAt time.Time) decimal.Decimal {
	days := p.DaysLate(dueAt, submittedAt)
	if days == 0 {
		return decimal.Zero
	}
	pct := p.PercentPerDay.Mul(decimal.NewFromInt(int64(days)))
	if pct.GreaterThan(p.MaxPenaltyPercent) {
		return p.MaxPenaltyPercent
	}
	return pct
}

// Apply returns the score after deduction, rounded to 2 decimal places and
// never below zero.
func (p LatePenaltyPolicy) Apply(score decimal.Decimal, dueAt, submittedAt time.Time) decimal.Decimal {
	pct := p.PenaltyPercent(dueAt, submittedAt)
	if pct.IsZero() {
		return score
	}
	penalized := score.Mul(hundred.Sub(pct)).Div(hundred).Round(2)
	if penalized.IsNegative() {
		return decimal.Zero
	}
	return penalized
}
