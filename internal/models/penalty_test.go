package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNewLatePenaltyPolicy_Validation(t *testing.T) {
	tests := []struct {
		name       string
		perDay     string
		maxPercent string
		grace      int
		wantErr    bool
	}{
		{name: "valid", perDay: "10", maxPercent: "100", grace: 0},
		{name: "valid with grace", perDay: "5", maxPercent: "50", grace: 24},
		{name: "per day over 100", perDay: "101", maxPercent: "100", wantErr: true},
		{name: "per day negative", perDay: "-1", maxPercent: "100", wantErr: true},
		{name: "max over 100", perDay: "10", maxPercent: "120", wantErr: true},
		{name: "max negative", perDay: "10", maxPercent: "-5", wantErr: true},
		{name: "negative grace", perDay: "10", maxPercent: "100", grace: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLatePenaltyPolicy(dec(tt.perDay), dec(tt.maxPercent), tt.grace)
			if tt.wantErr && err == nil {
				t.Fatal("expected a validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLatePenaltyPolicy_Apply(t *testing.T) {
	due := time.Date(2025, 4, 1, 23, 59, 0, 0, time.UTC)

	policy, err := NewLatePenaltyPolicy(dec("10"), dec("100"), 0)
	if err != nil {
		t.Fatalf("build policy: %v", err)
	}
	graced, err := NewLatePenaltyPolicy(dec("10"), dec("100"), 6)
	if err != nil {
		t.Fatalf("build graced policy: %v", err)
	}

	tests := []struct {
		name        string
		policy      LatePenaltyPolicy
		submittedAt time.Time
		score       string
		want        string
	}{
		{name: "on time", policy: policy, submittedAt: due, score: "80", want: "80"},
		{name: "three days late loses 30 percent", policy: policy, submittedAt: due.Add(72 * time.Hour), score: "80", want: "56"},
		{name: "partial day counts as full day", policy: policy, submittedAt: due.Add(25 * time.Hour), score: "80", want: "64"},
		{name: "twelve days late caps at 100 percent", policy: policy, submittedAt: due.Add(12 * 24 * time.Hour), score: "80", want: "0"},
		{name: "inside grace window", policy: graced, submittedAt: due.Add(5 * time.Hour), score: "80", want: "80"},
		// Past grace, lateness counts from the due date, not the grace cutoff.
		{name: "just past grace window", policy: graced, submittedAt: due.Add(7 * time.Hour), score: "80", want: "72"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.Apply(dec(tt.score), due, tt.submittedAt)
			if !got.Equal(dec(tt.want)) {
				t.Fatalf("expected penalized score=%s, got=%s", tt.want, got)
			}
		})
	}
}

func TestLatePenaltyPolicy_DaysLate(t *testing.T) {
	due := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	policy, _ := NewLatePenaltyPolicy(dec("10"), dec("100"), 0)

	tests := []struct {
		name        string
		submittedAt time.Time
		want        int
	}{
		{name: "before due", submittedAt: due.Add(-time.Hour), want: 0},
		{name: "exactly at due", submittedAt: due, want: 0},
		{name: "one minute late", submittedAt: due.Add(time.Minute), want: 1},
		{name: "exactly one day", submittedAt: due.Add(24 * time.Hour), want: 1},
		{name: "one day and a second", submittedAt: due.Add(24*time.Hour + time.Second), want: 2},
		{name: "three days", submittedAt: due.Add(72 * time.Hour), want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.DaysLate(due, tt.submittedAt); got != tt.want {
				t.Fatalf("expected %d days late, got %d", tt.want, got)
			}
		})
	}
}
