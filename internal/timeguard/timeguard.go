// Package timeguard holds the pure time-budget arithmetic for attempts.
// It owns no clock and no storage; callers pass the current instant in.
package timeguard

import (
	"time"

	"github.com/eduflow-vn/quiz-engine/internal/models"
)

// Deadline resolves the hard stop for an attempt: the earlier of the
// per-attempt time limit and the assessment close time. Nil means the
// attempt can run forever.
func Deadline(attempt *models.Attempt, assessment *models.Assessment) *time.Time {
	var deadline *time.Time
	if assessment.TimeLimitSeconds != nil {
		d := attempt.StartedAt.Add(time.Duration(*assessment.TimeLimitSeconds) * time.Second)
		deadline = &d
	}
	if assessment.ClosesAt != nil {
		if deadline == nil || assessment.ClosesAt.Before(*deadline) {
			deadline = assessment.ClosesAt
		}
	}
	return deadline
}

// IsExpired reports whether the attempt has run past its deadline. The
// deadline instant itself still counts as inside the budget; only strictly
// later instants expire. An attempt with no deadline never expires.
func IsExpired(attempt *models.Attempt, assessment *models.Assessment, now time.Time) bool {
	deadline := Deadline(attempt, assessment)
	if deadline == nil {
		return false
	}
	return now.After(*deadline)
}

// RemainingSeconds is the whole seconds left until the deadline, floored at
// zero. Nil means unlimited.
func RemainingSeconds(attempt *models.Attempt, assessment *models.Assessment, now time.Time) *int64 {
	deadline := Deadline(attempt, assessment)
	if deadline == nil {
		return nil
	}
	remaining := int64(deadline.Sub(now) / time.Second)
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}
