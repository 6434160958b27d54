// Package grading holds the pure arithmetic of attempt totals and recorded
// grades. Orchestration (locking, persistence, events) lives in services.
package grading

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/eduflow-vn/quiz-engine/internal/models"
)

// ErrNoTerminalAttempts distinguishes "never finished an attempt" from a
// legitimate zero grade.
var ErrNoTerminalAttempts = errors.New("no terminal attempts to grade")

// AttemptTotal sums per-answer scores into the attempt total, rounded to 2
// decimal places. Without negative marking the total is clamped to
// [0, maxScore]; with it, negative totals are allowed down to -maxScore.
func AttemptTotal(answers []models.Answer, maxScore decimal.Decimal, allowNegative bool) decimal.Decimal {
	total := decimal.Zero
	for _, a := range answers {
		total = total.Add(a.Score)
	}
	total = total.Round(2)

	floor := decimal.Zero
	if allowNegative {
		floor = maxScore.Neg()
	}
	if total.LessThan(floor) {
		return floor
	}
	if total.GreaterThan(maxScore) {
		return maxScore
	}
	return total
}

// RecordedGrade reduces the terminal attempts of one (assessment, user)
// pair to a single grade. Attempts must be ordered chronologically by
// start; callers load them that way. In-progress attempts never count.
func RecordedGrade(attempts []models.Attempt, method models.GradingMethod) (decimal.Decimal, error) {
	var scores []decimal.Decimal
	for _, a := range attempts {
		if !a.Status.IsTerminal() || a.Score == nil {
			continue
		}
		scores = append(scores, *a.Score)
	}
	if len(scores) == 0 {
		return decimal.Zero, ErrNoTerminalAttempts
	}

	switch method {
	case models.GradingFirst:
		return scores[0], nil
	case models.GradingLast:
		return scores[len(scores)-1], nil
	case models.GradingHighest:
		best := scores[0]
		for _, s := range scores[1:] {
			if s.GreaterThan(best) {
				best = s
			}
		}
		return best, nil
	case models.GradingAverage:
		sum := decimal.Zero
		for _, s := range scores {
			sum = sum.Add(s)
		}
		return sum.Div(decimal.NewFromInt(int64(len(scores)))).Round(2), nil
	default:
		return decimal.Zero, errors.New("unknown grading method: " + string(method))
	}
}
