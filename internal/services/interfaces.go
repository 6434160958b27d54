package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eduflow-vn/quiz-engine/internal/models"
)

// Clock is injected wherever "now" is read, so TimeGuard decisions and
// attempt timestamps are deterministic under test.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func RealClock() Clock { return realClock{} }

// ===== REQUEST/RESPONSE DTOs =====

type StartAttemptRequest struct {
	AssessmentID uint   `json:"assessment_id" validate:"required"`
	UserID       string `json:"user_id" validate:"required"`
}

// AnswerSubmission carries one response, for both draft saves and
// immediate per-question submits.
type AnswerSubmission struct {
	AttemptID  uint            `json:"attempt_id" validate:"required"`
	UserID     string          `json:"user_id" validate:"required"`
	QuestionID uint            `json:"question_id" validate:"required"`
	Payload    json.RawMessage `json:"payload"`
}

// AttemptStatusSnapshot is the polled view of an attempt. Deadline is
// stored so RemainingSeconds can be derived fresh on every poll even when
// the snapshot itself comes from cache.
type AttemptStatusSnapshot struct {
	AttemptID     uint                 `json:"attempt_id"`
	UserID        string               `json:"user_id"`
	Status        models.AttemptStatus `json:"status"`
	CurrentIndex  int                  `json:"current_index"`
	QuestionOrder []uint               `json:"question_order"`
	AnsweredCount int                  `json:"answered_count"`
	Deadline      *time.Time           `json:"deadline"`
	Score         *decimal.Decimal     `json:"score"`
	MaxScore      decimal.Decimal      `json:"max_score"`
	Passed        *bool                `json:"passed"`
	SubmittedAt   *time.Time           `json:"submitted_at"`

	// RemainingSeconds is nil for untimed attempts, otherwise never negative.
	RemainingSeconds *int64 `json:"remaining_seconds"`
}

// ===== SERVICE INTERFACES =====

type AttemptService interface {
	// StartOrResume returns the caller's in-progress attempt, creating one
	// with a fresh question snapshot only when none exists.
	StartOrResume(ctx context.Context, req *StartAttemptRequest) (*models.Attempt, error)

	// SaveDraftAnswer stores a response without scoring it.
	SaveDraftAnswer(ctx context.Context, sub *AnswerSubmission) error

	// SubmitQuestion stores and scores a response immediately, for
	// per-question submit flows.
	SubmitQuestion(ctx context.Context, sub *AnswerSubmission) (*models.Answer, error)

	// GetStatus is read-only and safe to poll.
	GetStatus(ctx context.Context, attemptID uint, userID string) (*AttemptStatusSnapshot, error)
}

type GradingService interface {
	// FinalizeAttempt is the explicit submit-all. Calling it on an already
	// terminal attempt returns the stored result unchanged.
	FinalizeAttempt(ctx context.Context, attemptID uint, userID string) (*models.Attempt, error)

	// FinalizeExpired force-finalizes an expired attempt as overdue. Used
	// by the sweep; a no-op for attempts already terminal.
	FinalizeExpired(ctx context.Context, attemptID uint) (*models.Attempt, error)

	// ComputeRecordedGrade reduces the user's terminal attempts per the
	// assessment's grading method. ErrNoTerminalAttempts when none exist.
	ComputeRecordedGrade(ctx context.Context, assessmentID uint, userID string) (decimal.Decimal, error)

	// ApplyLatePenalty deducts per the policy; pure and side-effect free.
	ApplyLatePenalty(score decimal.Decimal, dueAt, submittedAt time.Time, policy models.LatePenaltyPolicy) decimal.Decimal

	// RegradeAttempt re-scores a terminal attempt from its stored payloads,
	// e.g. after an answer key correction. Status is preserved.
	RegradeAttempt(ctx context.Context, attemptID uint) (*models.Attempt, error)
}

// ServiceManager wires and owns the service instances.
type ServiceManager interface {
	Initialize(ctx context.Context) error
	Attempt() AttemptService
	Grading() GradingService

	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
