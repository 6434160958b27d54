package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eduflow-vn/quiz-engine/internal/events"
	"github.com/eduflow-vn/quiz-engine/internal/grading"
	"github.com/eduflow-vn/quiz-engine/internal/models"
	"github.com/eduflow-vn/quiz-engine/internal/repositories"
	"github.com/eduflow-vn/quiz-engine/internal/scoring"
	"github.com/eduflow-vn/quiz-engine/internal/timeguard"
	"github.com/eduflow-vn/quiz-engine/internal/validator"
)

type gradingService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	clock     Clock
	engine    *scoring.Engine
	publisher events.EventPublisher
}

func NewGradingService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, clock Clock, publisher events.EventPublisher) GradingService {
	return &gradingService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		clock:     clock,
		engine:    scoring.NewEngine(),
		publisher: publisher,
	}
}

// ===== FINALIZATION =====

func (s *gradingService) FinalizeAttempt(ctx context.Context, attemptID uint, userID string) (*models.Attempt, error) {
	s.logger.Info("Finalizing attempt", "attempt_id", attemptID, "user_id", userID)

	var (
		attempt      *models.Attempt
		assessment   *models.Assessment
		transitioned bool
	)
	err := s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		locked, err := r.Attempt().GetByIDForUpdate(ctx, nil, attemptID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return ErrAttemptNotFound
			}
			return err
		}
		if locked.UserID != userID {
			return NewPermissionError(userID, attemptID, "attempt", "finalize")
		}
		// Finalize is idempotent: a terminal attempt returns its stored
		// result unchanged.
		if locked.Status.IsTerminal() {
			attempt = locked
			return nil
		}

		assessment, err = r.Assessment().GetByID(ctx, nil, locked.AssessmentID)
		if err != nil {
			return fmt.Errorf("failed to get assessment: %w", err)
		}

		now := s.clock.Now()
		cause := models.FinalizeSubmitted
		if timeguard.IsExpired(locked, assessment, now) {
			cause = models.FinalizeDeadline
		}
		attempt, err = finalizeLocked(ctx, r, s.engine, locked, assessment, cause, now)
		if err != nil {
			return err
		}
		transitioned = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if transitioned {
		s.logger.Info("Attempt finalized",
			"attempt_id", attempt.ID,
			"status", attempt.Status,
			"score", attempt.Score,
			"passed", attempt.Passed)
		s.publishFinalized(ctx, attempt)
		s.publishRecordedGrade(ctx, assessment, attempt.UserID)
	}
	return attempt, nil
}

func (s *gradingService) FinalizeExpired(ctx context.Context, attemptID uint) (*models.Attempt, error) {
	var (
		attempt      *models.Attempt
		transitioned bool
	)
	err := s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		locked, err := r.Attempt().GetByIDForUpdate(ctx, nil, attemptID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return ErrAttemptNotFound
			}
			return err
		}
		if locked.Status.IsTerminal() {
			attempt = locked
			return nil
		}

		assessment, err := r.Assessment().GetByID(ctx, nil, locked.AssessmentID)
		if err != nil {
			return fmt.Errorf("failed to get assessment: %w", err)
		}

		now := s.clock.Now()
		// Someone may have extended the window since the attempt was swept;
		// leave unexpired attempts alone.
		if !timeguard.IsExpired(locked, assessment, now) {
			attempt = locked
			return nil
		}
		attempt, err = finalizeLocked(ctx, r, s.engine, locked, assessment, models.FinalizeDeadline, now)
		if err != nil {
			return err
		}
		transitioned = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if transitioned {
		s.logger.Info("Expired attempt finalized as overdue",
			"attempt_id", attempt.ID,
			"score", attempt.Score)
		s.publishFinalized(ctx, attempt)
	}
	return attempt, nil
}

// ===== GRADE AGGREGATION =====

func (s *gradingService) ComputeRecordedGrade(ctx context.Context, assessmentID uint, userID string) (decimal.Decimal, error) {
	assessment, err := s.repo.Assessment().GetByID(ctx, nil, assessmentID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return decimal.Zero, ErrAssessmentNotFound
		}
		return decimal.Zero, err
	}

	attempts, err := s.repo.Attempt().ListTerminal(ctx, nil, assessmentID, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to list attempts: %w", err)
	}
	return grading.RecordedGrade(attempts, assessment.GradingMethod)
}

func (s *gradingService) ApplyLatePenalty(score decimal.Decimal, dueAt, submittedAt time.Time, policy models.LatePenaltyPolicy) decimal.Decimal {
	return policy.Apply(score, dueAt, submittedAt)
}

// ===== REGRADING =====

// RegradeAttempt re-runs scoring over the stored payloads of a terminal
// attempt, typically after an answer key correction. The attempt keeps its
// status and submission time; only scores, correctness and pass state move.
func (s *gradingService) RegradeAttempt(ctx context.Context, attemptID uint) (*models.Attempt, error) {
	s.logger.Info("Regrading attempt", "attempt_id", attemptID)

	var (
		attempt    *models.Attempt
		assessment *models.Assessment
	)
	err := s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		locked, err := r.Attempt().GetByIDForUpdate(ctx, nil, attemptID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return ErrAttemptNotFound
			}
			return err
		}
		if !locked.Status.IsTerminal() {
			return ErrAttemptNotFinished
		}

		assessment, err = r.Assessment().GetByID(ctx, nil, locked.AssessmentID)
		if err != nil {
			return fmt.Errorf("failed to get assessment: %w", err)
		}

		answers, err := scoreAllQuestions(ctx, r, s.engine, locked)
		if err != nil {
			return err
		}

		total := grading.AttemptTotal(answers, locked.MaxScore, assessment.AllowNegativeTotal)
		passed := total.GreaterThanOrEqual(assessment.PassThreshold(locked.MaxScore))
		locked.Score = &total
		locked.Passed = &passed
		if err := r.Attempt().Update(ctx, nil, locked); err != nil {
			return err
		}
		attempt = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Attempt regraded", "attempt_id", attempt.ID, "score", attempt.Score)
	s.publishRecordedGrade(ctx, assessment, attempt.UserID)
	return attempt, nil
}

// ===== EVENTS =====

func (s *gradingService) publishFinalized(ctx context.Context, attempt *models.Attempt) {
	if s.publisher == nil {
		return
	}
	score := ""
	if attempt.Score != nil {
		score = attempt.Score.String()
	}
	data := events.AttemptFinalizedData{
		AttemptID:    attempt.ID,
		AssessmentID: attempt.AssessmentID,
		UserID:       attempt.UserID,
		Status:       string(attempt.Status),
		Score:        score,
		MaxScore:     attempt.MaxScore.String(),
		Passed:       attempt.Passed,
	}
	if err := s.publisher.Publish(ctx, events.EventAttemptFinalized, data); err != nil {
		s.logger.Error("Failed to publish event", "error", err, "type", events.EventAttemptFinalized)
	}
}

// publishRecordedGrade is best effort: the finalize result stands whether or
// not the recorded grade makes it onto the bus.
func (s *gradingService) publishRecordedGrade(ctx context.Context, assessment *models.Assessment, userID string) {
	if s.publisher == nil || assessment == nil {
		return
	}
	grade, err := s.ComputeRecordedGrade(ctx, assessment.ID, userID)
	if err != nil {
		s.logger.Error("Failed to compute recorded grade", "error", err,
			"assessment_id", assessment.ID, "user_id", userID)
		return
	}
	data := events.GradeRecordedData{
		AssessmentID:  assessment.ID,
		UserID:        userID,
		GradingMethod: string(assessment.GradingMethod),
		Grade:         grade.String(),
	}
	if err := s.publisher.Publish(ctx, events.EventGradeRecorded, data); err != nil {
		s.logger.Error("Failed to publish event", "error", err, "type", events.EventGradeRecorded)
	}
}
