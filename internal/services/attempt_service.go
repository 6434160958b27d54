package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eduflow-vn/quiz-engine/internal/cache"
	"github.com/eduflow-vn/quiz-engine/internal/events"
	"github.com/eduflow-vn/quiz-engine/internal/models"
	"github.com/eduflow-vn/quiz-engine/internal/repositories"
	"github.com/eduflow-vn/quiz-engine/internal/scoring"
	"github.com/eduflow-vn/quiz-engine/internal/timeguard"
	"github.com/eduflow-vn/quiz-engine/internal/validator"
)

type attemptService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	clock     Clock
	engine    *scoring.Engine
	publisher events.EventPublisher
	cache     *cache.CacheManager
}

func NewAttemptService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, clock Clock, publisher events.EventPublisher, cacheManager *cache.CacheManager) AttemptService {
	return &attemptService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		clock:     clock,
		engine:    scoring.NewEngine(),
		publisher: publisher,
		cache:     cacheManager,
	}
}

// ===== START / RESUME =====

func (s *attemptService) StartOrResume(ctx context.Context, req *StartAttemptRequest) (*models.Attempt, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	assessment, err := s.repo.Assessment().GetByID(ctx, nil, req.AssessmentID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}

	now := s.clock.Now()
	if open, state := assessment.IsOpenAt(now); !open {
		if state == models.WindowNotYetOpen {
			return nil, ErrNotYetOpen
		}
		return nil, ErrAlreadyClosed
	}

	var (
		attempt *models.Attempt
		resumed bool
	)
	err = s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		// The row lock makes the read-then-create sequence atomic against a
		// concurrent start for the same (assessment, user).
		existing, lookupErr := r.Attempt().GetActiveForUpdate(ctx, nil, req.AssessmentID, req.UserID)
		if lookupErr == nil {
			if !timeguard.IsExpired(existing, assessment, now) {
				attempt = existing
				resumed = true
				return nil
			}
			// Expired in place: close it out as overdue and start fresh.
			if _, ferr := finalizeLocked(ctx, r, s.engine, existing, assessment, models.FinalizeDeadline, now); ferr != nil {
				return fmt.Errorf("failed to finalize expired attempt %d: %w", existing.ID, ferr)
			}
		} else if !repositories.IsNotFound(lookupErr) {
			return lookupErr
		}

		count, cerr := r.Attempt().CountTerminal(ctx, nil, req.AssessmentID, req.UserID)
		if cerr != nil {
			return fmt.Errorf("failed to count attempts: %w", cerr)
		}
		if assessment.MaxAttempts != nil && count >= int64(*assessment.MaxAttempts) {
			return ErrAttemptLimitReached
		}

		pool, qerr := r.Question().GetByAssessment(ctx, nil, req.AssessmentID)
		if qerr != nil {
			return fmt.Errorf("failed to load question pool: %w", qerr)
		}
		if len(pool) == 0 {
			return fmt.Errorf("assessment %d has no questions", req.AssessmentID)
		}

		order := selectQuestionOrder(pool, assessment)
		attempt = &models.Attempt{
			AssessmentID:  req.AssessmentID,
			UserID:        req.UserID,
			Status:        models.AttemptInProgress,
			QuestionOrder: order,
			CurrentIndex:  0,
			StartedAt:     now,
			MaxScore:      maxScoreOf(pool, order),
		}
		return r.Attempt().Create(ctx, nil, attempt)
	})
	if err != nil {
		// A concurrent start won the unique in-progress constraint; return
		// the winner's attempt instead of failing.
		if errors.Is(err, repositories.ErrDuplicateActiveAttempt) {
			return s.StartOrResume(ctx, req)
		}
		return nil, err
	}

	if resumed {
		s.logger.Info("Resuming existing attempt",
			"attempt_id", attempt.ID,
			"assessment_id", req.AssessmentID,
			"user_id", req.UserID)
		return attempt, nil
	}

	s.logger.Info("Attempt started",
		"attempt_id", attempt.ID,
		"assessment_id", req.AssessmentID,
		"user_id", req.UserID,
		"questions", len(attempt.QuestionOrder))

	s.publishEvent(ctx, events.EventAttemptStarted, events.AttemptStartedData{
		AttemptID:    attempt.ID,
		AssessmentID: attempt.AssessmentID,
		UserID:       attempt.UserID,
		Questions:    len(attempt.QuestionOrder),
	})

	return attempt, nil
}

// ===== ANSWERS =====

func (s *attemptService) SaveDraftAnswer(ctx context.Context, sub *AnswerSubmission) error {
	if err := s.validator.Validate(sub); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		attempt, _, pos, err := s.lockLiveAttempt(ctx, r, sub)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		answer := &models.Answer{
			AttemptID:  sub.AttemptID,
			QuestionID: sub.QuestionID,
			Payload:    []byte(sub.Payload),
			Draft:      true,
			AnsweredAt: &now,
		}
		if err := r.Answer().Upsert(ctx, nil, answer); err != nil {
			return err
		}
		return s.advanceCursor(ctx, r, attempt, pos)
	})
}

func (s *attemptService) SubmitQuestion(ctx context.Context, sub *AnswerSubmission) (*models.Answer, error) {
	if err := s.validator.Validate(sub); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var answer *models.Answer
	err := s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		attempt, _, pos, err := s.lockLiveAttempt(ctx, r, sub)
		if err != nil {
			return err
		}

		questions, err := r.Question().GetByIDs(ctx, nil, []uint{sub.QuestionID})
		if err != nil {
			return fmt.Errorf("failed to load question %d: %w", sub.QuestionID, err)
		}
		if len(questions) == 0 {
			return ErrQuestionNotInAttempt
		}

		result, err := s.engine.Score(&questions[0], sub.Payload)
		if err != nil {
			return fmt.Errorf("failed to score question %d: %w", sub.QuestionID, err)
		}

		now := s.clock.Now()
		answer = &models.Answer{
			AttemptID:  sub.AttemptID,
			QuestionID: sub.QuestionID,
			Payload:    []byte(sub.Payload),
			Draft:      false,
			Score:      result.Points,
			IsCorrect:  result.IsCorrect,
			Feedback:   strPtr(result.Feedback),
			AnsweredAt: &now,
		}
		if err := r.Answer().Upsert(ctx, nil, answer); err != nil {
			return err
		}
		return s.advanceCursor(ctx, r, attempt, pos)
	})
	if err != nil {
		return nil, err
	}
	return answer, nil
}

// ===== STATUS =====

func (s *attemptService) GetStatus(ctx context.Context, attemptID uint, userID string) (*AttemptStatusSnapshot, error) {
	var snap AttemptStatusSnapshot
	key := fmt.Sprintf("attempt:%d", attemptID)

	err := s.cache.Status.CacheOrExecute(ctx, key, &snap, cache.StatusTTL, func() (interface{}, error) {
		return s.buildStatusSnapshot(ctx, attemptID)
	})
	if err != nil {
		return nil, err
	}
	if snap.UserID != userID {
		return nil, NewPermissionError(userID, attemptID, "attempt", "view")
	}

	// Remaining time is derived at read time so cached snapshots stay honest.
	if snap.Deadline != nil {
		remaining := int64(snap.Deadline.Sub(s.clock.Now()) / time.Second)
		if remaining < 0 {
			remaining = 0
		}
		snap.RemainingSeconds = &remaining
	}
	return &snap, nil
}

func (s *attemptService) buildStatusSnapshot(ctx context.Context, attemptID uint) (*AttemptStatusSnapshot, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}
	assessment, err := s.repo.Assessment().GetByID(ctx, nil, attempt.AssessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}
	answers, err := s.repo.Answer().GetByAttempt(ctx, nil, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}

	return &AttemptStatusSnapshot{
		AttemptID:     attempt.ID,
		UserID:        attempt.UserID,
		Status:        attempt.Status,
		CurrentIndex:  attempt.CurrentIndex,
		QuestionOrder: attempt.QuestionOrder,
		AnsweredCount: len(answers),
		Deadline:      timeguard.Deadline(attempt, assessment),
		Score:         attempt.Score,
		MaxScore:      attempt.MaxScore,
		Passed:        attempt.Passed,
		SubmittedAt:   attempt.SubmittedAt,
	}, nil
}

func (s *attemptService) publishEvent(ctx context.Context, eventType string, data interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, data); err != nil {
		s.logger.Error("Failed to publish event", "error", err, "type", eventType)
	}
}
