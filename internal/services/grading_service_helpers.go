package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/eduflow-vn/quiz-engine/internal/grading"
	"github.com/eduflow-vn/quiz-engine/internal/models"
	"github.com/eduflow-vn/quiz-engine/internal/repositories"
	"github.com/eduflow-vn/quiz-engine/internal/scoring"
)

// finalizeLocked moves an in-progress attempt to its terminal state. The
// caller must already hold the attempt's row lock inside a transaction.
// Every question in the snapshot is scored from its stored payload, drafts
// and unanswered questions included, so the terminal row is self-contained.
func finalizeLocked(ctx context.Context, r repositories.Repository, engine *scoring.Engine, attempt *models.Attempt, assessment *models.Assessment, cause models.FinalizeCause, now time.Time) (*models.Attempt, error) {
	if attempt.Status.IsTerminal() {
		return attempt, nil
	}

	answers, err := scoreAllQuestions(ctx, r, engine, attempt)
	if err != nil {
		return nil, err
	}

	total := grading.AttemptTotal(answers, attempt.MaxScore, assessment.AllowNegativeTotal)
	passed := total.GreaterThanOrEqual(assessment.PassThreshold(attempt.MaxScore))

	attempt.Score = &total
	attempt.Passed = &passed
	attempt.SubmittedAt = &now
	if cause == models.FinalizeSubmitted {
		attempt.Status = models.AttemptCompleted
	} else {
		attempt.Status = models.AttemptOverdue
	}

	if err := r.Attempt().Update(ctx, nil, attempt); err != nil {
		return nil, fmt.Errorf("failed to update attempt %d: %w", attempt.ID, err)
	}
	return attempt, nil
}

// scoreAllQuestions scores every question in the attempt's snapshot against
// the stored payloads and persists the results. A question with no stored
// answer is scored against an empty payload.
func scoreAllQuestions(ctx context.Context, r repositories.Repository, engine *scoring.Engine, attempt *models.Attempt) ([]models.Answer, error) {
	questions, err := r.Question().GetByIDs(ctx, nil, attempt.QuestionOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	byID := make(map[uint]*models.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	stored, err := r.Answer().GetByAttempt(ctx, nil, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}
	storedByQuestion := make(map[uint]*models.Answer, len(stored))
	for i := range stored {
		storedByQuestion[stored[i].QuestionID] = &stored[i]
	}

	out := make([]models.Answer, 0, len(attempt.QuestionOrder))
	for _, qid := range attempt.QuestionOrder {
		question, ok := byID[qid]
		if !ok {
			return nil, fmt.Errorf("question %d from attempt %d no longer exists", qid, attempt.ID)
		}

		var payload []byte
		answer := storedByQuestion[qid]
		if answer == nil {
			answer = &models.Answer{
				AttemptID:  attempt.ID,
				QuestionID: qid,
			}
		} else {
			payload = answer.Payload
		}

		result, err := engine.Score(question, payload)
		if err != nil {
			return nil, fmt.Errorf("failed to score question %d: %w", qid, err)
		}

		answer.Draft = false
		answer.Score = result.Points
		answer.IsCorrect = result.IsCorrect
		answer.Feedback = strPtr(result.Feedback)
		if answer.Payload == nil {
			answer.Payload = datatypes.JSON("{}")
		}
		if err := r.Answer().Upsert(ctx, nil, answer); err != nil {
			return nil, fmt.Errorf("failed to persist answer for question %d: %w", qid, err)
		}
		out = append(out, *answer)
	}
	return out, nil
}
