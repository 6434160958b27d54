package services

import (
	"context"
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/eduflow-vn/quiz-engine/internal/models"
	"github.com/eduflow-vn/quiz-engine/internal/repositories"
	"github.com/eduflow-vn/quiz-engine/internal/timeguard"
)

// selectQuestionOrder freezes the attempt's question snapshot. A subset is
// sampled when the assessment draws fewer questions than the pool holds;
// authored order is preserved unless shuffling is on.
func selectQuestionOrder(pool []models.Question, assessment *models.Assessment) []uint {
	ids := make([]uint, len(pool))
	for i, q := range pool {
		ids[i] = q.ID
	}

	count := assessment.QuestionsPerAttempt
	if count > 0 && count < len(ids) {
		picked := rand.Perm(len(ids))[:count]
		sort.Ints(picked)
		sampled := make([]uint, count)
		for i, idx := range picked {
			sampled[i] = ids[idx]
		}
		ids = sampled
	}

	if assessment.ShuffleQuestions {
		rand.Shuffle(len(ids), func(i, j int) {
			ids[i], ids[j] = ids[j], ids[i]
		})
	}
	return ids
}

// maxScoreOf sums the points of the snapshot's questions.
func maxScoreOf(pool []models.Question, order []uint) decimal.Decimal {
	points := make(map[uint]decimal.Decimal, len(pool))
	for _, q := range pool {
		points[q.ID] = q.Points
	}
	total := decimal.Zero
	for _, id := range order {
		total = total.Add(points[id])
	}
	return total.Round(2)
}

// lockLiveAttempt locks the attempt row and verifies it is still writable by
// this caller for this question. An attempt found expired here is finalized
// as overdue before the submission is rejected, so the client's next status
// poll already shows the terminal result.
func (s *attemptService) lockLiveAttempt(ctx context.Context, r repositories.Repository, sub *AnswerSubmission) (*models.Attempt, *models.Assessment, int, error) {
	attempt, err := r.Attempt().GetByIDForUpdate(ctx, nil, sub.AttemptID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, nil, 0, ErrAttemptNotFound
		}
		return nil, nil, 0, err
	}
	if attempt.UserID != sub.UserID {
		return nil, nil, 0, NewPermissionError(sub.UserID, sub.AttemptID, "attempt", "answer")
	}
	if attempt.Status.IsTerminal() {
		return nil, nil, 0, ErrAttemptAlreadyFinished
	}

	assessment, err := r.Assessment().GetByID(ctx, nil, attempt.AssessmentID)
	if err != nil {
		return nil, nil, 0, err
	}

	now := s.clock.Now()
	if timeguard.IsExpired(attempt, assessment, now) {
		if _, ferr := finalizeLocked(ctx, r, s.engine, attempt, assessment, models.FinalizeDeadline, now); ferr != nil {
			return nil, nil, 0, ferr
		}
		return nil, nil, 0, ErrAttemptExpired
	}

	pos, ok := attempt.ContainsQuestion(sub.QuestionID)
	if !ok {
		return nil, nil, 0, ErrQuestionNotInAttempt
	}
	return attempt, assessment, pos, nil
}

// advanceCursor moves the resume cursor to the snapshot position of the
// answered question, forward only, never backward.
func (s *attemptService) advanceCursor(ctx context.Context, r repositories.Repository, attempt *models.Attempt, pos int) error {
	if pos <= attempt.CurrentIndex {
		return nil
	}
	attempt.CurrentIndex = pos
	return r.Attempt().Update(ctx, nil, attempt)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
