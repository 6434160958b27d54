package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eduflow-vn/quiz-engine/internal/events"
	"github.com/eduflow-vn/quiz-engine/internal/models"
)

// ===== FINALIZATION =====

func TestFinalizeAttempt_ScoresEveryQuestion(t *testing.T) {
	env := newTestEnv(t)
	pass := decimal.RequireFromString("4")
	assessment := env.seedAssessment(t, func(a *models.Assessment) {
		a.PassScore = &pass
	})
	questions := env.seedSingleChoiceTrio(t, assessment.ID)

	attempt, _ := env.attempts.StartOrResume(context.Background(), &StartAttemptRequest{
		AssessmentID: assessment.ID, UserID: "student-1",
	})

	// One submitted correct, one left as a correct draft, one never answered.
	if _, err := env.attempts.SubmitQuestion(context.Background(), &AnswerSubmission{
		AttemptID: attempt.ID, UserID: "student-1", QuestionID: questions[0].ID,
		Payload: selectedPayload("a"),
	}); err != nil {
		t.Fatalf("SubmitQuestion() error = %v", err)
	}
	if err := env.attempts.SaveDraftAnswer(context.Background(), &AnswerSubmission{
		AttemptID: attempt.ID, UserID: "student-1", QuestionID: questions[1].ID,
		Payload: selectedPayload("a"),
	}); err != nil {
		t.Fatalf("SaveDraftAnswer() error = %v", err)
	}

	final, err := env.grading.FinalizeAttempt(context.Background(), attempt.ID, "student-1")
	if err != nil {
		t.Fatalf("FinalizeAttempt() error = %v", err)
	}

	if final.Status != models.AttemptCompleted {
		t.Errorf("status = %v, want completed", final.Status)
	}
	if final.Score == nil || !final.Score.Equal(decimal.RequireFromString("4")) {
		t.Errorf("score = %v, want 4 (draft scored at finalize)", final.Score)
	}
	if final.Passed == nil || !*final.Passed {
		t.Errorf("passed = %v, want true", final.Passed)
	}
	if final.SubmittedAt == nil {
		t.Errorf("submitted_at not set")
	}

	// The unanswered question gets a persisted zero-score answer.
	answer, err := env.repo.Answer().GetByAttemptAndQuestion(context.Background(), nil, attempt.ID, questions[2].ID)
	if err != nil {
		t.Fatalf("unanswered question has no answer row: %v", err)
	}
	if !answer.Score.IsZero() {
		t.Errorf("unanswered score = %s, want 0", answer.Score)
	}
	if answer.IsCorrect == nil || *answer.IsCorrect {
		t.Errorf("unanswered is_correct = %v, want false", answer.IsCorrect)
	}

	published := env.publisher.GetPublishedEvents()
	if got := countEvents(published, events.EventAttemptFinalized); got != 1 {
		t.Errorf("attempt.finalized events = %d, want 1", got)
	}
	if got := countEvents(published, events.EventGradeRecorded); got != 1 {
		t.Errorf("grade.recorded events = %d, want 1", got)
	}
}

func TestFinalizeAttempt_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	assessment := env.seedAssessment(t, nil)
	questions := env.seedSingleChoiceTrio(t, assessment.ID)

	attempt, _ := env.attempts.StartOrResume(context.Background(), &StartAttemptRequest{
		AssessmentID: assessment.ID, UserID: "student-1",
	})
	if _, err := env.attempts.SubmitQuestion(context.Background(), &AnswerSubmission{
		AttemptID: attempt.ID, UserID: "student-1", QuestionID: questions[0].ID,
		Payload: selectedPayload("a"),
	}); err != nil {
		t.Fatalf("SubmitQuestion() error = %v", err)
	}

	first, err := env.grading.FinalizeAttempt(context.Background(), attempt.ID, "student-1")
	if err != nil {
		t.Fatalf("first FinalizeAttempt() error = %v", err)
	}
	env.clock.Advance(time.Minute)
	second, err := env.grading.FinalizeAttempt(context.Background(), attempt.ID, "student-1")
	if err != nil {
		t.Fatalf("second FinalizeAttempt() error = %v", err)
	}

	if !second.Score.Equal(*first.Score) {
		t.Errorf("second finalize changed score: %s -> %s", first.Score, second.Score)
	}
	if !second.SubmittedAt.Equal(*first.SubmittedAt) {
		t.Errorf("second finalize moved submitted_at")
	}
	if got := countEvents(env.publisher.GetPublishedEvents(), events.EventAttemptFinalized); got != 1 {
		t.Errorf("attempt.finalized events = %d, want 1 (no republish)", got)
	}
}

func TestFinalizeAttempt_WrongUser(t *testing.T) {
	env := newTestEnv(t)
	assessment := env.seedAssessment(t, nil)
	env.seedSingleChoiceTrio(t, assessment.ID)

	attempt, _ := env.attempts.StartOrResume(context.Background(), &StartAttemptRequest{
		AssessmentID: assessment.ID, UserID: "student-1",
	})

	_, err := env.grading.FinalizeAttempt(context.Background(), attempt.ID, "student-2")
	var pe *PermissionError
	if !errors.As(err, &pe) {
		t.Errorf("FinalizeAttempt() error = %v, want PermissionError", err)
	}
}

func TestFinalizeAttempt_PastDeadlineMarksOverdue(t *testing.T) {
	env := newTestEnv(t)
	limit := 300
	assessment := env.seedAssessment(t, func(a *models.Assessment) {
		a.TimeLimitSeconds = &limit
	})
	env.seedSingleChoiceTrio(t, assessment.ID)

	attempt, _ := env.attempts.StartOrResume(context.Background(), &StartAttemptRequest{
		AssessmentID: assessment.ID, UserID: "student-1",
	})
	env.clock.Advance(10 * time.Minute)

	final, err := env.grading.FinalizeAttempt(context.Background(), attempt.ID, "student-1")
	if err != nil {
		t.Fatalf("FinalizeAttempt() error = %v", err)
	}
	if final.Status != models.AttemptOverdue {
		t.Errorf("status = %v, want overdue (finalized past deadline)", final.Status)
	}
	if final.Passed == nil {
		t.Errorf("overdue attempt still gets a pass decision, got nil")
	}
}

func TestFinalizeExpired(t *testing.T) {
	env := newTestEnv(t)
	limit := 300
	assessment := env.seedAssessment(t, func(a *models.Assessment) {
		a.TimeLimitSeconds = &limit
	})
	env.seedSingleChoiceTrio(t, assessment.ID)

	attempt, _ := env.attempts.StartOrResume(context.Background(), &StartAttemptRequest{
		AssessmentID: assessment.ID, UserID: "student-1",
	})

	t.Run("not yet expired is left alone", func(t *testing.T) {
		got, err := env.grading.FinalizeExpired(context.Background(), attempt.ID)
		if err != nil {
			t.Fatalf("FinalizeExpired() error = %v", err)
		}
		if got.Status != models.AttemptInProgress {
			t.Errorf("status = %v, want in_progress", got.Status)
		}
	})

	t.Run("expired becomes overdue", func(t *testing.T) {
		env.clock.Advance(10 * time.Minute)
		got, err := env.grading.FinalizeExpired(context.Background(), attempt.ID)
		if err != nil {
			t.Fatalf("FinalizeExpired() error = %v", err)
		}
		if got.Status != models.AttemptOverdue {
			t.Errorf("status = %v, want overdue", got.Status)
		}
	})
}

// ===== RECORDED GRADES =====

func TestComputeRecordedGrade(t *testing.T) {
	scores := []string{"6", "9", "7"}

	tests := []struct {
		method models.GradingMethod
		want   string
	}{
		{models.GradingFirst, "6"},
		{models.GradingLast, "7"},
		{models.GradingHighest, "9"},
		{models.GradingAverage, "7.33"},
	}
	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			env := newTestEnv(t)
			assessment := env.seedAssessment(t, func(a *models.Assessment) {
				a.GradingMethod = tt.method
			})

			start := env.clock.Now()
			for i, s := range scores {
				score := decimal.RequireFromString(s)
				status := models.AttemptCompleted
				if i == 2 {
					status = models.AttemptOverdue // overdue attempts still count
				}
				if err := env.repo.Attempt().Create(context.Background(), nil, &models.Attempt{
					AssessmentID: assessment.ID,
					UserID:       "student-1",
					Status:       status,
					StartedAt:    start.Add(time.Duration(i) * time.Hour),
					Score:        &score,
					MaxScore:     decimal.RequireFromString("10"),
				}); err != nil {
					t.Fatalf("seed attempt: %v", err)
				}
			}

			got, err := env.grading.ComputeRecordedGrade(context.Background(), assessment.ID, "student-1")
			if err != nil {
				t.Fatalf("ComputeRecordedGrade() error = %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ComputeRecordedGrade() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestComputeRecordedGrade_NoTerminalAttempts(t *testing.T) {
	env := newTestEnv(t)
	assessment := env.seedAssessment(t, nil)
	env.seedSingleChoiceTrio(t, assessment.ID)

	// An in-progress attempt alone does not produce a grade.
	if _, err := env.attempts.StartOrResume(context.Background(), &StartAttemptRequest{
		AssessmentID: assessment.ID, UserID: "student-1",
	}); err != nil {
		t.Fatalf("StartOrResume() error = %v", err)
	}

	_, err := env.grading.ComputeRecordedGrade(context.Background(), assessment.ID, "student-1")
	if !errors.Is(err, ErrNoTerminalAttempts) {
		t.Errorf("ComputeRecordedGrade() error = %v, want ErrNoTerminalAttempts", err)
	}
}

// ===== LATE PENALTY =====

func TestApplyLatePenalty(t *testing.T) {
	env := newTestEnv(t)
	policy, err := models.NewLatePenaltyPolicy(
		decimal.RequireFromString("10"),
		decimal.RequireFromString("50"),
		0,
	)
	if err != nil {
		t.Fatalf("NewLatePenaltyPolicy() error = %v", err)
	}

	dueAt := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	got := env.grading.ApplyLatePenalty(
		decimal.RequireFromString("80"),
		dueAt,
		dueAt.Add(3*24*time.Hour),
		policy,
	)
	if !got.Equal(decimal.RequireFromString("56")) {
		t.Errorf("ApplyLatePenalty() = %s, want 56 (30%% off 80)", got)
	}
}

// ===== REGRADING =====

func TestRegradeAttempt(t *testing.T) {
	env := newTestEnv(t)
	assessment := env.seedAssessment(t, nil)
	questions := env.seedSingleChoiceTrio(t, assessment.ID)

	attempt, _ := env.attempts.StartOrResume(context.Background(), &StartAttemptRequest{
		AssessmentID: assessment.ID, UserID: "student-1",
	})

	t.Run("in-progress attempt is rejected", func(t *testing.T) {
		_, err := env.grading.RegradeAttempt(context.Background(), attempt.ID)
		if !errors.Is(err, ErrAttemptNotFinished) {
			t.Errorf("RegradeAttempt() error = %v, want ErrAttemptNotFinished", err)
		}
	})

	for _, q := range questions {
		if _, err := env.attempts.SubmitQuestion(context.Background(), &AnswerSubmission{
			AttemptID: attempt.ID, UserID: "student-1", QuestionID: q.ID,
			Payload: selectedPayload("a"),
		}); err != nil {
			t.Fatalf("SubmitQuestion() error = %v", err)
		}
	}
	final, err := env.grading.FinalizeAttempt(context.Background(), attempt.ID, "student-1")
	if err != nil {
		t.Fatalf("FinalizeAttempt() error = %v", err)
	}
	if !final.Score.Equal(decimal.RequireFromString("6")) {
		t.Fatalf("score before regrade = %s, want 6", final.Score)
	}

	// The key for the first question turns out to be wrong; fix it to "b"
	// and regrade from the stored payloads.
	fixed, _ := json.Marshal(models.SingleChoiceKey{CorrectIDs: []string{"b"}})
	corrected := *questions[0]
	corrected.AnswerKey = fixed
	env.repo.addQuestion(&corrected)

	regraded, err := env.grading.RegradeAttempt(context.Background(), attempt.ID)
	if err != nil {
		t.Fatalf("RegradeAttempt() error = %v", err)
	}
	if !regraded.Score.Equal(decimal.RequireFromString("4")) {
		t.Errorf("score after regrade = %s, want 4", regraded.Score)
	}
	if regraded.Status != models.AttemptCompleted {
		t.Errorf("regrade changed status to %v, want completed", regraded.Status)
	}
	if !regraded.SubmittedAt.Equal(*final.SubmittedAt) {
		t.Errorf("regrade moved submitted_at")
	}
}

// ===== EXPIRY SWEEP =====

func TestExpirySweeper_SweepOnce(t *testing.T) {
	env := newTestEnv(t)
	limit := 300
	assessment := env.seedAssessment(t, func(a *models.Assessment) {
		a.TimeLimitSeconds = &limit
	})
	env.seedSingleChoiceTrio(t, assessment.ID)

	expired, _ := env.attempts.StartOrResume(context.Background(), &StartAttemptRequest{
		AssessmentID: assessment.ID, UserID: "student-1",
	})
	env.clock.Advance(10 * time.Minute)
	live, _ := env.attempts.StartOrResume(context.Background(), &StartAttemptRequest{
		AssessmentID: assessment.ID, UserID: "student-2",
	})

	sweeper := NewExpirySweeper(env.repo, env.grading, discardLogger(), env.clock, time.Minute, 10)
	sweeper.SweepOnce(context.Background())

	got, _ := env.repo.Attempt().GetByID(context.Background(), nil, expired.ID)
	if got.Status != models.AttemptOverdue {
		t.Errorf("expired attempt status = %v, want overdue", got.Status)
	}
	got, _ = env.repo.Attempt().GetByID(context.Background(), nil, live.ID)
	if got.Status != models.AttemptInProgress {
		t.Errorf("live attempt status = %v, want in_progress", got.Status)
	}
}
