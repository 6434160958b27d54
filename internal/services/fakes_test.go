package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/eduflow-vn/quiz-engine/internal/models"
	"github.com/eduflow-vn/quiz-engine/internal/repositories"
	"github.com/eduflow-vn/quiz-engine/internal/timeguard"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock hands out a controllable instant.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeRepository is an in-memory Repository good enough for service flows:
// it enforces the one-in-progress-attempt constraint and the answer upsert
// key the way the real store does, without locking semantics.
type fakeRepository struct {
	mu          sync.Mutex
	assessments map[uint]models.Assessment
	questions   map[uint]models.Question
	attempts    map[uint]models.Attempt
	answers     map[uint]models.Answer
	nextID      uint
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		assessments: make(map[uint]models.Assessment),
		questions:   make(map[uint]models.Question),
		attempts:    make(map[uint]models.Attempt),
		answers:     make(map[uint]models.Answer),
		nextID:      1,
	}
}

func (f *fakeRepository) id() uint {
	id := f.nextID
	f.nextID++
	return id
}

// addQuestion seeds the question bank; the service only ever reads questions.
func (f *fakeRepository) addQuestion(q *models.Question) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if q.ID == 0 {
		q.ID = f.id()
	}
	f.questions[q.ID] = *q
}

func (f *fakeRepository) Assessment() repositories.AssessmentRepository { return fakeAssessments{f} }
func (f *fakeRepository) Question() repositories.QuestionRepository     { return fakeQuestions{f} }
func (f *fakeRepository) Attempt() repositories.AttemptRepository       { return fakeAttempts{f} }
func (f *fakeRepository) Answer() repositories.AnswerRepository         { return fakeAnswers{f} }

func (f *fakeRepository) WithTransaction(_ context.Context, fn func(repositories.Repository) error) error {
	return fn(f)
}

func (f *fakeRepository) Ping(context.Context) error { return nil }
func (f *fakeRepository) Close() error               { return nil }

// ===== ASSESSMENTS =====

type fakeAssessments struct{ f *fakeRepository }

func (r fakeAssessments) Create(_ context.Context, _ *gorm.DB, a *models.Assessment) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if a.ID == 0 {
		a.ID = r.f.id()
	}
	r.f.assessments[a.ID] = *a
	return nil
}

func (r fakeAssessments) GetByID(_ context.Context, _ *gorm.DB, id uint) (*models.Assessment, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	a, ok := r.f.assessments[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &a, nil
}

func (r fakeAssessments) Update(_ context.Context, _ *gorm.DB, a *models.Assessment) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.assessments[a.ID] = *a
	return nil
}

// ===== QUESTIONS =====

type fakeQuestions struct{ f *fakeRepository }

func (r fakeQuestions) add(q *models.Question) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if q.ID == 0 {
		q.ID = r.f.id()
	}
	r.f.questions[q.ID] = *q
}

func (r fakeQuestions) GetByAssessment(_ context.Context, _ *gorm.DB, assessmentID uint) ([]models.Question, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []models.Question
	for _, q := range r.f.questions {
		if q.AssessmentID == assessmentID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r fakeQuestions) GetByIDs(_ context.Context, _ *gorm.DB, ids []uint) ([]models.Question, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []models.Question
	for _, id := range ids {
		if q, ok := r.f.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

// ===== ATTEMPTS =====

type fakeAttempts struct{ f *fakeRepository }

func (r fakeAttempts) Create(_ context.Context, _ *gorm.DB, a *models.Attempt) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, existing := range r.f.attempts {
		if existing.AssessmentID == a.AssessmentID && existing.UserID == a.UserID &&
			existing.Status == models.AttemptInProgress {
			return repositories.ErrDuplicateActiveAttempt
		}
	}
	if a.ID == 0 {
		a.ID = r.f.id()
	}
	r.f.attempts[a.ID] = *a
	return nil
}

func (r fakeAttempts) GetByID(_ context.Context, _ *gorm.DB, id uint) (*models.Attempt, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	a, ok := r.f.attempts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &a, nil
}

func (r fakeAttempts) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error) {
	return r.GetByID(ctx, tx, id)
}

func (r fakeAttempts) GetActiveForUpdate(_ context.Context, _ *gorm.DB, assessmentID uint, userID string) (*models.Attempt, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, a := range r.f.attempts {
		if a.AssessmentID == assessmentID && a.UserID == userID && a.Status == models.AttemptInProgress {
			out := a
			return &out, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r fakeAttempts) CountTerminal(_ context.Context, _ *gorm.DB, assessmentID uint, userID string) (int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var n int64
	for _, a := range r.f.attempts {
		if a.AssessmentID == assessmentID && a.UserID == userID && a.Status.IsTerminal() {
			n++
		}
	}
	return n, nil
}

func (r fakeAttempts) ListTerminal(_ context.Context, _ *gorm.DB, assessmentID uint, userID string) ([]models.Attempt, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []models.Attempt
	for _, a := range r.f.attempts {
		if a.AssessmentID == assessmentID && a.UserID == userID && a.Status.IsTerminal() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r fakeAttempts) ListExpiredInProgress(_ context.Context, _ *gorm.DB, now time.Time, limit int) ([]models.Attempt, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []models.Attempt
	for _, a := range r.f.attempts {
		if a.Status != models.AttemptInProgress {
			continue
		}
		assessment, ok := r.f.assessments[a.AssessmentID]
		if !ok {
			continue
		}
		attempt := a
		if timeguard.IsExpired(&attempt, &assessment, now) {
			out = append(out, attempt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r fakeAttempts) Update(_ context.Context, _ *gorm.DB, a *models.Attempt) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.attempts[a.ID]; !ok {
		return repositories.ErrNotFound
	}
	r.f.attempts[a.ID] = *a
	return nil
}

// ===== ANSWERS =====

type fakeAnswers struct{ f *fakeRepository }

func (r fakeAnswers) Upsert(_ context.Context, _ *gorm.DB, answer *models.Answer) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for id, existing := range r.f.answers {
		if existing.AttemptID == answer.AttemptID && existing.QuestionID == answer.QuestionID {
			answer.ID = id
			r.f.answers[id] = *answer
			return nil
		}
	}
	if answer.ID == 0 {
		answer.ID = r.f.id()
	}
	r.f.answers[answer.ID] = *answer
	return nil
}

func (r fakeAnswers) GetByAttempt(_ context.Context, _ *gorm.DB, attemptID uint) ([]models.Answer, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []models.Answer
	for _, a := range r.f.answers {
		if a.AttemptID == attemptID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (r fakeAnswers) GetByAttemptAndQuestion(_ context.Context, _ *gorm.DB, attemptID, questionID uint) (*models.Answer, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, a := range r.f.answers {
		if a.AttemptID == attemptID && a.QuestionID == questionID {
			out := a
			return &out, nil
		}
	}
	return nil, repositories.ErrNotFound
}
