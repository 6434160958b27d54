package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/eduflow-vn/quiz-engine/internal/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrBusy is returned when a row lock could not be acquired. Callers may
	// retry; the domain state is untouched.
	ErrBusy = errors.New("resource is locked, try again")
	// ErrDuplicateActiveAttempt is returned when the unique in-progress
	// constraint rejects a concurrent attempt creation.
	ErrDuplicateActiveAttempt = errors.New("an in-progress attempt already exists")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

// All methods accept an optional tx so services can compose several calls
// into one transaction; nil falls back to the base connection.

type AssessmentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, assessment *models.Assessment) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Assessment, error)
	Update(ctx context.Context, tx *gorm.DB, assessment *models.Assessment) error
}

// QuestionRepository is the read-only question bank view of this service.
type QuestionRepository interface {
	GetByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]models.Question, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]models.Question, error)
}

type AttemptRepository interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error)
	// GetByIDForUpdate takes a row lock; ErrBusy when the lock is held.
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error)
	// GetActiveForUpdate locks the user's in-progress attempt for the
	// assessment. ErrNotFound when there is none.
	GetActiveForUpdate(ctx context.Context, tx *gorm.DB, assessmentID uint, userID string) (*models.Attempt, error)
	CountTerminal(ctx context.Context, tx *gorm.DB, assessmentID uint, userID string) (int64, error)
	// ListTerminal returns terminal attempts ordered chronologically by start.
	ListTerminal(ctx context.Context, tx *gorm.DB, assessmentID uint, userID string) ([]models.Attempt, error)
	// ListExpiredInProgress finds in-progress attempts already past their
	// deadline, for the background sweep.
	ListExpiredInProgress(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]models.Attempt, error)
	Update(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error
}

type AnswerRepository interface {
	// Upsert writes the answer for (attempt, question), overwriting any
	// previous row rather than duplicating it.
	Upsert(ctx context.Context, tx *gorm.DB, answer *models.Answer) error
	GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]models.Answer, error)
	GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.Answer, error)
}
