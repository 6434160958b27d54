package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eduflow-vn/quiz-engine/internal/cache"
	"github.com/eduflow-vn/quiz-engine/internal/models"
	"github.com/eduflow-vn/quiz-engine/internal/repositories"
)

type AttemptPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewAttemptPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Create(attempt).Error; err != nil {
		return mapError(err)
	}
	return nil
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error) {
	db := a.getDB(tx)
	var attempt models.Attempt
	if err := db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, mapError(err)
	}
	return &attempt, nil
}

// GetByIDForUpdate takes the attempt row lock without waiting, so a submit
// racing an expiry sweep surfaces as ErrBusy instead of stalling.
func (a *AttemptPostgreSQL) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error) {
	db := a.getDB(tx)
	var attempt models.Attempt
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "NOWAIT"}).
		First(&attempt, id).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetActiveForUpdate(ctx context.Context, tx *gorm.DB, assessmentID uint, userID string) (*models.Attempt, error) {
	db := a.getDB(tx)
	var attempt models.Attempt
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "NOWAIT"}).
		Where("assessment_id = ? AND user_id = ? AND status = ?", assessmentID, userID, models.AttemptInProgress).
		First(&attempt).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) CountTerminal(ctx context.Context, tx *gorm.DB, assessmentID uint, userID string) (int64, error) {
	db := a.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("assessment_id = ? AND user_id = ? AND status IN ?", assessmentID, userID, terminalStatuses()).
		Count(&count).Error
	return count, mapError(err)
}

func (a *AttemptPostgreSQL) ListTerminal(ctx context.Context, tx *gorm.DB, assessmentID uint, userID string) ([]models.Attempt, error) {
	db := a.getDB(tx)
	var attempts []models.Attempt
	err := db.WithContext(ctx).
		Where("assessment_id = ? AND user_id = ? AND status IN ?", assessmentID, userID, terminalStatuses()).
		Order("started_at ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, mapError(err)
	}
	return attempts, nil
}

// ListExpiredInProgress joins the assessment timing config to find attempts
// past either their per-attempt limit or the assessment close time.
func (a *AttemptPostgreSQL) ListExpiredInProgress(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]models.Attempt, error) {
	db := a.getDB(tx)
	var attempts []models.Attempt
	err := db.WithContext(ctx).
		Joins("JOIN assessments ON assessments.id = attempts.assessment_id").
		Where("attempts.status = ?", models.AttemptInProgress).
		Where(
			"(assessments.time_limit_seconds IS NOT NULL AND attempts.started_at + assessments.time_limit_seconds * interval '1 second' <= ?)"+
				" OR (assessments.closes_at IS NOT NULL AND assessments.closes_at <= ?)",
			now, now,
		).
		Limit(limit).
		Find(&attempts).Error
	if err != nil {
		return nil, mapError(err)
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) Update(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Save(attempt).Error; err != nil {
		return mapError(err)
	}
	cache.InvalidateAttemptStatus(ctx, a.cacheManager, attempt.ID)
	return nil
}

func terminalStatuses() []models.AttemptStatus {
	return []models.AttemptStatus{models.AttemptCompleted, models.AttemptOverdue}
}

// ===== ANSWERS =====

type AnswerPostgreSQL struct {
	db *gorm.DB
}

func NewAnswerPostgreSQL(db *gorm.DB) repositories.AnswerRepository {
	return &AnswerPostgreSQL{db: db}
}

func (r *AnswerPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// Upsert keeps the (attempt, question) uniqueness invariant: resubmitting a
// question overwrites the previous answer row in place.
func (r *AnswerPostgreSQL) Upsert(ctx context.Context, tx *gorm.DB, answer *models.Answer) error {
	db := r.getDB(tx)
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"payload", "draft", "score", "is_correct", "feedback", "answered_at", "updated_at",
			}),
		}).
		Create(answer).Error
	if err != nil {
		return fmt.Errorf("upsert answer for attempt %d question %d: %w", answer.AttemptID, answer.QuestionID, mapError(err))
	}
	return nil
}

func (r *AnswerPostgreSQL) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]models.Answer, error) {
	db := r.getDB(tx)
	var answers []models.Answer
	err := db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("question_id ASC").
		Find(&answers).Error
	if err != nil {
		return nil, mapError(err)
	}
	return answers, nil
}

func (r *AnswerPostgreSQL) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.Answer, error) {
	db := r.getDB(tx)
	var answer models.Answer
	err := db.WithContext(ctx).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&answer).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &answer, nil
}
