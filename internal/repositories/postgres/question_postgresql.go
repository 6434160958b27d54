package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/eduflow-vn/quiz-engine/internal/cache"
	"github.com/eduflow-vn/quiz-engine/internal/models"
	"github.com/eduflow-vn/quiz-engine/internal/repositories"
)

type QuestionPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewQuestionPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.QuestionRepository {
	return &QuestionPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (q *QuestionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}

// GetByAssessment returns the pool in authored order, cached because the
// pool is read on every attempt start but edited rarely.
func (q *QuestionPostgreSQL) GetByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]models.Question, error) {
	db := q.getDB(tx)
	cacheKey := fmt.Sprintf("assessment:%d", assessmentID)

	var questions []models.Question
	err := q.cacheManager.Question.CacheOrExecute(ctx, cacheKey, &questions, cache.QuestionTTL, func() (interface{}, error) {
		var rows []models.Question
		if err := db.WithContext(ctx).
			Where("assessment_id = ?", assessmentID).
			Order("position ASC, id ASC").
			Find(&rows).Error; err != nil {
			return nil, mapError(err)
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return questions, nil
}

// GetByIDs loads the questions of an attempt snapshot. Order of the result
// is unspecified; callers reorder by the snapshot.
func (q *QuestionPostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]models.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db := q.getDB(tx)
	var questions []models.Question
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&questions).Error; err != nil {
		return nil, mapError(err)
	}
	return questions, nil
}
