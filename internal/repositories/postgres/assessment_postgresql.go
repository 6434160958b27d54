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

type AssessmentPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewAssessmentPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AssessmentRepository {
	return &AssessmentPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AssessmentPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

func (a *AssessmentPostgreSQL) Create(ctx context.Context, tx *gorm.DB, assessment *models.Assessment) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Create(assessment).Error; err != nil {
		return fmt.Errorf("create assessment: %w", mapError(err))
	}
	return nil
}

// GetByID reads through the cache; attempt starts and status polls hit this
// on every request.
func (a *AssessmentPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Assessment, error) {
	db := a.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)

	var assessment models.Assessment
	err := a.cacheManager.Assessment.CacheOrExecute(ctx, cacheKey, &assessment, cache.AssessmentTTL, func() (interface{}, error) {
		var row models.Assessment
		if err := db.WithContext(ctx).First(&row, id).Error; err != nil {
			return nil, mapError(err)
		}
		return &row, nil
	})
	if err != nil {
		return nil, err
	}
	return &assessment, nil
}

func (a *AssessmentPostgreSQL) Update(ctx context.Context, tx *gorm.DB, assessment *models.Assessment) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Save(assessment).Error; err != nil {
		return fmt.Errorf("update assessment %d: %w", assessment.ID, mapError(err))
	}
	cache.InvalidateAssessment(ctx, a.cacheManager, assessment.ID)
	return nil
}
