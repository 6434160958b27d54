package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeDelete deletes cache keys, logging instead of failing: a stale cache
// entry is preferable to failing the write that invalidated it.
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// SafeInvalidatePattern invalidates a key pattern with logging.
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// InvalidateAttemptStatus drops the cached status snapshot for one attempt,
// called whenever the attempt row changes.
func InvalidateAttemptStatus(ctx context.Context, cm *CacheManager, attemptID uint) {
	SafeDelete(ctx, cm.Status, fmt.Sprintf("attempt:%d", attemptID))
}

// InvalidateAssessment drops the cached assessment and its question list,
// called after an assessment or its pool is edited.
func InvalidateAssessment(ctx context.Context, cm *CacheManager, assessmentID uint) {
	SafeDelete(ctx, cm.Assessment, fmt.Sprintf("id:%d", assessmentID))
	SafeDelete(ctx, cm.Question, fmt.Sprintf("assessment:%d", assessmentID))
}
