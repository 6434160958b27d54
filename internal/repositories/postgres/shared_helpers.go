package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/eduflow-vn/quiz-engine/internal/repositories"
)

const (
	pgLockNotAvailable  = "55P03"
	pgUniqueViolation   = "23505"
	activeAttemptsIndex = "idx_attempts_one_in_progress"
)

// mapError translates driver-level failures into the repository error
// vocabulary so services never inspect Postgres error codes.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repositories.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable:
			return repositories.ErrBusy
		case pgUniqueViolation:
			if pgErr.ConstraintName == activeAttemptsIndex {
				return repositories.ErrDuplicateActiveAttempt
			}
		}
	}
	return err
}

// Migrate creates the schema plus the partial unique index gorm tags cannot
// express: at most one in-progress attempt per (assessment, user).
func Migrate(db *gorm.DB, dst ...interface{}) error {
	if err := db.AutoMigrate(dst...); err != nil {
		return err
	}
	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ` + activeAttemptsIndex +
			` ON attempts (assessment_id, user_id) WHERE status = 'in_progress'`,
	).Error
}
