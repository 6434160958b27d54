package services

import (
	"errors"
	"fmt"

	"github.com/eduflow-vn/quiz-engine/internal/grading"
	"github.com/eduflow-vn/quiz-engine/internal/repositories"
)

// Window and policy errors: the request was rejected up front and should
// not be retried automatically.
var (
	ErrAssessmentNotFound  = errors.New("assessment not found")
	ErrNotYetOpen          = errors.New("assessment is not yet open")
	ErrAlreadyClosed       = errors.New("assessment is already closed")
	ErrAttemptLimitReached = errors.New("maximum number of attempts reached")
)

// State errors: the client's view of the attempt is stale; refresh the
// attempt status instead of retrying blindly.
var (
	ErrAttemptNotFound        = errors.New("attempt not found")
	ErrAttemptExpired         = errors.New("attempt time limit has expired")
	ErrAttemptAlreadyFinished = errors.New("attempt is already finished")
	ErrQuestionNotInAttempt   = errors.New("question is not part of this attempt")
	ErrAttemptNotFinished     = errors.New("attempt is still in progress")
)

// ErrNoTerminalAttempts distinguishes "never finished" from a zero grade.
var ErrNoTerminalAttempts = grading.ErrNoTerminalAttempts

// ErrBusy surfaces a lost lock race; safe to retry.
var ErrBusy = repositories.ErrBusy

// PermissionError reports an operation on a resource the caller does not own.
type PermissionError struct {
	UserID     string
	ResourceID uint
	Resource   string
	Action     string
}

func NewPermissionError(userID string, resourceID uint, resource, action string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
	}
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s may not %s %s %d", e.UserID, e.Action, e.Resource, e.ResourceID)
}
