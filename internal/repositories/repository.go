package repositories

import "context"

// Repository aggregates the per-domain repositories behind one handle so
// services receive a single dependency.
type Repository interface {
	Assessment() AssessmentRepository
	Question() QuestionRepository
	Attempt() AttemptRepository
	Answer() AnswerRepository

	// WithTransaction runs fn with a Repository bound to one transaction.
	// Returning an error rolls back.
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}
