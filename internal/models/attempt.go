package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptOverdue    AttemptStatus = "overdue"
)

// IsTerminal reports whether the status admits no further transitions.
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptCompleted || s == AttemptOverdue
}

type FinalizeCause string

const (
	FinalizeSubmitted FinalizeCause = "submitted"
	FinalizeDeadline  FinalizeCause = "deadline"
)

type Attempt struct {
	ID           uint          `json:"id" gorm:"primaryKey"`
	AssessmentID uint          `json:"assessment_id" gorm:"not null;index:idx_attempts_assessment_user"`
	UserID       string        `json:"user_id" gorm:"not null;index:idx_attempts_assessment_user;size:255"`
	Status       AttemptStatus `json:"status" gorm:"default:in_progress;index"`

	// QuestionOrder is the snapshot taken at creation. It never changes for
	// the life of the attempt, even if the question pool does.
	QuestionOrder datatypes.JSONSlice[uint] `json:"question_order" gorm:"type:jsonb"`
	CurrentIndex  int                       `json:"current_index" gorm:"default:0"`

	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	SubmittedAt *time.Time `json:"submitted_at"`

	// Scoring, populated on finalize.
	Score    *decimal.Decimal `json:"score" gorm:"type:decimal(10,2)"`
	MaxScore decimal.Decimal  `json:"max_score" gorm:"type:decimal(10,2)"`
	Passed   *bool            `json:"passed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Assessment Assessment `json:"-" gorm:"foreignKey:AssessmentID"`
	Answers    []Answer   `json:"answers,omitempty" gorm:"foreignKey:AttemptID"`
}

func (Attempt) TableName() string {
	return "attempts"
}

// ContainsQuestion reports whether id is part of the attempt snapshot and
// returns its position within it.
func (a *Attempt) ContainsQuestion(id uint) (int, bool) {
	for i, qid := range a.QuestionOrder {
		if qid == id {
			return i, true
		}
	}
	return 0, false
}

type Answer struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	AttemptID  uint `json:"attempt_id" gorm:"not null;uniqueIndex:idx_answers_attempt_question"`
	QuestionID uint `json:"question_id" gorm:"not null;uniqueIndex:idx_answers_attempt_question"`

	// Payload is the raw response, shaped per question type.
	Payload datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	// Draft answers have not been scored yet.
	Draft bool `json:"draft" gorm:"default:true"`

	Score     decimal.Decimal `json:"score" gorm:"type:decimal(8,4);default:0"`
	IsCorrect *bool           `json:"is_correct"` // nil for essay and unanswered
	Feedback  *string         `json:"feedback" gorm:"type:text"`

	AnsweredAt *time.Time `json:"answered_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// Relations
	Attempt  Attempt  `json:"-" gorm:"foreignKey:AttemptID"`
	Question Question `json:"-" gorm:"foreignKey:QuestionID"`
}

func (Answer) TableName() string {
	return "answers"
}
