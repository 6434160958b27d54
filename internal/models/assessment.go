package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type GradingMethod string

const (
	GradingFirst   GradingMethod = "first"
	GradingLast    GradingMethod = "last"
	GradingHighest GradingMethod = "highest"
	GradingAverage GradingMethod = "average"
)

func (m GradingMethod) Valid() bool {
	switch m {
	case GradingFirst, GradingLast, GradingHighest, GradingAverage:
		return true
	}
	return false
}

type Assessment struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Title       string  `json:"title" gorm:"not null;size:255;index" validate:"required,min=1,max=255"`
	Description *string `json:"description" gorm:"type:text" validate:"omitempty,max=2000"`

	// Timing window. Nil TimeLimitSeconds means untimed, nil OpensAt means
	// always open, nil ClosesAt means never closes.
	TimeLimitSeconds *int       `json:"time_limit_seconds" validate:"omitempty,min=60"`
	OpensAt          *time.Time `json:"opens_at"`
	ClosesAt         *time.Time `json:"closes_at"`

	// Attempt policy. Nil MaxAttempts means unlimited.
	MaxAttempts   *int          `json:"max_attempts" validate:"omitempty,min=1"`
	GradingMethod GradingMethod `json:"grading_method" gorm:"default:highest;size:20" validate:"required,grading_method"`

	// Snapshot selection. 0 = every question in the pool.
	QuestionsPerAttempt int  `json:"questions_per_attempt" gorm:"default:0" validate:"min=0"`
	ShuffleQuestions    bool `json:"shuffle_questions" gorm:"default:true"`

	// Nil PassScore falls back to half of the attempt max score.
	PassScore          *decimal.Decimal `json:"pass_score" gorm:"type:decimal(8,2)"`
	ShowCorrectAnswers bool             `json:"show_correct_answers" gorm:"default:true"`
	AllowNegativeTotal bool             `json:"allow_negative_total" gorm:"default:false"`

	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Questions []Question `json:"questions,omitempty" gorm:"foreignKey:AssessmentID"`
	Attempts  []Attempt  `json:"attempts,omitempty" gorm:"foreignKey:AssessmentID"`
}

func (Assessment) TableName() string {
	return "assessments"
}

// IsOpenAt reports whether attempts may be started at the given instant.
func (a *Assessment) IsOpenAt(now time.Time) (open bool, reason WindowState) {
	if a.OpensAt != nil && now.Before(*a.OpensAt) {
		return false, WindowNotYetOpen
	}
	if a.ClosesAt != nil && now.After(*a.ClosesAt) {
		return false, WindowClosed
	}
	return true, WindowOpen
}

// PassThreshold resolves the configured pass score against the attempt max.
func (a *Assessment) PassThreshold(maxScore decimal.Decimal) decimal.Decimal {
	if a.PassScore != nil {
		return *a.PassScore
	}
	return maxScore.Div(decimal.NewFromInt(2)).Round(2)
}

type WindowState string

const (
	WindowOpen       WindowState = "open"
	WindowNotYetOpen WindowState = "not_yet_open"
	WindowClosed     WindowState = "closed"
)
