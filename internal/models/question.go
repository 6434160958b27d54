package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type QuestionType string

const (
	SingleChoice QuestionType = "single_choice"
	MultiChoice  QuestionType = "multi_choice"
	TrueFalse    QuestionType = "true_false"
	ShortAnswer  QuestionType = "short_answer"
	Matching     QuestionType = "matching"
	Essay        QuestionType = "essay"
)

func (t QuestionType) Valid() bool {
	switch t {
	case SingleChoice, MultiChoice, TrueFalse, ShortAnswer, Matching, Essay:
		return true
	}
	return false
}

type Question struct {
	ID           uint         `json:"id" gorm:"primaryKey"`
	AssessmentID uint         `json:"assessment_id" gorm:"not null;index"`
	Position     int          `json:"position" gorm:"not null;default:0"`
	Type         QuestionType `json:"type" gorm:"not null;size:30" validate:"required,question_type"`

	// Prompt is display content (text, media, options) and is opaque to the
	// scoring pipeline.
	Prompt datatypes.JSON `json:"prompt" gorm:"type:jsonb"`

	// AnswerKey holds the type-specific key schema below.
	AnswerKey datatypes.JSON  `json:"-" gorm:"type:jsonb"`
	Points    decimal.Decimal `json:"points" gorm:"type:decimal(8,4);not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Question) TableName() string {
	return "questions"
}

// ===== ANSWER KEY SCHEMAS =====

// AnswerKey is the closed set of per-type key schemas. The unexported marker
// keeps the set sealed so the scoring engine's type switch stays exhaustive.
type AnswerKey interface {
	isAnswerKey()
}

type SingleChoiceKey struct {
	CorrectIDs []string `json:"correct_ids" validate:"required,min=1"`
	// NegativeMarking scores a wrong pick at minus the full question points.
	NegativeMarking bool `json:"negative_marking"`
}

type MultiChoiceKey struct {
	CorrectIDs []string `json:"correct_ids" validate:"required,min=1"`
	// TotalOptions is the option count shown in the prompt, the denominator
	// of the wrong-pick penalty.
	TotalOptions  int  `json:"total_options" validate:"required,min=2"`
	PenalizeWrong bool `json:"penalize_wrong"`
}

type TrueFalseKey struct {
	CorrectValue bool `json:"correct_value"`
}

type AcceptedAnswer struct {
	Text string `json:"text" validate:"required"`
	// IsPattern marks Text as a regular expression matched against the whole
	// normalized response.
	IsPattern bool `json:"is_pattern"`
}

type ShortAnswerKey struct {
	Accepted []AcceptedAnswer `json:"accepted" validate:"required,min=1,dive"`
	// SimilarityThreshold overrides the default 0.85 fuzzy-match cutoff.
	SimilarityThreshold *float64 `json:"similarity_threshold" validate:"omitempty,gt=0,lte=1"`
}

type MatchPair struct {
	LeftID  string `json:"left_id" validate:"required"`
	RightID string `json:"right_id" validate:"required"`
}

type MatchingKey struct {
	Pairs []MatchPair `json:"pairs" validate:"required,min=1,dive"`
}

type EssayKey struct{}

func (SingleChoiceKey) isAnswerKey() {}
func (MultiChoiceKey) isAnswerKey()  {}
func (TrueFalseKey) isAnswerKey()    {}
func (ShortAnswerKey) isAnswerKey()  {}
func (MatchingKey) isAnswerKey()     {}
func (EssayKey) isAnswerKey()        {}

// DecodedKey parses the stored answer key into the schema for q.Type.
func (q *Question) DecodedKey() (AnswerKey, error) {
	raw := []byte(q.AnswerKey)
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	switch q.Type {
	case SingleChoice:
		var k SingleChoiceKey
		return k, json.Unmarshal(raw, &k)
	case MultiChoice:
		var k MultiChoiceKey
		return k, json.Unmarshal(raw, &k)
	case TrueFalse:
		var k TrueFalseKey
		return k, json.Unmarshal(raw, &k)
	case ShortAnswer:
		var k ShortAnswerKey
		return k, json.Unmarshal(raw, &k)
	case Matching:
		var k MatchingKey
		return k, json.Unmarshal(raw, &k)
	case Essay:
		return EssayKey{}, nil
	default:
		return nil, fmt.Errorf("unknown question type %q", q.Type)
	}
}

// ===== RESPONSE PAYLOAD SCHEMAS =====

type SingleChoicePayload struct {
	SelectedID string `json:"selected_id"`
}

type MultiChoicePayload struct {
	SelectedIDs []string `json:"selected_ids"`
}

type TrueFalsePayload struct {
	SelectedValue *bool `json:"selected_value"`
}

type ShortAnswerPayload struct {
	Text string `json:"text"`
}

type MatchingPayload struct {
	Pairs []MatchPair `json:"pairs"`
}

type EssayPayload struct {
	Text string `json:"text"`
}
