package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/eduflow-vn/quiz-engine/internal/models"
)

// ValidationError describes one failed field rule.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule,omitempty"`
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}

// Validator wraps go-playground validation with the domain rules below.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	validate := validator.New()

	// Tag names registered here are used in model and DTO struct tags.
	_ = validate.RegisterValidation("grading_method", func(fl validator.FieldLevel) bool {
		return models.GradingMethod(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		return models.QuestionType(fl.Field().String()).Valid()
	})

	validate.RegisterStructValidation(assessmentWindowValidation, models.Assessment{})

	return &Validator{validate: validate}
}

// Validate checks s against its struct tags; nil means valid.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	var out ValidationErrors
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Message: messageFor(fe),
			Value:   fe.Value(),
			Rule:    fe.Tag(),
		})
	}
	return out
}

// assessmentWindowValidation enforces opens_at < closes_at when both are set.
func assessmentWindowValidation(sl validator.StructLevel) {
	assessment := sl.Current().Interface().(models.Assessment)
	if assessment.OpensAt != nil && assessment.ClosesAt != nil &&
		!assessment.OpensAt.Before(*assessment.ClosesAt) {
		sl.ReportError(assessment.ClosesAt, "ClosesAt", "closes_at", "window_order", "")
	}
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "grading_method":
		return "must be one of first, last, highest, average"
	case "question_type":
		return "is not a known question type"
	case "window_order":
		return "must be after opens_at"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
