// Package scoring evaluates a single response against its question's answer
// key. The engine is pure: no storage, no clock, deterministic output for
// the same input, so it is safe to call in batch during regrading.
package scoring

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/eduflow-vn/quiz-engine/internal/models"
)

// DefaultSimilarityThreshold is the fuzzy-match cutoff for short answers
// when the key does not override it.
const DefaultSimilarityThreshold = 0.85

// Result is the outcome of scoring one response.
type Result struct {
	// Points earned, rounded half-up to 4 decimal places. May be negative
	// under negative marking; clamping happens at the attempt total.
	Points decimal.Decimal
	// IsCorrect is nil only for essays, which wait for manual grading.
	IsCorrect *bool
	Feedback  string
}

type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Score grades payload against the question's answer key. A missing or
// blank payload counts as unanswered (zero score). A payload that does not
// parse for the question type also scores zero rather than failing, so a
// batch regrade never aborts halfway. The returned error is reserved for a
// broken answer key or an unknown question type.
func (e *Engine) Score(question *models.Question, payload []byte) (Result, error) {
	key, err := question.DecodedKey()
	if err != nil {
		return Result{}, fmt.Errorf("decode answer key for question %d: %w", question.ID, err)
	}

	if len(payload) == 0 || string(payload) == "null" {
		payload = []byte("{}")
	}

	switch k := key.(type) {
	case models.SingleChoiceKey:
		return e.scoreSingleChoice(k, payload, question.Points), nil
	case models.MultiChoiceKey:
		return e.scoreMultiChoice(k, payload, question.Points), nil
	case models.TrueFalseKey:
		return e.scoreTrueFalse(k, payload, question.Points), nil
	case models.ShortAnswerKey:
		return e.scoreShortAnswer(k, payload, question.Points), nil
	case models.MatchingKey:
		return e.scoreMatching(k, payload, question.Points), nil
	case models.EssayKey:
		// Essays are graded manually elsewhere; they contribute zero until then.
		return Result{Points: decimal.Zero, Feedback: "Pending manual grading"}, nil
	default:
		return Result{}, fmt.Errorf("no scoring rule for question type %q", question.Type)
	}
}

func (e *Engine) scoreSingleChoice(key models.SingleChoiceKey, payload []byte, points decimal.Decimal) Result {
	var p models.SingleChoicePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return malformed()
	}
	if p.SelectedID == "" {
		return Result{Points: decimal.Zero, IsCorrect: boolPtr(false), Feedback: "No option selected"}
	}
	for _, id := range key.CorrectIDs {
		if p.SelectedID == id {
			return Result{Points: points.Round(4), IsCorrect: boolPtr(true), Feedback: "Correct"}
		}
	}
	if key.NegativeMarking {
		return Result{Points: points.Neg().Round(4), IsCorrect: boolPtr(false), Feedback: "Incorrect"}
	}
	return Result{Points: decimal.Zero, IsCorrect: boolPtr(false), Feedback: "Incorrect"}
}

func (e *Engine) scoreMultiChoice(key models.MultiChoiceKey, payload []byte, points decimal.Decimal) Result {
	var p models.MultiChoicePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return malformed()
	}
	if len(p.SelectedIDs) == 0 {
		return Result{Points: decimal.Zero, IsCorrect: boolPtr(false), Feedback: "No options selected"}
	}

	correct := make(map[string]bool, len(key.CorrectIDs))
	for _, id := range key.CorrectIDs {
		correct[id] = true
	}

	hits, wrong := 0, 0
	seen := make(map[string]bool, len(p.SelectedIDs))
	for _, id := range p.SelectedIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if correct[id] {
			hits++
		} else {
			wrong++
		}
	}

	if wrong == 0 && hits == len(correct) && len(correct) > 0 {
		return Result{Points: points.Round(4), IsCorrect: boolPtr(true), Feedback: "Correct"}
	}

	ratio := decimal.Zero
	if len(correct) > 0 {
		ratio = decimal.NewFromInt(int64(hits)).Div(decimal.NewFromInt(int64(len(correct))))
	}
	if key.PenalizeWrong && key.TotalOptions > 0 {
		penalty := decimal.NewFromInt(int64(wrong)).Div(decimal.NewFromInt(int64(key.TotalOptions)))
		ratio = ratio.Sub(penalty)
	}
	if ratio.IsNegative() {
		ratio = decimal.Zero
	}
	feedback := fmt.Sprintf("Partially correct: %d of %d", hits, len(correct))
	if ratio.IsZero() {
		feedback = "Incorrect"
	}
	return Result{Points: points.Mul(ratio).Round(4), IsCorrect: boolPtr(false), Feedback: feedback}
}

func (e *Engine) scoreTrueFalse(key models.TrueFalseKey, payload []byte, points decimal.Decimal) Result {
	var p models.TrueFalsePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return malformed()
	}
	if p.SelectedValue == nil {
		return Result{Points: decimal.Zero, IsCorrect: boolPtr(false), Feedback: "No value selected"}
	}
	if *p.SelectedValue == key.CorrectValue {
		return Result{Points: points.Round(4), IsCorrect: boolPtr(true), Feedback: "Correct"}
	}
	return Result{Points: decimal.Zero, IsCorrect: boolPtr(false), Feedback: "Incorrect"}
}

func (e *Engine) scoreShortAnswer(key models.ShortAnswerKey, payload []byte, points decimal.Decimal) Result {
	var p models.ShortAnswerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return malformed()
	}
	response := normalizeText(p.Text)
	if response == "" {
		return Result{Points: decimal.Zero, IsCorrect: boolPtr(false), Feedback: "No answer given"}
	}

	threshold := DefaultSimilarityThreshold
	if key.SimilarityThreshold != nil {
		threshold = *key.SimilarityThreshold
	}

	for _, accepted := range key.Accepted {
		match, fuzzy := matchesAccepted(response, accepted, threshold)
		if !match {
			continue
		}
		feedback := "Correct"
		if fuzzy {
			feedback = "Accepted as a close match"
		}
		return Result{Points: points.Round(4), IsCorrect: boolPtr(true), Feedback: feedback}
	}
	return Result{Points: decimal.Zero, IsCorrect: boolPtr(false), Feedback: "Incorrect"}
}

func (e *Engine) scoreMatching(key models.MatchingKey, payload []byte, points decimal.Decimal) Result {
	var p models.MatchingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return malformed()
	}
	if len(p.Pairs) == 0 {
		return Result{Points: decimal.Zero, IsCorrect: boolPtr(false), Feedback: "No pairs submitted"}
	}

	// A key without pairs has nothing to award credit against.
	total := len(key.Pairs)
	if total == 0 {
		return Result{Points: decimal.Zero, IsCorrect: boolPtr(false), Feedback: "Incorrect"}
	}

	submitted := make(map[string]string, len(p.Pairs))
	for _, pair := range p.Pairs {
		submitted[pair.LeftID] = pair.RightID
	}

	hits := 0
	for _, pair := range key.Pairs {
		if submitted[pair.LeftID] == pair.RightID {
			hits++
		}
	}

	if hits == total {
		return Result{Points: points.Round(4), IsCorrect: boolPtr(true), Feedback: "Correct"}
	}
	ratio := decimal.NewFromInt(int64(hits)).Div(decimal.NewFromInt(int64(total)))
	feedback := fmt.Sprintf("Matched %d of %d pairs", hits, total)
	if hits == 0 {
		feedback = "Incorrect"
	}
	return Result{Points: points.Mul(ratio).Round(4), IsCorrect: boolPtr(false), Feedback: feedback}
}

func malformed() Result {
	return Result{Points: decimal.Zero, IsCorrect: boolPtr(false), Feedback: "Response could not be read"}
}

func boolPtr(v bool) *bool { return &v }
