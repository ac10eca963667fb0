package grading

import (
	"strings"

	"quizsystem/internal/quiz"
)

const (
	ReasonCorrect      = "correct"
	ReasonWrong        = "wrong"
	ReasonUnanswered   = "unanswered"
	ReasonManualReview = "manual_review"
	ReasonMissingKey   = "missing_answer_key"
	ReasonTypeMismatch = "type_mismatch"
)

// QuestionScore is the outcome for a single question. IsCorrect stays nil
// when the question was not answered.
type QuestionScore struct {
	Answered  bool   `json:"answered"`
	IsCorrect *bool  `json:"is_correct,omitempty"`
	Points    int    `json:"points"`
	Reason    string `json:"reason"`
}

// ScoreQuestion grades one response. A nil response means the question was
// not answered. Correct answers earn the full point value, anything else 0.
func ScoreQuestion(q quiz.Question, resp quiz.Response) QuestionScore {
	if resp == nil {
		return QuestionScore{Reason: ReasonUnanswered}
	}
	points := q.Points
	if points < 0 {
		points = 0
	}

	switch q.Type {
	case quiz.QuestionSingle, quiz.QuestionTrueFalse:
		r, ok := resp.(quiz.ChoiceResponse)
		if !ok {
			return wrong(ReasonTypeMismatch)
		}
		return scoreFirstChoice(q, r, points)
	case quiz.QuestionMultiple:
		r, ok := resp.(quiz.ChoiceResponse)
		if !ok {
			return wrong(ReasonTypeMismatch)
		}
		if equalSet(r.Selected, q.CorrectChoiceIDs()) {
			return correct(points)
		}
		return wrong(ReasonWrong)
	case quiz.QuestionNumeric:
		r, ok := resp.(quiz.NumericResponse)
		if !ok {
			return wrong(ReasonTypeMismatch)
		}
		key := strings.TrimSpace(q.CorrectAnswer)
		if key == "" {
			return wrong(ReasonMissingKey)
		}
		if strings.TrimSpace(r.Value) == key {
			return correct(points)
		}
		return wrong(ReasonWrong)
	case quiz.QuestionOpen:
		return wrong(ReasonManualReview)
	default:
		return wrong(ReasonTypeMismatch)
	}
}

func scoreFirstChoice(q quiz.Question, r quiz.ChoiceResponse, points int) QuestionScore {
	if len(r.Selected) == 0 {
		return wrong(ReasonWrong)
	}
	first := r.Selected[0]
	for _, c := range q.Choices {
		if c.ID == first && c.IsCorrect {
			return correct(points)
		}
	}
	return wrong(ReasonWrong)
}

func correct(points int) QuestionScore {
	return QuestionScore{Answered: true, IsCorrect: boolPtr(true), Points: points, Reason: ReasonCorrect}
}

func wrong(reason string) QuestionScore {
	return QuestionScore{Answered: true, IsCorrect: boolPtr(false), Points: 0, Reason: reason}
}

// equalSet reports whether selected holds exactly the members of want,
// with no repeats and nothing extra.
func equalSet(selected, want []string) bool {
	if len(selected) != len(want) {
		return false
	}
	seen := make(map[string]struct{}, len(selected))
	for _, s := range selected {
		if _, dup := seen[s]; dup {
			return false
		}
		seen[s] = struct{}{}
	}
	for _, w := range want {
		if _, ok := seen[w]; !ok {
			return false
		}
	}
	return true
}

func boolPtr(v bool) *bool {
	return &v
}
