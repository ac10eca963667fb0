package quiz

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "IN_PROGRESS"
	StatusSubmitted  AttemptStatus = "SUBMITTED"
	StatusGraded     AttemptStatus = "GRADED"
)

// IsCompleted reports whether the status counts toward the attempt limit.
func (s AttemptStatus) IsCompleted() bool {
	return s == StatusSubmitted || s == StatusGraded
}

// Predecessors lists the statuses an attempt may hold before being written
// with status s. Writing IN_PROGRESS or SUBMITTED is only legal on an open
// attempt; GRADED may also follow SUBMITTED. Nothing follows GRADED.
func (s AttemptStatus) Predecessors() []AttemptStatus {
	switch s {
	case StatusInProgress, StatusSubmitted:
		return []AttemptStatus{StatusInProgress}
	case StatusGraded:
		return []AttemptStatus{StatusInProgress, StatusSubmitted}
	default:
		return nil
	}
}

// CanAdvanceTo reports whether an attempt in status s may be stored as next.
func (s AttemptStatus) CanAdvanceTo(next AttemptStatus) bool {
	for _, p := range next.Predecessors() {
		if p == s {
			return true
		}
	}
	return false
}

type ResponseKind string

const (
	KindChoice  ResponseKind = "choice"
	KindText    ResponseKind = "text"
	KindNumeric ResponseKind = "numeric"
)

// Response is what a user answered. Exactly one variant exists per family
// of question types, so a numeric answer cannot carry selected choices.
type Response interface {
	Kind() ResponseKind
}

// ChoiceResponse answers SINGLE, MULTIPLE and TRUEFALSE questions.
type ChoiceResponse struct {
	Selected []string
}

// TextResponse answers OPEN questions. It is kept for review only.
type TextResponse struct {
	Text string
}

// NumericResponse answers NUMERIC questions. Value is compared as a string.
type NumericResponse struct {
	Value string
}

func (ChoiceResponse) Kind() ResponseKind  { return KindChoice }
func (TextResponse) Kind() ResponseKind    { return KindText }
func (NumericResponse) Kind() ResponseKind { return KindNumeric }

// ResponseFor builds the variant matching qType from loosely typed input.
// Fields that do not belong to the question's type are dropped.
func ResponseFor(qType QuestionType, selected []string, text, numeric *string) Response {
	switch qType {
	case QuestionOpen:
		if text == nil {
			return TextResponse{}
		}
		return TextResponse{Text: *text}
	case QuestionNumeric:
		if numeric == nil {
			return NumericResponse{}
		}
		return NumericResponse{Value: *numeric}
	default:
		return ChoiceResponse{Selected: cleanIDs(selected)}
	}
}

func cleanIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

type Answer struct {
	QuestionID    string
	Response      Response
	IsCorrect     *bool
	PointsAwarded *int
}

type answerJSON struct {
	QuestionID      string       `json:"question_id"`
	Kind            ResponseKind `json:"kind"`
	SelectedChoices []string     `json:"selected_choices,omitempty"`
	TextAnswer      *string      `json:"text_answer,omitempty"`
	NumericAnswer   *string      `json:"numeric_answer,omitempty"`
	IsCorrect       *bool        `json:"is_correct"`
	PointsAwarded   *int         `json:"points_awarded"`
}

func (a Answer) MarshalJSON() ([]byte, error) {
	out := answerJSON{
		QuestionID:    a.QuestionID,
		IsCorrect:     a.IsCorrect,
		PointsAwarded: a.PointsAwarded,
	}
	switch r := a.Response.(type) {
	case ChoiceResponse:
		out.Kind = KindChoice
		out.SelectedChoices = r.Selected
	case TextResponse:
		out.Kind = KindText
		text := r.Text
		out.TextAnswer = &text
	case NumericResponse:
		out.Kind = KindNumeric
		value := r.Value
		out.NumericAnswer = &value
	case nil:
	default:
		return nil, fmt.Errorf("unsupported response type %T", a.Response)
	}
	return json.Marshal(out)
}

func (a *Answer) UnmarshalJSON(b []byte) error {
	var in answerJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	a.QuestionID = in.QuestionID
	a.IsCorrect = in.IsCorrect
	a.PointsAwarded = in.PointsAwarded
	switch in.Kind {
	case KindChoice:
		a.Response = ChoiceResponse{Selected: in.SelectedChoices}
	case KindText:
		r := TextResponse{}
		if in.TextAnswer != nil {
			r.Text = *in.TextAnswer
		}
		a.Response = r
	case KindNumeric:
		r := NumericResponse{}
		if in.NumericAnswer != nil {
			r.Value = *in.NumericAnswer
		}
		a.Response = r
	case "":
		a.Response = nil
	default:
		return fmt.Errorf("unknown answer kind %q", in.Kind)
	}
	return nil
}

type Attempt struct {
	ID           string        `json:"id"`
	TestID       string        `json:"test_id"`
	UserID       string        `json:"user_id"`
	StartedAt    time.Time     `json:"started_at"`
	SubmittedAt  *time.Time    `json:"submitted_at,omitempty"`
	Status       AttemptStatus `json:"status"`
	Answers      []Answer      `json:"answers"`
	TotalPoints  *int          `json:"total_points,omitempty"`
	EarnedPoints *int          `json:"earned_points,omitempty"`
	Score        *float64      `json:"score,omitempty"`
	Passed       *bool         `json:"passed,omitempty"`
}

func (a *Attempt) Answer(questionID string) (Answer, bool) {
	for _, ans := range a.Answers {
		if ans.QuestionID == questionID {
			return ans, true
		}
	}
	return Answer{}, false
}

// PutAnswer replaces any answer for the same question and appends ans.
func (a *Attempt) PutAnswer(ans Answer) {
	kept := a.Answers[:0]
	for _, existing := range a.Answers {
		if existing.QuestionID != ans.QuestionID {
			kept = append(kept, existing)
		}
	}
	a.Answers = append(kept, ans)
}

// Clone returns a deep copy.
func (a *Attempt) Clone() *Attempt {
	if a == nil {
		return nil
	}
	out := *a
	if a.SubmittedAt != nil {
		t := *a.SubmittedAt
		out.SubmittedAt = &t
	}
	out.TotalPoints = cloneInt(a.TotalPoints)
	out.EarnedPoints = cloneInt(a.EarnedPoints)
	if a.Score != nil {
		v := *a.Score
		out.Score = &v
	}
	out.Passed = cloneBool(a.Passed)
	out.Answers = make([]Answer, len(a.Answers))
	for i, ans := range a.Answers {
		out.Answers[i] = Answer{
			QuestionID:    ans.QuestionID,
			Response:      cloneResponse(ans.Response),
			IsCorrect:     cloneBool(ans.IsCorrect),
			PointsAwarded: cloneInt(ans.PointsAwarded),
		}
	}
	return &out
}

func cloneResponse(r Response) Response {
	if c, ok := r.(ChoiceResponse); ok {
		return ChoiceResponse{Selected: append([]string(nil), c.Selected...)}
	}
	return r
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
