package quiz

import (
	"errors"
	"fmt"
	"time"
)

// DefaultMaxAttempts applies when a test does not set its own limit.
const DefaultMaxAttempts = 3

var (
	ErrTestNotFound    = errors.New("test not found")
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrConflict is returned by attempt stores when inserting a second
	// in-progress attempt for the same user and test.
	ErrConflict = errors.New("in-progress attempt already exists")
	// ErrStaleWrite is returned by attempt stores when an update would move
	// an attempt's status backwards.
	ErrStaleWrite = errors.New("attempt status changed concurrently")
)

type QuestionType string

const (
	QuestionSingle    QuestionType = "SINGLE"
	QuestionMultiple  QuestionType = "MULTIPLE"
	QuestionTrueFalse QuestionType = "TRUEFALSE"
	QuestionOpen      QuestionType = "OPEN"
	QuestionNumeric   QuestionType = "NUMERIC"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionSingle, QuestionMultiple, QuestionTrueFalse, QuestionOpen, QuestionNumeric:
		return true
	}
	return false
}

// ChoiceBased reports whether answers to this type are selections of choice ids.
func (t QuestionType) ChoiceBased() bool {
	return t == QuestionSingle || t == QuestionMultiple || t == QuestionTrueFalse
}

type Choice struct {
	ID        string `json:"id" yaml:"id"`
	Text      string `json:"text" yaml:"text"`
	IsCorrect bool   `json:"is_correct" yaml:"is_correct"`
}

type Question struct {
	ID            string       `json:"id" yaml:"id"`
	Type          QuestionType `json:"type" yaml:"type"`
	Text          string       `json:"text,omitempty" yaml:"text"`
	Points        int          `json:"points" yaml:"points"`
	Choices       []Choice     `json:"choices,omitempty" yaml:"choices"`
	CorrectAnswer string       `json:"correct_answer,omitempty" yaml:"correct_answer"`
}

// CorrectChoiceIDs returns the ids of the choices flagged correct, in order.
func (q Question) CorrectChoiceIDs() []string {
	out := make([]string, 0, len(q.Choices))
	for _, c := range q.Choices {
		if c.IsCorrect {
			out = append(out, c.ID)
		}
	}
	return out
}

// TestDefinition is owned by the test catalog. Attempts only read it.
type TestDefinition struct {
	ID              string     `json:"id" yaml:"id"`
	Title           string     `json:"title" yaml:"title"`
	DurationMinutes *int       `json:"duration_minutes,omitempty" yaml:"duration_minutes"`
	PassingScore    float64    `json:"passing_score" yaml:"passing_score"`
	MaxAttempts     *int       `json:"max_attempts,omitempty" yaml:"max_attempts"`
	Questions       []Question `json:"questions" yaml:"questions"`
}

// EffectiveMaxAttempts returns the test's own limit, or fallback when the
// test leaves it unset. A non-positive fallback means DefaultMaxAttempts.
func (t *TestDefinition) EffectiveMaxAttempts(fallback int) int {
	if t.MaxAttempts != nil && *t.MaxAttempts > 0 {
		return *t.MaxAttempts
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultMaxAttempts
}

// Deadline returns startedAt plus the test duration. ok is false for
// untimed tests.
func (t *TestDefinition) Deadline(startedAt time.Time) (deadline time.Time, ok bool) {
	if t.DurationMinutes == nil || *t.DurationMinutes <= 0 {
		return time.Time{}, false
	}
	return startedAt.Add(time.Duration(*t.DurationMinutes) * time.Minute), true
}

// IsTimedOut reports whether an attempt started at startedAt is past its
// deadline at now. The deadline instant itself is still in time.
func (t *TestDefinition) IsTimedOut(startedAt, now time.Time) bool {
	deadline, ok := t.Deadline(startedAt)
	return ok && now.After(deadline)
}

func (t *TestDefinition) Question(id string) (Question, bool) {
	for _, q := range t.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Validate checks the structural rules a catalog must uphold before a
// definition is served: unique question and choice ids, known types and
// non-negative point values.
func (t *TestDefinition) Validate() error {
	if t.ID == "" {
		return errors.New("test id is required")
	}
	seenQ := make(map[string]struct{}, len(t.Questions))
	seenC := make(map[string]struct{})
	for _, q := range t.Questions {
		if q.ID == "" {
			return errors.New("question id is required")
		}
		if _, dup := seenQ[q.ID]; dup {
			return fmt.Errorf("duplicate question id %q", q.ID)
		}
		seenQ[q.ID] = struct{}{}
		if !q.Type.Valid() {
			return fmt.Errorf("question %q has unknown type %q", q.ID, q.Type)
		}
		if q.Points < 0 {
			return fmt.Errorf("question %q has negative points", q.ID)
		}
		for _, c := range q.Choices {
			if c.ID == "" {
				return fmt.Errorf("question %q has a choice without id", q.ID)
			}
			if _, dup := seenC[c.ID]; dup {
				return fmt.Errorf("duplicate choice id %q", c.ID)
			}
			seenC[c.ID] = struct{}{}
		}
	}
	return nil
}

func IntPtr(v int) *int { return &v }
