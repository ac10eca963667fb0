package attempt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"quizsystem/internal/grading"
	"quizsystem/internal/quiz"

	"github.com/rs/zerolog"
)

var (
	ErrTestNotFound            = quiz.ErrTestNotFound
	ErrAttemptNotFound         = quiz.ErrAttemptNotFound
	ErrMaxAttemptsReached      = errors.New("maximum number of attempts reached")
	ErrAttemptClosed           = errors.New("attempt is closed")
	ErrAlreadySubmitted        = errors.New("attempt already submitted")
	ErrTimeExpired             = errors.New("time has expired, your test has been auto-submitted")
	ErrConcurrentStartConflict = errors.New("another attempt was started concurrently")
	ErrQuestionNotInTest       = errors.New("question not in test")
	ErrInvalidInput            = errors.New("invalid input")
)

const DefaultSubmitGrace = 30 * time.Second

// Lifecycle events reported to the Observer.
const (
	EventStarted             = "started"
	EventResumed             = "resumed"
	EventAnswerSaved         = "answer_saved"
	EventSubmitted           = "submitted"
	EventLateSubmit          = "late_submit"
	EventAutoSubmitted       = "auto_submitted"
	EventMaxAttemptsRejected = "max_attempts_rejected"
	EventStartConflict       = "start_conflict"
)

// Catalog resolves test definitions. GetTest returns quiz.ErrTestNotFound
// for unknown ids.
type Catalog interface {
	GetTest(ctx context.Context, id string) (*quiz.TestDefinition, error)
}

// Store persists attempts. Save inserts when the id is empty and assigns
// one; otherwise it updates. Stores report quiz.ErrConflict for a second
// open attempt and quiz.ErrStaleWrite for a backwards status change.
type Store interface {
	Save(ctx context.Context, a *quiz.Attempt) (*quiz.Attempt, error)
	FindByID(ctx context.Context, id string) (*quiz.Attempt, error)
	FindByUserAndTest(ctx context.Context, userID, testID string) ([]quiz.Attempt, error)
	FindByUser(ctx context.Context, userID string) ([]quiz.Attempt, error)
	FindByTest(ctx context.Context, testID string) ([]quiz.Attempt, error)
	FindByStatus(ctx context.Context, status quiz.AttemptStatus) ([]quiz.Attempt, error)
}

type Observer interface {
	ObserveAttempt(event string)
}

type noopObserver struct{}

func (noopObserver) ObserveAttempt(string) {}

type Service struct {
	catalog            Catalog
	store              Store
	now                func() time.Time
	log                zerolog.Logger
	observer           Observer
	defaultMaxAttempts int
	submitGrace        time.Duration
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithDefaultMaxAttempts sets the limit for tests that leave it unset.
func WithDefaultMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.defaultMaxAttempts = n
		}
	}
}

// WithSubmitGrace sets how far past the deadline a submit may arrive
// before it is logged as late. Late submits are still accepted.
func WithSubmitGrace(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.submitGrace = d
		}
	}
}

func NewService(catalog Catalog, store Store, opts ...Option) *Service {
	s := &Service{
		catalog:            catalog,
		store:              store,
		now:                time.Now,
		log:                zerolog.Nop(),
		observer:           noopObserver{},
		defaultMaxAttempts: quiz.DefaultMaxAttempts,
		submitGrace:        DefaultSubmitGrace,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type AnswerInput struct {
	QuestionID      string   `json:"question_id"`
	SelectedChoices []string `json:"selected_choices"`
	TextAnswer      *string  `json:"text_answer"`
	NumericAnswer   *string  `json:"numeric_answer"`
}

type AttemptsInfo struct {
	TestID            string `json:"test_id"`
	UserID            string `json:"user_id"`
	CompletedAttempts int    `json:"completed_attempts"`
	MaxAttempts       int    `json:"max_attempts"`
	CanStart          bool   `json:"can_start"`
	InProgressID      string `json:"in_progress_attempt_id,omitempty"`
}

// StartAttempt returns the user's open attempt for the test, or creates one.
// An open attempt past its deadline is graded first and no longer counts
// as open.
func (s *Service) StartAttempt(ctx context.Context, testID, userID string) (*quiz.Attempt, error) {
	testID = strings.TrimSpace(testID)
	userID = strings.TrimSpace(userID)
	if testID == "" || userID == "" {
		return nil, fmt.Errorf("%w: test id and user id are required", ErrInvalidInput)
	}

	def, err := s.loadTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	maxAttempts := def.EffectiveMaxAttempts(s.defaultMaxAttempts)

	attempts, err := s.store.FindByUserAndTest(ctx, userID, testID)
	if err != nil {
		return nil, fmt.Errorf("load user attempts: %w", err)
	}
	completed := countCompleted(attempts)
	if completed >= maxAttempts {
		s.observer.ObserveAttempt(EventMaxAttemptsRejected)
		return nil, ErrMaxAttemptsReached
	}

	now := s.now()
	if open := firstInProgress(attempts); open != nil {
		if !def.IsTimedOut(open.StartedAt, now) {
			s.observer.ObserveAttempt(EventResumed)
			return open, nil
		}
		if _, err := s.autoSubmit(ctx, def, open, now); err != nil {
			return nil, err
		}
		completed++
		if completed >= maxAttempts {
			s.observer.ObserveAttempt(EventMaxAttemptsRejected)
			return nil, ErrMaxAttemptsReached
		}
	}

	created, err := s.store.Save(ctx, &quiz.Attempt{
		TestID:    testID,
		UserID:    userID,
		StartedAt: now,
		Status:    quiz.StatusInProgress,
		Answers:   []quiz.Answer{},
	})
	if err != nil {
		if errors.Is(err, quiz.ErrConflict) {
			s.observer.ObserveAttempt(EventStartConflict)
			s.log.Warn().Str("test_id", testID).Str("user_id", userID).Msg("concurrent attempt start rejected")
			return nil, ErrConcurrentStartConflict
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.observer.ObserveAttempt(EventStarted)
	s.log.Info().Str("attempt_id", created.ID).Str("test_id", testID).Str("user_id", userID).Msg("attempt started")
	return created, nil
}

// SaveAnswer records or replaces the answer to one question. When the
// attempt is past its deadline it is graded with the answers saved so far
// and ErrTimeExpired is returned; the new answer is dropped.
func (s *Service) SaveAnswer(ctx context.Context, attemptID string, in AnswerInput) (*quiz.Attempt, error) {
	in.QuestionID = strings.TrimSpace(in.QuestionID)
	if in.QuestionID == "" {
		return nil, fmt.Errorf("%w: question id is required", ErrInvalidInput)
	}

	a, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != quiz.StatusInProgress {
		return nil, ErrAttemptClosed
	}

	def, err := s.loadTest(ctx, a.TestID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if def.IsTimedOut(a.StartedAt, now) {
		if _, err := s.autoSubmit(ctx, def, a, now); err != nil {
			return nil, err
		}
		return nil, ErrTimeExpired
	}

	q, ok := def.Question(in.QuestionID)
	if !ok {
		return nil, ErrQuestionNotInTest
	}

	a.PutAnswer(quiz.Answer{
		QuestionID: q.ID,
		Response:   quiz.ResponseFor(q.Type, in.SelectedChoices, in.TextAnswer, in.NumericAnswer),
	})

	saved, err := s.store.Save(ctx, a)
	if err != nil {
		if errors.Is(err, quiz.ErrStaleWrite) {
			return nil, ErrAttemptClosed
		}
		return nil, fmt.Errorf("save answer: %w", err)
	}
	s.observer.ObserveAttempt(EventAnswerSaved)
	return saved, nil
}

// SubmitAttempt closes and grades an open attempt. Submits that arrive
// after deadline plus grace are accepted but logged as late.
func (s *Service) SubmitAttempt(ctx context.Context, attemptID string) (*quiz.Attempt, error) {
	a, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != quiz.StatusInProgress {
		return nil, ErrAlreadySubmitted
	}

	def, err := s.loadTest(ctx, a.TestID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if deadline, timed := def.Deadline(a.StartedAt); timed && now.After(deadline.Add(s.submitGrace)) {
		s.observer.ObserveAttempt(EventLateSubmit)
		s.log.Warn().
			Str("attempt_id", a.ID).
			Str("test_id", a.TestID).
			Str("user_id", a.UserID).
			Dur("late_by", now.Sub(deadline)).
			Msg("late submission accepted")
	}

	graded, err := s.gradeAndSave(ctx, def, a, now)
	if err != nil {
		if errors.Is(err, quiz.ErrStaleWrite) {
			return nil, ErrAlreadySubmitted
		}
		return nil, err
	}
	s.observer.ObserveAttempt(EventSubmitted)
	return graded, nil
}

// ExpireIfTimedOut grades an open attempt that is past its deadline. It
// reports whether this call closed the attempt.
func (s *Service) ExpireIfTimedOut(ctx context.Context, attemptID string) (bool, error) {
	a, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return false, err
	}
	if a.Status != quiz.StatusInProgress {
		return false, nil
	}
	def, err := s.loadTest(ctx, a.TestID)
	if err != nil {
		return false, err
	}
	now := s.now()
	if !def.IsTimedOut(a.StartedAt, now) {
		return false, nil
	}
	return s.autoSubmit(ctx, def, a, now)
}

func (s *Service) GetAttemptByID(ctx context.Context, attemptID string) (*quiz.Attempt, error) {
	return s.loadAttempt(ctx, attemptID)
}

func (s *Service) GetUserAttempts(ctx context.Context, userID string) ([]quiz.Attempt, error) {
	out, err := s.store.FindByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user attempts: %w", err)
	}
	return out, nil
}

func (s *Service) GetTestAttempts(ctx context.Context, testID string) ([]quiz.Attempt, error) {
	out, err := s.store.FindByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list test attempts: %w", err)
	}
	return out, nil
}

// InProgressAttempts lists every open attempt across users and tests.
func (s *Service) InProgressAttempts(ctx context.Context) ([]quiz.Attempt, error) {
	out, err := s.store.FindByStatus(ctx, quiz.StatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("list open attempts: %w", err)
	}
	return out, nil
}

func (s *Service) GetCompletedAttemptsCount(ctx context.Context, userID, testID string) (int, error) {
	attempts, err := s.store.FindByUserAndTest(ctx, userID, testID)
	if err != nil {
		return 0, fmt.Errorf("load user attempts: %w", err)
	}
	return countCompleted(attempts), nil
}

// AttemptsInfo summarizes whether the user may start the test again.
func (s *Service) AttemptsInfo(ctx context.Context, testID, userID string) (*AttemptsInfo, error) {
	def, err := s.loadTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.store.FindByUserAndTest(ctx, userID, testID)
	if err != nil {
		return nil, fmt.Errorf("load user attempts: %w", err)
	}
	info := &AttemptsInfo{
		TestID:            testID,
		UserID:            userID,
		CompletedAttempts: countCompleted(attempts),
		MaxAttempts:       def.EffectiveMaxAttempts(s.defaultMaxAttempts),
	}
	info.CanStart = info.CompletedAttempts < info.MaxAttempts
	if open := firstInProgress(attempts); open != nil {
		info.InProgressID = open.ID
	}
	return info, nil
}

// autoSubmit grades a timed-out attempt in place. A concurrent writer that
// already closed the attempt counts as success.
func (s *Service) autoSubmit(ctx context.Context, def *quiz.TestDefinition, a *quiz.Attempt, now time.Time) (bool, error) {
	graded, err := s.gradeAndSave(ctx, def, a, now)
	if err != nil {
		if errors.Is(err, quiz.ErrStaleWrite) {
			s.log.Debug().Str("attempt_id", a.ID).Msg("attempt already closed by another writer")
			return false, nil
		}
		return false, err
	}
	s.observer.ObserveAttempt(EventAutoSubmitted)
	s.log.Info().
		Str("attempt_id", graded.ID).
		Str("test_id", graded.TestID).
		Str("user_id", graded.UserID).
		Float64("score", *graded.Score).
		Msg("attempt auto-submitted after timeout")
	return true, nil
}

func (s *Service) gradeAndSave(ctx context.Context, def *quiz.TestDefinition, a *quiz.Attempt, now time.Time) (*quiz.Attempt, error) {
	a.SubmittedAt = &now
	a.Status = quiz.StatusSubmitted
	grading.Apply(a, grading.Grade(def, a.Answers))
	a.Status = quiz.StatusGraded

	saved, err := s.store.Save(ctx, a)
	if err != nil {
		if errors.Is(err, quiz.ErrStaleWrite) {
			return nil, err
		}
		return nil, fmt.Errorf("save graded attempt: %w", err)
	}
	return saved, nil
}

func (s *Service) loadTest(ctx context.Context, testID string) (*quiz.TestDefinition, error) {
	def, err := s.catalog.GetTest(ctx, testID)
	if err != nil {
		if errors.Is(err, quiz.ErrTestNotFound) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("load test: %w", err)
	}
	return def, nil
}

func (s *Service) loadAttempt(ctx context.Context, attemptID string) (*quiz.Attempt, error) {
	attemptID = strings.TrimSpace(attemptID)
	if attemptID == "" {
		return nil, ErrAttemptNotFound
	}
	a, err := s.store.FindByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, quiz.ErrAttemptNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	return a, nil
}

func countCompleted(attempts []quiz.Attempt) int {
	n := 0
	for _, a := range attempts {
		if a.Status.IsCompleted() {
			n++
		}
	}
	return n
}

// firstInProgress returns the earliest open attempt. Stores order by start
// time, so this is the canonical one if more than one slipped through.
func firstInProgress(attempts []quiz.Attempt) *quiz.Attempt {
	for i := range attempts {
		if attempts[i].Status == quiz.StatusInProgress {
			a := attempts[i]
			return &a
		}
	}
	return nil
}
