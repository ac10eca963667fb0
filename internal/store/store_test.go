package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"quizsystem/internal/db"
	"quizsystem/internal/quiz"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type attemptStore interface {
	Save(ctx context.Context, a *quiz.Attempt) (*quiz.Attempt, error)
	FindByID(ctx context.Context, id string) (*quiz.Attempt, error)
	FindByUserAndTest(ctx context.Context, userID, testID string) ([]quiz.Attempt, error)
	FindByUser(ctx context.Context, userID string) ([]quiz.Attempt, error)
	FindByTest(ctx context.Context, testID string) ([]quiz.Attempt, error)
	FindByStatus(ctx context.Context, status quiz.AttemptStatus) ([]quiz.Attempt, error)
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("att-%03d", n)
	}
}

func newSQLiteStore(t *testing.T) *SQL {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.Migrate(ctx, conn))
	return NewSQL(conn, WithIDGenerator(sequentialIDs()))
}

func forEachStore(t *testing.T, fn func(t *testing.T, s attemptStore)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryWithIDs(sequentialIDs())) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func openAttempt(userID, testID string, startedAt time.Time) *quiz.Attempt {
	return &quiz.Attempt{
		TestID:    testID,
		UserID:    userID,
		StartedAt: startedAt,
		Status:    quiz.StatusInProgress,
		Answers:   []quiz.Answer{},
	}
}

func TestSaveAssignsIDAndRoundTrips(t *testing.T) {
	forEachStore(t, func(t *testing.T, s attemptStore) {
		ctx := context.Background()

		created, err := s.Save(ctx, openAttempt("u1", "t1", t0))
		require.NoError(t, err)
		require.Equal(t, "att-001", created.ID)
		assert.Nil(t, created.Score)
		assert.Nil(t, created.TotalPoints)

		created.PutAnswer(quiz.Answer{QuestionID: "q1", Response: quiz.ChoiceResponse{Selected: []string{"c1"}}})
		created.PutAnswer(quiz.Answer{QuestionID: "q2", Response: quiz.NumericResponse{Value: "6"}})
		_, err = s.Save(ctx, created)
		require.NoError(t, err)

		got, err := s.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, quiz.StatusInProgress, got.Status)
		assert.True(t, got.StartedAt.Equal(t0))
		require.Len(t, got.Answers, 2)
		assert.Equal(t, quiz.ChoiceResponse{Selected: []string{"c1"}}, got.Answers[0].Response)
		assert.Equal(t, quiz.NumericResponse{Value: "6"}, got.Answers[1].Response)
	})
}

func TestSaveGradedFields(t *testing.T) {
	forEachStore(t, func(t *testing.T, s attemptStore) {
		ctx := context.Background()
		a, err := s.Save(ctx, openAttempt("u1", "t1", t0))
		require.NoError(t, err)

		submitted := t0.Add(6 * time.Minute)
		total, earned, score, passed := 10, 10, 100.0, true
		correct, points := true, 10
		a.Status = quiz.StatusGraded
		a.SubmittedAt = &submitted
		a.TotalPoints, a.EarnedPoints, a.Score, a.Passed = &total, &earned, &score, &passed
		a.Answers = []quiz.Answer{{QuestionID: "q1", Response: quiz.ChoiceResponse{Selected: []string{"c1"}}, IsCorrect: &correct, PointsAwarded: &points}}
		_, err = s.Save(ctx, a)
		require.NoError(t, err)

		got, err := s.FindByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, quiz.StatusGraded, got.Status)
		require.NotNil(t, got.SubmittedAt)
		assert.True(t, got.SubmittedAt.Equal(submitted))
		assert.Equal(t, 100.0, *got.Score)
		assert.Equal(t, 10, *got.EarnedPoints)
		assert.Equal(t, 10, *got.TotalPoints)
		assert.True(t, *got.Passed)
		require.NotNil(t, got.Answers[0].IsCorrect)
		assert.True(t, *got.Answers[0].IsCorrect)
	})
}

func TestOneOpenAttemptPerUserAndTest(t *testing.T) {
	forEachStore(t, func(t *testing.T, s attemptStore) {
		ctx := context.Background()
		_, err := s.Save(ctx, openAttempt("u1", "t1", t0))
		require.NoError(t, err)

		_, err = s.Save(ctx, openAttempt("u1", "t1", t0.Add(time.Second)))
		assert.ErrorIs(t, err, quiz.ErrConflict)

		// other user and other test are unaffected
		_, err = s.Save(ctx, openAttempt("u2", "t1", t0))
		require.NoError(t, err)
		_, err = s.Save(ctx, openAttempt("u1", "t2", t0))
		require.NoError(t, err)
	})
}

func TestClosedAttemptFreesSlot(t *testing.T) {
	forEachStore(t, func(t *testing.T, s attemptStore) {
		ctx := context.Background()
		a, err := s.Save(ctx, openAttempt("u1", "t1", t0))
		require.NoError(t, err)

		a.Status = quiz.StatusGraded
		_, err = s.Save(ctx, a)
		require.NoError(t, err)

		_, err = s.Save(ctx, openAttempt("u1", "t1", t0.Add(time.Hour)))
		require.NoError(t, err)
	})
}

func TestStatusNeverMovesBackwards(t *testing.T) {
	forEachStore(t, func(t *testing.T, s attemptStore) {
		ctx := context.Background()
		a, err := s.Save(ctx, openAttempt("u1", "t1", t0))
		require.NoError(t, err)

		a.Status = quiz.StatusGraded
		graded, err := s.Save(ctx, a)
		require.NoError(t, err)

		stale := graded.Clone()
		stale.Status = quiz.StatusInProgress
		stale.PutAnswer(quiz.Answer{QuestionID: "q1", Response: quiz.ChoiceResponse{Selected: []string{"c2"}}})
		_, err = s.Save(ctx, stale)
		assert.ErrorIs(t, err, quiz.ErrStaleWrite)

		regrade := graded.Clone()
		score := 1.0
		regrade.Score = &score
		_, err = s.Save(ctx, regrade)
		assert.ErrorIs(t, err, quiz.ErrStaleWrite)

		got, err := s.FindByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, quiz.StatusGraded, got.Status)
		assert.Empty(t, got.Answers)
	})
}

func TestSaveUnknownIDIsNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s attemptStore) {
		a := openAttempt("u1", "t1", t0)
		a.ID = "missing"
		_, err := s.Save(context.Background(), a)
		assert.ErrorIs(t, err, quiz.ErrAttemptNotFound)

		_, err = s.FindByID(context.Background(), "missing")
		assert.ErrorIs(t, err, quiz.ErrAttemptNotFound)
	})
}

func TestFinders(t *testing.T) {
	forEachStore(t, func(t *testing.T, s attemptStore) {
		ctx := context.Background()
		first, err := s.Save(ctx, openAttempt("u1", "t1", t0))
		require.NoError(t, err)
		first.Status = quiz.StatusGraded
		_, err = s.Save(ctx, first)
		require.NoError(t, err)

		_, err = s.Save(ctx, openAttempt("u1", "t1", t0.Add(time.Hour)))
		require.NoError(t, err)
		_, err = s.Save(ctx, openAttempt("u2", "t1", t0.Add(2*time.Hour)))
		require.NoError(t, err)
		_, err = s.Save(ctx, openAttempt("u1", "t2", t0.Add(3*time.Hour)))
		require.NoError(t, err)

		pair, err := s.FindByUserAndTest(ctx, "u1", "t1")
		require.NoError(t, err)
		require.Len(t, pair, 2)
		assert.Equal(t, first.ID, pair[0].ID)

		byUser, err := s.FindByUser(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, byUser, 3)

		byTest, err := s.FindByTest(ctx, "t1")
		require.NoError(t, err)
		assert.Len(t, byTest, 3)

		open, err := s.FindByStatus(ctx, quiz.StatusInProgress)
		require.NoError(t, err)
		assert.Len(t, open, 3)

		none, err := s.FindByUser(ctx, "nobody")
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})
}

func TestMemoryReturnsCopies(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	a, err := s.Save(ctx, openAttempt("u1", "t1", t0))
	require.NoError(t, err)

	a.Answers = append(a.Answers, quiz.Answer{QuestionID: "q1"})
	got, err := s.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Answers)
}
