package attempt

import (
	"context"
	"errors"
	"testing"
	"time"

	"quizsystem/internal/quiz"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepOnceExpiresOnlyTimedOutAttempts(t *testing.T) {
	untimed := singleQuestionTest("untimed", nil)
	untimed.DurationMinutes = nil
	f := newFixture(t, singleQuestionTest("t1", nil), untimed)
	ctx := context.Background()

	old, err := f.svc.StartAttempt(ctx, "t1", "u1")
	require.NoError(t, err)
	open, err := f.svc.StartAttempt(ctx, "untimed", "u1")
	require.NoError(t, err)

	f.clock.Set(t0.Add(40 * time.Minute))
	fresh, err := f.svc.StartAttempt(ctx, "t1", "u2")
	require.NoError(t, err)

	sw := NewSweeper(f.svc, time.Minute, zerolog.Nop())
	expired, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := f.svc.GetAttemptByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, quiz.StatusGraded, got.Status)

	for _, id := range []string{open.ID, fresh.ID} {
		got, err := f.svc.GetAttemptByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, quiz.StatusInProgress, got.Status)
	}

	expired, err = sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)
}

type stubExpirer struct {
	open    []quiz.Attempt
	listErr error
	failIDs map[string]bool
	calls   []string
}

func (s *stubExpirer) InProgressAttempts(ctx context.Context) ([]quiz.Attempt, error) {
	return s.open, s.listErr
}

func (s *stubExpirer) ExpireIfTimedOut(ctx context.Context, attemptID string) (bool, error) {
	s.calls = append(s.calls, attemptID)
	if s.failIDs[attemptID] {
		return false, errors.New("write failed")
	}
	return true, nil
}

func TestSweepOnceSkipsFailures(t *testing.T) {
	stub := &stubExpirer{
		open:    []quiz.Attempt{{ID: "a1"}, {ID: "a2"}, {ID: "a3"}},
		failIDs: map[string]bool{"a2": true},
	}
	sw := NewSweeper(stub, time.Minute, zerolog.Nop())

	expired, err := sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, expired)
	assert.Equal(t, []string{"a1", "a2", "a3"}, stub.calls)
}

func TestSweepOnceListError(t *testing.T) {
	stub := &stubExpirer{listErr: errors.New("db down")}
	sw := NewSweeper(stub, time.Minute, zerolog.Nop())

	_, err := sw.SweepOnce(context.Background())
	assert.Error(t, err)
	assert.Empty(t, stub.calls)
}

func TestRunStopsWithContext(t *testing.T) {
	stub := &stubExpirer{}
	sw := NewSweeper(stub, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop after cancel")
	}
}

func TestRunDisabledReturnsImmediately(t *testing.T) {
	sw := NewSweeper(&stubExpirer{}, 0, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		sw.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("disabled sweeper should return immediately")
	}
}
