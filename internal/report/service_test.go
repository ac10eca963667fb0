package report

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quizsystem/internal/catalog"
	"quizsystem/internal/quiz"
	"quizsystem/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var base = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func graded(testID, userID string, earned, total int, score float64, passed bool, offset time.Duration) *quiz.Attempt {
	submitted := base.Add(offset + 10*time.Minute)
	return &quiz.Attempt{
		TestID:       testID,
		UserID:       userID,
		StartedAt:    base.Add(offset),
		SubmittedAt:  &submitted,
		Status:       quiz.StatusGraded,
		Answers:      []quiz.Answer{},
		TotalPoints:  &total,
		EarnedPoints: &earned,
		Score:        &score,
		Passed:       &passed,
	}
}

func seededService(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	rows := []*quiz.Attempt{
		graded("t1", "alice", 8, 10, 80, true, 0),
		graded("t1", "alice", 10, 10, 100, true, time.Hour),
		graded("t1", "bob", 4, 10, 40, false, 2*time.Hour),
		graded("t2", "bob", 14, 20, 70, true, 3*time.Hour),
		graded("t2", "carol", 5, 20, 25, false, 4*time.Hour),
		{TestID: "t1", UserID: "dave", StartedAt: base.Add(5 * time.Hour), Status: quiz.StatusInProgress, Answers: []quiz.Answer{}},
	}
	for _, a := range rows {
		_, err := st.Save(ctx, a)
		require.NoError(t, err)
	}
	tests := catalog.NewMemory(
		quiz.TestDefinition{ID: "t1", Title: "Go basics"},
		quiz.TestDefinition{ID: "t2", Title: "Concurrency"},
	)
	return NewService(st, tests)
}

func TestSummaryByTest(t *testing.T) {
	svc := seededService(t)

	got, err := svc.SummaryByTest(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, "Go basics", got.Title)
	assert.Equal(t, 4, got.Attempts)
	assert.Equal(t, 1, got.InProgress)
	assert.Equal(t, 3, got.Graded)
	assert.Equal(t, 3, got.Participants)
	assert.Equal(t, 73.3, got.AverageScore)
	assert.Equal(t, 100.0, got.HighestScore)
	assert.Equal(t, 40.0, got.LowestScore)
	assert.Equal(t, 66.7, got.PassRate)
}

func TestSummaryByTestWithoutAttempts(t *testing.T) {
	svc := NewService(store.NewMemory(), catalog.NewMemory(quiz.TestDefinition{ID: "t1"}))

	got, err := svc.SummaryByTest(context.Background(), "t1")
	require.NoError(t, err)
	assert.Zero(t, got.Graded)
	assert.Zero(t, got.AverageScore)
	assert.Zero(t, got.PassRate)

	_, err = svc.SummaryByTest(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
}

func TestLeaderboardOrdering(t *testing.T) {
	svc := seededService(t)

	got, err := svc.Leaderboard(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, LeaderboardEntry{Rank: 1, UserID: "alice", AvgScore: 90, BestScore: 100, TestsCompleted: 1, TotalPoints: 18, AttemptsCount: 2}, got[0])
	assert.Equal(t, LeaderboardEntry{Rank: 2, UserID: "bob", AvgScore: 55, BestScore: 70, TestsCompleted: 2, TotalPoints: 18, AttemptsCount: 2}, got[1])
	assert.Equal(t, "carol", got[2].UserID)
	assert.Equal(t, 3, got[2].Rank)
}

func TestLeaderboardLimit(t *testing.T) {
	svc := seededService(t)

	got, err := svc.Leaderboard(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].UserID)
}

func TestLeaderboardRoundsScores(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	for i, score := range []float64{33.33, 66.67, 50.04} {
		_, err := st.Save(ctx, graded("t1", "u1", 1, 3, score, false, time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}
	svc := NewService(st, catalog.NewMemory())

	got, err := svc.Leaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 50.0, got[0].AvgScore)
	assert.Equal(t, 66.7, got[0].BestScore)
}

func TestExportTestAttemptsExcel(t *testing.T) {
	svc := seededService(t)

	data, err := svc.ExportTestAttemptsExcel(context.Background(), "t1")
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "attempt_id", rows[0][0])
	assert.Equal(t, "alice", rows[1][1])
	assert.Equal(t, "GRADED", rows[1][2])
	assert.Equal(t, "80", rows[1][7])
	assert.Equal(t, "IN_PROGRESS", rows[4][2])
}

func TestHandlerSummaryNotFound(t *testing.T) {
	h := NewHandler(NewService(store.NewMemory(), catalog.NewMemory()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/reports/tests/missing", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("testID", "missing")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()

	h.Summary(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandlerExportHeaders(t *testing.T) {
	h := NewHandler(seededService(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/reports/tests/t1/export", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("testID", "t1")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()

	h.Export(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != xlsxContentType {
		t.Fatalf("unexpected content type %q", got)
	}
	if w.Body.Len() == 0 {
		t.Fatalf("expected workbook bytes")
	}
}

func TestHandlerLeaderboardRejectsBadLimit(t *testing.T) {
	h := NewHandler(seededService(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/leaderboard?limit=abc", nil)
	w := httptest.NewRecorder()

	h.Leaderboard(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
