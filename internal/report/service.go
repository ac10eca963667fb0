package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"quizsystem/internal/quiz"

	"github.com/xuri/excelize/v2"
)

type attemptLister interface {
	FindByTest(ctx context.Context, testID string) ([]quiz.Attempt, error)
	FindByStatus(ctx context.Context, status quiz.AttemptStatus) ([]quiz.Attempt, error)
}

type testLookup interface {
	GetTest(ctx context.Context, id string) (*quiz.TestDefinition, error)
}

type Service struct {
	attempts attemptLister
	tests    testLookup
}

type TestSummary struct {
	TestID       string  `json:"test_id"`
	Title        string  `json:"title"`
	Attempts     int     `json:"attempts"`
	InProgress   int     `json:"in_progress"`
	Graded       int     `json:"graded"`
	Participants int     `json:"participants"`
	AverageScore float64 `json:"average_score"`
	HighestScore float64 `json:"highest_score"`
	LowestScore  float64 `json:"lowest_score"`
	PassRate     float64 `json:"pass_rate"`
}

type LeaderboardEntry struct {
	Rank           int     `json:"rank"`
	UserID         string  `json:"user_id"`
	AvgScore       float64 `json:"avg_score"`
	BestScore      float64 `json:"best_score"`
	TestsCompleted int     `json:"tests_completed"`
	TotalPoints    int     `json:"total_points"`
	AttemptsCount  int     `json:"attempts_count"`
}

func NewService(attempts attemptLister, tests testLookup) *Service {
	return &Service{attempts: attempts, tests: tests}
}

// SummaryByTest aggregates every attempt of one test. Score statistics
// cover graded attempts only.
func (s *Service) SummaryByTest(ctx context.Context, testID string) (*TestSummary, error) {
	def, err := s.tests.GetTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	items, err := s.attempts.FindByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list test attempts: %w", err)
	}

	out := &TestSummary{TestID: def.ID, Title: def.Title, Attempts: len(items)}
	users := make(map[string]struct{})
	var sum float64
	passed := 0
	for _, a := range items {
		users[a.UserID] = struct{}{}
		if a.Status == quiz.StatusInProgress {
			out.InProgress++
		}
		if a.Status != quiz.StatusGraded || a.Score == nil {
			continue
		}
		score := *a.Score
		if out.Graded == 0 || score > out.HighestScore {
			out.HighestScore = score
		}
		if out.Graded == 0 || score < out.LowestScore {
			out.LowestScore = score
		}
		out.Graded++
		sum += score
		if a.Passed != nil && *a.Passed {
			passed++
		}
	}
	out.Participants = len(users)
	if out.Graded > 0 {
		out.AverageScore = round1(sum / float64(out.Graded))
		out.PassRate = round1(float64(passed) / float64(out.Graded) * 100)
	}
	return out, nil
}

// Leaderboard ranks users over all graded attempts by total earned points,
// then average score. A limit of zero or less returns every user.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	graded, err := s.attempts.FindByStatus(ctx, quiz.StatusGraded)
	if err != nil {
		return nil, fmt.Errorf("list graded attempts: %w", err)
	}

	type acc struct {
		entry  LeaderboardEntry
		sum    float64
		scored int
		tests  map[string]struct{}
	}
	byUser := make(map[string]*acc)
	for _, a := range graded {
		u, ok := byUser[a.UserID]
		if !ok {
			u = &acc{entry: LeaderboardEntry{UserID: a.UserID}, tests: make(map[string]struct{})}
			byUser[a.UserID] = u
		}
		u.entry.AttemptsCount++
		u.tests[a.TestID] = struct{}{}
		if a.EarnedPoints != nil {
			u.entry.TotalPoints += *a.EarnedPoints
		}
		if a.Score != nil {
			if u.scored == 0 || *a.Score > u.entry.BestScore {
				u.entry.BestScore = *a.Score
			}
			u.sum += *a.Score
			u.scored++
		}
	}

	out := make([]LeaderboardEntry, 0, len(byUser))
	for _, u := range byUser {
		e := u.entry
		e.TestsCompleted = len(u.tests)
		if u.scored > 0 {
			e.AvgScore = round1(u.sum / float64(u.scored))
		}
		e.BestScore = round1(e.BestScore)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalPoints != out[j].TotalPoints {
			return out[i].TotalPoints > out[j].TotalPoints
		}
		if out[i].AvgScore != out[j].AvgScore {
			return out[i].AvgScore > out[j].AvgScore
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

// ExportTestAttemptsExcel writes one row per attempt of the test.
func (s *Service) ExportTestAttemptsExcel(ctx context.Context, testID string) ([]byte, error) {
	def, err := s.tests.GetTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	items, err := s.attempts.FindByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list test attempts: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	headers := []string{"attempt_id", "user_id", "status", "started_at", "submitted_at", "earned_points", "total_points", "score", "passed"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, a := range items {
		row := i + 2
		submittedAt := ""
		if a.SubmittedAt != nil {
			submittedAt = a.SubmittedAt.UTC().Format("2006-01-02 15:04:05")
		}
		values := []any{
			a.ID,
			a.UserID,
			string(a.Status),
			a.StartedAt.UTC().Format("2006-01-02 15:04:05"),
			submittedAt,
			intOrBlank(a.EarnedPoints),
			intOrBlank(a.TotalPoints),
			floatOrBlank(a.Score),
			boolOrBlank(a.Passed),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "I", 22)
	if def.Title != "" {
		_ = f.SetDocProps(&excelize.DocProperties{Title: def.Title})
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

// IsNotFound reports whether err means the requested test does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, quiz.ErrTestNotFound)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func intOrBlank(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}

func floatOrBlank(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func boolOrBlank(v *bool) any {
	if v == nil {
		return ""
	}
	return *v
}
