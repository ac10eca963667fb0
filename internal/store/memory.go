package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"quizsystem/internal/quiz"

	"github.com/google/uuid"
)

// Memory keeps attempts in process. It enforces the same rules as SQL:
// one in-progress attempt per user and test, and forward-only status.
type Memory struct {
	mu       sync.RWMutex
	attempts map[string]*quiz.Attempt
	newID    func() string
}

func NewMemory() *Memory {
	return NewMemoryWithIDs(uuid.NewString)
}

func NewMemoryWithIDs(newID func() string) *Memory {
	if newID == nil {
		newID = uuid.NewString
	}
	return &Memory{attempts: make(map[string]*quiz.Attempt), newID: newID}
}

func (m *Memory) Save(ctx context.Context, a *quiz.Attempt) (*quiz.Attempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.ID == "" {
		if a.Status == quiz.StatusInProgress && m.hasOpenLocked(a.UserID, a.TestID) {
			return nil, quiz.ErrConflict
		}
		stored := a.Clone()
		stored.ID = m.newID()
		m.attempts[stored.ID] = stored
		return stored.Clone(), nil
	}

	current, ok := m.attempts[a.ID]
	if !ok {
		return nil, fmt.Errorf("save attempt %s: %w", a.ID, quiz.ErrAttemptNotFound)
	}
	if !current.Status.CanAdvanceTo(a.Status) {
		return nil, quiz.ErrStaleWrite
	}
	stored := a.Clone()
	m.attempts[a.ID] = stored
	return stored.Clone(), nil
}

func (m *Memory) hasOpenLocked(userID, testID string) bool {
	for _, a := range m.attempts {
		if a.UserID == userID && a.TestID == testID && a.Status == quiz.StatusInProgress {
			return true
		}
	}
	return false
}

func (m *Memory) FindByID(ctx context.Context, id string) (*quiz.Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, quiz.ErrAttemptNotFound
	}
	return a.Clone(), nil
}

func (m *Memory) FindByUserAndTest(ctx context.Context, userID, testID string) ([]quiz.Attempt, error) {
	return m.filter(func(a *quiz.Attempt) bool { return a.UserID == userID && a.TestID == testID }), nil
}

func (m *Memory) FindByUser(ctx context.Context, userID string) ([]quiz.Attempt, error) {
	return m.filter(func(a *quiz.Attempt) bool { return a.UserID == userID }), nil
}

func (m *Memory) FindByTest(ctx context.Context, testID string) ([]quiz.Attempt, error) {
	return m.filter(func(a *quiz.Attempt) bool { return a.TestID == testID }), nil
}

func (m *Memory) FindByStatus(ctx context.Context, status quiz.AttemptStatus) ([]quiz.Attempt, error) {
	return m.filter(func(a *quiz.Attempt) bool { return a.Status == status }), nil
}

// filter returns matches ordered by start time, then id.
func (m *Memory) filter(keep func(*quiz.Attempt) bool) []quiz.Attempt {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]quiz.Attempt, 0)
	for _, a := range m.attempts {
		if keep(a) {
			out = append(out, *a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
