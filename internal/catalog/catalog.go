package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"quizsystem/internal/quiz"

	"gopkg.in/yaml.v3"
)

// Memory serves test definitions held in process.
type Memory struct {
	mu    sync.RWMutex
	tests map[string]quiz.TestDefinition
}

func NewMemory(defs ...quiz.TestDefinition) *Memory {
	m := &Memory{tests: make(map[string]quiz.TestDefinition, len(defs))}
	for _, d := range defs {
		m.tests[d.ID] = d
	}
	return m
}

func (m *Memory) GetTest(ctx context.Context, id string) (*quiz.TestDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.tests[id]
	if !ok {
		return nil, quiz.ErrTestNotFound
	}
	return &d, nil
}

func (m *Memory) PutTest(ctx context.Context, def quiz.TestDefinition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid test %q: %w", def.ID, err)
	}
	m.mu.Lock()
	m.tests[def.ID] = def
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListTests(ctx context.Context) ([]quiz.TestDefinition, error) {
	m.mu.RLock()
	out := make([]quiz.TestDefinition, 0, len(m.tests))
	for _, d := range m.tests {
		out = append(out, d)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SQL keeps each definition as a JSON document in the tests table.
type SQL struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQL(db *sql.DB) *SQL {
	return &SQL{db: db, now: time.Now}
}

func (s *SQL) GetTest(ctx context.Context, id string) (*quiz.TestDefinition, error) {
	var raw string
	if err := s.db.QueryRowContext(ctx, `
		SELECT definition_json
		FROM tests
		WHERE id = $1
	`, id).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, quiz.ErrTestNotFound
		}
		return nil, fmt.Errorf("load test: %w", err)
	}
	var def quiz.TestDefinition
	if err := json.Unmarshal([]byte(raw), &def); err != nil {
		return nil, fmt.Errorf("decode test %s: %w", id, err)
	}
	return &def, nil
}

func (s *SQL) PutTest(ctx context.Context, def quiz.TestDefinition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid test %q: %w", def.ID, err)
	}
	b, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode test: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tests (id, title, definition_json, updated_at_ms)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			definition_json = EXCLUDED.definition_json,
			updated_at_ms = EXCLUDED.updated_at_ms
	`, def.ID, def.Title, string(b), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert test: %w", err)
	}
	return nil
}

func (s *SQL) ListTests(ctx context.Context) ([]quiz.TestDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT definition_json FROM tests ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query tests: %w", err)
	}
	defer rows.Close()

	out := make([]quiz.TestDefinition, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		var def quiz.TestDefinition
		if err := json.Unmarshal([]byte(raw), &def); err != nil {
			return nil, fmt.Errorf("decode test: %w", err)
		}
		out = append(out, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tests: %w", err)
	}
	return out, nil
}

type seedFile struct {
	Tests []quiz.TestDefinition `yaml:"tests"`
}

// ParseYAML decodes a seed document of the form {tests: [...]} and
// validates every definition.
func ParseYAML(b []byte) ([]quiz.TestDefinition, error) {
	var f seedFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse catalog yaml: %w", err)
	}
	for i := range f.Tests {
		if err := f.Tests[i].Validate(); err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i+1, err)
		}
	}
	return f.Tests, nil
}

func LoadYAML(path string) ([]quiz.TestDefinition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return ParseYAML(b)
}

type writer interface {
	PutTest(ctx context.Context, def quiz.TestDefinition) error
}

// Seed writes defs into w and returns how many were stored.
func Seed(ctx context.Context, w writer, defs []quiz.TestDefinition) (int, error) {
	for i, d := range defs {
		if err := w.PutTest(ctx, d); err != nil {
			return i, err
		}
	}
	return len(defs), nil
}
