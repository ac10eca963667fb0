package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quizsystem/internal/quiz"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const pgUniqueViolation = "23505"

// SQL stores attempts in the attempts table created by db.Migrate. The
// same statements run on Postgres (pgx) and SQLite (modernc).
type SQL struct {
	db    *sql.DB
	newID func() string
}

type SQLOption func(*SQL)

// WithIDGenerator replaces uuid.NewString for new attempt ids.
func WithIDGenerator(fn func() string) SQLOption {
	return func(s *SQL) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func NewSQL(db *sql.DB, opts ...SQLOption) *SQL {
	s := &SQL{db: db, newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type queryable interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type attemptColumns struct {
	submittedAt  sql.NullInt64
	answersJSON  string
	totalPoints  sql.NullInt64
	earnedPoints sql.NullInt64
	score        sql.NullFloat64
	passed       sql.NullBool
}

func toColumns(a *quiz.Attempt) (attemptColumns, error) {
	answers := a.Answers
	if answers == nil {
		answers = []quiz.Answer{}
	}
	b, err := json.Marshal(answers)
	if err != nil {
		return attemptColumns{}, fmt.Errorf("encode answers: %w", err)
	}
	c := attemptColumns{answersJSON: string(b)}
	if a.SubmittedAt != nil {
		c.submittedAt = sql.NullInt64{Int64: a.SubmittedAt.UnixMilli(), Valid: true}
	}
	if a.TotalPoints != nil {
		c.totalPoints = sql.NullInt64{Int64: int64(*a.TotalPoints), Valid: true}
	}
	if a.EarnedPoints != nil {
		c.earnedPoints = sql.NullInt64{Int64: int64(*a.EarnedPoints), Valid: true}
	}
	if a.Score != nil {
		c.score = sql.NullFloat64{Float64: *a.Score, Valid: true}
	}
	if a.Passed != nil {
		c.passed = sql.NullBool{Bool: *a.Passed, Valid: true}
	}
	return c, nil
}

func (s *SQL) Save(ctx context.Context, a *quiz.Attempt) (*quiz.Attempt, error) {
	cols, err := toColumns(a)
	if err != nil {
		return nil, err
	}
	if a.ID == "" {
		return s.insert(ctx, a, cols)
	}
	return s.update(ctx, a, cols)
}

func (s *SQL) insert(ctx context.Context, a *quiz.Attempt, cols attemptColumns) (*quiz.Attempt, error) {
	id := s.newID()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts (
			id,
			test_id,
			user_id,
			status,
			started_at_ms,
			submitted_at_ms,
			answers_json,
			total_points,
			earned_points,
			score,
			passed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, id, a.TestID, a.UserID, string(a.Status), a.StartedAt.UnixMilli(), cols.submittedAt,
		cols.answersJSON, cols.totalPoints, cols.earnedPoints, cols.score, cols.passed)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, quiz.ErrConflict
		}
		return nil, fmt.Errorf("insert attempt: %w", err)
	}
	return s.FindByID(ctx, id)
}

func (s *SQL) update(ctx context.Context, a *quiz.Attempt, cols attemptColumns) (*quiz.Attempt, error) {
	prev := a.Status.Predecessors()
	if len(prev) == 0 {
		return nil, fmt.Errorf("update attempt %s: unknown status %q", a.ID, a.Status)
	}
	if len(prev) == 1 {
		prev = append(prev, prev[0])
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE attempts
		SET status = $1,
			submitted_at_ms = $2,
			answers_json = $3,
			total_points = $4,
			earned_points = $5,
			score = $6,
			passed = $7
		WHERE id = $8 AND status IN ($9, $10)
	`, string(a.Status), cols.submittedAt, cols.answersJSON, cols.totalPoints, cols.earnedPoints,
		cols.score, cols.passed, a.ID, string(prev[0]), string(prev[1]))
	if err != nil {
		return nil, fmt.Errorf("update attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update attempt rows: %w", err)
	}
	if n == 0 {
		if _, err := s.FindByID(ctx, a.ID); err != nil {
			return nil, err
		}
		return nil, quiz.ErrStaleWrite
	}
	return s.FindByID(ctx, a.ID)
}

const selectAttempt = `
	SELECT id, test_id, user_id, status, started_at_ms, submitted_at_ms,
		answers_json, total_points, earned_points, score, passed
	FROM attempts
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*quiz.Attempt, error) {
	var (
		a         quiz.Attempt
		status    string
		startedMS int64
		cols      attemptColumns
	)
	if err := row.Scan(&a.ID, &a.TestID, &a.UserID, &status, &startedMS, &cols.submittedAt,
		&cols.answersJSON, &cols.totalPoints, &cols.earnedPoints, &cols.score, &cols.passed); err != nil {
		return nil, err
	}
	a.Status = quiz.AttemptStatus(status)
	a.StartedAt = time.UnixMilli(startedMS).UTC()
	if cols.submittedAt.Valid {
		t := time.UnixMilli(cols.submittedAt.Int64).UTC()
		a.SubmittedAt = &t
	}
	if cols.answersJSON != "" {
		if err := json.Unmarshal([]byte(cols.answersJSON), &a.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of attempt %s: %w", a.ID, err)
		}
	}
	if a.Answers == nil {
		a.Answers = []quiz.Answer{}
	}
	if cols.totalPoints.Valid {
		v := int(cols.totalPoints.Int64)
		a.TotalPoints = &v
	}
	if cols.earnedPoints.Valid {
		v := int(cols.earnedPoints.Int64)
		a.EarnedPoints = &v
	}
	if cols.score.Valid {
		v := cols.score.Float64
		a.Score = &v
	}
	if cols.passed.Valid {
		v := cols.passed.Bool
		a.Passed = &v
	}
	return &a, nil
}

func (s *SQL) FindByID(ctx context.Context, id string) (*quiz.Attempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx, selectAttempt+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, quiz.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	return a, nil
}

func (s *SQL) FindByUserAndTest(ctx context.Context, userID, testID string) ([]quiz.Attempt, error) {
	return s.list(ctx, s.db, selectAttempt+` WHERE user_id = $1 AND test_id = $2 ORDER BY started_at_ms, id`, userID, testID)
}

func (s *SQL) FindByUser(ctx context.Context, userID string) ([]quiz.Attempt, error) {
	return s.list(ctx, s.db, selectAttempt+` WHERE user_id = $1 ORDER BY started_at_ms, id`, userID)
}

func (s *SQL) FindByTest(ctx context.Context, testID string) ([]quiz.Attempt, error) {
	return s.list(ctx, s.db, selectAttempt+` WHERE test_id = $1 ORDER BY started_at_ms, id`, testID)
}

func (s *SQL) FindByStatus(ctx context.Context, status quiz.AttemptStatus) ([]quiz.Attempt, error) {
	return s.list(ctx, s.db, selectAttempt+` WHERE status = $1 ORDER BY started_at_ms, id`, string(status))
}

func (s *SQL) list(ctx context.Context, q queryable, query string, args ...any) ([]quiz.Attempt, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	out := make([]quiz.Attempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}
