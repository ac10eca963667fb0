package db

import (
	"context"
	"database/sql"
	"fmt"
)

// The statements are valid on both Postgres and SQLite. Timestamps are unix
// milliseconds so both engines compare them the same way.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tests (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		definition_json TEXT NOT NULL,
		updated_at_ms BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		test_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at_ms BIGINT NOT NULL,
		submitted_at_ms BIGINT,
		answers_json TEXT NOT NULL,
		total_points INTEGER,
		earned_points INTEGER,
		score DOUBLE PRECISION,
		passed BOOLEAN
	)`,
	`CREATE INDEX IF NOT EXISTS attempts_user_test_idx ON attempts (user_id, test_id)`,
	`CREATE INDEX IF NOT EXISTS attempts_test_idx ON attempts (test_id)`,
	`CREATE INDEX IF NOT EXISTS attempts_status_idx ON attempts (status)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS attempts_one_open_idx
		ON attempts (user_id, test_id)
		WHERE status = 'IN_PROGRESS'`,
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
