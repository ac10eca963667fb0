package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

type Config struct {
	Driver          Driver
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func DefaultConfig(driver Driver, dsn string) Config {
	return Config{
		Driver:          driver,
		DSN:             dsn,
		MaxOpenConns:    25,
		MaxIdleConns:    25,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	return Open(ctx, DefaultConfig(DriverPostgres, dsn))
}

func OpenSQLite(ctx context.Context, dsn string) (*sql.DB, error) {
	return Open(ctx, DefaultConfig(DriverSQLite, dsn))
}

// Open connects with the pgx or modernc driver, applies pool limits and
// pings before returning.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	var driverName string
	switch cfg.Driver {
	case DriverPostgres:
		driverName = "pgx"
	case DriverSQLite:
		driverName = "sqlite"
		if cfg.DSN == "" {
			cfg.DSN = "file:quizsystem.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		}
		// every connection to an in-memory database sees its own copy
		if isMemoryDSN(cfg.DSN) {
			cfg.MaxOpenConns = 1
			cfg.MaxIdleConns = 1
			cfg.ConnMaxLifetime = -1
		}
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = cfg.MaxOpenConns
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return db, nil
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
