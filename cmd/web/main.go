package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quizsystem/internal/app"
	"quizsystem/internal/app/observability"
	"quizsystem/internal/attempt"
	"quizsystem/internal/catalog"
	"quizsystem/internal/db"
	"quizsystem/internal/quiz"
	"quizsystem/internal/report"
	"quizsystem/internal/store"

	"github.com/rs/zerolog"
)

type testCatalog interface {
	attempt.Catalog
	PutTest(ctx context.Context, def quiz.TestDefinition) error
}

func main() {
	cfg := app.LoadConfig()
	logger := app.NewLogger(cfg)

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}

func run(cfg app.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbConn, tests, attempts, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	if dbConn != nil {
		defer dbConn.Close()
	}

	if cfg.CatalogSeedFile != "" {
		defs, err := catalog.LoadYAML(cfg.CatalogSeedFile)
		if err != nil {
			return fmt.Errorf("load catalog seed: %w", err)
		}
		n, err := catalog.Seed(ctx, tests, defs)
		if err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
		logger.Info().Int("tests", n).Str("file", cfg.CatalogSeedFile).Msg("catalog seeded")
	}

	metrics := observability.NewCollector(dbConn, logger.With().Str("component", "http").Logger())
	svc := attempt.NewService(tests, attempts,
		attempt.WithLogger(logger.With().Str("component", "attempt").Logger()),
		attempt.WithObserver(metrics),
		attempt.WithDefaultMaxAttempts(cfg.DefaultMaxAttempts),
		attempt.WithSubmitGrace(cfg.SubmitGrace),
	)

	sweeper := attempt.NewSweeper(svc, cfg.ExpirySweep, logger.With().Str("component", "sweeper").Logger())
	go sweeper.Run(ctx)

	router := app.NewRouter(cfg, app.Handlers{
		Attempts: attempt.NewHandler(svc),
		Reports:  report.NewHandler(report.NewService(attempts, tests)),
		Metrics:  metrics,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("db_driver", cfg.DBDriver).Msg("quizsystem web listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStorage returns the catalog and attempt store for the configured
// driver. The *sql.DB is nil for the memory driver.
func openStorage(ctx context.Context, cfg app.Config) (*sql.DB, testCatalog, attempt.Store, error) {
	var driver db.Driver
	switch cfg.DBDriver {
	case "memory", "":
		return nil, catalog.NewMemory(), store.NewMemory(), nil
	case "postgres", "pgx":
		driver = db.DriverPostgres
	case "sqlite":
		driver = db.DriverSQLite
	default:
		return nil, nil, nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	dbCfg := db.DefaultConfig(driver, cfg.DBDSN)
	dbCfg.MaxOpenConns = cfg.DBMaxOpenConns
	dbCfg.MaxIdleConns = cfg.DBMaxIdleConns
	dbCfg.ConnMaxLifetime = time.Duration(cfg.DBConnMaxLifeMins) * time.Minute

	conn, err := db.Open(ctx, dbCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	return conn, catalog.NewSQL(conn), store.NewSQL(conn), nil
}
