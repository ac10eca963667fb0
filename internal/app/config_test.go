package app

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestConfigFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"APP_ENV", "DB_DRIVER", "SUBMIT_GRACE_SECONDS", "EXPIRY_SWEEP_SECONDS", "CORS_ALLOWED_ORIGINS", "LOG_FORMAT", "DEFAULT_MAX_ATTEMPTS"} {
		t.Setenv(k, "")
	}

	cfg := configFromEnv()
	if cfg.DBDriver != "memory" {
		t.Fatalf("expected memory driver, got %q", cfg.DBDriver)
	}
	if cfg.SubmitGrace != 30*time.Second {
		t.Fatalf("expected 30s grace, got %s", cfg.SubmitGrace)
	}
	if cfg.ExpirySweep != 0 {
		t.Fatalf("expected sweeper off by default, got %s", cfg.ExpirySweep)
	}
	if cfg.DefaultMaxAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", cfg.DefaultMaxAttempts)
	}
	if cfg.LogFormat != "console" {
		t.Fatalf("expected console logs in development, got %q", cfg.LogFormat)
	}
}

func TestConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("SUBMIT_GRACE_SECONDS", "0")
	t.Setenv("EXPIRY_SWEEP_SECONDS", "15")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("DEFAULT_MAX_ATTEMPTS", "-2")
	t.Setenv("LOG_FORMAT", "")

	cfg := configFromEnv()
	if cfg.DBDriver != "sqlite" {
		t.Fatalf("expected sqlite, got %q", cfg.DBDriver)
	}
	if cfg.SubmitGrace != 0 {
		t.Fatalf("explicit zero grace should be kept, got %s", cfg.SubmitGrace)
	}
	if cfg.ExpirySweep != 15*time.Second {
		t.Fatalf("expected 15s sweep, got %s", cfg.ExpirySweep)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.DefaultMaxAttempts != 3 {
		t.Fatalf("non-positive max attempts should fall back, got %d", cfg.DefaultMaxAttempts)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("expected json logs in production, got %q", cfg.LogFormat)
	}
}

func TestNewLoggerJSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.DebugLevel)

	var buf bytes.Buffer
	l := newLogger(Config{AppEnv: "test", LogLevel: "warn", LogFormat: "json"}, &buf)
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"message":"shown"`) || !strings.Contains(out, `"env":"test"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
}
