package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	AppEnv   string
	HTTPAddr string

	DBDriver          string
	DBDSN             string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifeMins int

	CatalogSeedFile    string
	DefaultMaxAttempts int
	SubmitGrace        time.Duration
	ExpirySweep        time.Duration

	CSRFEnforced         bool
	StartRateLimitPerMin int
	CORSAllowedOrigins   []string

	LogLevel  string
	LogFormat string
}

// LoadConfig reads a .env file when one exists, then the environment.
// Variables already set in the environment win over the file.
func LoadConfig() Config {
	_ = godotenv.Load()
	return configFromEnv()
}

func configFromEnv() Config {
	appEnv := envOrDefault("APP_ENV", "development")
	logFormat := "console"
	if appEnv == "production" {
		logFormat = "json"
	}

	return Config{
		AppEnv:               appEnv,
		HTTPAddr:             envOrDefault("HTTP_ADDR", ":8080"),
		DBDriver:             strings.ToLower(envOrDefault("DB_DRIVER", "memory")),
		DBDSN:                os.Getenv("DB_DSN"),
		DBMaxOpenConns:       intOrDefault("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:       intOrDefault("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifeMins:    intOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		CatalogSeedFile:      os.Getenv("CATALOG_SEED_FILE"),
		DefaultMaxAttempts:   intOrDefault("DEFAULT_MAX_ATTEMPTS", 3),
		SubmitGrace:          time.Duration(nonNegativeOrDefault("SUBMIT_GRACE_SECONDS", 30)) * time.Second,
		ExpirySweep:          time.Duration(nonNegativeOrDefault("EXPIRY_SWEEP_SECONDS", 0)) * time.Second,
		CSRFEnforced:         boolOrDefault("CSRF_ENFORCED", false),
		StartRateLimitPerMin: intOrDefault("START_RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins:   listOrDefault("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		LogLevel:             strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(envOrDefault("LOG_FORMAT", logFormat)),
	}
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsToInt(v string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(v))
	return n
}

func intOrDefault(key string, fallback int) int {
	v := stringsToInt(os.Getenv(key))
	if v <= 0 {
		return fallback
	}
	return v
}

// nonNegativeOrDefault accepts an explicit 0, which switches a feature off.
func nonNegativeOrDefault(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func boolOrDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func listOrDefault(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	out := make([]string, 0)
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
