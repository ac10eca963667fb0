package app

import (
	"net/http"
	"time"

	"quizsystem/internal/app/observability"
	"quizsystem/internal/attempt"
	"quizsystem/internal/auth"
	"quizsystem/internal/report"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handlers struct {
	Attempts *attempt.Handler
	Reports  *report.Handler
	Metrics  *observability.Collector
}

func NewRouter(cfg Config, h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if h.Metrics != nil {
		r.Use(h.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", auth.HeaderUserID, auth.HeaderUserRole, csrfHeaderName},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	startLimiter := NewKeyedRateLimiter(cfg.StartRateLimitPerMin, time.Minute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	if h.Metrics != nil {
		r.Get("/metrics", h.Metrics.MetricsHandler)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(auth.TrustedHeaders)
		api.Use(CSRFMiddleware(cfg.CSRFEnforced))

		api.With(RateLimitMiddleware(startLimiter)).Post("/tests/{testID}/attempts", h.Attempts.Start)
		api.Get("/tests/{testID}/attempts-info", h.Attempts.AttemptsInfo)
		api.Get("/attempts/{id}", h.Attempts.GetAttempt)
		api.Put("/attempts/{id}/answers/{questionID}", h.Attempts.SaveAnswer)
		api.Post("/attempts/{id}/submit", h.Attempts.Submit)
		api.Get("/me/attempts", h.Attempts.MyAttempts)
		api.Get("/leaderboard", h.Reports.Leaderboard)

		api.Group(func(admin chi.Router) {
			admin.Use(auth.RequireRoles(auth.RoleAdmin))
			admin.Get("/tests/{testID}/attempts", h.Attempts.ListTestAttempts)
			admin.Get("/admin/reports/tests/{testID}", h.Reports.Summary)
			admin.Get("/admin/reports/tests/{testID}/export", h.Reports.Export)
		})
	})

	return r
}
