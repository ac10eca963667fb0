package observability

import (
	"database/sql"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"quizsystem/internal/auth"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type key struct {
	Method string
	Path   string
	Status int
}

type stat struct {
	Count     int64
	LatencyMS float64
}

// Collector aggregates request metrics and attempt lifecycle counters and
// writes one structured log line per request.
type Collector struct {
	db  *sql.DB
	log zerolog.Logger

	mu            sync.RWMutex
	requestStats  map[key]stat
	attemptEvents map[string]int64
	startedAt     time.Time
}

func NewCollector(db *sql.DB, log zerolog.Logger) *Collector {
	return &Collector{
		db:            db,
		log:           log,
		requestStats:  make(map[key]stat),
		attemptEvents: make(map[string]int64),
		startedAt:     time.Now(),
	}
}

// ObserveAttempt counts one attempt lifecycle event.
func (c *Collector) ObserveAttempt(event string) {
	c.mu.Lock()
	c.attemptEvents[event]++
	c.mu.Unlock()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		latencyMS := float64(time.Since(start).Microseconds()) / 1000.0
		path := routePath(r)

		c.mu.Lock()
		k := key{Method: r.Method, Path: path, Status: rec.status}
		s := c.requestStats[k]
		s.Count++
		s.LatencyMS += latencyMS
		c.requestStats[k] = s
		c.mu.Unlock()

		evt := c.log.Info()
		if rec.status >= http.StatusInternalServerError {
			evt = c.log.Error()
		} else if rec.status >= http.StatusBadRequest {
			evt = c.log.Warn()
		}
		if u, ok := auth.CurrentUser(r.Context()); ok {
			evt = evt.Str("user_id", u.ID)
		}
		if attemptID := extractAttemptID(r.URL.Path); attemptID != "" {
			evt = evt.Str("attempt_id", attemptID)
		}
		evt.
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", path).
			Int("status", rec.status).
			Float64("latency_ms", latencyMS).
			Str("remote_ip", strings.TrimSpace(r.RemoteAddr)).
			Msg("http request")
	})
}

func (c *Collector) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	statsCopy := make(map[key]stat, len(c.requestStats))
	for k, v := range c.requestStats {
		statsCopy[k] = v
	}
	eventsCopy := make(map[string]int64, len(c.attemptEvents))
	for k, v := range c.attemptEvents {
		eventsCopy[k] = v
	}
	startedAt := c.startedAt
	c.mu.RUnlock()

	keys := make([]key, 0, len(statsCopy))
	for k := range statsCopy {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Method != keys[j].Method {
			return keys[i].Method < keys[j].Method
		}
		if keys[i].Path != keys[j].Path {
			return keys[i].Path < keys[j].Path
		}
		return keys[i].Status < keys[j].Status
	})

	var sb strings.Builder
	sb.WriteString("# quizsystem observability metrics\n")
	sb.WriteString("# TYPE quiz_uptime_seconds gauge\n")
	sb.WriteString(fmt.Sprintf("quiz_uptime_seconds %.0f\n", time.Since(startedAt).Seconds()))

	sb.WriteString("# TYPE quiz_http_requests_total counter\n")
	sb.WriteString("# TYPE quiz_http_request_latency_ms_sum counter\n")
	sb.WriteString("# TYPE quiz_http_request_latency_ms_avg gauge\n")
	for _, k := range keys {
		s := statsCopy[k]
		labels := fmt.Sprintf("method=\"%s\",path=\"%s\",status=\"%d\"", k.Method, k.Path, k.Status)
		sb.WriteString(fmt.Sprintf("quiz_http_requests_total{%s} %d\n", labels, s.Count))
		sb.WriteString(fmt.Sprintf("quiz_http_request_latency_ms_sum{%s} %.3f\n", labels, s.LatencyMS))
		avg := 0.0
		if s.Count > 0 {
			avg = s.LatencyMS / float64(s.Count)
		}
		sb.WriteString(fmt.Sprintf("quiz_http_request_latency_ms_avg{%s} %.3f\n", labels, avg))
	}

	events := make([]string, 0, len(eventsCopy))
	for e := range eventsCopy {
		events = append(events, e)
	}
	sort.Strings(events)
	sb.WriteString("# TYPE quiz_attempt_events_total counter\n")
	for _, e := range events {
		sb.WriteString(fmt.Sprintf("quiz_attempt_events_total{event=\"%s\"} %d\n", e, eventsCopy[e]))
	}

	if c.db != nil {
		dbs := c.db.Stats()
		sb.WriteString("# TYPE quiz_db_open_connections gauge\n")
		sb.WriteString(fmt.Sprintf("quiz_db_open_connections %d\n", dbs.OpenConnections))
		sb.WriteString("# TYPE quiz_db_in_use_connections gauge\n")
		sb.WriteString(fmt.Sprintf("quiz_db_in_use_connections %d\n", dbs.InUse))
		sb.WriteString("# TYPE quiz_db_idle_connections gauge\n")
		sb.WriteString(fmt.Sprintf("quiz_db_idle_connections %d\n", dbs.Idle))
		sb.WriteString("# TYPE quiz_db_wait_count counter\n")
		sb.WriteString(fmt.Sprintf("quiz_db_wait_count %d\n", dbs.WaitCount))
		sb.WriteString("# TYPE quiz_db_wait_duration_ms counter\n")
		sb.WriteString(fmt.Sprintf("quiz_db_wait_duration_ms %.3f\n", float64(dbs.WaitDuration.Microseconds())/1000.0))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

// routePath prefers the matched chi pattern so metrics do not fan out per
// attempt id.
func routePath(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return normalizedPath(r.URL.Path)
}

func normalizedPath(path string) string {
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = "{id}"
			continue
		}
		if _, err := uuid.Parse(p); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func extractAttemptID(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "attempts" && parts[i+1] != "" {
			return parts[i+1]
		}
	}
	return ""
}
