package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quizsystem/internal/auth"
)

func TestKeyedRateLimiterAllow(t *testing.T) {
	l := NewKeyedRateLimiter(2, 0)
	if !l.Allow("k") || !l.Allow("k") {
		t.Fatalf("first two requests should pass")
	}
	if l.Allow("k") {
		t.Fatalf("third request should be blocked")
	}
	if !l.Allow("other") {
		t.Fatalf("other keys have their own window")
	}
}

func TestKeyedRateLimiterWindowResets(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewKeyedRateLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	if !l.Allow("k") {
		t.Fatalf("first request should pass")
	}
	if l.Allow("k") {
		t.Fatalf("second request in window should be blocked")
	}
	now = now.Add(2 * time.Minute)
	l.Prune()
	if len(l.store) != 0 {
		t.Fatalf("expected expired bucket pruned, got %d", len(l.store))
	}
	if !l.Allow("k") {
		t.Fatalf("request in new window should pass")
	}
}

func TestRateLimitMiddlewareKeysByUser(t *testing.T) {
	l := NewKeyedRateLimiter(1, time.Minute)
	h := RateLimitMiddleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(userID string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tests/t1/attempts", nil)
		req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: userID, Role: auth.RoleStudent}))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	if got := send("u1"); got != http.StatusOK {
		t.Fatalf("expected 200, got %d", got)
	}
	if got := send("u1"); got != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", got)
	}
	if got := send("u2"); got != http.StatusOK {
		t.Fatalf("expected 200 for another user behind the same address, got %d", got)
	}
}

func TestCSRFMiddlewareEnforced(t *testing.T) {
	mw := CSRFMiddleware(true)
	next := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/attempts/a1/submit", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "abc"})
	req.Header.Set(csrfHeaderName, "abc")
	w := httptest.NewRecorder()
	next.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCSRFMiddlewareRejectsMissingToken(t *testing.T) {
	mw := CSRFMiddleware(true)
	next := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/attempts/a1/submit", nil)
	w := httptest.NewRecorder()
	next.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}
