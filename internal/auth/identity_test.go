package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTrustedHeadersRequiresUserID(t *testing.T) {
	called := false
	h := TrustedHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/attempts", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if called {
		t.Fatalf("next handler should not run without identity")
	}
}

func TestTrustedHeadersDefaultsToStudent(t *testing.T) {
	var got *User
	h := TrustedHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = CurrentUser(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/attempts", nil)
	req.Header.Set(HeaderUserID, " u-1 ")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil || got.ID != "u-1" || got.Role != RoleStudent {
		t.Fatalf("unexpected user in context: %+v", got)
	}
}

func TestRequireRoles(t *testing.T) {
	h := RequireRoles(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name string
		user *User
		want int
	}{
		{name: "anonymous", user: nil, want: http.StatusUnauthorized},
		{name: "student", user: &User{ID: "u1", Role: RoleStudent}, want: http.StatusForbidden},
		{name: "admin", user: &User{ID: "a1", Role: RoleAdmin}, want: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/reports/tests/t1", nil)
			if tc.user != nil {
				req = req.WithContext(ContextWithUser(req.Context(), tc.user))
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}
