package auth

import (
	"context"
	"net/http"
	"strings"

	"quizsystem/internal/app/apiresp"
)

type contextKey string

const userContextKey contextKey = "auth_user"

// Identity headers set by the upstream gateway after it has authenticated
// the caller. This service trusts them as given.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

const (
	RoleAdmin   = "admin"
	RoleStudent = "student"
)

type User struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// TrustedHeaders puts the caller identified by the gateway headers into the
// request context. Requests without a user id are rejected.
func TrustedHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if id == "" {
			apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		role := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole)))
		if role == "" {
			role = RoleStudent
		}
		ctx := ContextWithUser(r.Context(), &User{ID: id, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := CurrentUser(r.Context())
			if !ok {
				apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}
			if _, exists := allowed[user.Role]; !exists {
				apiresp.WriteError(w, r, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func CurrentUser(ctx context.Context) (*User, bool) {
	v := ctx.Value(userContextKey)
	if v == nil {
		return nil, false
	}
	u, ok := v.(*User)
	return u, ok
}

// ContextWithUser injects an authenticated user into context.
// Useful for tests and internal handlers.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
