package auth

import (
	"net/http"
	"strings"

	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/httpx"
)

const (
	headerUserID    = "X-User-Id"
	headerUserEmail = "X-User-Email"
	headerUserRole  = "X-User-Role"
)

// Middleware lifts the identity headers stamped by the upstream proxy onto the
// request context. Requests without an identity pass through unauthenticated;
// individual route groups decide whether to require one.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid := strings.TrimSpace(r.Header.Get(headerUserID))
			if uid == "" {
				next.ServeHTTP(w, r)
				return
			}
			identity := &Identity{
				UID:   uid,
				Email: strings.TrimSpace(r.Header.Get(headerUserEmail)),
				Admin: strings.EqualFold(strings.TrimSpace(r.Header.Get(headerUserRole)), "admin"),
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireUser rejects requests that carry no identity.
func RequireUser() func(http.Handler) http.Handler {
	return requireFn(func(identity *Identity) bool { return true })
}

// RequireAdmin rejects requests whose identity lacks the admin role.
func RequireAdmin() func(http.Handler) http.Handler {
	return requireFn(func(identity *Identity) bool { return identity.Admin })
}

func requireFn(allowed func(*Identity) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
				return
			}
			if !allowed(identity) {
				httpx.WriteError(r.Context(), w, httpx.NewError("forbidden", "insufficient permissions", http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
