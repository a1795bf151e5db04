package httptransport

import (
	"context"
	"net/http"
)

// Identity is the verified caller handed to the core by the upstream
// authentication service. The core trusts it and applies no further policy
// beyond ownership checks.
type Identity struct {
	UserID string
	Role   string
}

const RoleAdmin = "admin"

type identityKey struct{}

// IdentityFromContext returns the request identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// RequireIdentity reads the identity headers injected by the authentication
// collaborator and rejects requests without them.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-Id")
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing identity")
			return
		}
		id := Identity{UserID: userID, Role: r.Header.Get("X-User-Role")}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

// RequireAdmin gates the fulfillment write path.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok || id.Role != RoleAdmin {
			writeError(w, http.StatusUnauthorized, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
