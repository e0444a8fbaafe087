package middleware

import (
	"net/http"

	"github.com/MrEthical07/goGateway/permission"
)

// RequirePermission rejects requests whose token lacks perm with 403. The root
// permission, when reserved in registry, grants everything. It must run after [Guard].
func RequirePermission(registry *permission.Registry, perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok || registry == nil || !registry.Allows(claims.Permissions, perm) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
