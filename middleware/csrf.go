package middleware

import (
	"crypto/subtle"
	"net/http"
)

// CSRFLookup returns the CSRF token expected for subject.
type CSRFLookup func(subject string) (string, bool)

// RequireCSRF rejects POST, PUT, PATCH and DELETE requests whose X-CSRF-Token does not
// match the subject's expected token with 403. It must run after [Guard].
func RequireCSRF(lookup CSRFLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			claims, ok := ClaimsFromContext(r.Context())
			if !ok || lookup == nil {
				writeError(w, http.StatusForbidden, "csrf token missing")
				return
			}
			want, ok := lookup(claims.Subject)
			got := r.Header.Get("X-CSRF-Token")
			if !ok || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				writeError(w, http.StatusForbidden, "csrf token invalid")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
