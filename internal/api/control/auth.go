package control

import (
	"net/http"
)

const (
	// AdminTokenHeader is the header name for admin authentication token.
	AdminTokenHeader = "X-Admin-Token"
)

// RequireAdminToken returns middleware that rejects requests whose
// X-Admin-Token header does not match token.
func RequireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract token from header
			got := r.Header.Get(AdminTokenHeader)
			if got == "" || got != token {
				writeJSON(w, http.StatusUnauthorized, ActionResponse{Message: "unauthenticated"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
