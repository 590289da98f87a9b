package middleware

import (
	"crypto/subtle"
	"net/http"
)

// AdminKey guards operator routes with a shared secret in X-Admin-Key.
func AdminKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Admin-Key")
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Admin key required", r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
