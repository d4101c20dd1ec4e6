package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
)

// AuthCookie is the cookie set by a successful login.
const AuthCookie = "authenticated"

// AuthMiddleware checks that the caller is logged in (cookie
// 'authenticated=true'). It is a no-op when no password is configured.
func AuthMiddleware(password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if password == "" || isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(AuthCookie)
			if err != nil || cookie.Value != "true" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isPublicPath lists what stays reachable without logging in. Stored
// artifacts are public URLs by construction.
func isPublicPath(path string) bool {
	return path == "/health" ||
		path == "/auth/login" ||
		path == "/auth/logout" ||
		strings.HasPrefix(path, "/artifacts/")
}
