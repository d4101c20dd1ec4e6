package handler

import (
	"crypto/subtle"
	"net/http"

	"trayaudit/internal/config"
	"trayaudit/internal/logger"
	"trayaudit/internal/middleware"
)

// LoginHandler handles POST /auth/login by validating the password and
// issuing the auth cookie.
func LoginHandler(config *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}

		password := r.FormValue("password")
		if subtle.ConstantTimeCompare([]byte(password), []byte(config.Password)) != 1 {
			logger.Warning("Failed login attempt from %s", r.RemoteAddr)
			respondError(w, "Invalid password", http.StatusUnauthorized)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     middleware.AuthCookie,
			Value:    "true",
			Path:     "/",
			MaxAge:   2592000, // 30 days
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		respondJSON(w, map[string]string{"message": "logged in"}, http.StatusOK)
	}
}

// LogoutHandler clears the auth cookie.
func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:   middleware.AuthCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	respondJSON(w, map[string]string{"message": "logged out"}, http.StatusOK)
}

// HealthHandler reports that the service is up.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}
