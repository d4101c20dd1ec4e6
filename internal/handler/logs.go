package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"trayaudit/internal/logger"
)

// ShowLogsHandler serves one level's log file as text/plain.
func ShowLogsHandler(logger *logger.Logger, filename string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveLogFile(w, r, logger.Dir(), filename)
	}
}

// serveLogFile sets headers and serves a log file if it exists.
func serveLogFile(w http.ResponseWriter, r *http.Request, logDir, filename string) {
	filePath := filepath.Join(logDir, filename)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Log file not found: " + filename))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")

	http.ServeFile(w, r, filePath)
}

// ClearLogsHandler truncates one level's log file.
func ClearLogsHandler(logger *logger.Logger, filename string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodDelete {
			methodNotAllowed(w)
			return
		}
		if err := logger.CleanLogs(filename); err != nil {
			logger.Error("Failed to clear %s: %v", filename, err)
			respondError(w, "Failed to clear log", http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]string{"message": filename + " cleared"}, http.StatusOK)
	}
}
