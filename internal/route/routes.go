package route

import (
	"net/http"

	"trayaudit/internal/config"
	"trayaudit/internal/handler"
	"trayaudit/internal/logger"
	"trayaudit/internal/middleware"
	"trayaudit/internal/repository"
	"trayaudit/internal/service/storage"
	feedhub "trayaudit/internal/service/websocket"
)

// Services bundles what the HTTP layer talks to.
type Services struct {
	Analyzer  handler.Analyzer
	Results   repository.AnalysisRepository
	Artifacts storage.ArtifactStore
	Hub       *feedhub.HubService
}

// SetupRoutes registers API, artifact, log and auth endpoints and wraps the
// mux with the CORS and authentication middleware.
func SetupRoutes(svc Services, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	var feed handler.FeedBroadcaster
	if svc.Hub != nil {
		feed = svc.Hub
	}

	// API endpoints
	mux.HandleFunc("/api/analysis/", handler.AnalyzeHandler(svc.Analyzer, feed, cfg, logger))
	mux.HandleFunc("/api/upload/", handler.UploadPhotosHandler(svc.Artifacts, cfg, logger))
	mux.HandleFunc("/api/photos/", handler.ListPhotosHandler(svc.Artifacts, logger))
	mux.HandleFunc("/api/analysis-results/", handler.GetResultsHandler(svc.Results, logger))
	mux.HandleFunc("/api/dashboard-summary/", handler.DashboardSummaryHandler(svc.Results, logger))
	mux.HandleFunc("/api/statistics/", handler.StatisticsHandler(svc.Results, logger))
	mux.HandleFunc("/api/delete-analysis-results/", handler.DeleteResultsHandler(svc.Results, svc.Analyzer, logger))
	if svc.Hub != nil {
		mux.HandleFunc("/api/feed", handler.FeedHandler(svc.Hub, cfg.AllowedOrigins, logger))
	}

	// Stored blobs, only when they live on this host
	if local, ok := svc.Artifacts.(*storage.LocalStore); ok {
		mux.Handle("/artifacts/", http.StripPrefix("/artifacts/", http.FileServer(http.Dir(local.Dir()))))
	}

	// Log endpoints
	for _, level := range []string{"info", "warning", "error"} {
		mux.HandleFunc("/logs/"+level, handler.ShowLogsHandler(logger, level+".log"))
		mux.HandleFunc("/logs/"+level+"/clear", handler.ClearLogsHandler(logger, level+".log"))
	}

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(cfg, logger))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	mux.HandleFunc("/health", handler.HealthHandler)

	return middleware.CORSMiddleware(cfg.AllowedOrigins)(middleware.AuthMiddleware(cfg.Password)(mux))
}
