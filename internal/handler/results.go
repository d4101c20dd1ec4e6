package handler

import (
	"net/http"

	"trayaudit/internal/dto"
	"trayaudit/internal/logger"
	"trayaudit/internal/model"
	"trayaudit/internal/repository"
)

// GetResultsHandler handles GET /api/analysis-results/?photo_day=, newest
// first. With a page parameter the response is paginated.
func GetResultsHandler(results repository.AnalysisRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}

		q := r.URL.Query()
		filter := &model.AnalysisFilter{
			PhotoDay:     q.Get("photo_day"),
			FoodCategory: q.Get("food_category"),
		}

		if q.Get("page") == "" {
			records, err := results.GetAll(filter)
			if err != nil {
				logger.Error("Error querying analysis results: %v", err)
				respondError(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if records == nil {
				records = []model.AnalysisRecord{}
			}
			respondJSON(w, records, http.StatusOK)
			return
		}

		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 24)
		filter.Limit = limit
		filter.Offset = (page - 1) * limit

		records, err := results.GetAll(filter)
		if err != nil {
			logger.Error("Error querying analysis results: %v", err)
			respondError(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		totalCount, err := results.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting analysis results: %v", err)
			totalCount = len(records)
		}

		totalPages := (totalCount + limit - 1) / limit
		if totalPages == 0 {
			totalPages = 1
		}

		respondJSON(w, dto.ResultsData{
			Results:     records,
			Length:      totalCount,
			TotalPages:  totalPages,
			CurrentPage: page,
			Limit:       limit,
		}, http.StatusOK)
	}
}

// DashboardSummaryHandler handles GET /api/dashboard-summary/.
func DashboardSummaryHandler(results repository.AnalysisRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}

		summary, err := results.GetSummary()
		if err != nil {
			logger.Error("Error computing dashboard summary: %v", err)
			respondError(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		respondJSON(w, summary, http.StatusOK)
	}
}

// StatisticsHandler handles GET /api/statistics/?photo_day=.
func StatisticsHandler(results repository.AnalysisRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}

		stats, err := results.GetStatistics(&model.AnalysisFilter{PhotoDay: r.URL.Query().Get("photo_day")})
		if err != nil {
			logger.Error("Error computing statistics: %v", err)
			respondError(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		respondJSON(w, stats, http.StatusOK)
	}
}

// DeleteResultsHandler handles DELETE /api/delete-analysis-results/. Stored
// artifacts are kept; the analyzer forgets them so they are written again.
func DeleteResultsHandler(results repository.AnalysisRepository, analyzer Analyzer, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			methodNotAllowed(w)
			return
		}

		deleted, err := results.DeleteAll()
		if err != nil {
			logger.Error("Error deleting analysis results: %v", err)
			respondError(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		analyzer.Reset()

		logger.Info("Deleted %d analysis results", deleted)
		respondJSON(w, map[string]int64{"deleted": deleted}, http.StatusOK)
	}
}
