package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"trayaudit/internal/config"
	"trayaudit/internal/dto"
	"trayaudit/internal/logger"
	"trayaudit/internal/service/analysis"
	"trayaudit/internal/service/imagesource"

	"github.com/pkg/errors"
)

const noFoodMessage = "no food detected"

// Analyzer runs the tray pipeline for one photo.
type Analyzer interface {
	AnalyzeLocator(ctx context.Context, locator, photoDay string) ([]dto.DetectionResult, error)
	Reset()
}

// FeedBroadcaster pushes analysis outcomes to live viewers.
type FeedBroadcaster interface {
	Broadcast(msg dto.FeedMessage)
}

// AnalyzeHandler handles POST /api/analysis/ with {image_url, photo_day}.
// Bad input and unreadable images are 400; detection and other pipeline
// failures are 500 with a generic message. An empty result is not an error.
func AnalyzeHandler(analyzer Analyzer, feed FeedBroadcaster, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}

		var req dto.AnalysisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		if cfg.AnalysisTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.AnalysisTimeout)
			defer cancel()
		}

		results, err := analyzer.AnalyzeLocator(ctx, req.ImageURL, req.PhotoDay)
		if err != nil {
			status, message := analysisErrorStatus(err)
			if status == http.StatusBadRequest {
				logger.Warning("Rejected analysis request for %q: %v", req.ImageURL, err)
			} else {
				logger.Error("Analysis of %q failed: %v", req.ImageURL, err)
			}
			respondError(w, message, status)
			return
		}

		if feed != nil {
			feed.Broadcast(dto.FeedMessage{
				PhotoDay: req.PhotoDay,
				Filename: imagesource.Filename(req.ImageURL),
				Results:  results,
			})
		}

		message := "analysis complete"
		if len(results) == 0 {
			message = noFoodMessage
			results = []dto.DetectionResult{}
		}
		respondJSON(w, dto.AnalysisResponse{Message: message, Results: results}, http.StatusOK)
	}
}

func analysisErrorStatus(err error) (int, string) {
	var inputErr *analysis.InputError
	var fetchErr *imagesource.FetchError
	var decodeErr *imagesource.DecodeError

	switch {
	case errors.As(err, &inputErr):
		return http.StatusBadRequest, inputErr.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Analysis timed out"
	case errors.As(err, &fetchErr):
		return http.StatusBadRequest, "Failed to fetch image"
	case errors.As(err, &decodeErr):
		return http.StatusBadRequest, "Failed to decode image"
	default:
		return http.StatusInternalServerError, "Analysis failed"
	}
}
