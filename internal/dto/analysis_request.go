package dto

// AnalysisRequest is the body of POST /api/analysis/.
type AnalysisRequest struct {
	ImageURL string `json:"image_url"`
	PhotoDay string `json:"photo_day"`
}
