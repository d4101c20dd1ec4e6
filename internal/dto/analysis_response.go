// AnalysisResponse is returned by the analysis endpoint.
package dto

type AnalysisResponse struct {
	Message string            `json:"message"`
	Results []DetectionResult `json:"results"`
}

// FeedMessage is broadcast to live feed viewers after each analysis.
type FeedMessage struct {
	PhotoDay string            `json:"photo_day"`
	Filename string            `json:"filename"`
	Results  []DetectionResult `json:"results"`
}
