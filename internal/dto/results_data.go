// ResultsData is a paginated response payload for stored analysis records.
package dto

import (
	"encoding/json"
	"trayaudit/internal/model"
)

type ResultsData struct {
	Results     []model.AnalysisRecord `json:"results"`
	Length      int                    `json:"length"`
	TotalPages  int                    `json:"totalPages"`
	CurrentPage int                    `json:"currentPage"`
	Limit       int                    `json:"pageSize"`
}

// MarshalJSON keeps an empty result list as [] instead of null.
func (d ResultsData) MarshalJSON() ([]byte, error) {
	type Alias ResultsData
	if d.Results == nil {
		d.Results = []model.AnalysisRecord{}
	}
	return json.Marshal(Alias(d))
}
