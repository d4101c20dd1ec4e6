package model

import (
	"fmt"
	"math"
	"time"
)

// AnalysisRecord is one analyzed food crop. ImageURL identifies the record.
type AnalysisRecord struct {
	ID           int64     `json:"id"`
	ImageURL     string    `json:"image_url"`
	FoodCategory string    `json:"food_category"`
	FoodType     string    `json:"food_type"`
	IsWaste      bool      `json:"is_waste"`
	CreatedAt    time.Time `json:"created_at"`
	PhotoDay     string    `json:"photo_day"`
}

func (r AnalysisRecord) String() string {
	label := "not-wasted"
	if r.IsWaste {
		label = "wasted"
	}
	return fmt.Sprintf("%s | %s - %s", r.FoodCategory, r.FoodType, label)
}

// AnalysisFilter contains filtering options for querying records.
type AnalysisFilter struct {
	PhotoDay     string
	FoodCategory string
	Limit        int
	Offset       int
}

// WasteSummary aggregates waste counts over a set of records.
type WasteSummary struct {
	Total   int     `json:"total"`
	Waste   int     `json:"waste"`
	NoWaste int     `json:"noWaste"`
	Percent float64 `json:"percent"`
}

// NewWasteSummary computes the waste share, rounded to one decimal.
func NewWasteSummary(total, waste int) WasteSummary {
	s := WasteSummary{Total: total, Waste: waste, NoWaste: total - waste}
	if total > 0 {
		s.Percent = math.Round(float64(waste)/float64(total)*1000) / 10
	}
	return s
}

// WasteStatistics breaks the summary down by category and dish type.
type WasteStatistics struct {
	Overall     WasteSummary            `json:"overall"`
	PerCategory map[string]WasteSummary `json:"per_category"`
	PerType     map[string]WasteSummary `json:"per_type"`
}
