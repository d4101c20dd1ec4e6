package repository

import (
	"trayaudit/internal/model"
)

// AnalysisRepository defines the interface for analysis record operations.
// Records are identified by their artifact URL.
type AnalysisRepository interface {
	// Create/update operations
	Upsert(rec *model.AnalysisRecord) (*model.AnalysisRecord, error)

	// Read operations
	Exists(imageURL string) (bool, error)
	GetByURL(imageURL string) (*model.AnalysisRecord, error)
	GetAll(filter *model.AnalysisFilter) ([]model.AnalysisRecord, error)
	GetTotalCount(filter *model.AnalysisFilter) (int, error)
	GetSummary() (*model.WasteSummary, error)
	GetStatistics(filter *model.AnalysisFilter) (*model.WasteStatistics, error)

	// Delete operations
	DeleteAll() (int64, error)
}
