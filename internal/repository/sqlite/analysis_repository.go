package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"trayaudit/internal/model"
)

// AnalysisRepository implements repository.AnalysisRepository for SQLite.
type AnalysisRepository struct {
	db  *DB
	now func() time.Time
}

// NewAnalysisRepository creates a new SQLite analysis repository.
func NewAnalysisRepository(db *DB) *AnalysisRepository {
	return &AnalysisRepository{db: db, now: time.Now}
}

const selectColumns = `id, image_url, food_category, food_type, is_waste, created_at, COALESCE(photo_day, '')`

// Upsert inserts a record or, when the image URL is already stored, overwrites
// its category, type, waste flag and day. created_at keeps its first value.
func (r *AnalysisRepository) Upsert(rec *model.AnalysisRecord) (*model.AnalysisRecord, error) {
	if rec.ImageURL == "" {
		return nil, fmt.Errorf("failed to upsert analysis result: image url is empty")
	}

	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().Exec(`
		INSERT INTO analysis_results (image_url, food_category, food_type, is_waste, created_at, photo_day)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(image_url) DO UPDATE SET
			food_category = excluded.food_category,
			food_type = excluded.food_type,
			is_waste = excluded.is_waste,
			photo_day = excluded.photo_day
	`, rec.ImageURL, rec.FoodCategory, rec.FoodType, rec.IsWaste, r.now().UTC(), rec.PhotoDay)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert analysis result: %w", err)
	}

	stored, err := r.getByURL(rec.ImageURL)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("failed to read back analysis result %s", rec.ImageURL)
	}
	return stored, nil
}

// Exists checks if a record with the given image URL exists.
func (r *AnalysisRepository) Exists(imageURL string) (bool, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM analysis_results WHERE image_url = ?`, imageURL).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check analysis result existence: %w", err)
	}
	return count > 0, nil
}

// GetByURL retrieves a record by its image URL; nil when absent.
func (r *AnalysisRepository) GetByURL(imageURL string) (*model.AnalysisRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()
	return r.getByURL(imageURL)
}

func (r *AnalysisRepository) getByURL(imageURL string) (*model.AnalysisRecord, error) {
	var rec model.AnalysisRecord
	err := r.db.Conn().QueryRow(`SELECT `+selectColumns+` FROM analysis_results WHERE image_url = ?`, imageURL).
		Scan(&rec.ID, &rec.ImageURL, &rec.FoodCategory, &rec.FoodType, &rec.IsWaste, &rec.CreatedAt, &rec.PhotoDay)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis result: %w", err)
	}
	return &rec, nil
}

// whereClause builds the shared filter for list and count queries.
func whereClause(filter *model.AnalysisFilter) (string, []interface{}) {
	query := " WHERE 1=1"
	args := []interface{}{}
	if filter == nil {
		return query, args
	}

	if filter.PhotoDay != "" {
		query += " AND photo_day = ?"
		args = append(args, filter.PhotoDay)
	}

	if filter.FoodCategory != "" {
		query += " AND food_category = ?"
		args = append(args, filter.FoodCategory)
	}

	return query, args
}

// GetAll retrieves records matching the filter, newest first.
func (r *AnalysisRepository) GetAll(filter *model.AnalysisFilter) ([]model.AnalysisRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := whereClause(filter)
	query := `SELECT ` + selectColumns + ` FROM analysis_results` + where + ` ORDER BY created_at DESC, id DESC`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis results: %w", err)
	}
	defer rows.Close()

	var records []model.AnalysisRecord
	for rows.Next() {
		var rec model.AnalysisRecord
		if err := rows.Scan(&rec.ID, &rec.ImageURL, &rec.FoodCategory, &rec.FoodType, &rec.IsWaste, &rec.CreatedAt, &rec.PhotoDay); err != nil {
			return nil, fmt.Errorf("failed to scan analysis result: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// GetTotalCount returns the number of records matching the filter.
func (r *AnalysisRepository) GetTotalCount(filter *model.AnalysisFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := whereClause(filter)

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM analysis_results`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count analysis results: %w", err)
	}
	return count, nil
}

// GetSummary returns overall waste counts.
func (r *AnalysisRepository) GetSummary() (*model.WasteSummary, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var total, waste int
	err := r.db.Conn().QueryRow(`SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_waste THEN 1 ELSE 0 END), 0) FROM analysis_results`).
		Scan(&total, &waste)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize analysis results: %w", err)
	}

	summary := model.NewWasteSummary(total, waste)
	return &summary, nil
}

// GetStatistics returns waste counts per category and per dish type.
func (r *AnalysisRepository) GetStatistics(filter *model.AnalysisFilter) (*model.WasteStatistics, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := whereClause(filter)

	rows, err := r.db.Conn().Query(`
		SELECT food_category, food_type, COUNT(*), COALESCE(SUM(CASE WHEN is_waste THEN 1 ELSE 0 END), 0)
		FROM analysis_results`+where+`
		GROUP BY food_category, food_type
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query statistics: %w", err)
	}
	defer rows.Close()

	type counts struct{ total, waste int }
	perCategory := make(map[string]*counts)
	perType := make(map[string]*counts)
	var total, waste int

	for rows.Next() {
		var category, foodType string
		var n, w int
		if err := rows.Scan(&category, &foodType, &n, &w); err != nil {
			return nil, fmt.Errorf("failed to scan statistics: %w", err)
		}

		if perCategory[category] == nil {
			perCategory[category] = &counts{}
		}
		perCategory[category].total += n
		perCategory[category].waste += w

		if perType[foodType] == nil {
			perType[foodType] = &counts{}
		}
		perType[foodType].total += n
		perType[foodType].waste += w

		total += n
		waste += w
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read statistics: %w", err)
	}

	stats := &model.WasteStatistics{
		Overall:     model.NewWasteSummary(total, waste),
		PerCategory: make(map[string]model.WasteSummary, len(perCategory)),
		PerType:     make(map[string]model.WasteSummary, len(perType)),
	}
	for name, c := range perCategory {
		stats.PerCategory[name] = model.NewWasteSummary(c.total, c.waste)
	}
	for name, c := range perType {
		stats.PerType[name] = model.NewWasteSummary(c.total, c.waste)
	}
	return stats, nil
}

// DeleteAll removes every record and returns how many were deleted.
func (r *AnalysisRepository) DeleteAll() (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`DELETE FROM analysis_results`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete analysis results: %w", err)
	}
	return result.RowsAffected()
}
