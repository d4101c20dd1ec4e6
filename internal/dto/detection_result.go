package dto

// DetectionResult is the outcome of one accepted detection. A classification
// failure sets Error and leaves the classification fields empty; a storage
// failure keeps the classification and sets StorageError.
type DetectionResult struct {
	Index           int     `json:"index"`
	FoodCategory    string  `json:"food_category,omitempty"`
	FoodType        string  `json:"food_type,omitempty"`
	TypeConfidence  float64 `json:"tur_confidence"`
	WasteLabel      string  `json:"waste_label,omitempty"`
	IsWaste         bool    `json:"is_waste"`
	WasteConfidence float64 `json:"israf_confidence"`
	PhotoDay        string  `json:"photo_day"`
	ImageURL        string  `json:"image_url,omitempty"`
	Stored          bool    `json:"stored"`
	Error           string  `json:"error,omitempty"`
	StorageError    string  `json:"storage_error,omitempty"`
}

// Failed reports whether the detection could not be classified.
func (r DetectionResult) Failed() bool {
	return r.Error != ""
}
