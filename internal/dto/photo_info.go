package dto

// PhotoInfo describes one stored upload.
type PhotoInfo struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// UploadResponse lists the public URLs of freshly uploaded photos.
type UploadResponse struct {
	Message      string   `json:"message"`
	UploadedURLs []string `json:"uploaded_urls"`
}
