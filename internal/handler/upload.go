package handler

import (
	"io"
	"mime/multipart"
	"net/http"

	"trayaudit/internal/config"
	"trayaudit/internal/dto"
	"trayaudit/internal/logger"
	"trayaudit/internal/service/imagesource"
	"trayaudit/internal/service/storage"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const uploadsPrefix = "uploads/"

// UploadPhotosHandler handles POST /api/upload/ with one or more "photos"
// files. Each is stored as uploads/{uuid}_{name}.
func UploadPhotosHandler(artifacts storage.ArtifactStore, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadSize)
		if err := r.ParseMultipartForm(cfg.MaxUploadSize); err != nil {
			respondError(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()

		files := r.MultipartForm.File["photos"]
		if len(files) == 0 {
			respondError(w, "No photos uploaded", http.StatusBadRequest)
			return
		}

		urls := make([]string, 0, len(files))
		for _, header := range files {
			url, err := storeUpload(r, artifacts, header)
			if err != nil {
				logger.Error("Failed to store upload %s: %v", header.Filename, err)
				respondError(w, "Failed to store photo", http.StatusInternalServerError)
				return
			}
			urls = append(urls, url)
		}

		logger.Info("Uploaded %d photos", len(urls))
		respondJSON(w, dto.UploadResponse{
			Message:      "photos uploaded",
			UploadedURLs: urls,
		}, http.StatusOK)
	}
}

func storeUpload(r *http.Request, artifacts storage.ArtifactStore, header *multipart.FileHeader) (string, error) {
	file, err := header.Open()
	if err != nil {
		return "", errors.Wrap(err, "failed to open upload")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", errors.Wrap(err, "failed to read upload")
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	name := imagesource.Filename(header.Filename)
	if name == "" {
		name = "photo"
	}
	key := uploadsPrefix + uuid.NewString() + "_" + name
	return artifacts.Put(r.Context(), key, data, contentType)
}

// ListPhotosHandler handles GET /api/photos/.
func ListPhotosHandler(artifacts storage.ArtifactStore, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}

		objects, err := artifacts.List(r.Context(), uploadsPrefix)
		if err != nil {
			logger.Error("Error listing photos: %v", err)
			respondError(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		photos := make([]dto.PhotoInfo, 0, len(objects))
		for _, obj := range objects {
			photos = append(photos, dto.PhotoInfo{ID: obj.Key, URL: obj.URL})
		}
		respondJSON(w, photos, http.StatusOK)
	}
}
