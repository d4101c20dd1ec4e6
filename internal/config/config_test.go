package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("FETCH_TIMEOUT", "")

	cfg := Load()

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "local", cfg.StorageBackend)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 640, cfg.DetectorInputSize)
	assert.Equal(t, "wise-uploads", cfg.GCSBucket)
	assert.False(t, cfg.StoreAnnotated)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE_BACKEND", "gcs")
	t.Setenv("FETCH_TIMEOUT", "5s")
	t.Setenv("DETECTOR_NMS", "0.6")
	t.Setenv("STORE_ANNOTATED", "true")
	t.Setenv("MAX_UPLOAD_SIZE", "1024")

	cfg := Load()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "gcs", cfg.StorageBackend)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.InDelta(t, 0.6, cfg.DetectorNMS, 1e-9)
	assert.True(t, cfg.StoreAnnotated)
	assert.Equal(t, int64(1024), cfg.MaxUploadSize)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "abc")
	t.Setenv("FETCH_TIMEOUT", "soon")
	t.Setenv("DETECTOR_CONFIDENCE", "high")

	cfg := Load()

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.InDelta(t, 0.25, cfg.DetectorConfidence, 1e-9)
}
