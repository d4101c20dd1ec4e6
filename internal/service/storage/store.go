package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"trayaudit/internal/config"
)

// Object is a stored blob.
type Object struct {
	Key     string    `json:"id"`
	URL     string    `json:"url"`
	Size    int64     `json:"size"`
	Updated time.Time `json:"updated"`
}

// ArtifactStore persists image blobs and resolves their public URLs.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Object, error)
	URL(key string) string
	Close() error
}

// New builds the artifact store selected by config.StorageBackend.
func New(ctx context.Context, config *config.Config) (ArtifactStore, error) {
	switch strings.ToLower(config.StorageBackend) {
	case "", "local":
		return NewLocalStore(config.ArtifactDirectory, config.PublicBaseURL)
	case "gcs":
		return NewGCSStore(ctx, config.GCSBucket, config.GCSCredentialsJSON)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", config.StorageBackend)
	}
}

// validateKey rejects keys that could escape the store root.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty artifact key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid artifact key: %s", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." || part == "" {
			return fmt.Errorf("invalid artifact key: %s", key)
		}
	}
	return nil
}

// escapeKey percent-encodes each segment of key for use in a public URL.
func escapeKey(key string) string {
	return (&url.URL{Path: key}).EscapedPath()
}
