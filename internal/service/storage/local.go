package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// LocalStore keeps artifacts in a directory and serves them under a base URL.
type LocalStore struct {
	dir     string
	baseURL string
	mu      sync.Mutex
}

// NewLocalStore creates the artifact directory when needed.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("error creating artifact directory: %w", err)
	}
	return &LocalStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Dir returns the directory holding the artifacts.
func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(key))
}

// Put writes data under key, replacing any previous content.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fullpath := s.path(key)
	if err := os.MkdirAll(filepath.Dir(fullpath), 0755); err != nil {
		return "", fmt.Errorf("error creating directory for %s: %w", key, err)
	}

	// write then rename so readers never see a partial file
	tmp := fullpath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("error saving artifact %s: %w", key, err)
	}
	if err := os.Rename(tmp, fullpath); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("error saving artifact %s: %w", key, err)
	}

	return s.URL(key), nil
}

func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	_, err := os.Stat(s.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error checking artifact %s: %w", key, err)
	}
	return true, nil
}

// List returns every artifact whose key starts with prefix, sorted by key.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object

	err := filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}

		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{
			Key:     key,
			URL:     s.URL(key),
			Size:    info.Size(),
			Updated: info.ModTime(),
		})
		return ctx.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("error listing artifacts: %w", err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (s *LocalStore) URL(key string) string {
	return s.baseURL + "/" + escapeKey(key)
}

func (s *LocalStore) Close() error {
	return nil
}
