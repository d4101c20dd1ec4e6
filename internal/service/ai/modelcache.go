package ai

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// ModelCache holds loaded models for the lifetime of the process. Each key is
// loaded at most once; concurrent callers for the same key wait for the first
// load. Failed loads are not cached.
type ModelCache struct {
	models map[string]interface{}
	locks  map[string]*sync.Mutex
	mu     sync.RWMutex
}

func NewModelCache() *ModelCache {
	return &ModelCache{
		models: make(map[string]interface{}),
		locks:  make(map[string]*sync.Mutex),
	}
}

// LoadModel returns the cached model for key, calling load on the first request.
func LoadModel[T any](c *ModelCache, key string, load func() (T, error)) (T, error) {
	var zero T

	if m, ok := c.get(key); ok {
		return cast[T](key, m)
	}

	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if m, ok := c.get(key); ok {
		return cast[T](key, m)
	}

	m, err := load()
	if err != nil {
		return zero, errors.Wrapf(err, "failed to load model %s", key)
	}

	c.mu.Lock()
	c.models[key] = m
	c.mu.Unlock()

	return m, nil
}

func cast[T any](key string, m interface{}) (T, error) {
	typed, ok := m.(T)
	if !ok {
		var zero T
		return zero, errors.Errorf("model %s has unexpected type %T", key, m)
	}
	return typed, nil
}

func (c *ModelCache) get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[key]
	return m, ok
}

// keyLock returns the per-key load mutex, creating it when absent.
func (c *ModelCache) keyLock(key string) *sync.Mutex {
	c.mu.RLock()
	lock, exists := c.locks[key]
	c.mu.RUnlock()

	if exists {
		return lock
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Double-check (may have been created by another goroutine)
	if lock, exists := c.locks[key]; exists {
		return lock
	}

	lock = &sync.Mutex{}
	c.locks[key] = lock
	return lock
}

// Len returns the number of loaded models.
func (c *ModelCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}

// Close releases every cached model that holds resources.
func (c *ModelCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for key, m := range c.models {
		if closer, ok := m.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = errors.Wrapf(err, "failed to close model %s", key)
			}
		}
		delete(c.models, key)
	}
	return firstErr
}
