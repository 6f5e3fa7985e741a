// Package store provides the durable local storage contract used by the
// telemetry pipeline for critical log records and alert history, with
// in-memory and file-backed implementations swappable per target
// environment.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = fmt.Errorf("store: key not found")

// Store is the minimal key-value contract the pipeline persists through.
// Keys are slash-separated (e.g. "critical/<ts>-<id>"); values are opaque
// byte payloads, JSON in practice.
type Store interface {
	// Get retrieves the value for a key, or ErrNotFound.
	Get(key string) ([]byte, error)
	// Set stores a value under a key, overwriting any existing value.
	Set(key string, value []byte) error
	// Delete removes a key. Deleting a missing key is not an error.
	Delete(key string) error
	// List returns all keys with the given prefix, sorted ascending.
	List(prefix string) ([]string, error)
}

// MemoryStore is a Store backed by go-cache. Used in tests and in hosts
// without a writable filesystem.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore creates an in-memory store. Entries never expire on
// their own; the retention janitor owns record lifecycle.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(gocache.NoExpiration, 0),
	}
}

// Get retrieves the value for a key, or ErrNotFound.
func (m *MemoryStore) Get(key string) ([]byte, error) {
	if value, found := m.cache.Get(key); found {
		return value.([]byte), nil
	}
	return nil, ErrNotFound
}

// Set stores a value under a key.
func (m *MemoryStore) Set(key string, value []byte) error {
	m.cache.Set(key, value, gocache.NoExpiration)
	return nil
}

// Delete removes a key.
func (m *MemoryStore) Delete(key string) error {
	m.cache.Delete(key)
	return nil
}

// List returns all keys with the given prefix, sorted ascending.
func (m *MemoryStore) List(prefix string) ([]string, error) {
	var keys []string
	for key := range m.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// FileStore is a Store persisting each key as a file under a root
// directory, so records survive process crashes for post-mortem
// inspection.
type FileStore struct {
	root string
	mu   sync.Mutex
}

// NewFileStore creates a file-backed store rooted at the given directory,
// creating it if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", root, err)
	}
	return &FileStore{root: root}, nil
}

// Get retrieves the value for a key, or ErrNotFound.
func (f *FileStore) Get(key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Set stores a value under a key, creating parent directories as needed.
func (f *FileStore) Set(key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}
	if err := os.WriteFile(path, value, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (f *FileStore) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.pathFor(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// List returns all keys with the given prefix, sorted ascending.
func (f *FileStore) List(prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	err := filepath.WalkDir(f.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(f.root, path)
		if relErr != nil {
			return relErr
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *FileStore) pathFor(key string) string {
	return filepath.Join(f.root, filepath.FromSlash(key))
}
