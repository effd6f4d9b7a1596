// Package artifacts persists pipeline artifacts (selection traces,
// activation reports, insights, audit reports) as enveloped JSON blobs
// under canonical relative paths. Backends: filesystem (default), S3, GCS.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// BlobStore is the path-keyed artifact backend. Keys are slash-separated
// relative paths like "artifacts/audit/audit_report_doc1.json".
type BlobStore interface {
	// Put writes data at key, overwriting any previous content.
	Put(ctx context.Context, key string, data []byte) error
	// Get reads the content at key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Exists reports whether key holds content.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes the content at key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

// validateKey rejects keys that would escape the store root.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("artifacts: empty key")
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("artifacts: absolute key %q", key)
	}
	clean := path.Clean(key)
	if clean != key || strings.HasPrefix(clean, "..") {
		return fmt.Errorf("artifacts: unclean key %q", key)
	}
	return nil
}

// FileStore is the filesystem backend. Writes are atomic: content lands in
// a temp file and is renamed into place.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates the store rooted at baseDir, creating it if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: ensure base dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(key))
}

func (s *FileStore) Put(_ context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dest := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("artifacts: ensure dir: %w", err)
	}
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("artifacts: write %s: %w", key, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("artifacts: commit %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifacts: not found: %s", key)
		}
		return nil, fmt.Errorf("artifacts: read %s: %w", key, err)
	}
	return data, nil
}

func (s *FileStore) Exists(_ context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("artifacts: stat %s: %w", key, err)
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("artifacts: delete %s: %w", key, err)
	}
	return nil
}
