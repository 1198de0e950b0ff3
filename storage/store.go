// Package storage provides durable blob stores for model artifacts.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNotExist is returned when a locator does not resolve to an artifact.
var ErrNotExist = errors.New("artifact does not exist")

// BlobStore persists opaque artifacts addressed by a locator.
type BlobStore interface {
	Write(locator string, payload []byte) error
	Read(locator string) ([]byte, error)
	Exists(locator string) (bool, error)
	LastModified(locator string) (time.Time, error)
}

// FileStore stores artifacts as files. Relative locators are resolved
// against Root when it is set.
type FileStore struct {
	Root string
}

func NewFileStore(root string) *FileStore {
	return &FileStore{Root: root}
}

// Path returns the file path a locator resolves to.
func (s *FileStore) Path(locator string) string {
	if s.Root == "" || filepath.IsAbs(locator) {
		return locator
	}
	return filepath.Join(s.Root, locator)
}

func (s *FileStore) Write(locator string, payload []byte) error {
	path := s.Path(locator)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create artifact dir: %w", err)
		}
	}
	return writeAtomic(path, payload)
}

// writeAtomic writes into a temporary file next to path and renames it into
// place, so readers see either the old artifact or the new one.
func writeAtomic(path string, payload []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("chmod temp artifact: %w", err)
	}
	if _, err = tmp.Write(payload); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync artifact: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

func (s *FileStore) Read(locator string) ([]byte, error) {
	payload, err := os.ReadFile(s.Path(locator))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, locator)
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return payload, nil
}

func (s *FileStore) Exists(locator string) (bool, error) {
	info, err := os.Stat(s.Path(locator))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func (s *FileStore) LastModified(locator string) (time.Time, error) {
	info, err := os.Stat(s.Path(locator))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, fmt.Errorf("%w: %s", ErrNotExist, locator)
		}
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// MemoryStore keeps artifacts in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
	now   func() time.Time
}

type memoryBlob struct {
	payload  []byte
	modified time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string]memoryBlob),
		now:   time.Now,
	}
}

// WithClock replaces the modification time source.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Write(locator string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[locator] = memoryBlob{
		payload:  append([]byte(nil), payload...),
		modified: s.now(),
	}
	return nil
}

func (s *MemoryStore) Read(locator string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[locator]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, locator)
	}
	return append([]byte(nil), blob.payload...), nil
}

func (s *MemoryStore) Exists(locator string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[locator]
	return ok, nil
}

func (s *MemoryStore) LastModified(locator string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[locator]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNotExist, locator)
	}
	return blob.modified, nil
}
