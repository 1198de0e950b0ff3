package storage

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cachedBlob struct {
	payload  []byte
	modified time.Time
}

// CachedStore keeps recently read artifacts in an LRU cache. A cached entry
// is served only while the backing store reports the same modification time.
type CachedStore struct {
	inner BlobStore
	cache *lru.Cache[string, cachedBlob]
}

func NewCachedStore(inner BlobStore, size int) (*CachedStore, error) {
	if size <= 0 {
		size = 16
	}
	cache, err := lru.New[string, cachedBlob](size)
	if err != nil {
		return nil, fmt.Errorf("create artifact cache: %w", err)
	}
	return &CachedStore{inner: inner, cache: cache}, nil
}

func (s *CachedStore) Write(locator string, payload []byte) error {
	s.cache.Remove(locator)
	return s.inner.Write(locator, payload)
}

func (s *CachedStore) Read(locator string) ([]byte, error) {
	modified, err := s.inner.LastModified(locator)
	if err != nil {
		return nil, err
	}
	if blob, ok := s.cache.Get(locator); ok && blob.modified.Equal(modified) {
		return append([]byte(nil), blob.payload...), nil
	}

	payload, err := s.inner.Read(locator)
	if err != nil {
		return nil, err
	}
	s.cache.Add(locator, cachedBlob{payload: append([]byte(nil), payload...), modified: modified})
	return payload, nil
}

func (s *CachedStore) Exists(locator string) (bool, error) {
	return s.inner.Exists(locator)
}

func (s *CachedStore) LastModified(locator string) (time.Time, error) {
	return s.inner.LastModified(locator)
}

// Len reports the number of cached artifacts.
func (s *CachedStore) Len() int {
	return s.cache.Len()
}
