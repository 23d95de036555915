package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	partitionapp "github.com/grf/partitioner/internal/application/partition"
)

var _ partitionapp.ObjectStorage = (*MemoryStorage)(nil)

// MemoryStorage keeps objects in a map. Use it for tests and dry runs.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// FailPut, when set, is returned by Put for keys it matches
	FailPut func(key string) error
}

// NewMemoryStorage creates an empty MemoryStorage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string][]byte)}
}

// List returns the objects under prefix sorted by key
func (s *MemoryStorage) List(_ context.Context, prefix string) ([]partitionapp.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var objects []partitionapp.ObjectInfo
	for key, data := range s.objects {
		if strings.HasPrefix(key, prefix) {
			objects = append(objects, partitionapp.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	slices.SortFunc(objects, func(a, b partitionapp.ObjectInfo) int {
		return strings.Compare(a.Key, b.Key)
	})
	return objects, nil
}

// Open returns a reader over a copy of the object
func (s *MemoryStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Put stores a copy of data
func (s *MemoryStorage) Put(_ context.Context, key string, data []byte, _ string) error {
	if key == "" {
		return errors.New("storage key is required")
	}
	if s.FailPut != nil {
		if err := s.FailPut(key); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.objects[key] = bytes.Clone(data)
	s.mu.Unlock()
	return nil
}

// Delete removes keys; missing keys are ignored
func (s *MemoryStorage) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.objects, key)
	}
	return nil
}

// Get returns the stored bytes of key
func (s *MemoryStorage) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	return data, ok
}

// Keys returns all stored keys in order
func (s *MemoryStorage) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
