// Package evidence defines the external file-store collaborator. The core
// only stores, checks and deletes opaque blobs by key; upload transport,
// virus scanning and retention policy belong to the storage platform.
package evidence

import (
	"context"
	"sync"

	"acclaim/pkg/platform/sentinel"
)

// Store is the narrow interface the core depends on.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// InMemory is a Store for single-instance deployments and tests.
type InMemory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewInMemory creates an empty in-memory blob store.
func NewInMemory() *InMemory {
	return &InMemory{blobs: make(map[string][]byte)}
}

func (s *InMemory) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	s.blobs[key] = stored
	return nil
}

func (s *InMemory) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[key]
	return ok, nil
}

func (s *InMemory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.blobs, key)
	return nil
}
