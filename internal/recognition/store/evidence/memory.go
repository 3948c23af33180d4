package evidence

import (
	"context"
	"sync"

	"acclaim/internal/recognition/models"
	id "acclaim/pkg/domain"
	"acclaim/pkg/platform/sentinel"
)

// InMemory keeps evidence rows in memory. The file bytes live in the
// external evidence store; this only tracks the references a request owns.
type InMemory struct {
	mu   sync.RWMutex
	rows map[id.EvidenceID]*models.Evidence
}

// NewInMemory creates an empty in-memory evidence store.
func NewInMemory() *InMemory {
	return &InMemory{rows: make(map[id.EvidenceID]*models.Evidence)}
}

// Add stores an evidence row.
func (s *InMemory) Add(_ context.Context, ev *models.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *ev
	s.rows[ev.ID] = &clone
	return nil
}

// FindByID returns one evidence row.
func (s *InMemory) FindByID(_ context.Context, evidenceID id.EvidenceID) (*models.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.rows[evidenceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *ev
	return &clone, nil
}

// Remove deletes an evidence row.
func (s *InMemory) Remove(_ context.Context, evidenceID id.EvidenceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[evidenceID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.rows, evidenceID)
	return nil
}

// ListByRequest returns the evidence rows owned by a request.
func (s *InMemory) ListByRequest(_ context.Context, requestID id.RequestID) ([]*models.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Evidence
	for _, ev := range s.rows {
		if ev.RequestID == requestID {
			clone := *ev
			out = append(out, &clone)
		}
	}
	return out, nil
}
