package evaluation

import (
	"context"
	"maps"
	"sync"

	"acclaim/internal/recognition/models"
	id "acclaim/pkg/domain"
	"acclaim/pkg/platform/sentinel"
)

// InMemory keeps at most one evaluation per request. Upsert replaces any
// prior evaluation for the same request, which is the whole contract of the
// evaluation recorder.
type InMemory struct {
	mu          sync.RWMutex
	evaluations map[id.RequestID]*models.Evaluation
}

// NewInMemory creates an empty in-memory evaluation store.
func NewInMemory() *InMemory {
	return &InMemory{evaluations: make(map[id.RequestID]*models.Evaluation)}
}

func cloneEvaluation(e *models.Evaluation) *models.Evaluation {
	clone := *e
	if e.Criteria != nil {
		clone.Criteria = maps.Clone(e.Criteria)
	}
	return &clone
}

// Upsert stores the evaluation, replacing any existing one for the request.
func (s *InMemory) Upsert(_ context.Context, eval *models.Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evaluations[eval.RequestID] = cloneEvaluation(eval)
	return nil
}

// Get returns the evaluation for a request, or sentinel.ErrNotFound if the
// request has not been evaluated yet.
func (s *InMemory) Get(_ context.Context, requestID id.RequestID) (*models.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	eval, ok := s.evaluations[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneEvaluation(eval), nil
}
