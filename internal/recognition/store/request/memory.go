package request

import (
	"context"
	"sync"

	"acclaim/internal/recognition/models"
	id "acclaim/pkg/domain"
	"acclaim/pkg/platform/sentinel"
)

// InMemory keeps recognition requests in a map guarded by a single mutex.
// The mutex is held across validate+mutate in Execute, which gives the same
// linearizability as the Postgres store's SELECT FOR UPDATE.
type InMemory struct {
	mu       sync.Mutex
	requests map[id.RequestID]*models.RecognitionRequest
}

// NewInMemory creates an empty in-memory request store.
func NewInMemory() *InMemory {
	return &InMemory{requests: make(map[id.RequestID]*models.RecognitionRequest)}
}

func cloneRequest(r *models.RecognitionRequest) *models.RecognitionRequest {
	clone := *r
	return &clone
}

// CreateIfNoOpen inserts the request unless a non-terminal request already
// exists for the same (requester, competency) pair, in which case it returns
// sentinel.ErrDuplicateOpen.
func (s *InMemory) CreateIfNoOpen(_ context.Context, req *models.RecognitionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.requests {
		if existing.RequesterID == req.RequesterID &&
			existing.CompetencyID == req.CompetencyID &&
			existing.IsOpen() {
			return sentinel.ErrDuplicateOpen
		}
	}
	stored := cloneRequest(req)
	stored.Version = 1
	s.requests[req.ID] = stored
	req.Version = stored.Version
	return nil
}

// FindByID returns a copy of the request.
func (s *InMemory) FindByID(_ context.Context, requestID id.RequestID) (*models.RecognitionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRequest(stored), nil
}

// Execute runs validate then mutate on the request while holding the store
// lock, so no concurrent transition can interleave. The mutated request is
// persisted with a bumped version and a copy is returned.
func (s *InMemory) Execute(
	_ context.Context,
	requestID id.RequestID,
	validate func(*models.RecognitionRequest) error,
	mutate func(*models.RecognitionRequest),
) (*models.RecognitionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := cloneRequest(stored)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	working.Version = stored.Version + 1
	s.requests[requestID] = working
	return cloneRequest(working), nil
}

// ListByRequester returns all requests created by the given expert.
func (s *InMemory) ListByRequester(_ context.Context, requesterID id.ExpertID) ([]*models.RecognitionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.RecognitionRequest
	for _, stored := range s.requests {
		if stored.RequesterID == requesterID {
			out = append(out, cloneRequest(stored))
		}
	}
	return out, nil
}

// ListByEvaluator returns all open requests assigned to the given evaluator.
func (s *InMemory) ListByEvaluator(_ context.Context, evaluatorID id.ExpertID) ([]*models.RecognitionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.RecognitionRequest
	for _, stored := range s.requests {
		if stored.AssignedEvaluatorID != nil && *stored.AssignedEvaluatorID == evaluatorID && stored.IsOpen() {
			out = append(out, cloneRequest(stored))
		}
	}
	return out, nil
}

// ListPendingApproval returns two-tier requests awaiting the given manager's
// decision.
func (s *InMemory) ListPendingApproval(_ context.Context, managerID id.ExpertID) ([]*models.RecognitionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.RecognitionRequest
	for _, stored := range s.requests {
		if stored.Status == models.StatusSubmittedForApproval &&
			stored.AssigningManagerID != nil && *stored.AssigningManagerID == managerID {
			out = append(out, cloneRequest(stored))
		}
	}
	return out, nil
}

// CountOpenByPair supports invariant checks in tests.
func (s *InMemory) CountOpenByPair(_ context.Context, requesterID id.ExpertID, competencyID id.CompetencyID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, stored := range s.requests {
		if stored.RequesterID == requesterID && stored.CompetencyID == competencyID && stored.IsOpen() {
			count++
		}
	}
	return count, nil
}
