package store

import (
	"context"
	"sort"
	"sync"

	"acclaim/internal/badge/models"
	id "acclaim/pkg/domain"
	"acclaim/pkg/platform/sentinel"
)

// InMemory keeps badges in a map guarded by a single mutex. Insert enforces
// the one-active-badge-per-(holder, competency) invariant as a backstop, the
// same role the partial unique index plays on Postgres.
type InMemory struct {
	mu     sync.Mutex
	badges map[id.BadgeID]*models.Badge
}

// NewInMemory creates an empty in-memory badge store.
func NewInMemory() *InMemory {
	return &InMemory{badges: make(map[id.BadgeID]*models.Badge)}
}

func cloneBadge(b *models.Badge) *models.Badge {
	clone := *b
	return &clone
}

// Insert stores a new badge. Inserting an active badge while another active
// badge exists for the same (holder, competency) fails with
// sentinel.ErrConflict.
func (s *InMemory) Insert(_ context.Context, badge *models.Badge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if badge.Active {
		for _, existing := range s.badges {
			if existing.Active &&
				existing.HolderID == badge.HolderID &&
				existing.CompetencyID == badge.CompetencyID {
				return sentinel.ErrConflict
			}
		}
	}
	s.badges[badge.ID] = cloneBadge(badge)
	return nil
}

// FindByID returns a copy of the badge.
func (s *InMemory) FindByID(_ context.Context, badgeID id.BadgeID) (*models.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	badge, ok := s.badges[badgeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneBadge(badge), nil
}

// FindActive returns the active badge for a (holder, competency) pair, or
// sentinel.ErrNotFound when none exists.
func (s *InMemory) FindActive(_ context.Context, holderID id.ExpertID, competencyID id.CompetencyID) (*models.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, badge := range s.badges {
		if badge.Active && badge.HolderID == holderID && badge.CompetencyID == competencyID {
			return cloneBadge(badge), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// Deactivate sets active=false on one badge. This is the independently
// committed first phase of re-certification.
func (s *InMemory) Deactivate(_ context.Context, badgeID id.BadgeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	badge, ok := s.badges[badgeID]
	if !ok {
		return sentinel.ErrNotFound
	}
	badge.Active = false
	return nil
}

// Execute runs validate then mutate on one badge while holding the store
// lock, mirroring the request store's transition pattern.
func (s *InMemory) Execute(
	_ context.Context,
	badgeID id.BadgeID,
	validate func(*models.Badge) error,
	mutate func(*models.Badge),
) (*models.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.badges[badgeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := cloneBadge(stored)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.badges[badgeID] = working
	return cloneBadge(working), nil
}

// ListByHolder returns the holder's badges ordered by position then grant
// time, optionally restricted to active ones.
func (s *InMemory) ListByHolder(_ context.Context, holderID id.ExpertID, activeOnly bool) ([]*models.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Badge
	for _, badge := range s.badges {
		if badge.HolderID != holderID {
			continue
		}
		if activeOnly && !badge.Active {
			continue
		}
		out = append(out, cloneBadge(badge))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].GrantedAt.Before(out[j].GrantedAt)
	})
	return out, nil
}

// UpdatePositions applies a display ordering to the holder's badges. Badges
// not named keep their positions.
func (s *InMemory) UpdatePositions(_ context.Context, holderID id.ExpertID, ordered []id.BadgeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pos, badgeID := range ordered {
		badge, ok := s.badges[badgeID]
		if !ok || badge.HolderID != holderID {
			return sentinel.ErrNotFound
		}
		badge.Position = pos
	}
	return nil
}

// CountActive counts active badges for one (holder, competency) pair.
// Supports invariant checks in tests.
func (s *InMemory) CountActive(_ context.Context, holderID id.ExpertID, competencyID id.CompetencyID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, badge := range s.badges {
		if badge.Active && badge.HolderID == holderID && badge.CompetencyID == competencyID {
			count++
		}
	}
	return count, nil
}
