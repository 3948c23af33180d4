package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acclaim/internal/badge/models"
	id "acclaim/pkg/domain"
	"acclaim/pkg/platform/sentinel"
)

func seedBadge(t *testing.T, store *InMemory, holder id.ExpertID, comp id.CompetencyID, active bool) *models.Badge {
	t.Helper()
	badge := &models.Badge{
		ID:                 id.BadgeID(uuid.New()),
		CompetencyID:       comp,
		HolderID:           holder,
		CertificationLevel: models.LevelBronze,
		Active:             active,
		Public:             true,
		GrantedAt:          time.Now(),
		SourceRequestID:    id.RequestID(uuid.New()),
	}
	require.NoError(t, store.Insert(context.Background(), badge))
	return badge
}

func TestInsertEnforcesOneActivePerKey(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	holder := id.ExpertID(uuid.New())
	comp := id.CompetencyID(uuid.New())

	first := seedBadge(t, store, holder, comp, true)

	second := *first
	second.ID = id.BadgeID(uuid.New())
	assert.ErrorIs(t, store.Insert(ctx, &second), sentinel.ErrConflict)

	// Inactive rows for the same key are always allowed.
	third := second
	third.ID = id.BadgeID(uuid.New())
	third.Active = false
	assert.NoError(t, store.Insert(ctx, &third))

	// After deactivation a new active row fits.
	require.NoError(t, store.Deactivate(ctx, first.ID))
	assert.NoError(t, store.Insert(ctx, &second))
}

func TestFindActive(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	holder := id.ExpertID(uuid.New())
	comp := id.CompetencyID(uuid.New())

	_, err := store.FindActive(ctx, holder, comp)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	seedBadge(t, store, holder, comp, false)
	_, err = store.FindActive(ctx, holder, comp)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	active := seedBadge(t, store, holder, id.CompetencyID(uuid.New()), true)
	found, err := store.FindActive(ctx, holder, active.CompetencyID)
	require.NoError(t, err)
	assert.Equal(t, active.ID, found.ID)
}

func TestListByHolderOrdersByPosition(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	holder := id.ExpertID(uuid.New())

	a := seedBadge(t, store, holder, id.CompetencyID(uuid.New()), true)
	b := seedBadge(t, store, holder, id.CompetencyID(uuid.New()), true)
	c := seedBadge(t, store, holder, id.CompetencyID(uuid.New()), false)

	require.NoError(t, store.UpdatePositions(ctx, holder, []id.BadgeID{b.ID, a.ID}))

	active, err := store.ListByHolder(ctx, holder, true)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, b.ID, active[0].ID)
	assert.Equal(t, a.ID, active[1].ID)

	all, err := store.ListByHolder(ctx, holder, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	err = store.UpdatePositions(ctx, id.ExpertID(uuid.New()), []id.BadgeID{c.ID})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestExecuteReturnsCopies(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	holder := id.ExpertID(uuid.New())
	badge := seedBadge(t, store, holder, id.CompetencyID(uuid.New()), true)

	revoked, err := store.Execute(ctx, badge.ID,
		func(b *models.Badge) error { return b.CanRevoke() },
		func(b *models.Badge) { b.ApplyRevocation("test", holder) },
	)
	require.NoError(t, err)

	// Mutating the returned copy must not leak into the store.
	revoked.RevocationReason = "tampered"
	stored, err := store.FindByID(ctx, badge.ID)
	require.NoError(t, err)
	assert.Equal(t, "test", stored.RevocationReason)
	assert.False(t, stored.Active)
}
