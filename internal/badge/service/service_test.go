package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acclaim/internal/badge/models"
	badgestore "acclaim/internal/badge/store"
	id "acclaim/pkg/domain"
	dErrors "acclaim/pkg/domain-errors"
	"acclaim/pkg/requestcontext"
)

func newIssuer(t *testing.T) (*Service, *badgestore.InMemory) {
	t.Helper()
	store := badgestore.NewInMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, nil, logger, nil), store
}

func attributeParams(holder id.ExpertID, comp id.CompetencyID, classification models.DomainClassification) AttributeParams {
	return AttributeParams{
		HolderID:        holder,
		CompetencyID:    comp,
		Classification:  classification,
		SourceRequestID: id.RequestID(uuid.New()),
	}
}

func TestAttributeFirstGrant(t *testing.T) {
	issuer, store := newIssuer(t)
	holder := id.ExpertID(uuid.New())
	comp := id.CompetencyID(uuid.New())
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	badge, err := issuer.Attribute(ctx, attributeParams(holder, comp, models.ClassificationSavoirFaire))
	require.NoError(t, err)
	assert.Equal(t, models.LevelSilver, badge.CertificationLevel)
	assert.True(t, badge.Active)
	assert.True(t, badge.Public)
	assert.Equal(t, now, badge.GrantedAt)

	count, err := store.CountActive(ctx, holder, comp)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAttributeUnknownClassificationFallsBackToBronze(t *testing.T) {
	issuer, _ := newIssuer(t)
	badge, err := issuer.Attribute(context.Background(),
		attributeParams(id.ExpertID(uuid.New()), id.CompetencyID(uuid.New()), "SAVOIR_QUANTIQUE"))
	require.NoError(t, err)
	assert.Equal(t, models.LevelBronze, badge.CertificationLevel)
}

func TestAttributeMissingClassificationFails(t *testing.T) {
	issuer, _ := newIssuer(t)
	_, err := issuer.Attribute(context.Background(),
		attributeParams(id.ExpertID(uuid.New()), id.CompetencyID(uuid.New()), ""))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodePrecondition))
}

func TestAttributeDeactivatesPriorBadge(t *testing.T) {
	issuer, store := newIssuer(t)
	holder := id.ExpertID(uuid.New())
	comp := id.CompetencyID(uuid.New())
	ctx := context.Background()

	first, err := issuer.Attribute(ctx, attributeParams(holder, comp, models.ClassificationSavoir))
	require.NoError(t, err)

	second, err := issuer.Attribute(ctx, attributeParams(holder, comp, models.ClassificationSavoirAgir))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, models.LevelPlatinum, second.CertificationLevel)

	old, err := store.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, old.Active)

	count, err := store.CountActive(ctx, holder, comp)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAttributeConcurrentSameKeyKeepsInvariant(t *testing.T) {
	issuer, store := newIssuer(t)
	holder := id.ExpertID(uuid.New())
	comp := id.CompetencyID(uuid.New())
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = issuer.Attribute(ctx, attributeParams(holder, comp, models.ClassificationSavoir))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	count, err := store.CountActive(ctx, holder, comp)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// stuckStore delegates to the in-memory store but makes Deactivate a silent
// no-op, simulating a replica that acknowledged the write without applying
// it.
type stuckStore struct {
	*badgestore.InMemory
}

func (s *stuckStore) Deactivate(context.Context, id.BadgeID) error { return nil }

func TestAttributeAbortsWhenDeactivationNotObserved(t *testing.T) {
	inner := badgestore.NewInMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	issuer := New(&stuckStore{InMemory: inner}, nil, logger, nil)

	holder := id.ExpertID(uuid.New())
	comp := id.CompetencyID(uuid.New())
	ctx := context.Background()

	first, err := issuer.Attribute(ctx, attributeParams(holder, comp, models.ClassificationSavoir))
	require.NoError(t, err)

	_, err = issuer.Attribute(ctx, attributeParams(holder, comp, models.ClassificationSavoir))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConsistency))

	// The prior badge must be untouched and still the only active one.
	current, err := inner.FindActive(ctx, holder, comp)
	require.NoError(t, err)
	assert.Equal(t, first.ID, current.ID)
	count, err := inner.CountActive(ctx, holder, comp)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRevoke(t *testing.T) {
	issuer, _ := newIssuer(t)
	holder := id.ExpertID(uuid.New())
	comp := id.CompetencyID(uuid.New())
	admin := id.ExpertID(uuid.New())
	ctx := context.Background()

	badge, err := issuer.Attribute(ctx, attributeParams(holder, comp, models.ClassificationSavoir))
	require.NoError(t, err)

	t.Run("requires a reason", func(t *testing.T) {
		_, err := issuer.Revoke(ctx, badge.ID, admin, "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("deactivates and records revoker", func(t *testing.T) {
		revoked, err := issuer.Revoke(ctx, badge.ID, admin, "credential fraud")
		require.NoError(t, err)
		assert.False(t, revoked.Active)
		assert.Equal(t, "credential fraud", revoked.RevocationReason)
		assert.Equal(t, admin, *revoked.RevokedBy)
	})

	t.Run("revoking twice conflicts", func(t *testing.T) {
		_, err := issuer.Revoke(ctx, badge.ID, admin, "again")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("no replacement is created", func(t *testing.T) {
		badges, err := issuer.ListForHolder(ctx, holder, true)
		require.NoError(t, err)
		assert.Empty(t, badges)
	})
}

func TestSetVisibilityHolderOnly(t *testing.T) {
	issuer, _ := newIssuer(t)
	holder := id.ExpertID(uuid.New())
	ctx := context.Background()

	badge, err := issuer.Attribute(ctx, attributeParams(holder, id.CompetencyID(uuid.New()), models.ClassificationSavoir))
	require.NoError(t, err)

	_, err = issuer.SetVisibility(ctx, badge.ID, id.ExpertID(uuid.New()), false)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	hidden, err := issuer.SetVisibility(ctx, badge.ID, holder, false)
	require.NoError(t, err)
	assert.False(t, hidden.Public)
}

func TestReorder(t *testing.T) {
	issuer, _ := newIssuer(t)
	holder := id.ExpertID(uuid.New())
	ctx := context.Background()

	var ids []id.BadgeID
	for i := 0; i < 3; i++ {
		badge, err := issuer.Attribute(ctx, attributeParams(holder, id.CompetencyID(uuid.New()), models.ClassificationSavoir))
		require.NoError(t, err)
		ids = append(ids, badge.ID)
	}

	require.NoError(t, issuer.Reorder(ctx, holder, []id.BadgeID{ids[2], ids[0], ids[1]}))

	badges, err := issuer.ListForHolder(ctx, holder, true)
	require.NoError(t, err)
	require.Len(t, badges, 3)
	assert.Equal(t, ids[2], badges[0].ID)
	assert.Equal(t, ids[0], badges[1].ID)
	assert.Equal(t, ids[1], badges[2].ID)

	err = issuer.Reorder(ctx, id.ExpertID(uuid.New()), []id.BadgeID{ids[0]})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
