//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"acclaim/internal/badge/models"
	badgestore "acclaim/internal/badge/store"
	id "acclaim/pkg/domain"
	"acclaim/pkg/platform/sentinel"
	"acclaim/pkg/testutil/containers"
)

type PostgresBadgeSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *badgestore.PostgresStore
}

func TestPostgresBadgeSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresBadgeSuite))
}

func (s *PostgresBadgeSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = badgestore.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresBadgeSuite) TearDownSuite() {
	_ = s.postgres.DB.Close()
	_ = s.postgres.Container.Terminate(context.Background())
}

func (s *PostgresBadgeSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateAll(context.Background(), "badges"))
}

func (s *PostgresBadgeSuite) newBadge(holder id.ExpertID, comp id.CompetencyID) *models.Badge {
	return &models.Badge{
		ID:                 id.BadgeID(uuid.New()),
		CompetencyID:       comp,
		HolderID:           holder,
		CertificationLevel: models.LevelSilver,
		Active:             true,
		Public:             true,
		GrantedAt:          time.Now().UTC().Truncate(time.Microsecond),
		SourceRequestID:    id.RequestID(uuid.New()),
	}
}

func (s *PostgresBadgeSuite) TestPartialIndexEnforcesOneActive() {
	ctx := context.Background()
	holder := id.ExpertID(uuid.New())
	comp := id.CompetencyID(uuid.New())

	first := s.newBadge(holder, comp)
	s.Require().NoError(s.store.Insert(ctx, first))

	second := s.newBadge(holder, comp)
	s.Require().ErrorIs(s.store.Insert(ctx, second), sentinel.ErrConflict)

	s.Require().NoError(s.store.Deactivate(ctx, first.ID))
	s.NoError(s.store.Insert(ctx, second))

	count, err := s.store.CountActive(ctx, holder, comp)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *PostgresBadgeSuite) TestRoundTripAndListOrdering() {
	ctx := context.Background()
	holder := id.ExpertID(uuid.New())

	a := s.newBadge(holder, id.CompetencyID(uuid.New()))
	b := s.newBadge(holder, id.CompetencyID(uuid.New()))
	s.Require().NoError(s.store.Insert(ctx, a))
	s.Require().NoError(s.store.Insert(ctx, b))

	s.Require().NoError(s.store.UpdatePositions(ctx, holder, []id.BadgeID{b.ID, a.ID}))

	listed, err := s.store.ListByHolder(ctx, holder, true)
	s.Require().NoError(err)
	s.Require().Len(listed, 2)
	s.Equal(b.ID, listed[0].ID)
	s.Equal(a.ID, listed[1].ID)
}

func (s *PostgresBadgeSuite) TestExecuteRevocation() {
	ctx := context.Background()
	holder := id.ExpertID(uuid.New())
	admin := id.ExpertID(uuid.New())
	badge := s.newBadge(holder, id.CompetencyID(uuid.New()))
	s.Require().NoError(s.store.Insert(ctx, badge))

	revoked, err := s.store.Execute(ctx, badge.ID,
		func(b *models.Badge) error { return b.CanRevoke() },
		func(b *models.Badge) { b.ApplyRevocation("audit finding", admin) },
	)
	s.Require().NoError(err)
	s.False(revoked.Active)
	s.Equal("audit finding", revoked.RevocationReason)

	got, err := s.store.FindByID(ctx, badge.ID)
	s.Require().NoError(err)
	s.False(got.Active)
	s.Equal(admin, *got.RevokedBy)
}
