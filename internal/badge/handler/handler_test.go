package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"acclaim/internal/badge/models"
	badgesvc "acclaim/internal/badge/service"
	badgestore "acclaim/internal/badge/store"
	"acclaim/internal/platform/middleware"
	id "acclaim/pkg/domain"
	"acclaim/pkg/testutil"
)

const actorHeader = "X-Actor-ID"

type BadgeHandlerSuite struct {
	suite.Suite

	router chi.Router
	issuer *badgesvc.Service
	holder id.ExpertID
	badge  *models.Badge
}

func TestBadgeHandlerSuite(t *testing.T) {
	suite.Run(t, new(BadgeHandlerSuite))
}

func (s *BadgeHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.issuer = badgesvc.New(badgestore.NewInMemory(), nil, logger, nil)

	s.router = chi.NewRouter()
	New(s.issuer, logger, nil, middleware.Actor(actorHeader, "", logger)).Register(s.router)

	s.holder = id.ExpertID(uuid.New())
	badge, err := s.issuer.Attribute(context.Background(), badgesvc.AttributeParams{
		HolderID:        s.holder,
		CompetencyID:    id.CompetencyID(uuid.New()),
		Classification:  models.ClassificationSavoirFaire,
		SourceRequestID: id.RequestID(uuid.New()),
	})
	s.Require().NoError(err)
	s.badge = badge
}

func (s *BadgeHandlerSuite) doRaw(actorID id.ExpertID, method, path string, body any) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	req.Header.Set(actorHeader, actorID.String())
	return testutil.DoRequest(s.router, req)
}

func (s *BadgeHandlerSuite) TestGetBadge() {
	rr := s.doRaw(id.ExpertID(uuid.New()), http.MethodGet, "/badges/"+s.badge.ID.String(), nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	got := testutil.UnmarshalResponse[models.Badge](s.T(), rr)
	s.Equal(s.badge.ID, got.ID)
	s.Equal(models.LevelSilver, got.CertificationLevel)
}

func (s *BadgeHandlerSuite) TestHiddenBadgeInvisibleToOthers() {
	rr := s.doRaw(s.holder, http.MethodPost, "/badges/"+s.badge.ID.String()+"/visibility",
		map[string]bool{"public": false})
	s.Require().Equal(http.StatusOK, rr.Code)

	rr = s.doRaw(id.ExpertID(uuid.New()), http.MethodGet, "/badges/"+s.badge.ID.String(), nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")

	// The holder still sees it.
	rr = s.doRaw(s.holder, http.MethodGet, "/badges/"+s.badge.ID.String(), nil)
	s.Equal(http.StatusOK, rr.Code)
}

func (s *BadgeHandlerSuite) TestVisibilityIsHolderOnly() {
	rr := s.doRaw(id.ExpertID(uuid.New()), http.MethodPost,
		"/badges/"+s.badge.ID.String()+"/visibility", map[string]bool{"public": false})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
}

func (s *BadgeHandlerSuite) TestPublicListingFiltersHidden() {
	hidden, err := s.issuer.Attribute(context.Background(), badgesvc.AttributeParams{
		HolderID:        s.holder,
		CompetencyID:    id.CompetencyID(uuid.New()),
		Classification:  models.ClassificationSavoir,
		SourceRequestID: id.RequestID(uuid.New()),
	})
	s.Require().NoError(err)
	_, err = s.issuer.SetVisibility(context.Background(), hidden.ID, s.holder, false)
	s.Require().NoError(err)

	path := "/experts/" + s.holder.String() + "/badges"

	rr := s.doRaw(id.ExpertID(uuid.New()), http.MethodGet, path, nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	public := testutil.UnmarshalResponse[map[string][]models.Badge](s.T(), rr)
	s.Len((*public)["badges"], 1)

	rr = s.doRaw(s.holder, http.MethodGet, path, nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	own := testutil.UnmarshalResponse[map[string][]models.Badge](s.T(), rr)
	s.Len((*own)["badges"], 2)
}

func (s *BadgeHandlerSuite) TestRevoke() {
	rr := s.doRaw(id.ExpertID(uuid.New()), http.MethodPost,
		"/badges/"+s.badge.ID.String()+"/revoke", map[string]string{"reason": "expired credentials"})
	s.Require().Equal(http.StatusOK, rr.Code)
	revoked := testutil.UnmarshalResponse[models.Badge](s.T(), rr)
	s.False(revoked.Active)

	rr = s.doRaw(id.ExpertID(uuid.New()), http.MethodPost,
		"/badges/"+s.badge.ID.String()+"/revoke", map[string]string{"reason": "again"})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
}

func (s *BadgeHandlerSuite) TestReorderIsHolderOnly() {
	path := "/experts/" + s.holder.String() + "/badges/order"
	body := map[string][]string{"badge_ids": {s.badge.ID.String()}}

	rr := s.doRaw(id.ExpertID(uuid.New()), http.MethodPut, path, body)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")

	rr = s.doRaw(s.holder, http.MethodPut, path, body)
	s.Equal(http.StatusNoContent, rr.Code)
}
