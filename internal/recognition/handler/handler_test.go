package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	badgemodels "acclaim/internal/badge/models"
	badgesvc "acclaim/internal/badge/service"
	badgestore "acclaim/internal/badge/store"
	"acclaim/internal/competency"
	"acclaim/internal/evidence"
	"acclaim/internal/platform/middleware"
	"acclaim/internal/recognition/models"
	recsvc "acclaim/internal/recognition/service"
	evaluationstore "acclaim/internal/recognition/store/evaluation"
	evidencestore "acclaim/internal/recognition/store/evidence"
	requeststore "acclaim/internal/recognition/store/request"
	id "acclaim/pkg/domain"
	"acclaim/pkg/testutil"
)

const actorHeader = "X-Actor-ID"

func newTestRouter(t *testing.T, directory *competency.InMemory, badges *badgestore.InMemory) chi.Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	issuer := badgesvc.New(badges, nil, logger, nil)
	service := recsvc.New(
		requeststore.NewInMemory(),
		evaluationstore.NewInMemory(),
		evidencestore.NewInMemory(),
		evidence.NewInMemory(),
		directory,
		issuer,
		nil,
		logger,
		nil,
	)
	router := chi.NewRouter()
	New(service, logger, nil, middleware.Actor(actorHeader, "", logger)).Register(router)
	return router
}

type HandlerSuite struct {
	suite.Suite

	router       chi.Router
	directory    *competency.InMemory
	badges       *badgestore.InMemory
	requesterID  string
	reviewerID   string
	managerID    string
	competencyID string
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.directory = competency.NewInMemory()
	s.badges = badgestore.NewInMemory()
	s.router = newTestRouter(s.T(), s.directory, s.badges)

	s.requesterID = uuid.NewString()
	s.reviewerID = uuid.NewString()
	s.managerID = uuid.NewString()
	s.competencyID = uuid.NewString()

	compID, err := id.ParseCompetencyID(s.competencyID)
	s.Require().NoError(err)
	s.directory.Set(compID, badgemodels.ClassificationSavoirFaire)
}

func (s *HandlerSuite) doRaw(actorID, method, path string, body any) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	if actorID != "" {
		req.Header.Set(actorHeader, actorID)
	}
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) do(actorID, method, path string, body any) *models.RecognitionRequest {
	rr := s.doRaw(actorID, method, path, body)
	s.Require().Contains([]int{http.StatusOK, http.StatusCreated}, rr.Code, rr.Body.String())
	return testutil.UnmarshalResponse[models.RecognitionRequest](s.T(), rr)
}

func (s *HandlerSuite) submit() *models.RecognitionRequest {
	return s.do(s.requesterID, http.MethodPost, "/recognition/requests",
		map[string]string{"competency_id": s.competencyID, "comment": "please"})
}

func (s *HandlerSuite) TestMissingActorRejected() {
	rr := s.doRaw("", http.MethodPost, "/recognition/requests",
		map[string]string{"competency_id": s.competencyID})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
}

func (s *HandlerSuite) TestSubmitCreatesRequest() {
	req := s.submit()
	s.Equal(models.StatusSubmitted, req.Status)
	s.Equal(s.requesterID, req.RequesterID.String())
}

func (s *HandlerSuite) TestSubmitRejectsMalformedCompetency() {
	rr := s.doRaw(s.requesterID, http.MethodPost, "/recognition/requests",
		map[string]string{"competency_id": "not-a-uuid"})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
}

func (s *HandlerSuite) TestDuplicateOpenRequestConflicts() {
	s.submit()
	rr := s.doRaw(s.requesterID, http.MethodPost, "/recognition/requests",
		map[string]string{"competency_id": s.competencyID})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "duplicate_open_request")
}

func (s *HandlerSuite) TestTwoTierFlowOverHTTP() {
	req := s.submit()
	base := "/recognition/requests/" + req.ID.String()

	assigned := s.do(s.managerID, http.MethodPost, base+"/assign",
		map[string]string{"reviewer_id": s.reviewerID, "instructions": "verify refs"})
	s.Equal(models.StatusAssignedReviewer, assigned.Status)

	rr := s.doRaw(s.reviewerID, http.MethodPost, base+"/evaluation", map[string]any{
		"recommendation": "APPROVE",
		"criteria":       map[string]int{"depth": 5},
		"overall_score":  90,
	})
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())

	forApproval := s.do(s.reviewerID, http.MethodPost, base+"/submit-for-approval", nil)
	s.Equal(models.StatusSubmittedForApproval, forApproval.Status)

	decided := s.do(s.managerID, http.MethodPost, base+"/decision",
		map[string]any{"decision": "APPROVE", "permanent": true})
	s.Equal(models.StatusApproved, decided.Status)
}

func (s *HandlerSuite) TestDecisionByWrongActorForbidden() {
	req := s.submit()
	base := "/recognition/requests/" + req.ID.String()
	s.do(s.reviewerID, http.MethodPost, base+"/self-assign", nil)

	rr := s.doRaw(uuid.NewString(), http.MethodPost, base+"/decision",
		map[string]any{"decision": "REJECT", "comment": "no"})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
}

func (s *HandlerSuite) TestIllegalTransitionConflicts() {
	req := s.submit()
	base := "/recognition/requests/" + req.ID.String()
	s.do(s.reviewerID, http.MethodPost, base+"/self-assign", nil)

	rr := s.doRaw(s.requesterID, http.MethodPost, base+"/cancel", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
}

func (s *HandlerSuite) TestListViews() {
	s.submit()

	rr := s.doRaw(s.requesterID, http.MethodGet, "/recognition/requests?view=mine", nil)
	s.Equal(http.StatusOK, rr.Code)
	body := testutil.UnmarshalResponse[map[string][]models.RecognitionRequest](s.T(), rr)
	s.Len((*body)["requests"], 1)

	rr = s.doRaw(s.requesterID, http.MethodGet, "/recognition/requests?view=everything", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestEvidenceEndpoints() {
	req := s.submit()
	base := "/recognition/requests/" + req.ID.String()

	rr := s.doRaw(s.requesterID, http.MethodPost, base+"/evidence", map[string]any{
		"kind":          "DOCUMENT",
		"original_name": "cv.pdf",
		"content":       []byte("content"),
	})
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	ev := testutil.UnmarshalResponse[models.Evidence](s.T(), rr)

	rr = s.doRaw(s.requesterID, http.MethodDelete,
		base+"/evidence/"+ev.ID.String(), nil)
	s.Equal(http.StatusNoContent, rr.Code)
}

func (s *HandlerSuite) TestApprovalIssuesBadge() {
	req := s.submit()
	base := "/recognition/requests/" + req.ID.String()

	s.do(s.reviewerID, http.MethodPost, base+"/self-assign", nil)
	rr := s.doRaw(s.reviewerID, http.MethodPost, base+"/evaluation",
		map[string]any{"recommendation": "APPROVE", "overall_score": 80})
	s.Require().Equal(http.StatusOK, rr.Code)
	s.do(s.reviewerID, http.MethodPost, base+"/decision",
		map[string]any{"decision": "APPROVE", "permanent": true})

	issued, err := s.badges.FindActive(context.Background(), req.RequesterID, req.CompetencyID)
	s.Require().NoError(err)
	s.Equal(badgemodels.LevelSilver, issued.CertificationLevel)
}

func TestBearerActorResolution(t *testing.T) {
	const signingKey = "test-signing-key"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	issuer := badgesvc.New(badgestore.NewInMemory(), nil, logger, nil)
	service := recsvc.New(
		requeststore.NewInMemory(),
		evaluationstore.NewInMemory(),
		evidencestore.NewInMemory(),
		evidence.NewInMemory(),
		competency.NewInMemory(),
		issuer,
		nil,
		logger,
		nil,
	)
	router := chi.NewRouter()
	New(service, logger, nil, middleware.Actor(actorHeader, signingKey, logger)).Register(router)

	actor := uuid.NewString()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": actor}).
		SignedString([]byte(signingKey))
	require.NoError(t, err)

	req := testutil.NewJSONRequest(t, http.MethodGet, "/recognition/requests", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := testutil.DoRequest(router, req)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// A token signed with another key never resolves an actor.
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": actor}).
		SignedString([]byte("wrong-key"))
	require.NoError(t, err)
	req = testutil.NewJSONRequest(t, http.MethodGet, "/recognition/requests", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rr = testutil.DoRequest(router, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
