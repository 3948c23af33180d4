// Package handler exposes the recognition workflow over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"acclaim/internal/platform/metrics"
	"acclaim/internal/platform/middleware"
	recService "acclaim/internal/recognition/service"
	"acclaim/internal/recognition/models"
	id "acclaim/pkg/domain"
	dErrors "acclaim/pkg/domain-errors"
	"acclaim/pkg/platform/httputil"
	"acclaim/pkg/requestcontext"
)

// Service defines the interface for recognition workflow operations.
type Service interface {
	Submit(ctx context.Context, requesterID id.ExpertID, competencyID id.CompetencyID, comment string) (*models.RecognitionRequest, error)
	SelfAssign(ctx context.Context, requestID id.RequestID, evaluatorID id.ExpertID) (*models.RecognitionRequest, error)
	AssignToReviewer(ctx context.Context, requestID id.RequestID, managerID, reviewerID id.ExpertID, instructions string) (*models.RecognitionRequest, error)
	RecordEvaluation(ctx context.Context, requestID id.RequestID, evaluatorID id.ExpertID, recommendation models.Recommendation, criteria map[string]int, score int, comment string) (*models.Evaluation, error)
	SubmitForApproval(ctx context.Context, requestID id.RequestID, evaluatorID id.ExpertID) (*models.RecognitionRequest, error)
	Decide(ctx context.Context, requestID id.RequestID, actorID id.ExpertID, params recService.DecideParams) (*models.RecognitionRequest, error)
	Resubmit(ctx context.Context, requestID id.RequestID, requesterID id.ExpertID, additionalComment string) (*models.RecognitionRequest, error)
	Cancel(ctx context.Context, requestID id.RequestID, requesterID id.ExpertID) (*models.RecognitionRequest, error)
	Get(ctx context.Context, requestID id.RequestID, actorID id.ExpertID) (*models.RecognitionRequest, error)
	Evaluation(ctx context.Context, requestID id.RequestID, actorID id.ExpertID) (*models.Evaluation, error)
	ListForRequester(ctx context.Context, requesterID id.ExpertID) ([]*models.RecognitionRequest, error)
	ListAssignedTo(ctx context.Context, evaluatorID id.ExpertID) ([]*models.RecognitionRequest, error)
	ListPendingApproval(ctx context.Context, managerID id.ExpertID) ([]*models.RecognitionRequest, error)
	AddEvidence(ctx context.Context, requestID id.RequestID, requesterID id.ExpertID, kind models.EvidenceKind, originalName string, data []byte) (*models.Evidence, error)
	RemoveEvidence(ctx context.Context, requestID id.RequestID, evidenceID id.EvidenceID, requesterID id.ExpertID) error
	ListEvidence(ctx context.Context, requestID id.RequestID, actorID id.ExpertID) ([]*models.Evidence, error)
}

// Handler handles recognition workflow endpoints.
type Handler struct {
	logger      *slog.Logger
	recognition Service
	metrics     *metrics.Metrics
	actor       func(http.Handler) http.Handler
}

// New creates a recognition Handler. actor is the identity middleware built
// by the composition root.
func New(recognition Service, logger *slog.Logger, m *metrics.Metrics, actor func(http.Handler) http.Handler) *Handler {
	return &Handler{
		logger:      logger,
		recognition: recognition,
		metrics:     m,
		actor:       actor,
	}
}

// Register registers the recognition routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(rr chi.Router) {
		h.routes(rr)
	})
}

func (h *Handler) routes(rr chi.Router) {
	rr.Use(middleware.Recovery(h.logger))
	rr.Use(middleware.RequestID)
	rr.Use(middleware.RequestTime)
	rr.Use(middleware.Logger(h.logger))
	rr.Use(middleware.Timeout(30 * time.Second))
	rr.Use(middleware.ContentTypeJSON)
	rr.Use(middleware.Latency(h.metrics))
	rr.Use(h.actor)

	rr.Post("/recognition/requests", h.handleSubmit)
	rr.Get("/recognition/requests", h.handleList)
	rr.Get("/recognition/requests/{requestID}", h.handleGet)
	rr.Post("/recognition/requests/{requestID}/self-assign", h.handleSelfAssign)
	rr.Post("/recognition/requests/{requestID}/assign", h.handleAssign)
	rr.Post("/recognition/requests/{requestID}/evaluation", h.handleRecordEvaluation)
	rr.Get("/recognition/requests/{requestID}/evaluation", h.handleGetEvaluation)
	rr.Post("/recognition/requests/{requestID}/submit-for-approval", h.handleSubmitForApproval)
	rr.Post("/recognition/requests/{requestID}/decision", h.handleDecide)
	rr.Post("/recognition/requests/{requestID}/resubmit", h.handleResubmit)
	rr.Post("/recognition/requests/{requestID}/cancel", h.handleCancel)
	rr.Post("/recognition/requests/{requestID}/evidence", h.handleAddEvidence)
	rr.Get("/recognition/requests/{requestID}/evidence", h.handleListEvidence)
	rr.Delete("/recognition/requests/{requestID}/evidence/{evidenceID}", h.handleRemoveEvidence)
}

type submitRequest struct {
	CompetencyID string `json:"competency_id"`
	Comment      string `json:"comment"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestcontext.ActorID(ctx)

	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	competencyID, err := id.ParseCompetencyID(body.CompetencyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, err := h.recognition.Submit(ctx, actorID, competencyID, body.Comment)
	if err != nil {
		h.writeServiceError(ctx, w, "submit request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, req)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestcontext.ActorID(ctx)

	var (
		reqs []*models.RecognitionRequest
		err  error
	)
	switch view := r.URL.Query().Get("view"); view {
	case "", "mine":
		reqs, err = h.recognition.ListForRequester(ctx, actorID)
	case "assigned":
		reqs, err = h.recognition.ListAssignedTo(ctx, actorID)
	case "pending-approval":
		reqs, err = h.recognition.ListPendingApproval(ctx, actorID)
	default:
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "unknown view %q", view))
		return
	}
	if err != nil {
		h.writeServiceError(ctx, w, "list requests", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestcontext.ActorID(ctx)
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := h.recognition.Get(ctx, requestID, actorID)
	if err != nil {
		h.writeServiceError(ctx, w, "get request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) handleSelfAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestcontext.ActorID(ctx)
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := h.recognition.SelfAssign(ctx, requestID, actorID)
	if err != nil {
		h.writeServiceError(ctx, w, "self-assign", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

type assignRequest struct {
	ReviewerID   string `json:"reviewer_id"`
	Instructions string `json:"instructions"`
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestcontext.ActorID(ctx)
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var body assignRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	reviewerID, err := id.ParseExpertID(body.ReviewerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := h.recognition.AssignToReviewer(ctx, requestID, actorID, reviewerID, body.Instructions)
	if err != nil {
		h.writeServiceError(ctx, w, "assign reviewer", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

type evaluationRequest struct {
	Recommendation string         `json:"recommendation"`
	Criteria       map[string]int `json:"criteria"`
	OverallScore   int            `json:"overall_score"`
	Comment        string         `json:"comment"`
}

func (h *Handler) handleRecordEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestcontext.ActorID(ctx)
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var body evaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	recommendation, err := models.ParseRecommendation(body.Recommendation)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	eval, err := h.recognition.RecordEvaluation(ctx, requestID, actorID, recommendation, body.Criteria, body.OverallScore, body.Comment)
	if err != nil {
		h.writeServiceError(ctx, w, "record evaluation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, eval)
}

func (h *Handler) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestcontext.ActorID(ctx)
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	eval, err := h.recognition.Evaluation(ctx, requestID, actorID)
	if err != nil {
		h.writeServiceError(ctx, w, "get evaluation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, eval)
}

func (h *Handler) handleSubmitForApproval(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestcontext.ActorID(ctx)
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := h.recognition.SubmitForApproval(ctx, requestID, actorID)
	if err != nil {
		h.writeServiceError(ctx, w, "submit for approval", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

type decisionRequest struct {
	Decision  string     `json:"decision"`
	Comment   string     `json:"comment"`
	Permanent bool       `json:"permanent"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestcontext.ActorID(ctx)
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var body decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	decision, err := models.ParseDecision(body.Decision)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := h.recognition.Decide(ctx, requestID, actorID, recService.DecideParams{
		Decision:  decision,
		Comment:   body.Comment,
		Permanent: body.Permanent,
		ExpiresAt: body.ExpiresAt,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "decide", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

type resubmitRequest struct {
	Comment string `json:"comment"`
}

func (h *Handler) handleResubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestcontext.ActorID(ctx)
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var body resubmitRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}
	req, err := h.recognition.Resubmit(ctx, requestID, actorID, body.Comment)
	if err != nil {
		h.writeServiceError(ctx, w, "resubmit", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestcontext.ActorID(ctx)
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := h.recognition.Cancel(ctx, requestID, actorID)
	if err != nil {
		h.writeServiceError(ctx, w, "cancel", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

type addEvidenceRequest struct {
	Kind         string `json:"kind"`
	OriginalName string `json:"original_name"`
	Content      []byte `json:"content"`
}

func (h *Handler) handleAddEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestcontext.ActorID(ctx)
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var body addEvidenceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	kind, err := models.ParseEvidenceKind(body.Kind)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ev, err := h.recognition.AddEvidence(ctx, requestID, actorID, kind, body.OriginalName, body.Content)
	if err != nil {
		h.writeServiceError(ctx, w, "add evidence", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ev)
}

func (h *Handler) handleListEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestcontext.ActorID(ctx)
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	evs, err := h.recognition.ListEvidence(ctx, requestID, actorID)
	if err != nil {
		h.writeServiceError(ctx, w, "list evidence", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"evidence": evs})
}

func (h *Handler) handleRemoveEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestcontext.ActorID(ctx)
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	evidenceID, err := id.ParseEvidenceID(chi.URLParam(r, "evidenceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.recognition.RemoveEvidence(ctx, requestID, evidenceID, actorID); err != nil {
		h.writeServiceError(ctx, w, "remove evidence", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal || code == dErrors.CodeConsistency {
		h.logger.ErrorContext(ctx, "recognition operation failed",
			"operation", op,
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}
