// Package handler exposes badge lookups and holder-facing badge management
// over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"acclaim/internal/badge/models"
	"acclaim/internal/platform/metrics"
	"acclaim/internal/platform/middleware"
	id "acclaim/pkg/domain"
	dErrors "acclaim/pkg/domain-errors"
	"acclaim/pkg/platform/httputil"
	"acclaim/pkg/requestcontext"
)

// Service defines the interface for badge operations.
type Service interface {
	Get(ctx context.Context, badgeID id.BadgeID) (*models.Badge, error)
	ListForHolder(ctx context.Context, holderID id.ExpertID, activeOnly bool) ([]*models.Badge, error)
	Revoke(ctx context.Context, badgeID id.BadgeID, revokedBy id.ExpertID, reason string) (*models.Badge, error)
	SetVisibility(ctx context.Context, badgeID id.BadgeID, holderID id.ExpertID, public bool) (*models.Badge, error)
	Reorder(ctx context.Context, holderID id.ExpertID, ordered []id.BadgeID) error
}

// Handler handles badge endpoints.
type Handler struct {
	logger  *slog.Logger
	badges  Service
	metrics *metrics.Metrics
	actor   func(http.Handler) http.Handler
}

// New creates a badge Handler.
func New(badges Service, logger *slog.Logger, m *metrics.Metrics, actor func(http.Handler) http.Handler) *Handler {
	return &Handler{
		logger:  logger,
		badges:  badges,
		metrics: m,
		actor:   actor,
	}
}

// Register registers the badge routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(br chi.Router) {
		h.routes(br)
	})
}

func (h *Handler) routes(br chi.Router) {
	br.Use(middleware.Recovery(h.logger))
	br.Use(middleware.RequestID)
	br.Use(middleware.RequestTime)
	br.Use(middleware.Logger(h.logger))
	br.Use(middleware.Timeout(30 * time.Second))
	br.Use(middleware.ContentTypeJSON)
	br.Use(middleware.Latency(h.metrics))
	br.Use(h.actor)

	br.Get("/badges/{badgeID}", h.handleGet)
	br.Post("/badges/{badgeID}/revoke", h.handleRevoke)
	br.Post("/badges/{badgeID}/visibility", h.handleSetVisibility)
	br.Get("/experts/{expertID}/badges", h.handleList)
	br.Put("/experts/{expertID}/badges/order", h.handleReorder)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestcontext.ActorID(ctx)
	badgeID, err := id.ParseBadgeID(chi.URLParam(r, "badgeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	badge, err := h.badges.Get(ctx, badgeID)
	if err != nil {
		h.writeServiceError(ctx, w, "get badge", err)
		return
	}
	// A hidden badge is visible to its holder only; everyone else sees it as
	// absent rather than as forbidden.
	if !badge.Public && badge.HolderID != actorID {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "badge not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, badge)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestcontext.ActorID(ctx)
	holderID, err := id.ParseExpertID(chi.URLParam(r, "expertID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	activeOnly := r.URL.Query().Get("active") != "false"
	badges, err := h.badges.ListForHolder(ctx, holderID, activeOnly)
	if err != nil {
		h.writeServiceError(ctx, w, "list badges", err)
		return
	}
	if holderID != actorID {
		visible := badges[:0]
		for _, b := range badges {
			if b.Public {
				visible = append(visible, b)
			}
		}
		badges = visible
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"badges": badges})
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestcontext.ActorID(ctx)
	badgeID, err := id.ParseBadgeID(chi.URLParam(r, "badgeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var body revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	badge, err := h.badges.Revoke(ctx, badgeID, actorID, body.Reason)
	if err != nil {
		h.writeServiceError(ctx, w, "revoke badge", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, badge)
}

type visibilityRequest struct {
	Public bool `json:"public"`
}

func (h *Handler) handleSetVisibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestcontext.ActorID(ctx)
	badgeID, err := id.ParseBadgeID(chi.URLParam(r, "badgeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var body visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	badge, err := h.badges.SetVisibility(ctx, badgeID, actorID, body.Public)
	if err != nil {
		h.writeServiceError(ctx, w, "set badge visibility", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, badge)
}

type reorderRequest struct {
	BadgeIDs []string `json:"badge_ids"`
}

func (h *Handler) handleReorder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := requestcontext.ActorID(ctx)
	holderID, err := id.ParseExpertID(chi.URLParam(r, "expertID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if holderID != actorID {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "only the badge holder may reorder their badges"))
		return
	}
	var body reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	ordered := make([]id.BadgeID, 0, len(body.BadgeIDs))
	for _, raw := range body.BadgeIDs {
		badgeID, err := id.ParseBadgeID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		ordered = append(ordered, badgeID)
	}
	if err := h.badges.Reorder(ctx, holderID, ordered); err != nil {
		h.writeServiceError(ctx, w, "reorder badges", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal || code == dErrors.CodeConsistency {
		h.logger.ErrorContext(ctx, "badge operation failed",
			"operation", op,
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}
