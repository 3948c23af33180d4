package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	badgemetrics "acclaim/internal/badge/metrics"
	"acclaim/internal/badge/models"
	id "acclaim/pkg/domain"
	dErrors "acclaim/pkg/domain-errors"
	"acclaim/pkg/platform/lock"
	"acclaim/pkg/platform/sentinel"
	"acclaim/pkg/requestcontext"
)

// BadgeStore is the persistence the issuer depends on.
type BadgeStore interface {
	Insert(ctx context.Context, badge *models.Badge) error
	FindByID(ctx context.Context, badgeID id.BadgeID) (*models.Badge, error)
	FindActive(ctx context.Context, holderID id.ExpertID, competencyID id.CompetencyID) (*models.Badge, error)
	Deactivate(ctx context.Context, badgeID id.BadgeID) error
	Execute(ctx context.Context, badgeID id.BadgeID, validate func(*models.Badge) error, mutate func(*models.Badge)) (*models.Badge, error)
	ListByHolder(ctx context.Context, holderID id.ExpertID, activeOnly bool) ([]*models.Badge, error)
	UpdatePositions(ctx context.Context, holderID id.ExpertID, ordered []id.BadgeID) error
}

// Service is the badge issuer. It owns the one-active-badge-per-(holder,
// competency) invariant: attribution for a given key is serialized on a keyed
// lock, prior grants are deactivated as an independently committed step and
// verified gone before the replacement is inserted, and the store's partial
// unique index backstops the whole dance.
type Service struct {
	badges  BadgeStore
	locks   lock.Keyed
	logger  *slog.Logger
	metrics *badgemetrics.Metrics
}

// New creates the badge issuer.
func New(badges BadgeStore, locks lock.Keyed, logger *slog.Logger, metrics *badgemetrics.Metrics) *Service {
	if locks == nil {
		locks = lock.NewLocal()
	}
	return &Service{badges: badges, locks: locks, logger: logger, metrics: metrics}
}

// AttributeParams carries everything attribution needs from the approved
// request.
type AttributeParams struct {
	HolderID        id.ExpertID
	CompetencyID    id.CompetencyID
	Classification  models.DomainClassification
	SourceRequestID id.RequestID
	ExpiresAt       *time.Time
}

// Attribute grants the badge for an approved recognition request.
//
// Sequencing: derive the level, take the per-key lock, deactivate any
// existing active badge as its own committed step, re-read to verify no
// active badge remains, then insert the new one. The verify step exists
// because no concurrent reader may ever observe two active rows for one key;
// if it fails, attribution aborts with a consistency error and the new badge
// is not inserted.
func (s *Service) Attribute(ctx context.Context, params AttributeParams) (*models.Badge, error) {
	level, fallback, err := models.LevelFor(params.Classification)
	if err != nil {
		return nil, err
	}
	if fallback {
		s.logger.WarnContext(ctx, "unmapped domain classification, defaulting level to bronze",
			"classification", string(params.Classification),
			"competency_id", params.CompetencyID.String(),
		)
	}

	key := params.HolderID.String() + "/" + params.CompetencyID.String()
	release, err := s.locks.Acquire(ctx, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "acquire attribution lock")
	}
	defer release()

	existing, err := s.badges.FindActive(ctx, params.HolderID, params.CompetencyID)
	switch {
	case err == nil:
		if err := s.badges.Deactivate(ctx, existing.ID); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "deactivate prior badge")
		}
		// Re-read after the deactivation commits. Anything still active here
		// means the invariant cannot be guaranteed; abort before inserting.
		if _, verifyErr := s.badges.FindActive(ctx, params.HolderID, params.CompetencyID); !errors.Is(verifyErr, sentinel.ErrNotFound) {
			s.metrics.IncConsistencyAbort()
			if verifyErr != nil {
				return nil, dErrors.Wrap(verifyErr, dErrors.CodeConsistency, "verify prior badge deactivation")
			}
			return nil, dErrors.New(dErrors.CodeConsistency, "prior badge still active after deactivation")
		}
	case errors.Is(err, sentinel.ErrNotFound):
		// First grant for this pair.
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "look up active badge")
	}

	badge := &models.Badge{
		ID:                 id.BadgeID(uuid.New()),
		CompetencyID:       params.CompetencyID,
		HolderID:           params.HolderID,
		CertificationLevel: level,
		Active:             true,
		Public:             true,
		GrantedAt:          requestcontext.Now(ctx),
		ExpiresAt:          params.ExpiresAt,
		SourceRequestID:    params.SourceRequestID,
	}
	if err := s.badges.Insert(ctx, badge); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.IncConsistencyAbort()
			return nil, dErrors.New(dErrors.CodeConsistency, "concurrent attribution detected for holder and competency")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "insert badge")
	}

	s.metrics.IncIssued(string(level))
	s.logger.InfoContext(ctx, "badge issued",
		"badge_id", badge.ID.String(),
		"holder_id", badge.HolderID.String(),
		"competency_id", badge.CompetencyID.String(),
		"level", string(level),
	)
	return badge, nil
}

// Revoke deactivates a badge and records who revoked it and why. It never
// creates a replacement.
func (s *Service) Revoke(ctx context.Context, badgeID id.BadgeID, revokedBy id.ExpertID, reason string) (*models.Badge, error) {
	if revokedBy.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "revoker id is required")
	}
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "revocation reason is required")
	}
	badge, err := s.badges.Execute(ctx, badgeID,
		func(b *models.Badge) error {
			return b.CanRevoke()
		},
		func(b *models.Badge) {
			b.ApplyRevocation(reason, revokedBy)
		},
	)
	if err != nil {
		return nil, wrapBadgeErr(err)
	}
	s.metrics.IncRevoked()
	s.logger.InfoContext(ctx, "badge revoked",
		"badge_id", badgeID.String(),
		"revoked_by", revokedBy.String(),
	)
	return badge, nil
}

// SetVisibility toggles whether a badge is publicly listed. Only the holder
// may change it. Pure metadata, no invariant implications.
func (s *Service) SetVisibility(ctx context.Context, badgeID id.BadgeID, holderID id.ExpertID, public bool) (*models.Badge, error) {
	badge, err := s.badges.Execute(ctx, badgeID,
		func(b *models.Badge) error {
			if b.HolderID != holderID {
				return dErrors.New(dErrors.CodeForbidden, "only the badge holder may change visibility")
			}
			return nil
		},
		func(b *models.Badge) {
			b.Public = public
		},
	)
	if err != nil {
		return nil, wrapBadgeErr(err)
	}
	return badge, nil
}

// Reorder applies the holder's preferred display ordering.
func (s *Service) Reorder(ctx context.Context, holderID id.ExpertID, ordered []id.BadgeID) error {
	if len(ordered) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "badge order is required")
	}
	if err := s.badges.UpdatePositions(ctx, holderID, ordered); err != nil {
		return wrapBadgeErr(err)
	}
	return nil
}

// Get returns one badge.
func (s *Service) Get(ctx context.Context, badgeID id.BadgeID) (*models.Badge, error) {
	badge, err := s.badges.FindByID(ctx, badgeID)
	if err != nil {
		return nil, wrapBadgeErr(err)
	}
	return badge, nil
}

// ListForHolder returns a holder's badges, optionally only active ones.
func (s *Service) ListForHolder(ctx context.Context, holderID id.ExpertID, activeOnly bool) ([]*models.Badge, error) {
	badges, err := s.badges.ListByHolder(ctx, holderID, activeOnly)
	if err != nil {
		return nil, wrapBadgeErr(err)
	}
	return badges, nil
}

func wrapBadgeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "badge not found")
	case dErrors.HasCode(err, dErrors.CodeForbidden),
		dErrors.HasCode(err, dErrors.CodeConflict),
		dErrors.HasCode(err, dErrors.CodeInvalidInput):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "badge store failure")
	}
}
