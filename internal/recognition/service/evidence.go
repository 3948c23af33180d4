package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"acclaim/internal/recognition/models"
	id "acclaim/pkg/domain"
	dErrors "acclaim/pkg/domain-errors"
	"acclaim/pkg/platform/sentinel"
)

// AddEvidence stores a justification artifact and attaches its reference to
// the request. Only the requester may attach, and only while the request is
// SUBMITTED or MORE_INFO_REQUESTED.
func (s *Service) AddEvidence(ctx context.Context, requestID id.RequestID, requesterID id.ExpertID, kind models.EvidenceKind, originalName string, data []byte) (*models.Evidence, error) {
	if originalName == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "evidence file name is required")
	}
	if len(data) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "evidence content is required")
	}

	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, wrapRequestErr(err)
	}
	if req.RequesterID != requesterID {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the requester may attach evidence")
	}
	if !req.Mutable() {
		return nil, dErrors.Newf(dErrors.CodeConflict, "evidence cannot be attached while request is %s", req.Status)
	}

	evidenceID := id.EvidenceID(uuid.New())
	storageKey := "requests/" + requestID.String() + "/" + evidenceID.String()
	if err := s.files.Put(ctx, storageKey, data); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "store evidence content")
	}

	ev := &models.Evidence{
		ID:           evidenceID,
		RequestID:    requestID,
		Kind:         kind,
		StorageKey:   storageKey,
		OriginalName: originalName,
	}
	if err := s.evidenceRows.Add(ctx, ev); err != nil {
		// Roll back the blob so the store does not accumulate orphans.
		if delErr := s.files.Delete(ctx, storageKey); delErr != nil {
			s.logger.WarnContext(ctx, "orphaned evidence blob after row insert failure",
				"storage_key", storageKey,
				"error", delErr.Error(),
			)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "record evidence reference")
	}
	return ev, nil
}

// RemoveEvidence detaches an artifact and deletes its stored content. Same
// ownership and mutability rules as AddEvidence.
func (s *Service) RemoveEvidence(ctx context.Context, requestID id.RequestID, evidenceID id.EvidenceID, requesterID id.ExpertID) error {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return wrapRequestErr(err)
	}
	if req.RequesterID != requesterID {
		return dErrors.New(dErrors.CodeForbidden, "only the requester may remove evidence")
	}
	if !req.Mutable() {
		return dErrors.Newf(dErrors.CodeConflict, "evidence cannot be removed while request is %s", req.Status)
	}

	ev, err := s.evidenceRows.FindByID(ctx, evidenceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "evidence not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "load evidence reference")
	}
	if ev.RequestID != requestID {
		return dErrors.New(dErrors.CodeNotFound, "evidence not found")
	}

	if err := s.evidenceRows.Remove(ctx, evidenceID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "remove evidence reference")
	}
	if err := s.files.Delete(ctx, ev.StorageKey); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "evidence blob delete failed after row removal",
			"storage_key", ev.StorageKey,
			"error", err.Error(),
		)
	}
	return nil
}

// ListEvidence returns a request's evidence references to a participant.
func (s *Service) ListEvidence(ctx context.Context, requestID id.RequestID, actorID id.ExpertID) ([]*models.Evidence, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, wrapRequestErr(err)
	}
	if !isParticipant(req, actorID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "not a participant of this request")
	}
	evs, err := s.evidenceRows.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list evidence")
	}
	return evs, nil
}
