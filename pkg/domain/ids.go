// Package domain defines strongly typed identifiers shared across the
// service. Each ID is a distinct type over uuid.UUID so the compiler rejects
// cross-entity mixups (passing an ExpertID where a BadgeID is expected).
package domain

import (
	"github.com/google/uuid"

	dErrors "acclaim/pkg/domain-errors"
)

type (
	// ExpertID identifies a marketplace worker (requester, reviewer or manager).
	ExpertID uuid.UUID
	// CompetencyID identifies a competency in the reference catalog.
	CompetencyID uuid.UUID
	// RequestID identifies a recognition request.
	RequestID uuid.UUID
	// BadgeID identifies an issued badge.
	BadgeID uuid.UUID
	// EvidenceID identifies an uploaded justification artifact.
	EvidenceID uuid.UUID
)

func (id ExpertID) String() string     { return uuid.UUID(id).String() }
func (id CompetencyID) String() string { return uuid.UUID(id).String() }
func (id RequestID) String() string    { return uuid.UUID(id).String() }
func (id BadgeID) String() string      { return uuid.UUID(id).String() }
func (id EvidenceID) String() string   { return uuid.UUID(id).String() }

func (id ExpertID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id CompetencyID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id RequestID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id BadgeID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id EvidenceID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

// parseUUID enforces the shared invariant: IDs must be valid, non-empty,
// non-nil UUIDs. Called at trust boundaries (HTTP handlers, config).
func parseUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return parsed, nil
}

func ParseExpertID(raw string) (ExpertID, error) {
	parsed, err := parseUUID(raw)
	return ExpertID(parsed), err
}

func ParseCompetencyID(raw string) (CompetencyID, error) {
	parsed, err := parseUUID(raw)
	return CompetencyID(parsed), err
}

func ParseRequestID(raw string) (RequestID, error) {
	parsed, err := parseUUID(raw)
	return RequestID(parsed), err
}

func ParseBadgeID(raw string) (BadgeID, error) {
	parsed, err := parseUUID(raw)
	return BadgeID(parsed), err
}

func ParseEvidenceID(raw string) (EvidenceID, error) {
	parsed, err := parseUUID(raw)
	return EvidenceID(parsed), err
}
