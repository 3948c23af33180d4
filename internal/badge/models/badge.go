package models

import (
	"time"

	id "acclaim/pkg/domain"
	dErrors "acclaim/pkg/domain-errors"
)

// CertificationLevel is the grade carried by a badge.
type CertificationLevel string

const (
	LevelBronze   CertificationLevel = "BRONZE"
	LevelSilver   CertificationLevel = "SILVER"
	LevelGold     CertificationLevel = "GOLD"
	LevelPlatinum CertificationLevel = "PLATINUM"
)

// DomainClassification is a competency's domain code from the reference
// catalog. Level derivation keys off it.
type DomainClassification string

const (
	ClassificationSavoir      DomainClassification = "SAVOIR"
	ClassificationSavoirFaire DomainClassification = "SAVOIR_FAIRE"
	ClassificationSavoirEtre  DomainClassification = "SAVOIR_ETRE"
	ClassificationSavoirAgir  DomainClassification = "SAVOIR_AGIR"
)

// knownClassifications is the closed set the level table must cover.
var knownClassifications = []DomainClassification{
	ClassificationSavoir,
	ClassificationSavoirFaire,
	ClassificationSavoirEtre,
	ClassificationSavoirAgir,
}

// levelTable is the exhaustive classification -> level mapping. It is a data
// table rather than a switch so coverage can be checked at startup and new
// classification codes fail loudly instead of silently defaulting.
var levelTable = map[DomainClassification]CertificationLevel{
	ClassificationSavoir:      LevelBronze,
	ClassificationSavoirFaire: LevelSilver,
	ClassificationSavoirEtre:  LevelSilver,
	ClassificationSavoirAgir:  LevelPlatinum,
}

// ValidateLevelTable verifies the table covers every known classification.
// Called once from main; a gap is a programming error worth failing startup.
func ValidateLevelTable() error {
	for _, c := range knownClassifications {
		if _, ok := levelTable[c]; !ok {
			return dErrors.Newf(dErrors.CodeInternal, "level table has no mapping for classification %s", c)
		}
	}
	return nil
}

// LevelFor derives the certification level for a classification.
//
// A missing classification is a fatal precondition failure, never defaulted.
// A non-empty code outside the table maps to BRONZE; fallback=true tells the
// caller to log a warning.
func LevelFor(classification DomainClassification) (level CertificationLevel, fallback bool, err error) {
	if classification == "" {
		return "", false, dErrors.New(dErrors.CodePrecondition, "competency has no domain classification")
	}
	if mapped, ok := levelTable[classification]; ok {
		return mapped, false, nil
	}
	return LevelBronze, true, nil
}

// Badge is the durable, revocable credential granted on approval.
//
// Invariant: for a given (HolderID, CompetencyID), at most one badge row has
// Active=true at any instant. Enforced by the issuer's per-key serialization
// and, on Postgres, by a partial unique index.
type Badge struct {
	ID                 id.BadgeID         `json:"id"`
	CompetencyID       id.CompetencyID    `json:"competency_id"`
	HolderID           id.ExpertID        `json:"holder_id"`
	CertificationLevel CertificationLevel `json:"certification_level"`
	Active             bool               `json:"active"`
	Public             bool               `json:"public"`
	Position           int                `json:"position"`
	GrantedAt          time.Time          `json:"granted_at"`
	ExpiresAt          *time.Time         `json:"expires_at,omitempty"`
	SourceRequestID    id.RequestID       `json:"source_request_id"`
	RevocationReason   string             `json:"revocation_reason,omitempty"`
	RevokedBy          *id.ExpertID       `json:"revoked_by,omitempty"`
}

// CanRevoke guards revocation: only an active badge can be revoked.
func (b *Badge) CanRevoke() error {
	if !b.Active {
		return dErrors.New(dErrors.CodeConflict, "badge is not active")
	}
	return nil
}

// ApplyRevocation deactivates the badge and records the reason and revoker.
// No replacement badge is created.
func (b *Badge) ApplyRevocation(reason string, revokedBy id.ExpertID) {
	b.Active = false
	b.RevocationReason = reason
	b.RevokedBy = &revokedBy
}
