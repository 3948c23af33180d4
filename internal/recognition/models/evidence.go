package models

import (
	id "acclaim/pkg/domain"
	dErrors "acclaim/pkg/domain-errors"
)

// EvidenceKind classifies a justification artifact.
type EvidenceKind string

const (
	EvidenceDocument    EvidenceKind = "DOCUMENT"
	EvidenceLink        EvidenceKind = "LINK"
	EvidenceCertificate EvidenceKind = "CERTIFICATE"
	EvidenceWorkSample  EvidenceKind = "WORK_SAMPLE"
)

// ParseEvidenceKind validates a wire-format evidence kind.
func ParseEvidenceKind(raw string) (EvidenceKind, error) {
	switch EvidenceKind(raw) {
	case EvidenceDocument, EvidenceLink, EvidenceCertificate, EvidenceWorkSample:
		return EvidenceKind(raw), nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown evidence kind %q", raw)
}

// Evidence is an uploaded justification artifact owned by a request. The
// bytes live in the external evidence store under StorageKey; this row only
// records the reference.
type Evidence struct {
	ID           id.EvidenceID `json:"id"`
	RequestID    id.RequestID  `json:"request_id"`
	Kind         EvidenceKind  `json:"kind"`
	StorageKey   string        `json:"-"`
	OriginalName string        `json:"original_name"`
	Verified     bool          `json:"verified"`
}
