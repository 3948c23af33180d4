package models

import (
	"time"

	id "acclaim/pkg/domain"
	dErrors "acclaim/pkg/domain-errors"
)

// Recommendation is the evaluator's verdict carried by an evaluation.
type Recommendation string

const (
	RecommendApprove   Recommendation = "APPROVE"
	RecommendReject    Recommendation = "REJECT"
	RecommendNeedsInfo Recommendation = "NEEDS_INFO"
)

// ParseRecommendation validates a wire-format recommendation value.
func ParseRecommendation(raw string) (Recommendation, error) {
	switch Recommendation(raw) {
	case RecommendApprove, RecommendReject, RecommendNeedsInfo:
		return Recommendation(raw), nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown recommendation %q", raw)
}

// Evaluation is the zero-or-one structured assessment attached to a request.
// Re-evaluating an open request replaces the prior evaluation; evaluations
// are keyed by request, never duplicated.
type Evaluation struct {
	RequestID      id.RequestID   `json:"request_id"`
	EvaluatorID    id.ExpertID    `json:"evaluator_id"`
	Recommendation Recommendation `json:"recommendation"`
	Criteria       map[string]int `json:"criteria,omitempty"`
	OverallScore   int            `json:"overall_score"`
	Comment        string         `json:"comment,omitempty"`
	RecordedAt     time.Time      `json:"recorded_at"`
}

// NewEvaluation validates and builds an evaluation.
func NewEvaluation(requestID id.RequestID, evaluatorID id.ExpertID, recommendation Recommendation, criteria map[string]int, score int, comment string, now time.Time) (*Evaluation, error) {
	if evaluatorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "evaluator id is required")
	}
	if score < 0 || score > 100 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "overall score must be between 0 and 100")
	}
	return &Evaluation{
		RequestID:      requestID,
		EvaluatorID:    evaluatorID,
		Recommendation: recommendation,
		Criteria:       criteria,
		OverallScore:   score,
		Comment:        comment,
		RecordedAt:     now,
	}, nil
}
