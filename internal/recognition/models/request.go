package models

import (
	"time"

	id "acclaim/pkg/domain"
	dErrors "acclaim/pkg/domain-errors"
)

// Status is the lifecycle state of a recognition request. It is the single
// source of truth for the business-visible lifecycle; the external process
// engine's own state is advisory and may lag.
type Status string

const (
	StatusSubmitted            Status = "SUBMITTED"
	StatusAssignedSelf         Status = "ASSIGNED_SELF"
	StatusAssignedReviewer     Status = "ASSIGNED_REVIEWER"
	StatusEvaluating           Status = "EVALUATING"
	StatusSubmittedForApproval Status = "SUBMITTED_FOR_APPROVAL"
	StatusApproved             Status = "APPROVED"
	StatusRejected             Status = "REJECTED"
	StatusMoreInfoRequested    Status = "MORE_INFO_REQUESTED"
	StatusCancelled            Status = "CANCELLED"
)

// IsTerminal reports whether the status ends the request lifecycle.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Tier distinguishes the two coexisting approval topologies. It is set
// explicitly at assignment time rather than inferred from which fields happen
// to be populated.
type Tier string

const (
	// TierNone means the request has not been assigned yet.
	TierNone Tier = ""
	// TierSingle is the self-assigned topology: one reviewer evaluates and
	// decides alone.
	TierSingle Tier = "single"
	// TierTwo is the manager/reviewer topology: a manager assigns a reviewer,
	// the reviewer evaluates and submits upward, the manager decides.
	TierTwo Tier = "two_tier"
)

// Decision is a final-stage outcome chosen by the decision maker.
type Decision string

const (
	DecisionApprove   Decision = "APPROVE"
	DecisionReject    Decision = "REJECT"
	DecisionNeedsInfo Decision = "NEEDS_INFO"
)

// ParseDecision validates a wire-format decision value.
func ParseDecision(raw string) (Decision, error) {
	switch Decision(raw) {
	case DecisionApprove, DecisionReject, DecisionNeedsInfo:
		return Decision(raw), nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown decision %q", raw)
}

// RecognitionRequest is the aggregate root for one worker's claim of one
// competency.
//
// Invariants:
//   - At most one non-terminal request exists per (RequesterID, CompetencyID)
//     pair at any time (enforced by the store at creation).
//   - Status transitions follow the lifecycle table below and are
//     linearizable per request: a transition whose source status no longer
//     matches fails rather than overwriting a concurrent transition.
//   - Requests are never physically deleted; cancellation is a status.
//
// Lifecycle:
//
//	SUBMITTED -> ASSIGNED_SELF | ASSIGNED_REVIEWER
//	ASSIGNED_* -> EVALUATING (first evaluation recorded)
//	EVALUATING -> SUBMITTED_FOR_APPROVAL (two-tier) | APPROVED/REJECTED/MORE_INFO_REQUESTED (single)
//	SUBMITTED_FOR_APPROVAL -> APPROVED | REJECTED | MORE_INFO_REQUESTED
//	MORE_INFO_REQUESTED -> SUBMITTED (single) | ASSIGNED_REVIEWER (two-tier) | CANCELLED
//	SUBMITTED -> CANCELLED
type RecognitionRequest struct {
	ID                  id.RequestID    `json:"id"`
	RequesterID         id.ExpertID     `json:"requester_id"`
	CompetencyID        id.CompetencyID `json:"competency_id"`
	Status              Status          `json:"status"`
	Tier                Tier            `json:"tier,omitempty"`
	AssignedEvaluatorID *id.ExpertID    `json:"assigned_evaluator_id,omitempty"`
	AssigningManagerID  *id.ExpertID    `json:"assigning_manager_id,omitempty"`
	ExpertComment       string          `json:"expert_comment,omitempty"`
	ManagerComment      string          `json:"manager_comment,omitempty"`
	RejectionReason     string          `json:"rejection_reason,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	LastModifiedAt      time.Time       `json:"last_modified_at"`
	AssignedAt          *time.Time      `json:"assigned_at,omitempty"`
	EvaluatedAt         *time.Time      `json:"evaluated_at,omitempty"`
	CorrelationID       string          `json:"-"`

	// Version is the optimistic concurrency token maintained by the store.
	Version int64 `json:"-"`
}

// NewRecognitionRequest creates a request in SUBMITTED.
func NewRecognitionRequest(requestID id.RequestID, requesterID id.ExpertID, competencyID id.CompetencyID, comment string, now time.Time) (*RecognitionRequest, error) {
	if requesterID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "requester id is required")
	}
	if competencyID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "competency id is required")
	}
	return &RecognitionRequest{
		ID:             requestID,
		RequesterID:    requesterID,
		CompetencyID:   competencyID,
		Status:         StatusSubmitted,
		ExpertComment:  comment,
		CreatedAt:      now,
		LastModifiedAt: now,
	}, nil
}

// IsOpen reports whether the request still counts against the one-open-per-
// pair invariant.
func (r *RecognitionRequest) IsOpen() bool { return !r.Status.IsTerminal() }

// Mutable reports whether the expert may still attach or remove evidence.
func (r *RecognitionRequest) Mutable() bool {
	return r.Status == StatusSubmitted || r.Status == StatusMoreInfoRequested
}

func illegalTransition(from Status, op string) error {
	return dErrors.Newf(dErrors.CodeConflict, "%s is not allowed while request is %s", op, from)
}

// CanSelfAssign checks the SUBMITTED -> ASSIGNED_SELF transition.
func (r *RecognitionRequest) CanSelfAssign() error {
	if r.Status != StatusSubmitted {
		return illegalTransition(r.Status, "self-assign")
	}
	return nil
}

// ApplySelfAssign records the evaluator and moves to ASSIGNED_SELF with
// single-tier topology. Call CanSelfAssign first.
func (r *RecognitionRequest) ApplySelfAssign(evaluatorID id.ExpertID, now time.Time) {
	r.Status = StatusAssignedSelf
	r.Tier = TierSingle
	r.AssignedEvaluatorID = &evaluatorID
	r.AssignedAt = &now
	r.LastModifiedAt = now
}

// reviewerAssignable lists the source statuses from which a manager may
// (re)assign a reviewer. ASSIGNED_SELF is deliberately absent: a self-assigned
// flow only becomes convertible once it reaches EVALUATING.
var reviewerAssignable = map[Status]struct{}{
	StatusSubmitted:            {},
	StatusAssignedReviewer:     {},
	StatusEvaluating:           {},
	StatusSubmittedForApproval: {},
	StatusMoreInfoRequested:    {},
}

// CanAssignReviewer checks whether a manager may (re)assign a reviewer.
func (r *RecognitionRequest) CanAssignReviewer() error {
	if _, ok := reviewerAssignable[r.Status]; !ok {
		return illegalTransition(r.Status, "assign-to-reviewer")
	}
	return nil
}

// ApplyAssignReviewer records the manager and reviewer and moves to
// ASSIGNED_REVIEWER with two-tier topology. Call CanAssignReviewer first.
func (r *RecognitionRequest) ApplyAssignReviewer(managerID, reviewerID id.ExpertID, instructions string, now time.Time) {
	r.Status = StatusAssignedReviewer
	r.Tier = TierTwo
	r.AssigningManagerID = &managerID
	r.AssignedEvaluatorID = &reviewerID
	if instructions != "" {
		r.ManagerComment = instructions
	}
	r.AssignedAt = &now
	r.LastModifiedAt = now
}

// CanRecordEvaluation checks whether the assigned evaluator may record or
// replace an evaluation.
func (r *RecognitionRequest) CanRecordEvaluation() error {
	switch r.Status {
	case StatusAssignedSelf, StatusAssignedReviewer, StatusEvaluating:
		return nil
	}
	return illegalTransition(r.Status, "record-evaluation")
}

// ApplyEvaluationRecorded moves ASSIGNED_* to EVALUATING on the first
// evaluation; re-evaluation leaves the status in place.
func (r *RecognitionRequest) ApplyEvaluationRecorded(now time.Time) {
	if r.Status == StatusAssignedSelf || r.Status == StatusAssignedReviewer {
		r.Status = StatusEvaluating
	}
	r.EvaluatedAt = &now
	r.LastModifiedAt = now
}

// CanSubmitForApproval checks the two-tier EVALUATING ->
// SUBMITTED_FOR_APPROVAL transition.
func (r *RecognitionRequest) CanSubmitForApproval() error {
	if r.Tier != TierTwo {
		return dErrors.New(dErrors.CodeConflict, "submit-for-approval applies to two-tier requests only")
	}
	if r.Status != StatusEvaluating {
		return illegalTransition(r.Status, "submit-for-approval")
	}
	return nil
}

// ApplySubmitForApproval moves to SUBMITTED_FOR_APPROVAL.
func (r *RecognitionRequest) ApplySubmitForApproval(now time.Time) {
	r.Status = StatusSubmittedForApproval
	r.LastModifiedAt = now
}

// CanDecide checks whether a final decision may be made from the current
// status given the request's topology: EVALUATING for single-tier,
// SUBMITTED_FOR_APPROVAL for two-tier.
func (r *RecognitionRequest) CanDecide() error {
	switch r.Tier {
	case TierSingle:
		if r.Status != StatusEvaluating {
			return illegalTransition(r.Status, "decide")
		}
	case TierTwo:
		if r.Status != StatusSubmittedForApproval {
			return illegalTransition(r.Status, "decide")
		}
	default:
		return illegalTransition(r.Status, "decide")
	}
	return nil
}

// ApplyDecision records the decision outcome.
func (r *RecognitionRequest) ApplyDecision(decision Decision, comment string, now time.Time) {
	switch decision {
	case DecisionApprove:
		r.Status = StatusApproved
	case DecisionReject:
		r.Status = StatusRejected
		r.RejectionReason = comment
	case DecisionNeedsInfo:
		r.Status = StatusMoreInfoRequested
	}
	if comment != "" && decision != DecisionReject {
		r.ManagerComment = comment
	}
	r.LastModifiedAt = now
}

// CanResubmit checks the MORE_INFO_REQUESTED resubmission transition.
func (r *RecognitionRequest) CanResubmit() error {
	if r.Status != StatusMoreInfoRequested {
		return illegalTransition(r.Status, "resubmit")
	}
	return nil
}

// ApplyResubmit returns the request to the flow: SUBMITTED for the
// single-tier path, ASSIGNED_REVIEWER for the two-tier path (preserving the
// existing assignment).
func (r *RecognitionRequest) ApplyResubmit(additionalComment string, now time.Time) {
	if r.Tier == TierTwo {
		r.Status = StatusAssignedReviewer
	} else {
		r.Status = StatusSubmitted
		r.Tier = TierNone
		r.AssignedEvaluatorID = nil
		r.AssignedAt = nil
	}
	if additionalComment != "" {
		r.ExpertComment = additionalComment
	}
	r.LastModifiedAt = now
}

// CanCancel checks the cancellation transition, reachable from SUBMITTED or
// MORE_INFO_REQUESTED only.
func (r *RecognitionRequest) CanCancel() error {
	if r.Status != StatusSubmitted && r.Status != StatusMoreInfoRequested {
		return illegalTransition(r.Status, "cancel")
	}
	return nil
}

// ApplyCancel moves to CANCELLED.
func (r *RecognitionRequest) ApplyCancel(now time.Time) {
	r.Status = StatusCancelled
	r.LastModifiedAt = now
}
