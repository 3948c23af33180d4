// Package service implements the recognition request lifecycle: submission,
// assignment in both approval topologies, evaluation, decision and the badge
// handoff on approval.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	badgemodels "acclaim/internal/badge/models"
	badgesvc "acclaim/internal/badge/service"
	"acclaim/internal/evidence"
	recmetrics "acclaim/internal/recognition/metrics"
	"acclaim/internal/recognition/models"
	"acclaim/internal/process"
	id "acclaim/pkg/domain"
	dErrors "acclaim/pkg/domain-errors"
	"acclaim/pkg/platform/sentinel"
	"acclaim/pkg/requestcontext"
)

// RequestStore is the persistence contract for recognition requests. Execute
// must hold the row lock (mutex or FOR UPDATE) across validate and mutate so
// transitions on one request are linearizable.
type RequestStore interface {
	CreateIfNoOpen(ctx context.Context, req *models.RecognitionRequest) error
	FindByID(ctx context.Context, requestID id.RequestID) (*models.RecognitionRequest, error)
	Execute(ctx context.Context, requestID id.RequestID, validate func(*models.RecognitionRequest) error, mutate func(*models.RecognitionRequest)) (*models.RecognitionRequest, error)
	ListByRequester(ctx context.Context, requesterID id.ExpertID) ([]*models.RecognitionRequest, error)
	ListByEvaluator(ctx context.Context, evaluatorID id.ExpertID) ([]*models.RecognitionRequest, error)
	ListPendingApproval(ctx context.Context, managerID id.ExpertID) ([]*models.RecognitionRequest, error)
}

// EvaluationStore records at most one evaluation per request with upsert
// semantics.
type EvaluationStore interface {
	Upsert(ctx context.Context, eval *models.Evaluation) error
	Get(ctx context.Context, requestID id.RequestID) (*models.Evaluation, error)
}

// EvidenceRowStore tracks the evidence references a request owns.
type EvidenceRowStore interface {
	Add(ctx context.Context, ev *models.Evidence) error
	FindByID(ctx context.Context, evidenceID id.EvidenceID) (*models.Evidence, error)
	Remove(ctx context.Context, evidenceID id.EvidenceID) error
	ListByRequest(ctx context.Context, requestID id.RequestID) ([]*models.Evidence, error)
}

// BadgeIssuer is the attribution entry point invoked on approval.
type BadgeIssuer interface {
	Attribute(ctx context.Context, params badgesvc.AttributeParams) (*badgemodels.Badge, error)
}

// CompetencyDirectory resolves a competency's domain classification from the
// reference catalog. An empty classification means the catalog has none,
// which blocks approval.
type CompetencyDirectory interface {
	Classification(ctx context.Context, competencyID id.CompetencyID) (badgemodels.DomainClassification, error)
}

// Service is the request lifecycle manager. Every operation validates actor
// identity first, then current status, then domain preconditions, and is
// atomic with respect to the request row.
type Service struct {
	requests     RequestStore
	evaluations  EvaluationStore
	evidenceRows EvidenceRowStore
	files        evidence.Store
	competencies CompetencyDirectory
	issuer       BadgeIssuer
	bridge       process.Bridge
	logger       *slog.Logger
	metrics      *recmetrics.Metrics
}

// New creates the lifecycle manager. A nil bridge degrades to the no-op
// bridge so callers never have to branch on engine availability.
func New(
	requests RequestStore,
	evaluations EvaluationStore,
	evidenceRows EvidenceRowStore,
	files evidence.Store,
	competencies CompetencyDirectory,
	issuer BadgeIssuer,
	bridge process.Bridge,
	logger *slog.Logger,
	metrics *recmetrics.Metrics,
) *Service {
	if bridge == nil {
		bridge = process.Noop{}
	}
	return &Service{
		requests:     requests,
		evaluations:  evaluations,
		evidenceRows: evidenceRows,
		files:        files,
		competencies: competencies,
		issuer:       issuer,
		bridge:       bridge,
		logger:       logger,
		metrics:      metrics,
	}
}

// Submit creates a recognition request for (requester, competency). A
// non-terminal request already open for the pair fails with a duplicate
// error. The external process instance is started best-effort: a bridge
// failure is logged and the request stands.
func (s *Service) Submit(ctx context.Context, requesterID id.ExpertID, competencyID id.CompetencyID, comment string) (*models.RecognitionRequest, error) {
	req, err := models.NewRecognitionRequest(id.RequestID(uuid.New()), requesterID, competencyID, comment, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	if err := s.requests.CreateIfNoOpen(ctx, req); err != nil {
		if errors.Is(err, sentinel.ErrDuplicateOpen) {
			return nil, dErrors.New(dErrors.CodeDuplicate, "an open recognition request already exists for this competency")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create recognition request")
	}
	s.metrics.IncSubmitted()

	correlationID, err := s.bridge.StartInstance(ctx, process.StartRequest{
		RequestID:    req.ID,
		RequesterID:  requesterID,
		CompetencyID: competencyID,
	})
	if err != nil {
		s.metrics.IncBridgeFailure()
		s.logger.WarnContext(ctx, "process instance start failed, continuing without engine",
			"request_id", req.ID.String(),
			"error", err.Error(),
		)
		return req, nil
	}

	updated, err := s.requests.Execute(ctx, req.ID,
		func(*models.RecognitionRequest) error { return nil },
		func(r *models.RecognitionRequest) { r.CorrelationID = correlationID },
	)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to store process correlation id",
			"request_id", req.ID.String(),
			"error", err.Error(),
		)
		return req, nil
	}
	return updated, nil
}

// SelfAssign lets a reviewer take a submitted request for single-tier
// review. Reviewers cannot take their own requests.
func (s *Service) SelfAssign(ctx context.Context, requestID id.RequestID, evaluatorID id.ExpertID) (*models.RecognitionRequest, error) {
	now := requestcontext.Now(ctx)
	req, err := s.requests.Execute(ctx, requestID,
		func(r *models.RecognitionRequest) error {
			if r.RequesterID == evaluatorID {
				return dErrors.New(dErrors.CodeForbidden, "an expert cannot review their own request")
			}
			return r.CanSelfAssign()
		},
		func(r *models.RecognitionRequest) {
			r.ApplySelfAssign(evaluatorID, now)
		},
	)
	if err != nil {
		return nil, wrapRequestErr(err)
	}
	s.notify(ctx, req, process.EventReviewerAssigned, map[string]any{
		"reviewer_id": evaluatorID.String(),
		"tier":        string(models.TierSingle),
	})
	return req, nil
}

// AssignToReviewer lets a manager (re)assign a reviewer, switching the
// request to the two-tier topology. Re-assignment is allowed while the
// request is non-terminal, except directly from a self-assigned state.
func (s *Service) AssignToReviewer(ctx context.Context, requestID id.RequestID, managerID, reviewerID id.ExpertID, instructions string) (*models.RecognitionRequest, error) {
	if reviewerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "reviewer id is required")
	}
	now := requestcontext.Now(ctx)
	req, err := s.requests.Execute(ctx, requestID,
		func(r *models.RecognitionRequest) error {
			if r.RequesterID == reviewerID {
				return dErrors.New(dErrors.CodeForbidden, "an expert cannot review their own request")
			}
			if r.Tier == models.TierTwo && r.AssigningManagerID != nil && *r.AssigningManagerID != managerID {
				return dErrors.New(dErrors.CodeForbidden, "only the assigning manager may re-assign this request")
			}
			return r.CanAssignReviewer()
		},
		func(r *models.RecognitionRequest) {
			r.ApplyAssignReviewer(managerID, reviewerID, instructions, now)
		},
	)
	if err != nil {
		return nil, wrapRequestErr(err)
	}
	s.notify(ctx, req, process.EventReviewerAssigned, map[string]any{
		"reviewer_id": reviewerID.String(),
		"manager_id":  managerID.String(),
		"tier":        string(models.TierTwo),
	})
	return req, nil
}

// RecordEvaluation upserts the evaluator's structured assessment. The first
// evaluation moves the request to EVALUATING; re-evaluating an open request
// replaces the stored evaluation, never duplicates it.
func (s *Service) RecordEvaluation(ctx context.Context, requestID id.RequestID, evaluatorID id.ExpertID, recommendation models.Recommendation, criteria map[string]int, score int, comment string) (*models.Evaluation, error) {
	now := requestcontext.Now(ctx)
	eval, err := models.NewEvaluation(requestID, evaluatorID, recommendation, criteria, score, comment, now)
	if err != nil {
		return nil, err
	}

	_, err = s.requests.Execute(ctx, requestID,
		func(r *models.RecognitionRequest) error {
			if r.AssignedEvaluatorID == nil || *r.AssignedEvaluatorID != evaluatorID {
				return dErrors.New(dErrors.CodeForbidden, "only the assigned evaluator may record an evaluation")
			}
			return r.CanRecordEvaluation()
		},
		func(r *models.RecognitionRequest) {
			r.ApplyEvaluationRecorded(now)
		},
	)
	if err != nil {
		return nil, wrapRequestErr(err)
	}

	if err := s.evaluations.Upsert(ctx, eval); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "store evaluation")
	}
	return eval, nil
}

// SubmitForApproval sends a two-tier request upward to its manager. An
// evaluation must exist first.
func (s *Service) SubmitForApproval(ctx context.Context, requestID id.RequestID, evaluatorID id.ExpertID) (*models.RecognitionRequest, error) {
	now := requestcontext.Now(ctx)
	req, err := s.requests.Execute(ctx, requestID,
		func(r *models.RecognitionRequest) error {
			if r.AssignedEvaluatorID == nil || *r.AssignedEvaluatorID != evaluatorID {
				return dErrors.New(dErrors.CodeForbidden, "only the assigned evaluator may submit for approval")
			}
			if err := r.CanSubmitForApproval(); err != nil {
				return err
			}
			if _, err := s.evaluations.Get(ctx, requestID); err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return dErrors.New(dErrors.CodePrecondition, "cannot submit for approval without an evaluation")
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "load evaluation")
			}
			return nil
		},
		func(r *models.RecognitionRequest) {
			r.ApplySubmitForApproval(now)
		},
	)
	if err != nil {
		return nil, wrapRequestErr(err)
	}
	s.notify(ctx, req, process.EventEvaluationSubmitted, map[string]any{
		"evaluator_id": evaluatorID.String(),
	})
	return req, nil
}

// DecideParams carries a final decision and its validity terms.
type DecideParams struct {
	Decision  models.Decision
	Comment   string
	Permanent bool
	ExpiresAt *time.Time
}

// Decide records the final decision. Single-tier decisions belong to the
// assigned evaluator from EVALUATING; two-tier decisions belong to the
// assigning manager from SUBMITTED_FOR_APPROVAL. Approval requires an
// evaluation recommending approval and a classified competency, and hands the
// approved request to the badge issuer within the same logical operation.
func (s *Service) Decide(ctx context.Context, requestID id.RequestID, actorID id.ExpertID, params DecideParams) (*models.RecognitionRequest, error) {
	if params.Decision == models.DecisionApprove && !params.Permanent && params.ExpiresAt == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "approval needs either permanent validity or an expiry date")
	}

	now := requestcontext.Now(ctx)
	var classification badgemodels.DomainClassification
	req, err := s.requests.Execute(ctx, requestID,
		func(r *models.RecognitionRequest) error {
			if err := s.authorizeDecision(r, actorID); err != nil {
				return err
			}
			if err := r.CanDecide(); err != nil {
				return err
			}
			if params.Decision != models.DecisionApprove {
				return nil
			}
			eval, err := s.evaluations.Get(ctx, requestID)
			if err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return dErrors.New(dErrors.CodePrecondition, "cannot approve without an evaluation")
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "load evaluation")
			}
			if eval.Recommendation != models.RecommendApprove {
				return dErrors.Newf(dErrors.CodePrecondition, "evaluation recommends %s, not approval", eval.Recommendation)
			}
			// Resolve the classification before committing the transition so
			// an unclassifiable competency surfaces with status unchanged.
			classification, err = s.competencies.Classification(ctx, r.CompetencyID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodePrecondition, "resolve competency classification")
			}
			if _, _, err := badgemodels.LevelFor(classification); err != nil {
				return err
			}
			return nil
		},
		func(r *models.RecognitionRequest) {
			r.ApplyDecision(params.Decision, params.Comment, now)
		},
	)
	if err != nil {
		return nil, wrapRequestErr(err)
	}
	s.metrics.IncDecision(string(params.Decision))

	if params.Decision == models.DecisionApprove {
		expiresAt := params.ExpiresAt
		if params.Permanent {
			expiresAt = nil
		}
		if _, err := s.issuer.Attribute(ctx, badgesvc.AttributeParams{
			HolderID:        req.RequesterID,
			CompetencyID:    req.CompetencyID,
			Classification:  classification,
			SourceRequestID: req.ID,
			ExpiresAt:       expiresAt,
		}); err != nil {
			// The approval has committed; attribution failure is operational
			// and must be retried out of band, never hidden.
			s.logger.ErrorContext(ctx, "badge attribution failed after approval",
				"request_id", req.ID.String(),
				"error", err.Error(),
			)
			return nil, err
		}
	}

	s.notify(ctx, req, process.EventDecisionMade, map[string]any{
		"decision":  string(params.Decision),
		"permanent": params.Permanent,
		"comment":   params.Comment,
	})
	return req, nil
}

func (s *Service) authorizeDecision(r *models.RecognitionRequest, actorID id.ExpertID) error {
	switch r.Tier {
	case models.TierSingle:
		if r.AssignedEvaluatorID == nil || *r.AssignedEvaluatorID != actorID {
			return dErrors.New(dErrors.CodeForbidden, "only the assigned evaluator may decide this request")
		}
	case models.TierTwo:
		if r.AssigningManagerID == nil || *r.AssigningManagerID != actorID {
			return dErrors.New(dErrors.CodeForbidden, "only the assigning manager may decide this request")
		}
	default:
		return dErrors.New(dErrors.CodeForbidden, "request has no decision maker yet")
	}
	return nil
}

// Resubmit returns a request to the flow after more information was
// requested: back to SUBMITTED on the single-tier path, back to the assigned
// reviewer on the two-tier path.
func (s *Service) Resubmit(ctx context.Context, requestID id.RequestID, requesterID id.ExpertID, additionalComment string) (*models.RecognitionRequest, error) {
	now := requestcontext.Now(ctx)
	req, err := s.requests.Execute(ctx, requestID,
		func(r *models.RecognitionRequest) error {
			if r.RequesterID != requesterID {
				return dErrors.New(dErrors.CodeForbidden, "only the requester may resubmit")
			}
			return r.CanResubmit()
		},
		func(r *models.RecognitionRequest) {
			r.ApplyResubmit(additionalComment, now)
		},
	)
	if err != nil {
		return nil, wrapRequestErr(err)
	}
	s.notify(ctx, req, process.EventAdditionalInfoProvided, map[string]any{
		"comment": additionalComment,
	})
	return req, nil
}

// Cancel withdraws a request. Only the requester may cancel, and only while
// the request is SUBMITTED or MORE_INFO_REQUESTED. The row stays; cancelled
// is a status, not a delete.
func (s *Service) Cancel(ctx context.Context, requestID id.RequestID, requesterID id.ExpertID) (*models.RecognitionRequest, error) {
	now := requestcontext.Now(ctx)
	req, err := s.requests.Execute(ctx, requestID,
		func(r *models.RecognitionRequest) error {
			if r.RequesterID != requesterID {
				return dErrors.New(dErrors.CodeForbidden, "only the requester may cancel")
			}
			return r.CanCancel()
		},
		func(r *models.RecognitionRequest) {
			r.ApplyCancel(now)
		},
	)
	if err != nil {
		return nil, wrapRequestErr(err)
	}
	return req, nil
}

// Get returns one request to a participant (requester, evaluator or
// manager).
func (s *Service) Get(ctx context.Context, requestID id.RequestID, actorID id.ExpertID) (*models.RecognitionRequest, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, wrapRequestErr(err)
	}
	if !isParticipant(req, actorID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "not a participant of this request")
	}
	return req, nil
}

// Evaluation returns the evaluation for a request, if any, to a participant.
func (s *Service) Evaluation(ctx context.Context, requestID id.RequestID, actorID id.ExpertID) (*models.Evaluation, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, wrapRequestErr(err)
	}
	if !isParticipant(req, actorID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "not a participant of this request")
	}
	eval, err := s.evaluations.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "request has not been evaluated")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load evaluation")
	}
	return eval, nil
}

// ListForRequester returns the actor's own requests.
func (s *Service) ListForRequester(ctx context.Context, requesterID id.ExpertID) ([]*models.RecognitionRequest, error) {
	reqs, err := s.requests.ListByRequester(ctx, requesterID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list requests")
	}
	return reqs, nil
}

// ListAssignedTo returns the open requests assigned to the actor.
func (s *Service) ListAssignedTo(ctx context.Context, evaluatorID id.ExpertID) ([]*models.RecognitionRequest, error) {
	reqs, err := s.requests.ListByEvaluator(ctx, evaluatorID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list assigned requests")
	}
	return reqs, nil
}

// ListPendingApproval returns two-tier requests awaiting the actor's
// decision.
func (s *Service) ListPendingApproval(ctx context.Context, managerID id.ExpertID) ([]*models.RecognitionRequest, error) {
	reqs, err := s.requests.ListPendingApproval(ctx, managerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list pending approvals")
	}
	return reqs, nil
}

// notify sends a correlated event to the process engine. Failures are logged
// and counted, never propagated: the business transition has already
// committed.
func (s *Service) notify(ctx context.Context, req *models.RecognitionRequest, event string, variables map[string]any) {
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = req.ID.String()
	}
	if err := s.bridge.Notify(ctx, correlationID, event, variables); err != nil {
		s.metrics.IncBridgeFailure()
		s.logger.WarnContext(ctx, "process engine notification failed",
			"request_id", req.ID.String(),
			"event", event,
			"error", err.Error(),
		)
	}
}

func isParticipant(r *models.RecognitionRequest, actorID id.ExpertID) bool {
	if r.RequesterID == actorID {
		return true
	}
	if r.AssignedEvaluatorID != nil && *r.AssignedEvaluatorID == actorID {
		return true
	}
	if r.AssigningManagerID != nil && *r.AssigningManagerID == actorID {
		return true
	}
	return false
}

func wrapRequestErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "recognition request not found")
	case dErrors.HasCode(err, dErrors.CodeForbidden),
		dErrors.HasCode(err, dErrors.CodeConflict),
		dErrors.HasCode(err, dErrors.CodePrecondition),
		dErrors.HasCode(err, dErrors.CodeInvalidInput),
		dErrors.HasCode(err, dErrors.CodeConsistency),
		dErrors.HasCode(err, dErrors.CodeDuplicate):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "request store failure")
	}
}
