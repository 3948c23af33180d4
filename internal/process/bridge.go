// Package process couples the service to the external business-process
// engine through a narrow, outbound-only message interface. Delivery is
// fire-and-forget, at-least-once; the receiving side must consume
// idempotently. The engine's availability never gates a business transition:
// call sites log bridge failures and continue.
package process

import (
	"context"

	id "acclaim/pkg/domain"
)

// Event names carried to the engine, correlated by request id.
const (
	EventReviewerAssigned       = "reviewer_assigned"
	EventEvaluationSubmitted    = "evaluation_submitted"
	EventDecisionMade           = "decision_made"
	EventAdditionalInfoProvided = "additional_info_provided"
)

// StartRequest carries the minimum the engine needs to open a workflow
// instance for a new recognition request.
type StartRequest struct {
	RequestID    id.RequestID
	RequesterID  id.ExpertID
	CompetencyID id.CompetencyID
}

// Bridge is the outbound interface to the process engine.
//
// StartInstance opens a workflow instance and returns the correlation id
// under which later notifications are routed. Notify sends a named event with
// its variables; both are best-effort from the caller's point of view.
type Bridge interface {
	StartInstance(ctx context.Context, start StartRequest) (correlationID string, err error)
	Notify(ctx context.Context, correlationID, event string, variables map[string]any) error
}

// Noop is the bridge used when no engine is configured. StartInstance mints
// a local correlation id so the rest of the pipeline behaves identically.
type Noop struct{}

func (Noop) StartInstance(_ context.Context, start StartRequest) (string, error) {
	return start.RequestID.String(), nil
}

func (Noop) Notify(context.Context, string, string, map[string]any) error { return nil }
