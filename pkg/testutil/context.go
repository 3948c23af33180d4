package testutil

import (
	"net/http"
	"time"

	id "acclaim/pkg/domain"
	"acclaim/pkg/requestcontext"
)

// WithActor injects an actor identity into the request context, simulating
// what the actor middleware does for authenticated requests. An unparseable
// id is silently ignored.
func WithActor(req *http.Request, actorID string) *http.Request {
	parsed, err := id.ParseExpertID(actorID)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithActorID(req.Context(), parsed))
}

// WithFrozenTime pins the request time so handler assertions on timestamps
// are deterministic.
func WithFrozenTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
