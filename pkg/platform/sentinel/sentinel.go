package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: a uniqueness or versioning conflict at the storage layer
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrDuplicateOpen: an open recognition request already exists for the key
// - ErrUnavailable: service or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalidState  = errors.New("invalid state")
	ErrDuplicateOpen = errors.New("duplicate open request")
	ErrUnavailable   = errors.New("unavailable")
)
