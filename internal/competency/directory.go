// Package competency adapts the external competency catalog to the narrow
// lookup the recognition flow needs: competency id to domain classification.
package competency

import (
	"context"
	"sync"

	badgemodels "acclaim/internal/badge/models"
	id "acclaim/pkg/domain"
	dErrors "acclaim/pkg/domain-errors"
)

// InMemory is a static directory for single-instance deployments and tests.
// An entry with an empty classification models a competency the catalog knows
// but has not classified.
type InMemory struct {
	mu      sync.RWMutex
	entries map[id.CompetencyID]badgemodels.DomainClassification
}

// NewInMemory creates an empty directory.
func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[id.CompetencyID]badgemodels.DomainClassification)}
}

// Set registers or replaces a competency's classification.
func (d *InMemory) Set(competencyID id.CompetencyID, classification badgemodels.DomainClassification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[competencyID] = classification
}

// Classification looks up the classification for a competency. An unknown
// competency is a precondition failure: nothing can be approved against a
// competency the catalog does not know.
func (d *InMemory) Classification(_ context.Context, competencyID id.CompetencyID) (badgemodels.DomainClassification, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	classification, ok := d.entries[competencyID]
	if !ok {
		return "", dErrors.Newf(dErrors.CodePrecondition, "competency %s is not in the catalog", competencyID)
	}
	return classification, nil
}
