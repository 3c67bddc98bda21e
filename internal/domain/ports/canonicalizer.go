// Package ports defines interfaces for external service communication.
package ports

import (
	"context"

	"github.com/ersonp/canon-core/internal/domain/entities"
)

// OntologyInput is one entity submitted to the language-model capability.
type OntologyInput struct {
	EntityID    string `json:"entity_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Canonicalizer is the language-model capability: given a type's entities it
// proposes canonical names and groupings. Treated as a black box that may
// fail or time out; no partial ontology is ever returned.
type Canonicalizer interface {
	// ProposeOntology returns proposed canonical groupings for one type.
	ProposeOntology(ctx context.Context, typeName string, inputs []OntologyInput) (*entities.Ontology, error)
}
