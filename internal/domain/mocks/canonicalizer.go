package mocks

import (
	"context"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/ports"
)

// Canonicalizer is a mock implementation of ports.Canonicalizer. When Groups
// is nil it puts every input into one group named after the first input.
type Canonicalizer struct {
	Groups []entities.OntologyGroup
	Calls  int
	Err    error
}

// NewCanonicalizer creates a new mock Canonicalizer.
func NewCanonicalizer() *Canonicalizer {
	return &Canonicalizer{}
}

// ProposeOntology returns the configured groups, or a single group holding
// every input.
func (m *Canonicalizer) ProposeOntology(_ context.Context, typeName string, inputs []ports.OntologyInput) (*entities.Ontology, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	groups := m.Groups
	if groups == nil && len(inputs) > 0 {
		group := entities.OntologyGroup{CanonicalName: inputs[0].Name}
		for _, in := range inputs {
			group.MemberIDs = append(group.MemberIDs, in.EntityID)
		}
		groups = []entities.OntologyGroup{group}
	}
	return &entities.Ontology{TypeName: typeName, Groups: groups}, nil
}
