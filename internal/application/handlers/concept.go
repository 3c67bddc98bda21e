package handlers

import (
	"context"
	"strings"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/ports"
)

// DefaultSearchLimit caps a concept search when the caller gives no limit.
const DefaultSearchLimit = 10

// ConceptHandler answers semantic lookups against the canonical concept
// mirror.
type ConceptHandler struct {
	embedder ports.Embedder
	vector   ports.VectorDB
}

// NewConceptHandler creates a new ConceptHandler.
func NewConceptHandler(embedder ports.Embedder, vector ports.VectorDB) *ConceptHandler {
	return &ConceptHandler{
		embedder: embedder,
		vector:   vector,
	}
}

// HandleSearch embeds the query text and returns the closest canonical
// concepts.
func (h *ConceptHandler) HandleSearch(ctx context.Context, query string, limit int) ([]entities.CanonicalConcept, error) {
	if strings.TrimSpace(query) == "" {
		return nil, entities.NewValidationError("query", "search text is required")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	embedding, err := h.embedder.Embed(ctx, query)
	if err != nil {
		return nil, entities.NewCapabilityError("embedder", err)
	}

	concepts, err := h.vector.Search(ctx, embedding, limit)
	if err != nil {
		return nil, entities.NewCapabilityError("vector", err)
	}
	return concepts, nil
}
