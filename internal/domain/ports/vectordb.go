package ports

import (
	"context"

	"github.com/ersonp/canon-core/internal/domain/entities"
)

// VectorDB stores one embedding per canonical concept for semantic lookup.
// The engine only upserts on canonicalization and deletes on rollback.
type VectorDB interface {
	// UpsertConcept stores the concept with its embedding, keyed by concept key.
	UpsertConcept(ctx context.Context, concept entities.CanonicalConcept, embedding []float32) error

	// DeleteConcept removes the stored embedding for a concept key.
	DeleteConcept(ctx context.Context, key string) error

	// Search returns the closest concepts to the given embedding.
	Search(ctx context.Context, embedding []float32, limit int) ([]entities.CanonicalConcept, error)
}

// CollectionManager manages vector collection lifecycle.
type CollectionManager interface {
	// EnsureCollection creates the collection if it doesn't exist.
	EnsureCollection(ctx context.Context, vectorSize uint64) error
}
