package ports

import (
	"context"

	"github.com/ersonp/canon-core/internal/domain/entities"
)

// GraphDB mirrors canonical state into the graph datastore. Upserts are
// keyed so the same canonical concept never produces duplicate nodes.
type GraphDB interface {
	// UpsertConcept creates or updates the canonical node for a concept.
	UpsertConcept(ctx context.Context, concept entities.CanonicalConcept) error

	// DeleteConcept removes the canonical node for a key, if present.
	DeleteConcept(ctx context.Context, key string) error

	// RelateConcepts creates or updates a relation between two canonical nodes.
	RelateConcepts(ctx context.Context, sourceKey, targetKey, relType string) error

	// RelabelType moves every node of one type label to another.
	RelabelType(ctx context.Context, source, target string) error

	// CountConcepts counts canonical nodes for a type.
	CountConcepts(ctx context.Context, typeName string) (int, error)

	// Close releases the underlying driver.
	Close(ctx context.Context) error
}
