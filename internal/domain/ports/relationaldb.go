package ports

import (
	"context"

	"github.com/ersonp/canon-core/internal/domain/entities"
)

// EntityFilter narrows entity listings. Zero values mean "no filter".
type EntityFilter struct {
	TypeName       string
	Status         entities.EntityStatus
	NamePrefix     string
	MinOccurrences int
	MinConfidence  float64
	Limit          int
	Offset         int
}

// RelationalDB is the system-of-record for types, entities, relations,
// snapshots, jobs and the curation log. Composite mutations (the *Apply
// methods) must be executed in a single transaction so no observer sees a
// partially applied group.
type RelationalDB interface {
	// EnsureSchema creates the database schema if it doesn't exist.
	EnsureSchema(ctx context.Context) error

	// Close closes the database connection.
	Close() error

	// Entity type operations

	// SaveEntityType inserts or updates a type row.
	SaveEntityType(ctx context.Context, entityType *entities.EntityType) error

	// FindEntityType finds a type by name with counts filled, or nil.
	FindEntityType(ctx context.Context, name string) (*entities.EntityType, error)

	// ListEntityTypes lists types with counts filled, optionally by status.
	ListEntityTypes(ctx context.Context, status entities.TypeStatus) ([]entities.EntityType, error)

	// DeleteEntityType deletes a type row by name.
	DeleteEntityType(ctx context.Context, name string) error

	// TransferEntityType atomically reassigns every source entity to the
	// target type and deletes the source type row.
	TransferEntityType(ctx context.Context, source, target string) error

	// Entity operations

	// SaveEntity inserts or updates an entity.
	SaveEntity(ctx context.Context, entity *entities.Entity) error

	// FindEntityByID finds an entity by ID, or nil.
	FindEntityByID(ctx context.Context, id string) (*entities.Entity, error)

	// FindEntityByName finds an entity by type and exact name, or nil.
	FindEntityByName(ctx context.Context, typeName, name string) (*entities.Entity, error)

	// ListEntities lists entities matching the filter, ordered by created_at
	// then id for determinism.
	ListEntities(ctx context.Context, filter EntityFilter) ([]*entities.Entity, error)

	// CountEntities counts entities matching the filter.
	CountEntities(ctx context.Context, filter EntityFilter) (int, error)

	// DeleteEntity deletes an entity by ID.
	DeleteEntity(ctx context.Context, id string) error

	// Relation operations

	// SaveRelation inserts or updates a relation.
	SaveRelation(ctx context.Context, rel *entities.Relation) error

	// FindRelationsByEntity finds relations with the entity as either endpoint.
	FindRelationsByEntity(ctx context.Context, entityID string) ([]entities.Relation, error)

	// CountRelationsByEntity returns each entity's relation degree.
	CountRelationsByEntity(ctx context.Context, entityIDs []string) (map[string]int, error)

	// Composite mutations

	// ApplyMergeGroup applies one merge group as an all-or-nothing unit.
	ApplyMergeGroup(ctx context.Context, apply *entities.MergeApply) error

	// ApplyDedupe applies one duplicate-group collapse as an all-or-nothing unit.
	ApplyDedupe(ctx context.Context, apply *entities.DedupeApply) error

	// ApplyRestore re-establishes captured pre-merge state atomically.
	ApplyRestore(ctx context.Context, apply *entities.RestoreApply) error

	// PromoteEntities marks the given entities validated in one transaction.
	PromoteEntities(ctx context.Context, ids []string, validatedBy string) error

	// Snapshot operations

	// SaveSnapshot stores a snapshot with its payload.
	SaveSnapshot(ctx context.Context, snapshot *entities.Snapshot, payload *entities.SnapshotPayload) error

	// FindSnapshot finds a snapshot by ID without its payload, or nil.
	FindSnapshot(ctx context.Context, id string) (*entities.Snapshot, error)

	// FindSnapshotPayload loads the serialized payload of a snapshot.
	FindSnapshotPayload(ctx context.Context, id string) (*entities.SnapshotPayload, error)

	// ListSnapshots lists snapshots for a type, newest first.
	ListSnapshots(ctx context.Context, typeName string) ([]entities.Snapshot, error)

	// MarkSnapshotRestored consumes a snapshot so it cannot be replayed.
	MarkSnapshotRestored(ctx context.Context, id string) error

	// Job operations

	// SaveJob inserts or updates a job row.
	SaveJob(ctx context.Context, job *entities.Job) error

	// FindJob finds a job by ID, or nil.
	FindJob(ctx context.Context, id string) (*entities.Job, error)

	// ListJobs lists jobs newest first, optionally limited.
	ListJobs(ctx context.Context, limit int) ([]entities.Job, error)

	// Curation log

	// LogAction appends an entry to the curation log.
	LogAction(ctx context.Context, action, subjectID string, details map[string]any) error

	// FindCurationLog finds log entries for a subject.
	FindCurationLog(ctx context.Context, subjectID string) ([]entities.CurationEntry, error)
}
