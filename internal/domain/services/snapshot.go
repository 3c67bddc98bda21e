package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/ports"
)

// SnapshotService captures pre-merge state with a TTL and can restore it,
// undoing a normalization or type-merge exactly once.
type SnapshotService struct {
	db     ports.RelationalDB
	graph  ports.GraphDB
	vector ports.VectorDB
	jobs   *JobService
	ttl    time.Duration
	now    func() time.Time
}

// NewSnapshotService creates a new SnapshotService.
func NewSnapshotService(db ports.RelationalDB, graph ports.GraphDB, vector ports.VectorDB, jobs *JobService, ttl time.Duration) *SnapshotService {
	if ttl <= 0 {
		ttl = entities.DefaultSnapshotTTL
	}
	return &SnapshotService{
		db:     db,
		graph:  graph,
		vector: vector,
		jobs:   jobs,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Capture stores the current state of the given entities and every relation
// touching them. includeType also captures the type row, needed when the
// operation deletes it (type merge).
func (s *SnapshotService) Capture(ctx context.Context, typeName, operation string, entityIDs []string, includeType bool) (*entities.Snapshot, error) {
	payload := &entities.SnapshotPayload{}

	if includeType {
		et, err := s.db.FindEntityType(ctx, typeName)
		if err != nil {
			return nil, fmt.Errorf("finding entity type: %w", err)
		}
		if et == nil {
			return nil, entities.NewNotFoundError("entity type", typeName)
		}
		payload.Types = append(payload.Types, *et)
	}

	seenRelations := make(map[string]bool)
	for _, id := range entityIDs {
		entity, err := s.db.FindEntityByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("finding entity %s: %w", id, err)
		}
		if entity == nil {
			return nil, entities.NewNotFoundError("entity", id)
		}
		payload.Entities = append(payload.Entities, *entity)

		relations, err := s.db.FindRelationsByEntity(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("finding relations for %s: %w", id, err)
		}
		for _, rel := range relations {
			if !seenRelations[rel.ID] {
				seenRelations[rel.ID] = true
				payload.Relations = append(payload.Relations, rel)
			}
		}
	}

	created := s.now()
	snapshot := &entities.Snapshot{
		ID:          uuid.New().String(),
		TypeName:    typeName,
		Operation:   operation,
		EntityCount: len(payload.Entities),
		CreatedAt:   created,
		ExpiresAt:   created.Add(s.ttl),
	}
	if err := s.db.SaveSnapshot(ctx, snapshot, payload); err != nil {
		return nil, fmt.Errorf("saving snapshot: %w", err)
	}

	_ = s.db.LogAction(ctx, "snapshot.created", snapshot.ID, map[string]any{
		"type":      typeName,
		"operation": operation,
		"entities":  snapshot.EntityCount,
	})
	return snapshot, nil
}

// List returns snapshots for a type, newest first.
func (s *SnapshotService) List(ctx context.Context, typeName string) ([]entities.Snapshot, error) {
	return s.db.ListSnapshots(ctx, typeName)
}

// Restore reverts the captured pre-operation state as a job. Expired or
// already-restored snapshots are rejected synchronously with a
// ConsistencyError; no partial restore is ever attempted.
func (s *SnapshotService) Restore(ctx context.Context, snapshotID string) (*entities.Job, error) {
	snapshot, err := s.db.FindSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("finding snapshot: %w", err)
	}
	if snapshot == nil {
		return nil, entities.NewNotFoundError("snapshot", snapshotID)
	}
	if snapshot.Restored {
		return nil, entities.NewConsistencyError(fmt.Sprintf("snapshot %s already restored", snapshotID))
	}
	if snapshot.Expired(s.now()) {
		return nil, entities.NewConsistencyError(fmt.Sprintf("snapshot %s expired at %s", snapshotID, snapshot.ExpiresAt.Format(time.RFC3339)))
	}

	return s.jobs.Submit(ctx, entities.JobKindRollback, snapshot.TypeName, func(ctx context.Context, progress func(int, int)) (any, error) {
		payload, err := s.db.FindSnapshotPayload(ctx, snapshotID)
		if err != nil {
			return nil, fmt.Errorf("loading snapshot payload: %w", err)
		}
		progress(0, len(payload.Entities))

		// Canonical concepts minted after the capture must leave the graph
		// and vector mirrors when their members revert.
		staleKeys, err := s.staleConceptKeys(ctx, payload)
		if err != nil {
			return nil, err
		}

		apply := &entities.RestoreApply{
			Types:     payload.Types,
			Entities:  payload.Entities,
			Relations: payload.Relations,
		}
		if err := s.db.ApplyRestore(ctx, apply); err != nil {
			return nil, fmt.Errorf("applying restore: %w", err)
		}
		progress(len(payload.Entities), len(payload.Entities))

		if err := s.db.MarkSnapshotRestored(ctx, snapshotID); err != nil {
			return nil, fmt.Errorf("consuming snapshot: %w", err)
		}

		for _, key := range staleKeys {
			if err := s.graph.DeleteConcept(ctx, key); err != nil {
				return nil, entities.NewCapabilityError("graph", err)
			}
			if err := s.vector.DeleteConcept(ctx, key); err != nil {
				return nil, entities.NewCapabilityError("vector", err)
			}
		}

		// Concepts that existed at capture time go back into the graph. A
		// type merge rekeys its nodes under the target type; the stale sweep
		// above removed those, so the originals must be reinstated.
		for _, concept := range capturedConcepts(payload) {
			if err := s.graph.UpsertConcept(ctx, concept); err != nil {
				return nil, entities.NewCapabilityError("graph", err)
			}
		}

		_ = s.db.LogAction(ctx, "snapshot.restored", snapshotID, map[string]any{
			"type":     snapshot.TypeName,
			"entities": len(payload.Entities),
		})

		return map[string]any{
			"snapshot_id": snapshotID,
			"type":        snapshot.TypeName,
			"entities":    len(payload.Entities),
			"relations":   len(payload.Relations),
		}, nil
	})
}

// staleConceptKeys collects concept keys that exist now but are not part of
// the captured state, i.e. canonical names assigned by the operation being
// rolled back.
// capturedConcepts rebuilds the canonical concepts present at capture time
// from the snapshotted entities: one concept per distinct canonical name,
// with the member count, best confidence, and the master's description.
func capturedConcepts(payload *entities.SnapshotPayload) []entities.CanonicalConcept {
	byKey := make(map[string]*entities.CanonicalConcept)
	var order []string
	for _, e := range payload.Entities {
		if e.CanonicalName == "" {
			continue
		}
		key := entities.ConceptKey(e.TypeName, e.CanonicalName)
		concept, ok := byKey[key]
		if !ok {
			concept = &entities.CanonicalConcept{
				Key:           key,
				CanonicalName: e.CanonicalName,
				TypeName:      e.TypeName,
			}
			byKey[key] = concept
			order = append(order, key)
		}
		concept.MemberCount++
		if e.Confidence > concept.Confidence {
			concept.Confidence = e.Confidence
		}
		if concept.Description == "" {
			concept.Description = e.Description
		}
	}

	concepts := make([]entities.CanonicalConcept, 0, len(order))
	for _, key := range order {
		concepts = append(concepts, *byKey[key])
	}
	return concepts
}

func (s *SnapshotService) staleConceptKeys(ctx context.Context, payload *entities.SnapshotPayload) ([]string, error) {
	captured := make(map[string]bool)
	for _, e := range payload.Entities {
		if e.CanonicalName != "" {
			captured[entities.ConceptKey(e.TypeName, e.CanonicalName)] = true
		}
	}

	seen := make(map[string]bool)
	var stale []string
	for _, e := range payload.Entities {
		current, err := s.db.FindEntityByID(ctx, e.ID)
		if err != nil {
			return nil, fmt.Errorf("finding entity %s: %w", e.ID, err)
		}
		if current == nil || current.CanonicalName == "" {
			continue
		}
		key := entities.ConceptKey(current.TypeName, current.CanonicalName)
		if !captured[key] && !seen[key] {
			seen[key] = true
			stale = append(stale, key)
		}
	}
	return stale, nil
}
