package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/ports"
)

// GroupResult records the outcome of one applied merge group in the job
// result payload.
type GroupResult struct {
	CanonicalKey        string `json:"canonical_key"`
	CanonicalName       string `json:"canonical_name"`
	MasterID            string `json:"master_id"`
	Members             int    `json:"members"`
	RelationsReassigned int    `json:"relations_reassigned"`
	RelationsDeduped    int    `json:"relations_deduped"`
}

// MergeResult is the payload of a finished normalization job. When a group
// fails partway through the run, Applied < Total and the failing group is
// named in the job error; applied groups are never rolled back.
type MergeResult struct {
	TypeName   string        `json:"type_name"`
	Applied    int           `json:"applied"`
	Total      int           `json:"total"`
	Skipped    int           `json:"skipped"` // groups with zero selected members
	SnapshotID string        `json:"snapshot_id,omitempty"`
	Groups     []GroupResult `json:"groups"`
}

// MergeExecutor applies admin-approved merge groups: it selects a master per
// group, stamps the canonical name on every selected member, reassigns
// relations to the master, and mirrors the canonical concept into the graph
// and vector capabilities. Each group is one all-or-nothing unit.
type MergeExecutor struct {
	db       ports.RelationalDB
	graph    ports.GraphDB
	vector   ports.VectorDB
	embedder ports.Embedder
	snaps    *SnapshotService
	jobs     *JobService
	now      func() time.Time
}

// NewMergeExecutor creates a new MergeExecutor.
func NewMergeExecutor(db ports.RelationalDB, graph ports.GraphDB, vector ports.VectorDB, embedder ports.Embedder, snaps *SnapshotService, jobs *JobService) *MergeExecutor {
	return &MergeExecutor{
		db:       db,
		graph:    graph,
		vector:   vector,
		embedder: embedder,
		snaps:    snaps,
		jobs:     jobs,
		now:      time.Now,
	}
}

// Execute applies the given merge groups as a normalization job. Groups with
// zero selected members are skipped silently: an operator deselecting
// everything signals "do nothing for this group", not a failure.
func (x *MergeExecutor) Execute(ctx context.Context, typeName string, groups []entities.MergeGroup, createSnapshot bool, actor string) (*entities.Job, error) {
	if len(groups) == 0 {
		return nil, entities.NewValidationError("groups", "no merge groups supplied")
	}
	et, err := x.db.FindEntityType(ctx, typeName)
	if err != nil {
		return nil, fmt.Errorf("finding entity type: %w", err)
	}
	if et == nil {
		return nil, entities.NewNotFoundError("entity type", typeName)
	}

	return x.jobs.Submit(ctx, entities.JobKindNormalize, typeName, func(ctx context.Context, progress func(int, int)) (any, error) {
		actionable := make([]entities.MergeGroup, 0, len(groups))
		for _, g := range groups {
			if len(g.SelectedMembers()) > 0 {
				actionable = append(actionable, g)
			}
		}

		result := &MergeResult{
			TypeName: typeName,
			Total:    len(actionable),
			Skipped:  len(groups) - len(actionable),
		}
		progress(0, len(actionable))

		if createSnapshot && len(actionable) > 0 {
			var memberIDs []string
			for _, g := range actionable {
				for _, m := range g.SelectedMembers() {
					memberIDs = append(memberIDs, m.EntityID)
				}
			}
			snapshot, err := x.snaps.Capture(ctx, typeName, "normalize", memberIDs, false)
			if err != nil {
				return result, fmt.Errorf("capturing snapshot: %w", err)
			}
			result.SnapshotID = snapshot.ID
		}

		for i, group := range actionable {
			groupResult, err := x.applyGroup(ctx, &group, actor)
			if err != nil {
				// Applied groups stay applied; the job reports how far it got.
				return result, fmt.Errorf("group %q (%d of %d applied): %w",
					group.CanonicalName, result.Applied, result.Total, err)
			}
			result.Groups = append(result.Groups, *groupResult)
			result.Applied++
			progress(i+1, len(actionable))
		}

		_ = x.db.LogAction(ctx, "normalize.executed", typeName, map[string]any{
			"applied":  result.Applied,
			"skipped":  result.Skipped,
			"snapshot": result.SnapshotID,
		})
		return result, nil
	})
}

// applyGroup applies one merge group: relational mutation first (atomic),
// then the graph and vector mirrors.
func (x *MergeExecutor) applyGroup(ctx context.Context, group *entities.MergeGroup, actor string) (*GroupResult, error) {
	masterID := group.Master()
	selected := group.SelectedMembers()

	apply := &entities.MergeApply{
		TypeName:      group.TypeName,
		CanonicalName: group.CanonicalName,
		Description:   group.Description,
		MasterID:      masterID,
		ValidatedBy:   actor,
	}

	selectedIDs := make(map[string]bool, len(selected))
	for _, m := range selected {
		apply.MemberIDs = append(apply.MemberIDs, m.EntityID)
		selectedIDs[m.EntityID] = true
	}

	masterRelations, err := x.db.FindRelationsByEntity(ctx, masterID)
	if err != nil {
		return nil, fmt.Errorf("finding master relations: %w", err)
	}
	existing := make(map[string]bool)
	for _, rel := range masterRelations {
		existing[rel.EndpointKey()] = true
	}

	seen := make(map[string]bool)
	survivors := append([]entities.Relation{}, masterRelations...)
	maxConfidence := 0.0
	for _, m := range selected {
		entity, err := x.db.FindEntityByID(ctx, m.EntityID)
		if err != nil {
			return nil, fmt.Errorf("finding entity %s: %w", m.EntityID, err)
		}
		if entity == nil {
			return nil, entities.NewNotFoundError("entity", m.EntityID)
		}
		if entity.Confidence > maxConfidence {
			maxConfidence = entity.Confidence
		}
		if m.EntityID == masterID {
			continue
		}

		relations, err := x.db.FindRelationsByEntity(ctx, m.EntityID)
		if err != nil {
			return nil, fmt.Errorf("finding relations for %s: %w", m.EntityID, err)
		}
		for _, rel := range relations {
			if seen[rel.ID] {
				continue
			}
			seen[rel.ID] = true

			moved := rel
			update := entities.RelationEndpointUpdate{RelationID: rel.ID}
			if selectedIDs[rel.SourceID] && rel.SourceID != masterID {
				moved.SourceID = masterID
				update.NewSourceID = masterID
			}
			if selectedIDs[rel.TargetID] && rel.TargetID != masterID {
				moved.TargetID = masterID
				update.NewTargetID = masterID
			}
			if moved.SourceID == moved.TargetID || existing[moved.EndpointKey()] {
				apply.DeleteRelations = append(apply.DeleteRelations, rel.ID)
				continue
			}
			existing[moved.EndpointKey()] = true
			survivors = append(survivors, moved)
			apply.RelationUpdates = append(apply.RelationUpdates, update)
		}
	}

	if err := x.db.ApplyMergeGroup(ctx, apply); err != nil {
		return nil, fmt.Errorf("applying merge group: %w", err)
	}

	concept := entities.CanonicalConcept{
		Key:           group.CanonicalKey,
		CanonicalName: group.CanonicalName,
		TypeName:      group.TypeName,
		Description:   group.Description,
		MemberCount:   len(selected),
		Confidence:    maxConfidence,
	}
	if err := x.graph.UpsertConcept(ctx, concept); err != nil {
		return nil, entities.NewCapabilityError("graph", err)
	}

	if err := x.mirrorRelations(ctx, group.CanonicalKey, masterID, survivors); err != nil {
		return nil, err
	}

	embedding, err := x.embedder.Embed(ctx, conceptToText(concept))
	if err != nil {
		return nil, entities.NewCapabilityError("embedder", err)
	}
	if err := x.vector.UpsertConcept(ctx, concept, embedding); err != nil {
		return nil, entities.NewCapabilityError("vector", err)
	}

	return &GroupResult{
		CanonicalKey:        group.CanonicalKey,
		CanonicalName:       group.CanonicalName,
		MasterID:            masterID,
		Members:             len(selected),
		RelationsReassigned: len(apply.RelationUpdates),
		RelationsDeduped:    len(apply.DeleteRelations),
	}, nil
}

// mirrorRelations projects the relations surviving on the master as edges
// between canonical nodes. Only relations whose other endpoint is itself
// canonical produce an edge; edges back into the same concept are skipped.
func (x *MergeExecutor) mirrorRelations(ctx context.Context, conceptKey, masterID string, relations []entities.Relation) error {
	for _, rel := range relations {
		otherID := rel.TargetID
		if otherID == masterID {
			otherID = rel.SourceID
		}
		other, err := x.db.FindEntityByID(ctx, otherID)
		if err != nil {
			return fmt.Errorf("finding entity %s: %w", otherID, err)
		}
		if other == nil || !other.IsCanonical() {
			continue
		}

		otherKey := entities.ConceptKey(other.TypeName, other.CanonicalName)
		if otherKey == conceptKey {
			continue
		}
		sourceKey, targetKey := conceptKey, otherKey
		if rel.TargetID == masterID {
			sourceKey, targetKey = otherKey, conceptKey
		}
		if err := x.graph.RelateConcepts(ctx, sourceKey, targetKey, rel.Type); err != nil {
			return entities.NewCapabilityError("graph", err)
		}
	}
	return nil
}

// conceptToText builds the text embedded for semantic lookup of a concept.
func conceptToText(c entities.CanonicalConcept) string {
	text := c.TypeName + " " + c.CanonicalName
	if c.Description != "" {
		text += " " + c.Description
	}
	return text
}
