package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/ports"
)

// DedupeReport summarizes one deduplication pass. A dry run and a real run
// over the same input report the same group and merge counts; the relation
// counters describe the plan each run computed, which can differ when a
// relation spans two duplicate groups.
type DedupeReport struct {
	DryRun              bool           `json:"dry_run"`
	Groups              int            `json:"groups"`
	EntitiesMerged      int            `json:"entities_merged"`
	RelationsReassigned int            `json:"relations_reassigned"`
	RelationsDeduped    int            `json:"relations_deduped"`
	ByType              map[string]int `json:"by_type,omitempty"`
	DurationMS          int64          `json:"duration_ms"`
}

// DedupeService collapses entities with identical normalized names within a
// type. The survivor of each group keeps every relation; non-survivors are
// deleted.
type DedupeService struct {
	db ports.RelationalDB
}

// NewDedupeService creates a new DedupeService.
func NewDedupeService(db ports.RelationalDB) *DedupeService {
	return &DedupeService{db: db}
}

// Deduplicate merges exact duplicates, optionally scoped to one type. With
// dryRun the same statistics are computed without mutating state.
func (s *DedupeService) Deduplicate(ctx context.Context, typeName string, dryRun bool) (*DedupeReport, error) {
	start := time.Now()

	all, err := s.db.ListEntities(ctx, ports.EntityFilter{TypeName: typeName})
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}

	groups := groupByNormalizedName(all)

	report := &DedupeReport{
		DryRun: dryRun,
		ByType: make(map[string]int),
	}

	for _, group := range groups {
		apply, err := s.planGroup(ctx, group)
		if err != nil {
			return nil, err
		}

		report.Groups++
		report.EntitiesMerged += len(apply.DeleteEntities)
		report.RelationsReassigned += len(apply.RelationUpdates)
		report.RelationsDeduped += len(apply.DeleteRelations)
		report.ByType[group[0].TypeName] += len(apply.DeleteEntities)

		if !dryRun {
			if err := s.db.ApplyDedupe(ctx, apply); err != nil {
				return nil, fmt.Errorf("applying dedupe for %q: %w", group[0].NormalizedName, err)
			}
		}
	}

	report.DurationMS = time.Since(start).Milliseconds()

	if !dryRun && report.Groups > 0 {
		_ = s.db.LogAction(ctx, "dedupe.executed", typeName, map[string]any{
			"groups": report.Groups,
			"merged": report.EntitiesMerged,
		})
	}
	return report, nil
}

// groupByNormalizedName buckets entities by (type, normalized name), keeping
// only buckets of size >= 2, in deterministic order.
func groupByNormalizedName(all []*entities.Entity) [][]*entities.Entity {
	buckets := make(map[string][]*entities.Entity)
	var order []string
	for _, e := range all {
		key := e.TypeName + "|" + e.NormalizedName
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], e)
	}
	sort.Strings(order)

	var groups [][]*entities.Entity
	for _, key := range order {
		if len(buckets[key]) >= 2 {
			groups = append(groups, buckets[key])
		}
	}
	return groups
}

// planGroup computes the mutation for one duplicate group: survivor is the
// entity with the highest relation degree, ties broken by earliest
// created_at, then smallest id so ordering is total.
func (s *DedupeService) planGroup(ctx context.Context, group []*entities.Entity) (*entities.DedupeApply, error) {
	ids := make([]string, len(group))
	for i, e := range group {
		ids[i] = e.ID
	}
	degrees, err := s.db.CountRelationsByEntity(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("counting relations: %w", err)
	}

	sorted := make([]*entities.Entity, len(group))
	copy(sorted, group)
	sort.Slice(sorted, func(i, j int) bool {
		di, dj := degrees[sorted[i].ID], degrees[sorted[j].ID]
		if di != dj {
			return di > dj
		}
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	survivor := sorted[0]
	apply := &entities.DedupeApply{SurvivorID: survivor.ID}

	survivorRelations, err := s.db.FindRelationsByEntity(ctx, survivor.ID)
	if err != nil {
		return nil, fmt.Errorf("finding survivor relations: %w", err)
	}
	existing := make(map[string]bool)
	for _, rel := range survivorRelations {
		existing[rel.EndpointKey()] = true
	}

	duplicateIDs := make(map[string]bool)
	for _, dup := range sorted[1:] {
		duplicateIDs[dup.ID] = true
		apply.DeleteEntities = append(apply.DeleteEntities, dup.ID)
	}

	seen := make(map[string]bool)
	for _, dup := range sorted[1:] {
		relations, err := s.db.FindRelationsByEntity(ctx, dup.ID)
		if err != nil {
			return nil, fmt.Errorf("finding relations for %s: %w", dup.ID, err)
		}
		for _, rel := range relations {
			// A relation between two duplicates shows up under both; plan it once.
			if seen[rel.ID] {
				continue
			}
			seen[rel.ID] = true

			moved := rel
			update := entities.RelationEndpointUpdate{RelationID: rel.ID}
			if duplicateIDs[rel.SourceID] {
				moved.SourceID = survivor.ID
				update.NewSourceID = survivor.ID
			}
			if duplicateIDs[rel.TargetID] {
				moved.TargetID = survivor.ID
				update.NewTargetID = survivor.ID
			}

			// Relations between two duplicates collapse to self-loops, and
			// reassignment can create parallel edges; both are dropped.
			if moved.SourceID == moved.TargetID || existing[moved.EndpointKey()] {
				apply.DeleteRelations = append(apply.DeleteRelations, rel.ID)
				continue
			}
			existing[moved.EndpointKey()] = true
			apply.RelationUpdates = append(apply.RelationUpdates, update)
		}
	}

	return apply, nil
}
