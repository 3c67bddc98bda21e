package services

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/ports"
)

// validTypeNameRegex allows uppercase alphanumeric and underscores, the form
// discovery agents emit type names in (e.g. SKILL, JOB_TITLE).
var validTypeNameRegex = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// RegistryService owns the lifecycle of dynamically discovered entity types:
// pending on first sighting, approved or rejected by an operator, destroyed
// only by merging into another type.
type RegistryService struct {
	db    ports.RelationalDB
	graph ports.GraphDB
	jobs  *JobService
	snaps *SnapshotService
	now   func() time.Time
}

// NewRegistryService creates a new RegistryService.
func NewRegistryService(db ports.RelationalDB, graph ports.GraphDB, jobs *JobService, snaps *SnapshotService) *RegistryService {
	return &RegistryService{
		db:    db,
		graph: graph,
		jobs:  jobs,
		snaps: snaps,
		now:   time.Now,
	}
}

// Register is the ingress used by candidate intake: it records a type as
// pending on first sighting and is a no-op for known types.
func (s *RegistryService) Register(ctx context.Context, name, agent, description string) (*entities.EntityType, error) {
	if !validTypeNameRegex.MatchString(name) {
		return nil, entities.NewValidationError("name", "must be uppercase alphanumeric with underscores, starting with a letter")
	}

	existing, err := s.db.FindEntityType(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("checking entity type: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	et := &entities.EntityType{
		Name:         name,
		Status:       entities.TypeStatusPending,
		Description:  description,
		DiscoveredBy: agent,
		FirstSeen:    s.now(),
	}
	if err := s.db.SaveEntityType(ctx, et); err != nil {
		return nil, fmt.Errorf("saving entity type: %w", err)
	}

	_ = s.db.LogAction(ctx, "type.discovered", name, map[string]any{"agent": agent})
	return et, nil
}

// List returns entity types with counts, optionally filtered by status.
func (s *RegistryService) List(ctx context.Context, status entities.TypeStatus) ([]entities.EntityType, error) {
	return s.db.ListEntityTypes(ctx, status)
}

// Get returns a specific entity type by name.
func (s *RegistryService) Get(ctx context.Context, name string) (*entities.EntityType, error) {
	et, err := s.db.FindEntityType(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("finding entity type: %w", err)
	}
	if et == nil {
		return nil, entities.NewNotFoundError("entity type", name)
	}
	return et, nil
}

// ConceptCount reports how many canonical concepts of a type are mirrored in
// the graph.
func (s *RegistryService) ConceptCount(ctx context.Context, name string) (int, error) {
	count, err := s.graph.CountConcepts(ctx, name)
	if err != nil {
		return 0, entities.NewCapabilityError("graph", err)
	}
	return count, nil
}

// Approve transitions a pending type to approved. Approving an already
// approved type is a no-op; approving a rejected type is an error because
// the rejection carries an operator decision that must be reversed explicitly.
func (s *RegistryService) Approve(ctx context.Context, name string) error {
	et, err := s.Get(ctx, name)
	if err != nil {
		return err
	}

	switch et.Status {
	case entities.TypeStatusApproved:
		return nil
	case entities.TypeStatusRejected:
		return entities.NewValidationError("status", fmt.Sprintf("type %q is rejected and cannot be approved", name))
	}

	et.Status = entities.TypeStatusApproved
	et.RejectionReason = ""
	if err := s.db.SaveEntityType(ctx, et); err != nil {
		return fmt.Errorf("saving entity type: %w", err)
	}

	_ = s.db.LogAction(ctx, "type.approved", name, nil)
	return nil
}

// Reject transitions a pending type to rejected. A non-empty reason is
// required; rejecting an already rejected type is a no-op.
func (s *RegistryService) Reject(ctx context.Context, name, reason string) error {
	if reason == "" {
		return entities.NewValidationError("reason", "rejection requires a reason")
	}

	et, err := s.Get(ctx, name)
	if err != nil {
		return err
	}

	switch et.Status {
	case entities.TypeStatusRejected:
		return nil
	case entities.TypeStatusApproved:
		return entities.NewValidationError("status", fmt.Sprintf("type %q is approved and cannot be rejected", name))
	}

	et.Status = entities.TypeStatusRejected
	et.RejectionReason = reason
	if err := s.db.SaveEntityType(ctx, et); err != nil {
		return fmt.Errorf("saving entity type: %w", err)
	}

	_ = s.db.LogAction(ctx, "type.rejected", name, map[string]any{"reason": reason})
	return nil
}

// MergeInto transfers every entity of the source type to the target type and
// deletes the source type, as a job. The transfer itself is one transaction:
// no reader sees entities between types. A snapshot of the source type is
// captured first so the operation can be rolled back.
func (s *RegistryService) MergeInto(ctx context.Context, source, target string) (*entities.Job, error) {
	if source == target {
		return nil, entities.NewValidationError("target", "source and target types are the same")
	}
	if _, err := s.Get(ctx, source); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, target); err != nil {
		return nil, err
	}

	return s.jobs.Submit(ctx, entities.JobKindMergeType, source, func(ctx context.Context, progress func(int, int)) (any, error) {
		ids, err := s.entityIDsForType(ctx, source)
		if err != nil {
			return nil, err
		}
		progress(0, len(ids)+1)

		snapshot, err := s.snaps.Capture(ctx, source, "merge-type", ids, true)
		if err != nil {
			return nil, err
		}

		if err := s.db.TransferEntityType(ctx, source, target); err != nil {
			return nil, fmt.Errorf("transferring entities: %w", err)
		}
		progress(len(ids), len(ids)+1)

		if err := s.graph.RelabelType(ctx, source, target); err != nil {
			return nil, entities.NewCapabilityError("graph", err)
		}
		progress(len(ids)+1, len(ids)+1)

		_ = s.db.LogAction(ctx, "type.merged", source, map[string]any{
			"target":   target,
			"entities": len(ids),
			"snapshot": snapshot.ID,
		})

		return map[string]any{
			"source":      source,
			"target":      target,
			"transferred": len(ids),
			"snapshot_id": snapshot.ID,
		}, nil
	})
}

func (s *RegistryService) entityIDsForType(ctx context.Context, typeName string) ([]string, error) {
	list, err := s.db.ListEntities(ctx, ports.EntityFilter{TypeName: typeName})
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	ids := make([]string, len(list))
	for i, e := range list {
		ids[i] = e.ID
	}
	return ids, nil
}
