package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/ports"
)

// CanonicalizeService runs the two-phase canonicalization flow: ontology
// generation through the language-model capability, then a pure normalization
// preview that builds reviewable merge groups.
type CanonicalizeService struct {
	db            ports.RelationalDB
	canonicalizer ports.Canonicalizer
	jobs          *JobService
	threshold     int
}

// NewCanonicalizeService creates a new CanonicalizeService.
func NewCanonicalizeService(db ports.RelationalDB, canonicalizer ports.Canonicalizer, jobs *JobService, threshold int) *CanonicalizeService {
	if threshold <= 0 {
		threshold = entities.AutoMatchThreshold
	}
	return &CanonicalizeService{
		db:            db,
		canonicalizer: canonicalizer,
		jobs:          jobs,
		threshold:     threshold,
	}
}

// GenerateOntology submits a type's entities to the language-model capability
// as a job. The job fails if the capability errors or times out; no partial
// ontology is ever recorded.
func (s *CanonicalizeService) GenerateOntology(ctx context.Context, typeName string, includeValidated bool) (*entities.Job, error) {
	et, err := s.db.FindEntityType(ctx, typeName)
	if err != nil {
		return nil, fmt.Errorf("finding entity type: %w", err)
	}
	if et == nil {
		return nil, entities.NewNotFoundError("entity type", typeName)
	}
	if et.Status != entities.TypeStatusApproved {
		return nil, entities.NewValidationError("type", fmt.Sprintf("type %q is %s, only approved types can be normalized", typeName, et.Status))
	}

	return s.jobs.Submit(ctx, entities.JobKindOntology, typeName, func(ctx context.Context, progress func(int, int)) (any, error) {
		filter := ports.EntityFilter{TypeName: typeName}
		if !includeValidated {
			filter.Status = entities.EntityStatusPending
		}
		list, err := s.db.ListEntities(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("listing entities: %w", err)
		}
		if len(list) == 0 {
			return nil, entities.NewValidationError("type", fmt.Sprintf("type %q has no entities to normalize", typeName))
		}
		progress(0, len(list))

		inputs := make([]ports.OntologyInput, len(list))
		for i, e := range list {
			inputs[i] = ports.OntologyInput{
				EntityID:    e.ID,
				Name:        e.Name,
				Description: e.Description,
			}
		}

		ontology, err := s.canonicalizer.ProposeOntology(ctx, typeName, inputs)
		if err != nil {
			return nil, entities.NewCapabilityError("language model", err)
		}
		progress(len(list), len(list))

		_ = s.db.LogAction(ctx, "ontology.generated", typeName, map[string]any{
			"entities": len(list),
			"groups":   len(ontology.Groups),
		})
		return ontology, nil
	})
}

// OntologyFromJob decodes the ontology recorded by a finished generation job.
func (s *CanonicalizeService) OntologyFromJob(ctx context.Context, jobID string) (*entities.Ontology, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Kind != entities.JobKindOntology {
		return nil, entities.NewValidationError("job", fmt.Sprintf("job %s is %s, not an ontology generation", jobID, job.Kind))
	}
	if job.Status != entities.JobStatusFinished {
		return nil, entities.NewValidationError("job", fmt.Sprintf("job %s is %s, ontology not available", jobID, job.Status))
	}

	var ontology entities.Ontology
	if err := json.Unmarshal(job.Result, &ontology); err != nil {
		return nil, fmt.Errorf("decoding ontology: %w", err)
	}
	return &ontology, nil
}

// Preview computes reviewable merge groups from an ontology. It is pure:
// nothing is persisted, so the preview can be recomputed any number of times
// from the same ontology. Members scoring at or above the acceptance
// threshold are auto-matched and pre-selected; the rest require explicit
// operator opt-in.
func (s *CanonicalizeService) Preview(ctx context.Context, ontology *entities.Ontology) ([]entities.MergeGroup, error) {
	if ontology == nil || len(ontology.Groups) == 0 {
		return nil, entities.NewValidationError("ontology", "ontology has no groups")
	}

	var groups []entities.MergeGroup
	for _, og := range ontology.Groups {
		group := entities.MergeGroup{
			CanonicalKey:  entities.ConceptKey(ontology.TypeName, og.CanonicalName),
			CanonicalName: og.CanonicalName,
			Description:   og.Description,
			TypeName:      ontology.TypeName,
		}

		for _, id := range og.MemberIDs {
			entity, err := s.db.FindEntityByID(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("finding entity %s: %w", id, err)
			}
			if entity == nil {
				// Entity removed since the ontology was generated.
				continue
			}
			score := TokenSetRatio(entity.Name, og.CanonicalName)
			group.Members = append(group.Members, entities.GroupMember{
				EntityID:   entity.ID,
				Name:       entity.Name,
				MatchScore: score,
				AutoMatch:  score >= s.threshold,
				Selected:   score >= s.threshold,
			})
		}
		if len(group.Members) == 0 {
			continue
		}

		sort.Slice(group.Members, func(i, j int) bool {
			if group.Members[i].MatchScore != group.Members[j].MatchScore {
				return group.Members[i].MatchScore > group.Members[j].MatchScore
			}
			return group.Members[i].EntityID < group.Members[j].EntityID
		})
		group.MasterID = group.Master()
		groups = append(groups, group)
	}
	return groups, nil
}

// RenameGroup sets a group's canonical name, recomputing its key. Member
// scores are intentionally left alone: the operator's chosen name overrides
// the similarity signal, not the other way around.
func RenameGroup(groups []entities.MergeGroup, canonicalKey, newName string) ([]entities.MergeGroup, error) {
	if newName == "" {
		return nil, entities.NewValidationError("canonical_name", "cannot be empty")
	}
	idx := groupIndex(groups, canonicalKey)
	if idx < 0 {
		return nil, entities.NewNotFoundError("merge group", canonicalKey)
	}
	groups[idx].CanonicalName = newName
	groups[idx].CanonicalKey = entities.ConceptKey(groups[idx].TypeName, newName)
	return groups, nil
}

// ToggleMember flips a member's selection. Deselecting the master hands the
// role to the highest-scoring remaining selected member.
func ToggleMember(groups []entities.MergeGroup, canonicalKey, entityID string) ([]entities.MergeGroup, error) {
	idx := groupIndex(groups, canonicalKey)
	if idx < 0 {
		return nil, entities.NewNotFoundError("merge group", canonicalKey)
	}
	group := &groups[idx]
	for i := range group.Members {
		if group.Members[i].EntityID == entityID {
			group.Members[i].Selected = !group.Members[i].Selected
			group.MasterID = group.Master()
			return groups, nil
		}
	}
	return nil, entities.NewNotFoundError("group member", entityID)
}

// ExtractMember removes a member from its group into a new singleton group
// with the member as sole content and master. If the extraction removed the
// source group's master, a new master is re-selected from the remaining
// selected members.
func ExtractMember(groups []entities.MergeGroup, canonicalKey, entityID string) ([]entities.MergeGroup, error) {
	idx := groupIndex(groups, canonicalKey)
	if idx < 0 {
		return nil, entities.NewNotFoundError("merge group", canonicalKey)
	}
	group := &groups[idx]

	memberIdx := -1
	for i := range group.Members {
		if group.Members[i].EntityID == entityID {
			memberIdx = i
			break
		}
	}
	if memberIdx < 0 {
		return nil, entities.NewNotFoundError("group member", entityID)
	}

	extracted := group.Members[memberIdx]
	group.Members = append(group.Members[:memberIdx], group.Members[memberIdx+1:]...)
	group.MasterID = group.Master()

	singleton := entities.MergeGroup{
		CanonicalKey:  entities.ConceptKey(group.TypeName, extracted.Name),
		CanonicalName: extracted.Name,
		TypeName:      group.TypeName,
		MasterID:      extracted.EntityID,
		Members: []entities.GroupMember{{
			EntityID:   extracted.EntityID,
			Name:       extracted.Name,
			MatchScore: 100,
			AutoMatch:  true,
			Selected:   true,
		}},
	}
	return append(groups, singleton), nil
}

func groupIndex(groups []entities.MergeGroup, canonicalKey string) int {
	for i := range groups {
		if groups[i].CanonicalKey == canonicalKey {
			return i
		}
	}
	return -1
}
