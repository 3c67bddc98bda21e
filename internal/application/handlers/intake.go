package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/ports"
	"github.com/ersonp/canon-core/internal/domain/services"
)

// IntakeHandler converts loose candidate payloads into stored entities and
// relations. Unknown types are auto-registered as pending so the registry
// sees every sighting; nothing is promoted here.
type IntakeHandler struct {
	db       ports.RelationalDB
	registry *services.RegistryService
}

// NewIntakeHandler creates a new intake handler.
func NewIntakeHandler(db ports.RelationalDB, registry *services.RegistryService) *IntakeHandler {
	return &IntakeHandler{
		db:       db,
		registry: registry,
	}
}

// IntakeBatch is the wire format accepted by the intake boundary.
type IntakeBatch struct {
	Agent     string                       `json:"agent,omitempty"`
	SourceDoc string                       `json:"source_doc,omitempty"`
	Entities  []entities.CandidateEntity   `json:"entities"`
	Relations []entities.CandidateRelation `json:"relations,omitempty"`
}

// IntakeResult summarizes one intake batch.
type IntakeResult struct {
	EntitiesCreated  int
	EntitiesMerged   int
	RelationsCreated int
	TypesRegistered  int
	Skipped          []string
}

// HandleReader decodes a JSON batch from the reader and ingests it.
func (h *IntakeHandler) HandleReader(ctx context.Context, r io.Reader) (*IntakeResult, error) {
	var batch IntakeBatch
	if err := json.NewDecoder(r).Decode(&batch); err != nil {
		return nil, fmt.Errorf("decoding intake batch: %w", err)
	}
	return h.Handle(ctx, &batch)
}

// Handle validates and stores a candidate batch. Candidates arriving with a
// (type, name) pair that already exists accumulate occurrences and keep the
// highest confidence seen instead of creating a duplicate row.
func (h *IntakeHandler) Handle(ctx context.Context, batch *IntakeBatch) (*IntakeResult, error) {
	if len(batch.Entities) == 0 {
		return nil, entities.NewValidationError("entities", "batch contains no entities")
	}

	result := &IntakeResult{}

	// Names seen in this batch map to stored entity IDs so relations can
	// reference entities by name.
	byName := make(map[string]string)

	for i := range batch.Entities {
		cand := batch.Entities[i]
		cand.Name = strings.TrimSpace(cand.Name)
		cand.TypeName = strings.ToUpper(strings.TrimSpace(cand.TypeName))
		if cand.Name == "" || cand.TypeName == "" {
			result.Skipped = append(result.Skipped, fmt.Sprintf("entity %d: missing name or type", i))
			continue
		}
		if cand.Agent == "" {
			cand.Agent = batch.Agent
		}
		if cand.SourceDoc == "" {
			cand.SourceDoc = batch.SourceDoc
		}
		if cand.Occurrences < 1 {
			cand.Occurrences = 1
		}
		if cand.Confidence < 0 || cand.Confidence > 1 {
			result.Skipped = append(result.Skipped, fmt.Sprintf("entity %d (%s): confidence out of range", i, cand.Name))
			continue
		}

		existingType, err := h.db.FindEntityType(ctx, cand.TypeName)
		if err != nil {
			return nil, err
		}
		if existingType == nil {
			result.TypesRegistered++
		}
		if _, err := h.registry.Register(ctx, cand.TypeName, cand.Agent, ""); err != nil {
			result.Skipped = append(result.Skipped, fmt.Sprintf("entity %d (%s): %v", i, cand.Name, err))
			continue
		}

		entity, err := h.db.FindEntityByName(ctx, cand.TypeName, cand.Name)
		if err != nil {
			return nil, err
		}

		if entity != nil {
			entity.Occurrences += cand.Occurrences
			if cand.Confidence > entity.Confidence {
				entity.Confidence = cand.Confidence
			}
			if entity.Description == "" {
				entity.Description = cand.Description
			}
			if err := h.db.SaveEntity(ctx, entity); err != nil {
				return nil, err
			}
			result.EntitiesMerged++
		} else {
			entity = &entities.Entity{
				ID:          uuid.New().String(),
				Name:        cand.Name,
				TypeName:    cand.TypeName,
				Status:      entities.EntityStatusPending,
				Description: cand.Description,
				Confidence:  cand.Confidence,
				Occurrences: cand.Occurrences,
				SourceDoc:   cand.SourceDoc,
			}
			if err := h.db.SaveEntity(ctx, entity); err != nil {
				return nil, err
			}
			result.EntitiesCreated++
		}

		byName[entities.NormalizeName(cand.Name)] = entity.ID
	}

	for i := range batch.Relations {
		rel := batch.Relations[i]
		sourceID, ok := byName[entities.NormalizeName(rel.SourceName)]
		if !ok {
			result.Skipped = append(result.Skipped, fmt.Sprintf("relation %d: unknown source %q", i, rel.SourceName))
			continue
		}
		targetID, ok := byName[entities.NormalizeName(rel.TargetName)]
		if !ok {
			result.Skipped = append(result.Skipped, fmt.Sprintf("relation %d: unknown target %q", i, rel.TargetName))
			continue
		}
		if rel.Type == "" {
			result.Skipped = append(result.Skipped, fmt.Sprintf("relation %d: missing type", i))
			continue
		}

		sourceDoc := rel.SourceDoc
		if sourceDoc == "" {
			sourceDoc = batch.SourceDoc
		}
		err := h.db.SaveRelation(ctx, &entities.Relation{
			ID:           uuid.New().String(),
			SourceID:     sourceID,
			TargetID:     targetID,
			Type:         rel.Type,
			SourceDoc:    sourceDoc,
			DocumentRole: rel.DocumentRole,
		})
		if err != nil {
			return nil, err
		}
		result.RelationsCreated++
	}

	return result, nil
}
