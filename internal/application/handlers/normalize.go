package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/services"
)

// NormalizeHandler drives the canonicalization workflow: generate a proposal,
// preview and adjust it, then execute the accepted groups.
type NormalizeHandler struct {
	canon *services.CanonicalizeService
	merge *services.MergeExecutor
}

// NewNormalizeHandler creates a new normalize handler.
func NewNormalizeHandler(canon *services.CanonicalizeService, merge *services.MergeExecutor) *NormalizeHandler {
	return &NormalizeHandler{
		canon: canon,
		merge: merge,
	}
}

// NormalizePlan is a reviewable merge plan persisted between invocations so
// adjustments survive process restarts.
type NormalizePlan struct {
	TypeName    string                `json:"type_name"`
	JobID       string                `json:"job_id,omitempty"`
	GeneratedAt time.Time             `json:"generated_at"`
	Groups      []entities.MergeGroup `json:"groups"`
}

// HandleGenerate submits ontology generation for a type as a background job.
func (h *NormalizeHandler) HandleGenerate(ctx context.Context, typeName string, includeValidated bool) (*entities.Job, error) {
	return h.canon.GenerateOntology(ctx, typeName, includeValidated)
}

// HandlePreview scores the ontology proposed by a finished generation job
// and returns the plan for review.
func (h *NormalizeHandler) HandlePreview(ctx context.Context, jobID string) (*NormalizePlan, error) {
	ontology, err := h.canon.OntologyFromJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	groups, err := h.canon.Preview(ctx, ontology)
	if err != nil {
		return nil, err
	}

	return &NormalizePlan{
		TypeName:    ontology.TypeName,
		JobID:       jobID,
		GeneratedAt: time.Now(),
		Groups:      groups,
	}, nil
}

// HandleRename changes a group's canonical name in the plan.
func (h *NormalizeHandler) HandleRename(plan *NormalizePlan, canonicalKey, newName string) error {
	groups, err := services.RenameGroup(plan.Groups, canonicalKey, newName)
	if err != nil {
		return err
	}
	plan.Groups = groups
	return nil
}

// HandleToggle flips a member's selection in the plan.
func (h *NormalizeHandler) HandleToggle(plan *NormalizePlan, canonicalKey, entityID string) error {
	groups, err := services.ToggleMember(plan.Groups, canonicalKey, entityID)
	if err != nil {
		return err
	}
	plan.Groups = groups
	return nil
}

// HandleExtract moves a member out of its group into a singleton group.
func (h *NormalizeHandler) HandleExtract(plan *NormalizePlan, canonicalKey, entityID string) error {
	groups, err := services.ExtractMember(plan.Groups, canonicalKey, entityID)
	if err != nil {
		return err
	}
	plan.Groups = groups
	return nil
}

// HandleExecute applies the plan's selected groups as a background job.
func (h *NormalizeHandler) HandleExecute(ctx context.Context, plan *NormalizePlan, createSnapshot bool, actor string) (*entities.Job, error) {
	return h.merge.Execute(ctx, plan.TypeName, plan.Groups, createSnapshot, actor)
}

// LoadPlan reads a plan file written by SavePlan.
func LoadPlan(path string) (*NormalizePlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}
	var plan NormalizePlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}
	return &plan, nil
}

// SavePlan writes the plan to a file for later adjustment or execution.
func SavePlan(path string, plan *NormalizePlan) error {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding plan: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing plan: %w", err)
	}
	return nil
}
