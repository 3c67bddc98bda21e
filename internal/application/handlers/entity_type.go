package handlers

import (
	"context"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/services"
)

// EntityTypeHandler handles entity type registry operations.
type EntityTypeHandler struct {
	registry *services.RegistryService
}

// NewEntityTypeHandler creates a new EntityTypeHandler.
func NewEntityTypeHandler(registry *services.RegistryService) *EntityTypeHandler {
	return &EntityTypeHandler{
		registry: registry,
	}
}

// HandleList returns entity types, optionally filtered by status.
func (h *EntityTypeHandler) HandleList(ctx context.Context, status entities.TypeStatus) ([]entities.EntityType, error) {
	return h.registry.List(ctx, status)
}

// HandleRegister records a sighting of a type, creating it as pending on
// first sight.
func (h *EntityTypeHandler) HandleRegister(ctx context.Context, name, agent, description string) (*entities.EntityType, error) {
	return h.registry.Register(ctx, name, agent, description)
}

// HandleApprove approves a pending type.
func (h *EntityTypeHandler) HandleApprove(ctx context.Context, name string) error {
	return h.registry.Approve(ctx, name)
}

// HandleReject rejects a pending type with a reason.
func (h *EntityTypeHandler) HandleReject(ctx context.Context, name, reason string) error {
	return h.registry.Reject(ctx, name, reason)
}

// HandleMerge folds the source type into the target type as a background job.
func (h *EntityTypeHandler) HandleMerge(ctx context.Context, source, target string) (*entities.Job, error) {
	return h.registry.MergeInto(ctx, source, target)
}

// TypeDetail pairs a type row with the size of its canonical graph mirror.
type TypeDetail struct {
	Type     *entities.EntityType
	Concepts int
}

// HandleDescribe returns details about a specific entity type, including how
// many canonical concepts it has in the graph.
func (h *EntityTypeHandler) HandleDescribe(ctx context.Context, name string) (*TypeDetail, error) {
	et, err := h.registry.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	concepts, err := h.registry.ConceptCount(ctx, name)
	if err != nil {
		return nil, err
	}
	return &TypeDetail{Type: et, Concepts: concepts}, nil
}
