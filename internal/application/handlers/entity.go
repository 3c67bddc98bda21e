package handlers

import (
	"context"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/ports"
)

// EntityHandler handles entity read operations.
type EntityHandler struct {
	db ports.RelationalDB
}

// NewEntityHandler creates a new entity handler.
func NewEntityHandler(db ports.RelationalDB) *EntityHandler {
	return &EntityHandler{
		db: db,
	}
}

// HandleList returns entities matching the filter.
func (h *EntityHandler) HandleList(ctx context.Context, filter ports.EntityFilter) ([]*entities.Entity, error) {
	return h.db.ListEntities(ctx, filter)
}

// EntityDetail is an entity with its relations and curation history.
type EntityDetail struct {
	Entity    *entities.Entity
	Relations []entities.Relation
	History   []entities.CurationEntry
}

// HandleDescribe returns an entity with its relations and curation history.
func (h *EntityHandler) HandleDescribe(ctx context.Context, id string) (*EntityDetail, error) {
	entity, err := h.db.FindEntityByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, entities.NewNotFoundError("entity", id)
	}

	relations, err := h.db.FindRelationsByEntity(ctx, id)
	if err != nil {
		return nil, err
	}

	history, err := h.db.FindCurationLog(ctx, id)
	if err != nil {
		return nil, err
	}

	return &EntityDetail{
		Entity:    entity,
		Relations: relations,
		History:   history,
	}, nil
}
