package handlers

import (
	"context"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/services"
)

// SnapshotHandler handles snapshot listing and rollback.
type SnapshotHandler struct {
	snaps *services.SnapshotService
}

// NewSnapshotHandler creates a new snapshot handler.
func NewSnapshotHandler(snaps *services.SnapshotService) *SnapshotHandler {
	return &SnapshotHandler{
		snaps: snaps,
	}
}

// HandleList returns snapshots, optionally scoped to one type.
func (h *SnapshotHandler) HandleList(ctx context.Context, typeName string) ([]entities.Snapshot, error) {
	return h.snaps.List(ctx, typeName)
}

// HandleRestore submits a rollback to the given snapshot as a background job.
func (h *SnapshotHandler) HandleRestore(ctx context.Context, snapshotID string) (*entities.Job, error) {
	return h.snaps.Restore(ctx, snapshotID)
}
