package handlers

import (
	"context"

	"github.com/ersonp/canon-core/internal/domain/services"
)

// DedupeHandler handles exact-duplicate collapse operations.
type DedupeHandler struct {
	dedupe *services.DedupeService
}

// NewDedupeHandler creates a new dedupe handler.
func NewDedupeHandler(dedupe *services.DedupeService) *DedupeHandler {
	return &DedupeHandler{
		dedupe: dedupe,
	}
}

// Handle collapses exact duplicates, or reports what would be collapsed when
// dryRun is set. An empty typeName scans every type.
func (h *DedupeHandler) Handle(ctx context.Context, typeName string, dryRun bool) (*services.DedupeReport, error) {
	return h.dedupe.Deduplicate(ctx, typeName, dryRun)
}
