package handlers

import (
	"context"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/services"
)

// BootstrapHandler handles threshold-based promotion of pending entities.
type BootstrapHandler struct {
	bootstrap *services.BootstrapService
}

// NewBootstrapHandler creates a new bootstrap handler.
func NewBootstrapHandler(bootstrap *services.BootstrapService) *BootstrapHandler {
	return &BootstrapHandler{
		bootstrap: bootstrap,
	}
}

// HandleEstimate reports what a promotion run would do without mutating.
func (h *BootstrapHandler) HandleEstimate(ctx context.Context, cfg services.BootstrapConfig) (*services.BootstrapReport, error) {
	return h.bootstrap.Estimate(ctx, cfg)
}

// HandlePromote submits a promotion run as a background job.
func (h *BootstrapHandler) HandlePromote(ctx context.Context, cfg services.BootstrapConfig) (*entities.Job, error) {
	return h.bootstrap.Promote(ctx, cfg)
}
