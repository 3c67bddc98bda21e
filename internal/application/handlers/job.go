package handlers

import (
	"context"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/services"
)

// JobHandler handles job status queries.
type JobHandler struct {
	jobs *services.JobService
}

// NewJobHandler creates a new job handler.
func NewJobHandler(jobs *services.JobService) *JobHandler {
	return &JobHandler{
		jobs: jobs,
	}
}

// HandleGet returns one job by ID.
func (h *JobHandler) HandleGet(ctx context.Context, id string) (*entities.Job, error) {
	return h.jobs.Get(ctx, id)
}

// HandleList returns recent jobs, newest first.
func (h *JobHandler) HandleList(ctx context.Context, limit int) ([]entities.Job, error) {
	return h.jobs.List(ctx, limit)
}
