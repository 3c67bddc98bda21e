package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/ports"
)

// BootstrapConfig selects which pending candidates qualify for statistical
// promotion.
type BootstrapConfig struct {
	MinOccurrences int     `json:"min_occurrences"`
	MinConfidence  float64 `json:"min_confidence"`
	TypeName       string  `json:"type_name,omitempty"`   // optional type filter
	NamePrefix     string  `json:"name_prefix,omitempty"` // optional group filter
	DryRun         bool    `json:"dry_run"`
	PromotedBy     string  `json:"promoted_by,omitempty"`
}

// BootstrapReport summarizes one estimate or promotion run.
type BootstrapReport struct {
	DryRun     bool           `json:"dry_run"`
	Scanned    int            `json:"scanned"`
	Promoted   int            `json:"promoted"`
	ByType     map[string]int `json:"by_type,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

// BootstrapService promotes frequently-seen, high-confidence candidates into
// canonical seed entities without any language-model call. Entities are
// promoted in place: no grouping, no renaming.
type BootstrapService struct {
	db   ports.RelationalDB
	jobs *JobService
}

// NewBootstrapService creates a new BootstrapService.
func NewBootstrapService(db ports.RelationalDB, jobs *JobService) *BootstrapService {
	return &BootstrapService{db: db, jobs: jobs}
}

// Estimate performs the same selection as Promote and returns counts without
// mutating anything.
func (s *BootstrapService) Estimate(ctx context.Context, cfg BootstrapConfig) (*BootstrapReport, error) {
	cfg.DryRun = true
	return s.run(ctx, cfg)
}

// Promote validates every qualifying candidate, as a job. With DryRun it
// returns the same counts Estimate would for the same filters.
func (s *BootstrapService) Promote(ctx context.Context, cfg BootstrapConfig) (*entities.Job, error) {
	if cfg.MinOccurrences < 1 {
		return nil, entities.NewValidationError("min_occurrences", "must be at least 1")
	}
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 1 {
		return nil, entities.NewValidationError("min_confidence", "must be in [0,1]")
	}

	return s.jobs.Submit(ctx, entities.JobKindBootstrap, cfg.TypeName, func(ctx context.Context, progress func(int, int)) (any, error) {
		report, err := s.runWithProgress(ctx, cfg, progress)
		if err != nil {
			return nil, err
		}
		return report, nil
	})
}

func (s *BootstrapService) run(ctx context.Context, cfg BootstrapConfig) (*BootstrapReport, error) {
	return s.runWithProgress(ctx, cfg, func(int, int) {})
}

func (s *BootstrapService) runWithProgress(ctx context.Context, cfg BootstrapConfig, progress func(int, int)) (*BootstrapReport, error) {
	start := time.Now()

	scanned, err := s.db.CountEntities(ctx, ports.EntityFilter{
		TypeName:   cfg.TypeName,
		Status:     entities.EntityStatusPending,
		NamePrefix: cfg.NamePrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("counting candidates: %w", err)
	}

	qualified, err := s.db.ListEntities(ctx, ports.EntityFilter{
		TypeName:       cfg.TypeName,
		Status:         entities.EntityStatusPending,
		NamePrefix:     cfg.NamePrefix,
		MinOccurrences: cfg.MinOccurrences,
		MinConfidence:  cfg.MinConfidence,
	})
	if err != nil {
		return nil, fmt.Errorf("selecting candidates: %w", err)
	}
	progress(0, len(qualified))

	report := &BootstrapReport{
		DryRun:  cfg.DryRun,
		Scanned: scanned,
		ByType:  make(map[string]int),
	}

	ids := make([]string, len(qualified))
	for i, e := range qualified {
		ids[i] = e.ID
		report.ByType[e.TypeName]++
	}
	report.Promoted = len(ids)

	if !cfg.DryRun && len(ids) > 0 {
		if err := s.db.PromoteEntities(ctx, ids, cfg.PromotedBy); err != nil {
			return nil, fmt.Errorf("promoting entities: %w", err)
		}
		_ = s.db.LogAction(ctx, "bootstrap.promoted", cfg.TypeName, map[string]any{
			"promoted":        len(ids),
			"min_occurrences": cfg.MinOccurrences,
			"min_confidence":  cfg.MinConfidence,
		})
	}
	progress(len(ids), len(ids))

	report.DurationMS = time.Since(start).Milliseconds()
	return report, nil
}
