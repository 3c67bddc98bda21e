package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ersonp/canon-core/internal/application/handlers"
	"github.com/ersonp/canon-core/internal/domain/services"
	"github.com/ersonp/canon-core/internal/infrastructure/config"
	embedder "github.com/ersonp/canon-core/internal/infrastructure/embedder/openai"
	"github.com/ersonp/canon-core/internal/infrastructure/graphdb/neo4j"
	llm "github.com/ersonp/canon-core/internal/infrastructure/llm/openai"
	"github.com/ersonp/canon-core/internal/infrastructure/relationaldb/sqlite"
	"github.com/ersonp/canon-core/internal/infrastructure/vectordb/qdrant"
)

// internalDeps holds all dependencies including low-level components.
type internalDeps struct {
	Config *config.Config

	db     *sqlite.Repository
	graph  *neo4j.Repository
	vector *qdrant.Repository
	emb    *embedder.Embedder

	jobs      *services.JobService
	registry  *services.RegistryService
	snaps     *services.SnapshotService
	dedupe    *services.DedupeService
	bootstrap *services.BootstrapService
	canon     *services.CanonicalizeService
	merge     *services.MergeExecutor
}

// withInternalDeps loads config and builds dependencies, then calls the
// provided function. Background jobs are drained before connections close so
// the process never exits mid-mutation.
func withInternalDeps(ctx context.Context, fn func(*internalDeps) error) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := sqlite.NewRepository(cfg.SQLite)
	if err != nil {
		return fmt.Errorf("creating sqlite repository: %w", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring sqlite schema: %w", err)
	}

	graph, err := neo4j.NewRepository(ctx, cfg.Graph)
	if err != nil {
		return fmt.Errorf("connecting to graph database: %w", err)
	}
	defer graph.Close(ctx)

	vector, err := qdrant.NewRepository(cfg.Qdrant)
	if err != nil {
		return fmt.Errorf("creating qdrant repository: %w", err)
	}
	defer vector.Close()

	emb, err := embedder.NewEmbedder(cfg.Embedder)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("creating llm client: %w", err)
	}

	jobs := services.NewJobService(db)
	defer jobs.Drain()

	snaps := services.NewSnapshotService(db, graph, vector, jobs, cfg.Engine.SnapshotTTL())

	deps := &internalDeps{
		Config:    cfg,
		db:        db,
		graph:     graph,
		vector:    vector,
		emb:       emb,
		jobs:      jobs,
		registry:  services.NewRegistryService(db, graph, jobs, snaps),
		snaps:     snaps,
		dedupe:    services.NewDedupeService(db),
		bootstrap: services.NewBootstrapService(db, jobs),
		canon:     services.NewCanonicalizeService(db, llmClient, jobs, cfg.Engine.AutoMatchThreshold),
		merge:     services.NewMergeExecutor(db, graph, vector, emb, snaps, jobs),
	}

	return fn(deps)
}

// withTypeHandler provides access to the EntityTypeHandler.
func withTypeHandler(ctx context.Context, fn func(*handlers.EntityTypeHandler, *internalDeps) error) error {
	return withInternalDeps(ctx, func(d *internalDeps) error {
		return fn(handlers.NewEntityTypeHandler(d.registry), d)
	})
}

// withEntityHandler provides access to the EntityHandler.
func withEntityHandler(ctx context.Context, fn func(*handlers.EntityHandler) error) error {
	return withInternalDeps(ctx, func(d *internalDeps) error {
		return fn(handlers.NewEntityHandler(d.db))
	})
}

// withConceptHandler provides access to the ConceptHandler.
func withConceptHandler(ctx context.Context, fn func(*handlers.ConceptHandler) error) error {
	return withInternalDeps(ctx, func(d *internalDeps) error {
		return fn(handlers.NewConceptHandler(d.emb, d.vector))
	})
}

// withNormalizeHandler provides access to the NormalizeHandler.
func withNormalizeHandler(ctx context.Context, fn func(*handlers.NormalizeHandler, *internalDeps) error) error {
	return withInternalDeps(ctx, func(d *internalDeps) error {
		return fn(handlers.NewNormalizeHandler(d.canon, d.merge), d)
	})
}
