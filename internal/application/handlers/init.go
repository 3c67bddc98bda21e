// Package handlers contains application use case handlers.
package handlers

import (
	"context"
	"fmt"

	"github.com/ersonp/canon-core/internal/domain/ports"
	"github.com/ersonp/canon-core/internal/infrastructure/config"
	embedder "github.com/ersonp/canon-core/internal/infrastructure/embedder/openai"
)

// InitHandler handles workspace initialization.
type InitHandler struct {
	db                ports.RelationalDB
	collectionManager ports.CollectionManager
}

// NewInitHandler creates a new init handler.
func NewInitHandler(db ports.RelationalDB, collectionManager ports.CollectionManager) *InitHandler {
	return &InitHandler{
		db:                db,
		collectionManager: collectionManager,
	}
}

// InitResult contains the result of initialization.
type InitResult struct {
	ConfigPath     string
	DatabasePath   string
	CollectionName string
}

// Handle initializes the curation workspace.
func (h *InitHandler) Handle(ctx context.Context, basePath string) (*InitResult, error) {
	if config.Exists(basePath) {
		return nil, fmt.Errorf("canon already initialized in %s", basePath)
	}

	if err := config.WriteDefault(basePath); err != nil {
		return nil, fmt.Errorf("writing default config: %w", err)
	}

	cfg, err := config.Load(basePath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if h.db != nil {
		if err := h.db.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	if h.collectionManager != nil {
		if err := h.collectionManager.EnsureCollection(ctx, embedder.VectorSize); err != nil {
			return nil, fmt.Errorf("creating collection: %w", err)
		}
	}

	return &InitResult{
		ConfigPath:     config.ConfigFilePath(basePath),
		DatabasePath:   cfg.SQLite.Path,
		CollectionName: cfg.Qdrant.Collection,
	}, nil
}
