package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ersonp/canon-core/internal/application/handlers"
	"github.com/ersonp/canon-core/internal/infrastructure/config"
	embedder "github.com/ersonp/canon-core/internal/infrastructure/embedder/openai"
	"github.com/ersonp/canon-core/internal/infrastructure/relationaldb/sqlite"
	"github.com/ersonp/canon-core/internal/infrastructure/vectordb/qdrant"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a new curation workspace",
		Long:  "Creates a .canon directory with default configuration, the SQLite schema, and the Qdrant collection.",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	// Config must exist before the stores can be opened, so the handler runs
	// the config part first and the stores are prepared afterwards.
	initHandler := handlers.NewInitHandler(nil, nil)
	result, err := initHandler.Handle(ctx, cwd)
	if err != nil {
		return err
	}

	fmt.Printf("Created %s\n", result.ConfigPath)

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
		return fmt.Errorf("creating schema: %w", err)
	}

	fmt.Printf("Created database: %s\n", result.DatabasePath)

	repo, err := qdrant.NewRepository(cfg.Qdrant)
	if err != nil {
		return fmt.Errorf("connecting to qdrant: %w", err)
	}
	defer repo.Close()

	if err := repo.EnsureCollection(ctx, embedder.VectorSize); err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	fmt.Printf("Created Qdrant collection: %s\n", result.CollectionName)
	fmt.Println("Canon initialized successfully!")

	return nil
}
