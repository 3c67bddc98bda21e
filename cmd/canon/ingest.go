package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ersonp/canon-core/internal/application/handlers"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a candidate entity batch",
		Long:  "Reads a JSON batch of candidate entities and relations and stores them as pending. Use '-' to read from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngest,
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var reader io.Reader
	if args[0] == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening batch file: %w", err)
		}
		defer file.Close()
		reader = file
	}

	return withInternalDeps(ctx, func(d *internalDeps) error {
		handler := handlers.NewIntakeHandler(d.db, d.registry)

		result, err := handler.HandleReader(ctx, reader)
		if err != nil {
			return fmt.Errorf("ingesting batch: %w", err)
		}

		fmt.Printf("Entities: %d created, %d merged\n", result.EntitiesCreated, result.EntitiesMerged)
		fmt.Printf("Relations: %d created\n", result.RelationsCreated)
		if result.TypesRegistered > 0 {
			fmt.Printf("New pending types: %d\n", result.TypesRegistered)
		}
		for _, skip := range result.Skipped {
			fmt.Fprintf(os.Stderr, "skipped: %s\n", skip)
		}

		return nil
	})
}
