package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ersonp/canon-core/internal/application/handlers"
	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/ports"
)

func newEntitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entities",
		Short: "Inspect stored entities",
	}

	cmd.AddCommand(newEntitiesListCmd())
	cmd.AddCommand(newEntitiesDescribeCmd())

	return cmd
}

func newEntitiesListCmd() *cobra.Command {
	var (
		typeName       string
		status         string
		prefix         string
		minOccurrences int
		minConfidence  float64
		limit          int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entities matching a filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			return withEntityHandler(ctx, func(h *handlers.EntityHandler) error {
				list, err := h.HandleList(ctx, ports.EntityFilter{
					TypeName:       typeName,
					Status:         entities.EntityStatus(status),
					NamePrefix:     prefix,
					MinOccurrences: minOccurrences,
					MinConfidence:  minConfidence,
					Limit:          limit,
				})
				if err != nil {
					return fmt.Errorf("listing entities: %w", err)
				}

				if len(list) == 0 {
					fmt.Println("No entities found.")
					return nil
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tTYPE\tSTATUS\tCANONICAL\tOCCUR\tCONF")
				for _, e := range list {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%.2f\n",
						e.ID, truncate(e.Name, 40), e.TypeName, e.Status,
						truncate(e.CanonicalName, 40), e.Occurrences, e.Confidence)
				}
				w.Flush()

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&typeName, "type", "", "Filter by entity type")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, validated)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Filter by normalized name prefix")
	cmd.Flags().IntVar(&minOccurrences, "min-occurrences", 0, "Minimum occurrence count")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "Minimum confidence")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of entities")

	return cmd
}

func newEntitiesDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <id>",
		Short: "Show an entity with its relations and curation history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			return withEntityHandler(ctx, func(h *handlers.EntityHandler) error {
				detail, err := h.HandleDescribe(ctx, args[0])
				if err != nil {
					return fmt.Errorf("describing entity: %w", err)
				}

				e := detail.Entity
				fmt.Printf("ID:          %s\n", e.ID)
				fmt.Printf("Name:        %s\n", e.Name)
				fmt.Printf("Type:        %s\n", e.TypeName)
				fmt.Printf("Status:      %s\n", e.Status)
				if e.CanonicalName != "" {
					fmt.Printf("Canonical:   %s\n", e.CanonicalName)
				}
				if e.Description != "" {
					fmt.Printf("Description: %s\n", e.Description)
				}
				fmt.Printf("Occurrences: %d\n", e.Occurrences)
				fmt.Printf("Confidence:  %.2f\n", e.Confidence)
				if e.ValidatedBy != "" {
					fmt.Printf("Validated:   by %s\n", e.ValidatedBy)
				}

				if len(detail.Relations) > 0 {
					fmt.Printf("\nRelations (%d):\n", len(detail.Relations))
					for _, rel := range detail.Relations {
						fmt.Printf("  %s -[%s]-> %s\n", rel.SourceID, rel.Type, rel.TargetID)
					}
				}

				if len(detail.History) > 0 {
					fmt.Printf("\nHistory (%d):\n", len(detail.History))
					for _, entry := range detail.History {
						fmt.Printf("  %s  %s\n", entry.CreatedAt.Format("2006-01-02 15:04:05"), entry.Action)
					}
				}

				return nil
			})
		},
	}
}

// truncate shortens a string to max length with ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
