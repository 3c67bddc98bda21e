package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ersonp/canon-core/internal/application/handlers"
)

func newDedupeCmd() *cobra.Command {
	var (
		typeName string
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Collapse exact duplicate entities",
		Long:  "Merges entities of the same type whose names differ only in case or whitespace, reassigning relations to the survivor.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			return withInternalDeps(ctx, func(d *internalDeps) error {
				handler := handlers.NewDedupeHandler(d.dedupe)

				report, err := handler.Handle(ctx, typeName, dryRun)
				if err != nil {
					return fmt.Errorf("deduplicating: %w", err)
				}

				if report.DryRun {
					fmt.Println("Dry run; nothing was changed.")
				}
				fmt.Printf("Duplicate groups:     %d\n", report.Groups)
				fmt.Printf("Entities merged:      %d\n", report.EntitiesMerged)
				fmt.Printf("Relations reassigned: %d\n", report.RelationsReassigned)
				fmt.Printf("Relations removed:    %d\n", report.RelationsDeduped)

				if len(report.ByType) > 0 {
					names := make([]string, 0, len(report.ByType))
					for name := range report.ByType {
						names = append(names, name)
					}
					sort.Strings(names)

					w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
					fmt.Fprintln(w, "\nTYPE\tMERGED")
					for _, name := range names {
						fmt.Fprintf(w, "%s\t%d\n", name, report.ByType[name])
					}
					w.Flush()
				}

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&typeName, "type", "", "Restrict to one entity type")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report without mutating")

	return cmd
}
