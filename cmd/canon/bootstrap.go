package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ersonp/canon-core/internal/application/handlers"
	"github.com/ersonp/canon-core/internal/domain/services"
)

func newBootstrapCmd() *cobra.Command {
	var (
		minOccurrences int
		minConfidence  float64
		typeName       string
		prefix         string
		estimate       bool
		dryRun         bool
		wait           bool
		promotedBy     string
	)

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Promote frequent high-confidence candidates",
		Long:  "Validates pending entities that pass the occurrence and confidence thresholds, without any language model call.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			return withInternalDeps(ctx, func(d *internalDeps) error {
				handler := handlers.NewBootstrapHandler(d.bootstrap)

				if minOccurrences == 0 {
					minOccurrences = d.Config.Engine.MinOccurrences
				}
				if minConfidence == 0 {
					minConfidence = d.Config.Engine.MinConfidence
				}

				cfg := services.BootstrapConfig{
					MinOccurrences: minOccurrences,
					MinConfidence:  minConfidence,
					TypeName:       typeName,
					NamePrefix:     prefix,
					DryRun:         dryRun,
					PromotedBy:     promotedBy,
				}

				if estimate || dryRun {
					report, err := handler.HandleEstimate(ctx, cfg)
					if err != nil {
						return fmt.Errorf("estimating promotion: %w", err)
					}
					printBootstrapReport(report)
					return nil
				}

				job, err := handler.HandlePromote(ctx, cfg)
				if err != nil {
					return fmt.Errorf("promoting candidates: %w", err)
				}

				fmt.Printf("Submitted job %s (%s)\n", job.ID, job.Kind)
				if wait {
					return waitForJob(ctx, d, job.ID)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&minOccurrences, "min-occurrences", 0, "Minimum occurrences (default from config)")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "Minimum confidence (default from config)")
	cmd.Flags().StringVar(&typeName, "type", "", "Restrict to one entity type")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Restrict to a normalized name prefix")
	cmd.Flags().BoolVar(&estimate, "estimate", false, "Report qualifying counts without promoting")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Alias for --estimate")
	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the job finishes")
	cmd.Flags().StringVar(&promotedBy, "by", "bootstrap", "Actor recorded on promoted entities")

	return cmd
}

func printBootstrapReport(report *services.BootstrapReport) {
	if report.DryRun {
		fmt.Println("Dry run; nothing was changed.")
	}
	fmt.Printf("Candidates scanned: %d\n", report.Scanned)
	fmt.Printf("Would promote:      %d\n", report.Promoted)

	if len(report.ByType) > 0 {
		names := make([]string, 0, len(report.ByType))
		for name := range report.ByType {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\nTYPE\tQUALIFIED")
		for _, name := range names {
			fmt.Fprintf(w, "%s\t%d\n", name, report.ByType[name])
		}
		w.Flush()
	}
}
