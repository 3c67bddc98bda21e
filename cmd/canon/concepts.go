package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ersonp/canon-core/internal/application/handlers"
)

func newConceptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "concepts",
		Short: "Query the canonical concept mirror",
	}

	cmd.AddCommand(newConceptsSearchCmd())

	return cmd
}

func newConceptsSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Find canonical concepts semantically close to a text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			return withConceptHandler(ctx, func(h *handlers.ConceptHandler) error {
				concepts, err := h.HandleSearch(ctx, args[0], limit)
				if err != nil {
					return fmt.Errorf("searching concepts: %w", err)
				}

				if len(concepts) == 0 {
					fmt.Println("No concepts found.")
					return nil
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "KEY\tNAME\tTYPE\tMEMBERS\tCONF")
				for _, c := range concepts {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\n",
						c.Key, truncate(c.CanonicalName, 40), c.TypeName, c.MemberCount, c.Confidence)
				}
				w.Flush()

				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of results")

	return cmd
}
