package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ersonp/canon-core/internal/application/handlers"
	"github.com/ersonp/canon-core/internal/domain/entities"
)

func newTypesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "Manage the entity type registry",
		Long:  "List, approve, reject, merge, or describe discovered entity types.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTypesList(cmd, "")
		},
	}

	cmd.AddCommand(newTypesListCmd())
	cmd.AddCommand(newTypesApproveCmd())
	cmd.AddCommand(newTypesRejectCmd())
	cmd.AddCommand(newTypesMergeCmd())
	cmd.AddCommand(newTypesDescribeCmd())

	return cmd
}

func newTypesListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entity types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTypesList(cmd, status)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, approved, rejected)")

	return cmd
}

func runTypesList(cmd *cobra.Command, status string) error {
	ctx := cmd.Context()

	return withTypeHandler(ctx, func(h *handlers.EntityTypeHandler, _ *internalDeps) error {
		types, err := h.HandleList(ctx, entities.TypeStatus(status))
		if err != nil {
			return fmt.Errorf("listing types: %w", err)
		}

		if len(types) == 0 {
			fmt.Println("No entity types found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATUS\tENTITIES\tPENDING\tVALIDATED\tDISCOVERED BY")
		for i := range types {
			t := &types[i]
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
				t.Name, t.Status, t.EntityCount, t.PendingCount, t.ValidatedCount, t.DiscoveredBy)
		}
		w.Flush()

		return nil
	})
}

func newTypesApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <name>",
		Short: "Approve a pending entity type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			return withTypeHandler(ctx, func(h *handlers.EntityTypeHandler, _ *internalDeps) error {
				if err := h.HandleApprove(ctx, args[0]); err != nil {
					return fmt.Errorf("approving type: %w", err)
				}
				fmt.Printf("Approved entity type: %s\n", args[0])
				return nil
			})
		},
	}
}

func newTypesRejectCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reject <name>",
		Short: "Reject a pending entity type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			return withTypeHandler(ctx, func(h *handlers.EntityTypeHandler, _ *internalDeps) error {
				if err := h.HandleReject(ctx, args[0], reason); err != nil {
					return fmt.Errorf("rejecting type: %w", err)
				}
				fmt.Printf("Rejected entity type: %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the type is rejected (required)")

	return cmd
}

func newTypesMergeCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "merge <source> <target>",
		Short: "Fold one entity type into another",
		Long:  "Reassigns every entity of the source type to the target type and removes the source type. A snapshot is captured first.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			return withTypeHandler(ctx, func(h *handlers.EntityTypeHandler, d *internalDeps) error {
				job, err := h.HandleMerge(ctx, args[0], args[1])
				if err != nil {
					return fmt.Errorf("merging types: %w", err)
				}

				fmt.Printf("Submitted job %s (%s)\n", job.ID, job.Kind)
				if wait {
					return waitForJob(ctx, d, job.ID)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the job finishes")

	return cmd
}

func newTypesDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <name>",
		Short: "Show details about an entity type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			return withTypeHandler(ctx, func(h *handlers.EntityTypeHandler, _ *internalDeps) error {
				detail, err := h.HandleDescribe(ctx, args[0])
				if err != nil {
					return fmt.Errorf("describing type: %w", err)
				}

				et := detail.Type
				fmt.Printf("Name:          %s\n", et.Name)
				fmt.Printf("Status:        %s\n", et.Status)
				if et.Description != "" {
					fmt.Printf("Description:   %s\n", et.Description)
				}
				if et.DiscoveredBy != "" {
					fmt.Printf("Discovered by: %s\n", et.DiscoveredBy)
				}
				if et.RejectionReason != "" {
					fmt.Printf("Rejected:      %s\n", et.RejectionReason)
				}
				fmt.Printf("Entities:      %d (%d pending, %d validated)\n",
					et.EntityCount, et.PendingCount, et.ValidatedCount)
				fmt.Printf("Concepts:      %d in graph\n", detail.Concepts)
				if !et.FirstSeen.IsZero() {
					fmt.Printf("First seen:    %s\n", et.FirstSeen.Format("2006-01-02 15:04:05"))
				}

				return nil
			})
		},
	}
}
