package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ersonp/canon-core/internal/application/handlers"
)

func newSnapshotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Manage pre-merge snapshots",
	}

	cmd.AddCommand(newSnapshotsListCmd())
	cmd.AddCommand(newSnapshotsRestoreCmd())

	return cmd
}

func newSnapshotsListCmd() *cobra.Command {
	var typeName string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			return withInternalDeps(ctx, func(d *internalDeps) error {
				handler := handlers.NewSnapshotHandler(d.snaps)

				snapshots, err := handler.HandleList(ctx, typeName)
				if err != nil {
					return fmt.Errorf("listing snapshots: %w", err)
				}

				if len(snapshots) == 0 {
					fmt.Println("No snapshots found.")
					return nil
				}

				now := time.Now()
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTYPE\tOPERATION\tENTITIES\tSTATE\tCREATED")
				for i := range snapshots {
					s := &snapshots[i]
					state := "restorable"
					switch {
					case s.Restored:
						state = "restored"
					case now.After(s.ExpiresAt):
						state = "expired"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
						s.ID, s.TypeName, s.Operation, s.EntityCount, state,
						s.CreatedAt.Format("2006-01-02 15:04:05"))
				}
				w.Flush()

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&typeName, "type", "", "Restrict to one entity type")

	return cmd
}

func newSnapshotsRestoreCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Roll back to a snapshot",
		Long:  "Re-establishes the captured pre-merge state. Each snapshot can be restored once, within its validity window.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			return withInternalDeps(ctx, func(d *internalDeps) error {
				handler := handlers.NewSnapshotHandler(d.snaps)

				job, err := handler.HandleRestore(ctx, args[0])
				if err != nil {
					return fmt.Errorf("restoring snapshot: %w", err)
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
