package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ersonp/canon-core/internal/application/handlers"
	"github.com/ersonp/canon-core/internal/domain/entities"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect background jobs",
	}

	cmd.AddCommand(newJobsListCmd())
	cmd.AddCommand(newJobsStatusCmd())

	return cmd
}

func newJobsListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			return withInternalDeps(ctx, func(d *internalDeps) error {
				handler := handlers.NewJobHandler(d.jobs)

				jobs, err := handler.HandleList(ctx, limit)
				if err != nil {
					return fmt.Errorf("listing jobs: %w", err)
				}

				if len(jobs) == 0 {
					fmt.Println("No jobs found.")
					return nil
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tKIND\tTYPE\tSTATUS\tPROGRESS\tCREATED")
				for i := range jobs {
					j := &jobs[i]
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
						j.ID, j.Kind, j.TypeName, j.Status, j.Processed, j.Total,
						j.CreatedAt.Format("2006-01-02 15:04:05"))
				}
				w.Flush()

				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of jobs")

	return cmd
}

func newJobsStatusCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Show one job's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			return withInternalDeps(ctx, func(d *internalDeps) error {
				if wait {
					return waitForJob(ctx, d, args[0])
				}

				handler := handlers.NewJobHandler(d.jobs)
				job, err := handler.HandleGet(ctx, args[0])
				if err != nil {
					return fmt.Errorf("getting job: %w", err)
				}

				printJob(job)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the job finishes")

	return cmd
}

func printJob(job *entities.Job) {
	fmt.Printf("ID:       %s\n", job.ID)
	fmt.Printf("Kind:     %s\n", job.Kind)
	if job.TypeName != "" {
		fmt.Printf("Type:     %s\n", job.TypeName)
	}
	fmt.Printf("Status:   %s\n", job.Status)
	fmt.Printf("Progress: %d/%d\n", job.Processed, job.Total)
	if job.Error != "" {
		fmt.Printf("Error:    %s\n", job.Error)
	}
	if len(job.Result) > 0 {
		fmt.Printf("Result:   %s\n", string(job.Result))
	}
}

// waitForJob polls a job until it reaches a terminal status or the deadline
// passes, printing progress along the way.
func waitForJob(ctx context.Context, d *internalDeps, jobID string) error {
	deadline := time.Now().Add(pollDeadline)

	for {
		job, err := d.jobs.Get(ctx, jobID)
		if err != nil {
			return fmt.Errorf("getting job: %w", err)
		}

		if job.Status.Terminal() {
			printJob(job)
			if job.Status == entities.JobStatusFailed {
				return fmt.Errorf("job %s failed: %s", job.ID, job.Error)
			}
			return nil
		}

		fmt.Printf("%s: %s (%d/%d)\n", job.ID, job.Status, job.Processed, job.Total)

		if time.Now().After(deadline) {
			return fmt.Errorf("job %s still %s after %s", job.ID, job.Status, pollDeadline)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
