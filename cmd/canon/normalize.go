package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ersonp/canon-core/internal/application/handlers"
)

const defaultPlanFile = "canon-plan.json"

func newNormalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Canonicalize entities of a type",
		Long:  "Generates a merge proposal with the language model, lets you preview and adjust it, then executes the accepted groups.",
	}

	cmd.AddCommand(newNormalizeGenerateCmd())
	cmd.AddCommand(newNormalizePreviewCmd())
	cmd.AddCommand(newNormalizeRenameCmd())
	cmd.AddCommand(newNormalizeToggleCmd())
	cmd.AddCommand(newNormalizeExtractCmd())
	cmd.AddCommand(newNormalizeExecuteCmd())

	return cmd
}

func newNormalizeGenerateCmd() *cobra.Command {
	var (
		includeValidated bool
		wait             bool
	)

	cmd := &cobra.Command{
		Use:   "generate <type>",
		Short: "Propose canonical groupings for a type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			return withNormalizeHandler(ctx, func(h *handlers.NormalizeHandler, d *internalDeps) error {
				job, err := h.HandleGenerate(ctx, args[0], includeValidated)
				if err != nil {
					return fmt.Errorf("generating ontology: %w", err)
				}

				fmt.Printf("Submitted job %s (%s)\n", job.ID, job.Kind)
				if wait {
					if err := waitForJob(ctx, d, job.ID); err != nil {
						return err
					}
					fmt.Printf("Preview with: canon normalize preview --job %s\n", job.ID)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&includeValidated, "include-validated", false, "Also regroup already validated entities")
	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the job finishes")

	return cmd
}

func newNormalizePreviewCmd() *cobra.Command {
	var (
		jobID    string
		planFile string
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Score a proposal and write the merge plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobID == "" {
				return fmt.Errorf("--job is required")
			}
			ctx := cmd.Context()

			return withNormalizeHandler(ctx, func(h *handlers.NormalizeHandler, _ *internalDeps) error {
				plan, err := h.HandlePreview(ctx, jobID)
				if err != nil {
					return fmt.Errorf("previewing plan: %w", err)
				}

				if err := handlers.SavePlan(planFile, plan); err != nil {
					return err
				}

				printPlan(plan)
				fmt.Printf("\nPlan written to %s\n", planFile)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&jobID, "job", "", "Finished generation job ID (required)")
	cmd.Flags().StringVar(&planFile, "plan", defaultPlanFile, "Plan file to write")

	return cmd
}

// editPlan loads the plan, applies an adjustment, and writes it back.
func editPlan(planFile string, fn func(*handlers.NormalizePlan) error) error {
	plan, err := handlers.LoadPlan(planFile)
	if err != nil {
		return err
	}
	if err := fn(plan); err != nil {
		return err
	}
	if err := handlers.SavePlan(planFile, plan); err != nil {
		return err
	}
	printPlan(plan)
	return nil
}

func newNormalizeRenameCmd() *cobra.Command {
	var planFile string

	cmd := &cobra.Command{
		Use:   "rename <group-key> <new-name>",
		Short: "Change a group's canonical name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			h := handlers.NewNormalizeHandler(nil, nil)
			return editPlan(planFile, func(plan *handlers.NormalizePlan) error {
				return h.HandleRename(plan, args[0], args[1])
			})
		},
	}

	cmd.Flags().StringVar(&planFile, "plan", defaultPlanFile, "Plan file to edit")

	return cmd
}

func newNormalizeToggleCmd() *cobra.Command {
	var planFile string

	cmd := &cobra.Command{
		Use:   "toggle <group-key> <entity-id>",
		Short: "Include or exclude a member of a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			h := handlers.NewNormalizeHandler(nil, nil)
			return editPlan(planFile, func(plan *handlers.NormalizePlan) error {
				return h.HandleToggle(plan, args[0], args[1])
			})
		},
	}

	cmd.Flags().StringVar(&planFile, "plan", defaultPlanFile, "Plan file to edit")

	return cmd
}

func newNormalizeExtractCmd() *cobra.Command {
	var planFile string

	cmd := &cobra.Command{
		Use:   "extract <group-key> <entity-id>",
		Short: "Move a member into its own group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			h := handlers.NewNormalizeHandler(nil, nil)
			return editPlan(planFile, func(plan *handlers.NormalizePlan) error {
				return h.HandleExtract(plan, args[0], args[1])
			})
		},
	}

	cmd.Flags().StringVar(&planFile, "plan", defaultPlanFile, "Plan file to edit")

	return cmd
}

func newNormalizeExecuteCmd() *cobra.Command {
	var (
		planFile   string
		noSnapshot bool
		actor      string
		wait       bool
	)

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Apply the plan's selected groups",
		Long:  "Merges every group with selected members, updates the graph and vector mirrors, and captures a rollback snapshot unless disabled.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			return withNormalizeHandler(ctx, func(h *handlers.NormalizeHandler, d *internalDeps) error {
				plan, err := handlers.LoadPlan(planFile)
				if err != nil {
					return err
				}

				job, err := h.HandleExecute(ctx, plan, !noSnapshot, actor)
				if err != nil {
					return fmt.Errorf("executing plan: %w", err)
				}

				fmt.Printf("Submitted job %s (%s)\n", job.ID, job.Kind)
				if wait {
					return waitForJob(ctx, d, job.ID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&planFile, "plan", defaultPlanFile, "Plan file to execute")
	cmd.Flags().BoolVar(&noSnapshot, "no-snapshot", false, "Skip the pre-merge snapshot")
	cmd.Flags().StringVar(&actor, "by", "curator", "Actor recorded on merged entities")
	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the job finishes")

	return cmd
}

func printPlan(plan *handlers.NormalizePlan) {
	fmt.Printf("Plan for type %s (%d groups)\n", plan.TypeName, len(plan.Groups))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for i := range plan.Groups {
		g := &plan.Groups[i]
		fmt.Fprintf(w, "\n%s\t-> %s\n", g.CanonicalKey, g.CanonicalName)
		for j := range g.Members {
			m := &g.Members[j]
			mark := " "
			if m.Selected {
				mark = "x"
			}
			master := ""
			if m.EntityID == g.MasterID {
				master = "master"
			}
			fmt.Fprintf(w, "  [%s] %s\t%s\tscore %d\t%s\n", mark, m.EntityID, m.Name, m.MatchScore, master)
		}
	}
	w.Flush()
}
