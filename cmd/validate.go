package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lockplane/ownershift/internal/planner"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate ownershift files",
	Long: `Validate ownershift files.

Subcommands:
  plan - Validate a migration plan (or run output) against the plan schema`,
	Example: `  # Validate a plan before running it
  ownershift validate plan plan-production.json`,
}

var validatePlanCmd = &cobra.Command{
	Use:   "plan <file>",
	Short: "Validate a migration plan JSON file",
	Long: `Validate a migration plan JSON file against the plan schema and check
that its counts agree with its contents.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidatePlan,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.AddCommand(validatePlanCmd)
}

func runValidatePlan(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read plan file: %w", err)
	}

	out := cmd.OutOrStdout()
	issues, err := planner.ValidatePlan(data)
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		plan, err := planner.ParsePlan(data)
		if err != nil {
			return err
		}
		issues = consistencyIssues(plan)
	}

	if len(issues) > 0 {
		_, _ = color.New(color.FgRed).Fprintf(out, "✗ %s is not a valid plan\n", path)
		for _, issue := range issues {
			fmt.Fprintf(out, "  - %s\n", issue)
		}
		return fmt.Errorf("%w: %d problem(s) in %s", planner.ErrInvalidPlan, len(issues), path)
	}

	_, _ = color.New(color.FgGreen).Fprintf(out, "✓ %s is valid\n", path)
	return nil
}

// consistencyIssues reports counts that disagree with the lists they count.
func consistencyIssues(plan *planner.Plan) []string {
	var issues []string
	if plan.Migrate.Count != len(plan.Migrate.Plans) {
		issues = append(issues, fmt.Sprintf("migrate.count is %d but %d items are listed", plan.Migrate.Count, len(plan.Migrate.Plans)))
	}
	if plan.Orphaned.Count != len(plan.Orphaned.ArtifactIDs) {
		issues = append(issues, fmt.Sprintf("orphaned.count is %d but %d ids are listed", plan.Orphaned.Count, len(plan.Orphaned.ArtifactIDs)))
	}
	if plan.Migrate.Count+plan.Orphaned.Count > plan.Total {
		issues = append(issues, fmt.Sprintf("total is %d, less than migrate + orphaned", plan.Total))
	}
	seen := make(map[string]bool, len(plan.Migrate.Plans))
	for _, item := range plan.Migrate.Plans {
		if seen[item.ArtifactID] {
			issues = append(issues, fmt.Sprintf("artifact %s is listed twice", item.ArtifactID))
		}
		seen[item.ArtifactID] = true
	}
	return issues
}
