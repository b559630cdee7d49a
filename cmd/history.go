package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/lockplane/ownershift/internal/config"
	"github.com/lockplane/ownershift/internal/journal"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show past migrate runs",
	Long: `Show recent migrate runs from the local run journal, newest first.
Given a run id, show the outcome of every item in that run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	jr, err := journal.Open(cfg.ResolveJournalPath())
	if err != nil {
		return err
	}
	defer func() { _ = jr.Close() }()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		items, err := jr.Items(cmd.Context(), args[0])
		if errors.Is(err, journal.ErrRunNotFound) {
			return fmt.Errorf("no run %s in %s", args[0], cfg.ResolveJournalPath())
		}
		if err != nil {
			return err
		}
		printItems(out, items)
		return nil
	}

	runs, err := jr.Runs(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}
	printRuns(out, runs)
	return nil
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))).
		Headers(headers...)
}

func printRuns(w io.Writer, runs []journal.Run) {
	t := newTable("RUN", "STARTED", "ENV", "MODE", "PENDING", "OK", "FAILED", "SKIPPED", "PLAN")
	var aborted []journal.Run
	for _, r := range runs {
		mode := "live"
		if r.DryRun {
			mode = "dry-run"
		}
		switch {
		case r.FinishedAt.IsZero():
			mode += " (unfinished)"
		case r.Error != "":
			mode += " (aborted)"
			aborted = append(aborted, r)
		}
		t.Row(
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Environment,
			mode,
			strconv.Itoa(r.Pending),
			strconv.Itoa(r.Succeeded),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.Skipped),
			r.PlanPath,
		)
	}
	fmt.Fprintln(w, t.Render())
	for _, r := range aborted {
		fmt.Fprintf(w, "%s aborted: %s\n", r.ID, r.Error)
	}
}

func printItems(w io.Writer, items []journal.ItemResult) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No items were processed in this run.")
		return
	}
	t := newTable("ARTIFACT", "STATUS", "STAGE", "ELAPSED", "REASON")
	for _, it := range items {
		reason := it.Reason
		if reason == "undefined" {
			reason = ""
		}
		t.Row(it.ArtifactID, string(it.Status), string(it.Stage), it.Elapsed.String(), reason)
	}
	fmt.Fprintln(w, t.Render())
}
