package cmd

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/lockplane/ownershift/internal/journal"
	"github.com/lockplane/ownershift/internal/orchestrator"
	"github.com/lockplane/ownershift/internal/planner"
)

func TestHistoryCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile("ownershift.toml", []byte("journal_path = \"history.db\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "No runs recorded yet") {
		t.Errorf("unexpected empty history output:\n%s", out)
	}

	jr, err := journal.Open("history.db")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	summary := orchestrator.RunSummary{RunID: "run-1", PlanFilePath: "plan.json", Environment: "prod", DryRun: true, StartedAt: started, Pending: 1}
	if err := jr.RunStarted(ctx, summary); err != nil {
		t.Fatal(err)
	}
	item := planner.Item{ArtifactID: "template-1", Status: planner.StatusFailed, Stage: planner.StageCopy, Reason: `["Failed processing 1 / 1"]`}
	if err := jr.ItemFinished(ctx, "run-1", item, time.Second); err != nil {
		t.Fatal(err)
	}
	summary.FinishedAt = started.Add(time.Minute)
	summary.Failed = 1
	if err := jr.RunFinished(ctx, summary); err != nil {
		t.Fatal(err)
	}
	aborted := orchestrator.RunSummary{RunID: "run-2", PlanFilePath: "plan.json", Environment: "prod", StartedAt: started.Add(time.Hour), Pending: 1}
	if err := jr.RunStarted(ctx, aborted); err != nil {
		t.Fatal(err)
	}
	aborted.FinishedAt = aborted.StartedAt.Add(time.Second)
	aborted.Error = "backup: AccessDenied"
	if err := jr.RunFinished(ctx, aborted); err != nil {
		t.Fatal(err)
	}
	if err := jr.Close(); err != nil {
		t.Fatal(err)
	}

	out, err = execute(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, want := range []string{"run-1", "prod", "dry-run", "plan.json", "live (aborted)", "run-2 aborted: backup: AccessDenied"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in runs output:\n%s", want, out)
		}
	}

	out, err = execute(t, "history", "run-1")
	if err != nil {
		t.Fatalf("history run-1: %v", err)
	}
	for _, want := range []string{"template-1", "failed", "s3:copy"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in items output:\n%s", want, out)
		}
	}

	if _, err := execute(t, "history", "nope"); err == nil {
		t.Error("expected error for unknown run")
	}
}
