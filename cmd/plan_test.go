package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lockplane/ownershift/internal/planner"
)

type fakeSources struct {
	identities []planner.Identity
	artifacts  []planner.Artifact
	keys       []string
	keysErr    error
	table      string
	bucket     string
}

func (f *fakeSources) ListIdentities(context.Context) ([]planner.Identity, error) {
	return f.identities, nil
}

func (f *fakeSources) ListArtifacts(_ context.Context, table string) ([]planner.Artifact, error) {
	f.table = table
	return f.artifacts, nil
}

func (f *fakeSources) ListKeys(_ context.Context, bucket, _ string) ([]string, error) {
	f.bucket = bucket
	return f.keys, f.keysErr
}

func TestBuildPlan(t *testing.T) {
	src := &fakeSources{
		identities: []planner.Identity{{StableID: "user-1", OrganizationID: "CLIENT_A"}},
		artifacts: []planner.Artifact{
			{ArtifactID: "template-1", CurrentOwner: "user-1"},
			{ArtifactID: "template-2", CurrentOwner: "ghost"},
		},
		keys: []string{"pdf-template/user-1/template-1/a.pdf"},
	}

	plan, err := buildPlan(context.Background(), src, src, src, "templates", "files")
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}
	if src.table != "templates" || src.bucket != "files" {
		t.Errorf("sources read from %q / %q", src.table, src.bucket)
	}
	if plan.Total != 2 || plan.Migrate.Count != 1 || plan.Orphaned.Count != 1 {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if got := plan.Migrate.Plans[0].Files[0].To; got != "pdf-template/CLIENT_A/template-1/a.pdf" {
		t.Errorf("destination = %q", got)
	}
}

func TestBuildPlan_SourceError(t *testing.T) {
	src := &fakeSources{keysErr: errors.New("access denied")}
	if _, err := buildPlan(context.Background(), src, src, src, "t", "b"); err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Fatalf("expected source error, got %v", err)
	}
}

func TestPrintPlanSummary(t *testing.T) {
	plan := &planner.Plan{
		Total:    4,
		Migrate:  planner.MigrateSection{Count: 2, Plans: []planner.Item{{Files: make([]planner.Transfer, 2)}, {Files: make([]planner.Transfer, 1)}}},
		Orphaned: planner.OrphanedSection{Count: 1, ArtifactIDs: []string{"x"}},
	}
	var buf bytes.Buffer
	printPlanSummary(&buf, "plan-prod.json", plan)

	out := buf.String()
	for _, want := range []string{"plan-prod.json", "To migrate:        2 (3 files)", "Orphaned:          1", "Without files:     1", "migrate --file plan-prod.json"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}
