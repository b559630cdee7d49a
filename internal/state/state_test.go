package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if s.Version != "1" || s.ActiveRun != nil {
		t.Fatalf("Expected empty state, got %+v", s)
	}
	if s.Path() != filepath.Join(dir, StateFile) {
		t.Fatalf("Unexpected state path %q", s.Path())
	}
}

func TestBeginAndFinishRun(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if err := s.BeginRun(ActiveRun{ID: "run-1", PlanPath: "plan.json", Environment: "dev"}, false); err != nil {
		t.Fatalf("BeginRun returned error: %v", err)
	}

	reloaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if reloaded.ActiveRun == nil || reloaded.ActiveRun.ID != "run-1" {
		t.Fatalf("Expected active run to persist, got %+v", reloaded.ActiveRun)
	}
	if reloaded.ActiveRun.PID != os.Getpid() || reloaded.ActiveRun.StartedAt.IsZero() {
		t.Fatalf("Expected pid and start time to be filled, got %+v", reloaded.ActiveRun)
	}

	if err := reloaded.FinishRun("run-1", "completed"); err != nil {
		t.Fatalf("FinishRun returned error: %v", err)
	}
	final, err := Load(dir)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if final.ActiveRun != nil {
		t.Fatalf("Expected no active run, got %+v", final.ActiveRun)
	}
	if final.LastRun == nil || final.LastRun.Outcome != "completed" {
		t.Fatalf("Expected last run to be recorded, got %+v", final.LastRun)
	}
	if _, err := os.Stat(final.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("Expected temp file to be renamed away, stat err = %v", err)
	}
}

func TestBeginRunRefusesConcurrentRun(t *testing.T) {
	dir := t.TempDir()
	s, _ := Load(dir)
	if err := s.BeginRun(ActiveRun{ID: "run-1"}, false); err != nil {
		t.Fatalf("BeginRun returned error: %v", err)
	}

	other, _ := Load(dir)
	err := other.BeginRun(ActiveRun{ID: "run-2"}, false)
	if !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("Expected ErrRunInProgress, got %v", err)
	}

	if err := other.BeginRun(ActiveRun{ID: "run-2"}, true); err != nil {
		t.Fatalf("Expected forced run to start, got %v", err)
	}
	if other.ActiveRun.ID != "run-2" {
		t.Fatalf("Expected run-2 to be active, got %s", other.ActiveRun.ID)
	}
}

func TestFinishRunMismatch(t *testing.T) {
	s, _ := Load(t.TempDir())
	if err := s.FinishRun("run-1", "completed"); err == nil {
		t.Fatal("Expected error finishing without an active run")
	}
	if err := s.BeginRun(ActiveRun{ID: "run-1"}, false); err != nil {
		t.Fatalf("BeginRun returned error: %v", err)
	}
	if err := s.FinishRun("run-9", "completed"); err == nil {
		t.Fatal("Expected error finishing a different run")
	}
	if err := s.ClearActiveRun(); err != nil {
		t.Fatalf("ClearActiveRun returned error: %v", err)
	}
	if s.ActiveRun != nil {
		t.Fatal("Expected active run to be cleared")
	}
}

func TestLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, StateFile), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("Failed to write state file: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("Expected parse error")
	}
}
