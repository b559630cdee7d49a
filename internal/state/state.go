package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StateFile is the filename for state tracking
const StateFile = ".ownershift-state.json"

// ErrRunInProgress is returned when a migrate run is already active.
var ErrRunInProgress = errors.New("another migration run is in progress")

// State tracks the migrate run currently holding the project.
// Stored in .ownershift-state.json next to ownershift.toml (git-ignored)
type State struct {
	Version   string     `json:"version"`
	ActiveRun *ActiveRun `json:"active_run,omitempty"`
	LastRun   *ActiveRun `json:"last_run,omitempty"`

	path string
}

// ActiveRun describes one migrate invocation.
type ActiveRun struct {
	ID          string    `json:"id"`
	PlanPath    string    `json:"plan_path"`
	Environment string    `json:"environment"`
	DryRun      bool      `json:"dry_run"`
	PID         int       `json:"pid"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
	Outcome     string    `json:"outcome,omitempty"`
}

// Load reads state from dir/.ownershift-state.json.
// Returns empty state if file doesn't exist
func Load(dir string) (*State, error) {
	path := filepath.Join(dir, StateFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &State{Version: "1", path: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	state.path = path

	return &state, nil
}

// Path is where the state is saved.
func (s *State) Path() string {
	return s.path
}

// Save writes the state file
func (s *State) Save() error {
	dir := filepath.Dir(s.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Write atomically (write to temp file, then rename)
	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	if err := os.Rename(tempFile, s.path); err != nil {
		return fmt.Errorf("failed to save state file: %w", err)
	}

	return nil
}

// BeginRun records run as active. With force an existing active run is
// replaced; otherwise ErrRunInProgress is returned.
func (s *State) BeginRun(run ActiveRun, force bool) error {
	if s.ActiveRun != nil && !force {
		return fmt.Errorf("%w: %s (plan %s, started %s)", ErrRunInProgress,
			s.ActiveRun.ID, s.ActiveRun.PlanPath, s.ActiveRun.StartedAt.Format(time.RFC3339))
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.PID == 0 {
		run.PID = os.Getpid()
	}
	s.ActiveRun = &run
	return s.Save()
}

// FinishRun clears the active run if it is id and keeps it as LastRun.
func (s *State) FinishRun(id, outcome string) error {
	if s.ActiveRun == nil {
		return fmt.Errorf("no active run")
	}
	if s.ActiveRun.ID != id {
		return fmt.Errorf("active run is %s, not %s", s.ActiveRun.ID, id)
	}
	finished := *s.ActiveRun
	finished.FinishedAt = time.Now()
	finished.Outcome = outcome
	s.LastRun = &finished
	s.ActiveRun = nil
	return s.Save()
}

// ClearActiveRun removes the active run (use after a crash left it behind)
func (s *State) ClearActiveRun() error {
	s.ActiveRun = nil
	return s.Save()
}
