package planner

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed plan.schema.json
var planSchema []byte

// ErrInvalidPlan is returned when a plan document does not match the plan schema.
var ErrInvalidPlan = errors.New("invalid migration plan")

// ValidatePlan checks raw plan JSON against the embedded plan schema and
// returns one message per violation.
func ValidatePlan(data []byte) ([]string, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(planSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate plan: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	issues := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		issues = append(issues, desc.String())
	}
	return issues, nil
}

// ParsePlan validates and decodes plan JSON.
func ParsePlan(data []byte) (*Plan, error) {
	issues, err := ValidatePlan(data)
	if err != nil {
		return nil, err
	}
	if len(issues) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPlan, strings.Join(issues, "; "))
	}
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	return &plan, nil
}

// LoadPlan reads and validates a plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	plan, err := ParsePlan(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return plan, nil
}

// Encode renders a plan as indented JSON.
func Encode(plan *Plan) ([]byte, error) {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plan: %w", err)
	}
	return append(data, '\n'), nil
}

// SavePlan writes a plan atomically (temp file, then rename).
func SavePlan(path string, plan *Plan) error {
	data, err := Encode(plan)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write plan file: %w", err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		return fmt.Errorf("failed to save plan file: %w", err)
	}
	return nil
}

// Name returns the plan name: the file base name without its extension.
func Name(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// OutputName returns the run output file name for a plan file, X-run.json
// for live runs and X-dryrun.json for dry runs.
func OutputName(path string, dryRun bool) string {
	suffix := "-run"
	if dryRun {
		suffix = "-dryrun"
	}
	return Name(path) + suffix + ".json"
}

// OutputPath places the run output next to the input plan.
func OutputPath(path string, dryRun bool) string {
	return filepath.Join(filepath.Dir(path), OutputName(path, dryRun))
}
