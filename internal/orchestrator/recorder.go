package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/lockplane/ownershift/internal/planner"
)

// Recorder observes a run. Failures are logged by the orchestrator and never
// stop the run.
type Recorder interface {
	RunStarted(ctx context.Context, summary RunSummary) error
	ItemFinished(ctx context.Context, runID string, item planner.Item, elapsed time.Duration) error
	RunFinished(ctx context.Context, summary RunSummary) error
}

type nopRecorder struct{}

func (nopRecorder) RunStarted(context.Context, RunSummary) error { return nil }
func (nopRecorder) ItemFinished(context.Context, string, planner.Item, time.Duration) error {
	return nil
}
func (nopRecorder) RunFinished(context.Context, RunSummary) error { return nil }

// Recorders fans events out to every recorder and joins their errors.
type Recorders []Recorder

func (rs Recorders) RunStarted(ctx context.Context, summary RunSummary) error {
	var errs []error
	for _, r := range rs {
		errs = append(errs, r.RunStarted(ctx, summary))
	}
	return errors.Join(errs...)
}

func (rs Recorders) ItemFinished(ctx context.Context, runID string, item planner.Item, elapsed time.Duration) error {
	var errs []error
	for _, r := range rs {
		errs = append(errs, r.ItemFinished(ctx, runID, item, elapsed))
	}
	return errors.Join(errs...)
}

func (rs Recorders) RunFinished(ctx context.Context, summary RunSummary) error {
	var errs []error
	for _, r := range rs {
		errs = append(errs, r.RunFinished(ctx, summary))
	}
	return errors.Join(errs...)
}
