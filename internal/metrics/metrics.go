// Package metrics exposes migrate run outcomes as Prometheus metrics written
// to a node-exporter textfile.
package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lockplane/ownershift/internal/orchestrator"
	"github.com/lockplane/ownershift/internal/planner"
)

// Run collects metrics for a single migrate run in its own registry.
type Run struct {
	registry *prometheus.Registry

	items       *prometheus.CounterVec
	duration    prometheus.Histogram
	pending     prometheus.Gauge
	skipped     prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// NewRun creates the collectors for one run.
func NewRun(environment string, dryRun bool) *Run {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"environment": environment, "dry_run": fmt.Sprint(dryRun)}
	factory := promauto.With(reg)
	return &Run{
		registry: reg,
		items: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "ownershift_items_total",
			Help:        "Plan items processed, by final status and stage.",
			ConstLabels: labels,
		}, []string{"status", "stage"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "ownershift_item_duration_seconds",
			Help:        "Time spent applying one plan item.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "ownershift_run_pending_items",
			Help:        "Items in migrate status when the run started.",
			ConstLabels: labels,
		}),
		skipped: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "ownershift_run_skipped_items",
			Help:        "Items skipped because no current record was found.",
			ConstLabels: labels,
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "ownershift_run_last_success_timestamp_seconds",
			Help:        "Unix time of the last run that finished with no failed items.",
			ConstLabels: labels,
		}),
	}
}

// Registry exposes the run's registry.
func (r *Run) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Run) RunStarted(_ context.Context, s orchestrator.RunSummary) error {
	r.pending.Set(float64(s.Pending))
	return nil
}

func (r *Run) ItemFinished(_ context.Context, _ string, item planner.Item, elapsed time.Duration) error {
	r.items.WithLabelValues(string(item.Status), string(item.Stage)).Inc()
	r.duration.Observe(elapsed.Seconds())
	return nil
}

func (r *Run) RunFinished(_ context.Context, s orchestrator.RunSummary) error {
	r.skipped.Set(float64(s.Skipped))
	if s.Failed == 0 && s.Error == "" {
		r.lastSuccess.Set(float64(s.FinishedAt.Unix()))
	}
	return nil
}

// WriteTextfile writes the metrics in text exposition format to path.
func (r *Run) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
