// Package orchestrator runs a migration plan end to end: resolve the backup
// location, snapshot the records and files, apply each pending item and
// persist the updated plan.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/lockplane/ownershift/internal/account"
	"github.com/lockplane/ownershift/internal/artifacts"
	"github.com/lockplane/ownershift/internal/executor"
	"github.com/lockplane/ownershift/internal/filestore"
	"github.com/lockplane/ownershift/internal/planner"
)

// backupTimeFormat names backup folders; it sorts lexically by time.
const backupTimeFormat = "20060102T150405Z"

// AccountResolver returns the account the run writes backups to.
type AccountResolver interface {
	AccountID(ctx context.Context) (string, error)
}

// RecordReader loads the current records for plan items.
type RecordReader interface {
	FetchRecords(ctx context.Context, table string, keys []artifacts.RecordKey) ([]artifacts.Record, error)
}

// ObjectWriter writes backups and run outputs.
type ObjectWriter interface {
	Copy(ctx context.Context, in filestore.CopyInput) error
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
}

// ItemApplier applies one plan item.
type ItemApplier interface {
	Apply(ctx context.Context, item planner.Item, record artifacts.Record, opts executor.Options) executor.Result
}

// Settings holds the run-independent configuration.
type Settings struct {
	BackupBucketPrefix string
	BackupRegion       string
	// KeyPrefix is prepended to every backup and output key.
	KeyPrefix string
}

// RunInput selects the plan and mode of one run.
type RunInput struct {
	PlanFilePath string
	Environment  string
	DryRun       bool
	// RunID identifies the run in journals and metrics; generated if empty.
	RunID string
}

// RunSummary reports what a run did.
type RunSummary struct {
	RunID        string    `json:"runId"`
	PlanFilePath string    `json:"planFilePath"`
	Environment  string    `json:"environment"`
	DryRun       bool      `json:"dryRun"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
	Pending      int       `json:"pending"`
	Succeeded    int       `json:"succeeded"`
	Failed       int       `json:"failed"`
	Skipped      int       `json:"skipped"`
	BackupBucket string    `json:"backupBucket"`
	BackupPrefix string    `json:"backupPrefix,omitempty"`
	OutputPath   string    `json:"outputPath"`
	OutputKey    string    `json:"outputKey"`
	// Error is set when the run aborted after it started.
	Error string `json:"error,omitempty"`
}

// Orchestrator drives a run. Items are processed strictly one at a time.
type Orchestrator struct {
	accounts AccountResolver
	records  RecordReader
	objects  ObjectWriter
	applier  ItemApplier
	settings Settings
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder reports run progress to r.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator.
func New(accounts AccountResolver, records RecordReader, objects ObjectWriter, applier ItemApplier, settings Settings, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		accounts: accounts,
		records:  records,
		objects:  objects,
		applier:  applier,
		settings: settings,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	return o
}

// Run executes the plan at in.PlanFilePath. Errors before item processing
// abort the run with no output written; item failures are recorded in the
// output plan and never abort. Once the plan is loaded the run is reported
// to the recorder, and an abort after that point is reported as finished
// with its error.
func (o *Orchestrator) Run(ctx context.Context, in RunInput) (*RunSummary, error) {
	startedAt := o.now().UTC()
	runID := in.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := o.logger.With("runId", runID, "environment", in.Environment, "dryRun", in.DryRun)

	accountID, err := o.accounts.AccountID(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve account: %w", err)
	}
	backupBucket := account.BackupBucketName(o.settings.BackupBucketPrefix, accountID, o.settings.BackupRegion)

	plan, err := planner.LoadPlan(in.PlanFilePath)
	if err != nil {
		return nil, err
	}

	pending := plan.Pending()
	log.Info(fmt.Sprintf("Found %d items to migrate", len(pending)), "plan", in.PlanFilePath)

	summary := &RunSummary{
		RunID:        runID,
		PlanFilePath: in.PlanFilePath,
		Environment:  in.Environment,
		DryRun:       in.DryRun,
		StartedAt:    startedAt,
		Pending:      len(pending),
		BackupBucket: backupBucket,
	}

	o.report(log, "run started", o.recorder.RunStarted(ctx, *summary))

	records, err := o.fetchRecords(ctx, plan.TableName, pending)
	if err != nil {
		return nil, o.abort(ctx, log, summary, err)
	}

	if !in.DryRun {
		prefix := o.key(in.Environment, planner.Name(in.PlanFilePath), "backup-"+startedAt.Format(backupTimeFormat))
		if err := o.backup(ctx, log, backupBucket, prefix, plan.BucketName, pending, records); err != nil {
			return nil, o.abort(ctx, log, summary, fmt.Errorf("backup: %w", err))
		}
		summary.BackupPrefix = prefix
	}

	output := plan.Clone()
	index := make(map[string]int, len(output.Migrate.Plans))
	for i, item := range output.Migrate.Plans {
		index[item.ArtifactID] = i
	}
	opts := executor.Options{BucketName: plan.BucketName, TableName: plan.TableName, DryRun: in.DryRun}

	for i, item := range pending {
		log.Info(fmt.Sprintf("Progress: %d/%d", i+1, len(pending)))
		log.Info("Processing: " + item.ArtifactID)

		record, ok := records[item.ArtifactID]
		if !ok {
			log.Warn(fmt.Sprintf("Skipping: Unable to find artifact %s in backup data", item.ArtifactID))
			summary.Skipped++
			continue
		}

		itemStart := o.now()
		result := o.applier.Apply(ctx, item, record, opts)
		log.Info(fmt.Sprintf("Result: success - [%t]", result.Success))

		updated := fold(item, result)
		output.Migrate.Plans[index[item.ArtifactID]] = updated
		if result.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		o.report(log, "item finished", o.recorder.ItemFinished(ctx, runID, updated, o.now().Sub(itemStart)))
	}

	summary.OutputPath = planner.OutputPath(in.PlanFilePath, in.DryRun)
	summary.OutputKey = o.key(in.Environment, planner.Name(in.PlanFilePath), planner.OutputName(in.PlanFilePath, in.DryRun))
	if err := o.persist(ctx, output, summary); err != nil {
		return nil, o.abort(ctx, log, summary, err)
	}

	summary.FinishedAt = o.now().UTC()
	o.report(log, "run finished", o.recorder.RunFinished(ctx, *summary))
	log.Info("Run complete", "succeeded", summary.Succeeded, "failed", summary.Failed, "skipped", summary.Skipped, "output", summary.OutputPath)
	return summary, nil
}

// fetchRecords reads the current record of every pending item, keyed by the
// owner recorded in the plan.
func (o *Orchestrator) fetchRecords(ctx context.Context, table string, pending []planner.Item) (map[string]artifacts.Record, error) {
	byID := make(map[string]artifacts.Record, len(pending))
	if len(pending) == 0 {
		return byID, nil
	}
	keys := make([]artifacts.RecordKey, 0, len(pending))
	for _, item := range pending {
		keys = append(keys, artifacts.RecordKey{ArtifactID: item.ArtifactID, Owner: item.OwnerTransfer.From})
	}
	records, err := o.records.FetchRecords(ctx, table, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	for _, record := range records {
		byID[record.ArtifactID] = record
	}
	return byID, nil
}

// backup writes the fetched records and a copy of every source file under
// prefix in the backup bucket.
func (o *Orchestrator) backup(ctx context.Context, log *slog.Logger, bucket, prefix, sourceBucket string, pending []planner.Item, records map[string]artifacts.Record) error {
	snapshot := make([]artifacts.Record, 0, len(records))
	for _, item := range pending {
		if record, ok := records[item.ArtifactID]; ok {
			snapshot = append(snapshot, record)
		}
	}
	body, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	if err := o.objects.Put(ctx, bucket, path.Join(prefix, "records.json"), body, "application/json"); err != nil {
		return err
	}

	copied := 0
	for _, item := range pending {
		for _, file := range item.Files {
			err := o.objects.Copy(ctx, filestore.CopyInput{
				SourceBucket: sourceBucket,
				SourceKey:    file.From,
				DestBucket:   bucket,
				DestKey:      path.Join(prefix, "files", file.From),
			})
			if err != nil {
				return err
			}
			copied++
		}
	}
	log.Info("Backup complete", "bucket", bucket, "prefix", prefix, "records", len(snapshot), "files", copied)
	return nil
}

func (o *Orchestrator) persist(ctx context.Context, output *planner.Plan, summary *RunSummary) error {
	if err := planner.SavePlan(summary.OutputPath, output); err != nil {
		return err
	}
	body, err := planner.Encode(output)
	if err != nil {
		return err
	}
	if err := o.objects.Put(ctx, summary.BackupBucket, summary.OutputKey, body, "application/json"); err != nil {
		return fmt.Errorf("upload run output: %w", err)
	}
	return nil
}

// key joins the configured key prefix with parts.
func (o *Orchestrator) key(parts ...string) string {
	if o.settings.KeyPrefix != "" {
		parts = append([]string{o.settings.KeyPrefix}, parts...)
	}
	return path.Join(parts...)
}

// abort reports a started run as finished with err and returns err.
func (o *Orchestrator) abort(ctx context.Context, log *slog.Logger, summary *RunSummary, err error) error {
	summary.FinishedAt = o.now().UTC()
	summary.Error = err.Error()
	o.report(log, "run finished", o.recorder.RunFinished(context.WithoutCancel(ctx), *summary))
	log.Error("Run aborted", "error", err)
	return err
}

func (o *Orchestrator) report(log *slog.Logger, event string, err error) {
	if err != nil {
		log.Warn("recorder failed", "event", event, "error", err)
	}
}

// fold returns a copy of item carrying result.
func fold(item planner.Item, result executor.Result) planner.Item {
	item.Stage = result.Stage
	if result.Success {
		item.Status = planner.StatusSuccess
	} else {
		item.Status = planner.StatusFailed
	}
	item.Reason = encodeReasons(result.Reasons)
	return item
}

// encodeReasons renders reasons as a JSON array. No reasons renders as the
// literal text undefined, which existing output consumers expect.
func encodeReasons(reasons []string) string {
	if len(reasons) == 0 {
		return "undefined"
	}
	data, err := json.Marshal(reasons)
	if err != nil {
		return "undefined"
	}
	return string(data)
}
