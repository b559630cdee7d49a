// Package executor applies a single plan item through the staged pipeline:
// copy files to the new owner, transfer the record, delete the originals.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/lockplane/ownershift/internal/artifacts"
	"github.com/lockplane/ownershift/internal/filestore"
	"github.com/lockplane/ownershift/internal/planner"
)

// FileStore is the object store surface the executor needs.
type FileStore interface {
	Copy(ctx context.Context, in filestore.CopyInput) error
	Delete(ctx context.Context, bucket, key string) error
	Head(ctx context.Context, bucket, key string) (filestore.ObjectInfo, error)
}

// OwnershipTransferer rewrites the owner of a stored record.
type OwnershipTransferer interface {
	TransferOwnership(ctx context.Context, table string, record artifacts.Record, newOwner string) error
}

// Options are per-run settings passed with every item.
type Options struct {
	BucketName string
	TableName  string
	DryRun     bool
}

// Result is the outcome of one item. Success implies Stage == finished;
// otherwise Stage is the first stage that did not complete.
type Result struct {
	Success bool
	Stage   planner.Stage
	Reasons []string
}

// Executor runs items. It holds no per-item state and is safe for
// concurrent use.
type Executor struct {
	files   FileStore
	records OwnershipTransferer
	logger  *slog.Logger
}

// New creates an executor.
func New(files FileStore, records OwnershipTransferer, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{files: files, records: records, logger: logger}
}

// Apply runs every stage for item in order and stops at the first failure.
// Stage failures are reported in the Result, never as errors.
func (e *Executor) Apply(ctx context.Context, item planner.Item, record artifacts.Record, opts Options) Result {
	log := e.logger.With("artifactId", item.ArtifactID, "dryRun", opts.DryRun)

	if reasons := e.copyFiles(ctx, log, item, opts); len(reasons) > 0 {
		log.Warn("Skipping: [s3:copy]", "reasons", reasons)
		return Result{Stage: planner.StageCopy, Reasons: reasons}
	}

	if err := e.transfer(ctx, log, item, record, opts); err != nil {
		log.Error("Failed: [ddb:transfer]", "error", err)
		return Result{Stage: planner.StageTransfer, Reasons: []string{err.Error()}}
	}

	if reasons := e.deleteOriginals(ctx, log, item, opts); len(reasons) > 0 {
		log.Warn("Partial: [s3:delete]", "reasons", reasons)
		return Result{Stage: planner.StageDelete, Reasons: reasons}
	}

	return Result{Success: true, Stage: planner.StageFinished}
}

func (e *Executor) copyFiles(ctx context.Context, log *slog.Logger, item planner.Item, opts Options) []string {
	newOwner := item.OwnerTransfer.To
	return fanOut(item.Files, func(file planner.Transfer) error {
		if opts.DryRun {
			if _, err := e.files.Head(ctx, opts.BucketName, file.From); err != nil {
				if errors.Is(err, filestore.ErrNotFound) {
					return fmt.Errorf("source %s does not exist: %w", file.From, err)
				}
				return fmt.Errorf("head %s: %w", file.From, err)
			}
			log.Info("Would copy file", "from", file.From, "to", file.To, "owner", newOwner)
			return nil
		}
		err := e.files.Copy(ctx, filestore.CopyInput{
			SourceBucket: opts.BucketName,
			SourceKey:    file.From,
			DestKey:      file.To,
			Owner:        newOwner,
		})
		if err != nil {
			return fmt.Errorf("copy %s to %s: %w", file.From, file.To, err)
		}
		log.Debug("Copied file", "from", file.From, "to", file.To)
		return nil
	})
}

func (e *Executor) transfer(ctx context.Context, log *slog.Logger, item planner.Item, record artifacts.Record, opts Options) error {
	from, to := item.OwnerTransfer.From, item.OwnerTransfer.To
	if opts.DryRun {
		log.Info("Would transfer ownership", "table", opts.TableName, "from", from, "to", to)
		log.Info("Would delete record", "table", opts.TableName, "owner", from)
		return nil
	}
	if err := e.records.TransferOwnership(ctx, opts.TableName, record, to); err != nil {
		return err
	}
	log.Debug("Transferred ownership", "from", from, "to", to)
	return nil
}

func (e *Executor) deleteOriginals(ctx context.Context, log *slog.Logger, item planner.Item, opts Options) []string {
	return fanOut(item.Files, func(file planner.Transfer) error {
		if opts.DryRun {
			log.Info("Would delete file", "key", file.From)
			return nil
		}
		if err := e.files.Delete(ctx, opts.BucketName, file.From); err != nil {
			return fmt.Errorf("delete %s: %w", file.From, err)
		}
		return nil
	})
}

// fanOut runs op for every file concurrently and waits for all of them.
// It returns nil when every call succeeded, otherwise a summary count
// followed by each failure in input order. Failures are kept per file, so
// one failure never cancels the others.
func fanOut(files []planner.Transfer, op func(planner.Transfer) error) []string {
	errs := make([]error, len(files))
	var g errgroup.Group
	for i, file := range files {
		g.Go(func() error {
			errs[i] = op(file)
			return nil
		})
	}
	_ = g.Wait()

	var reasons []string
	for _, err := range errs {
		if err != nil {
			reasons = append(reasons, err.Error())
		}
	}
	if len(reasons) == 0 {
		return nil
	}
	return append([]string{fmt.Sprintf("Failed processing %d / %d", len(reasons), len(files))}, reasons...)
}
