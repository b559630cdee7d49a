package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lockplane/ownershift/internal/account"
	"github.com/lockplane/ownershift/internal/artifacts"
	"github.com/lockplane/ownershift/internal/cloud"
	"github.com/lockplane/ownershift/internal/executor"
	"github.com/lockplane/ownershift/internal/filestore"
	"github.com/lockplane/ownershift/internal/journal"
	"github.com/lockplane/ownershift/internal/metrics"
	"github.com/lockplane/ownershift/internal/orchestrator"
	"github.com/lockplane/ownershift/internal/state"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run a migration plan",
	Long: `Run every item of a migration plan whose status is "migrate".

Runs are dry by default: source files are checked and the intended copies,
transfers and deletes are logged, but nothing is written except the
X-dryrun.json output. Pass --dryRun=false to migrate for real; a live run
first backs up every record and file to the backup bucket.

The input plan is never modified. Results are written to X-run.json next to
it and to the backup bucket.`,
	Example: `  # Dry run
  ownershift migrate --file plan-production.json --environment production

  # Live run, exporting metrics for node_exporter
  ownershift migrate --file plan-production.json --environment production \
    --dryRun=false --metrics-file /var/lib/node_exporter/ownershift.prom`,
	RunE: runMigrate,
}

var (
	migrateFile        string
	migrateEnvironment string
	migrateDryRun      bool
	migrateForce       bool
	migrateMetricsFile string
)

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().StringVarP(&migrateFile, "file", "f", "", "Plan file to run")
	migrateCmd.Flags().StringVarP(&migrateEnvironment, "environment", "e", "", "Environment from ownershift.toml")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dryRun", true, "Log what would happen without writing")
	migrateCmd.Flags().BoolVar(&migrateForce, "force", false, "Start even if another run is recorded as active")
	migrateCmd.Flags().StringVar(&migrateMetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile when the run ends")
	_ = migrateCmd.MarkFlagRequired("file")
}

func runMigrate(cmd *cobra.Command, args []string) (err error) {
	if _, statErr := os.Stat(migrateFile); statErr != nil {
		return fmt.Errorf("plan file: %w", statErr)
	}

	cfg, env, err := loadEnvironment(migrateEnvironment)
	if err != nil {
		return err
	}
	if err := env.Validate(false); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	runID := uuid.NewString()
	logger := newLogger(cmd.ErrOrStderr(), verbose, cfg.LogLevel)

	st, err := state.Load(projectDir(cfg))
	if err != nil {
		return err
	}
	if err := st.BeginRun(state.ActiveRun{
		ID:          runID,
		PlanPath:    migrateFile,
		Environment: env.Name,
		DryRun:      migrateDryRun,
	}, migrateForce); err != nil {
		return err
	}
	defer func() {
		outcome := "completed"
		if err != nil {
			outcome = "failed: " + err.Error()
		}
		if finishErr := st.FinishRun(runID, outcome); finishErr != nil {
			logger.Warn("failed to release run lock", "error", finishErr)
		}
	}()

	jr, err := journal.Open(cfg.ResolveJournalPath())
	if err != nil {
		return err
	}
	defer func() { _ = jr.Close() }()
	runMetrics := metrics.NewRun(env.Name, migrateDryRun)

	clients, err := cloud.New(ctx, settingsFor(env))
	if err != nil {
		return err
	}
	backupRegion := env.Backup.Region
	if backupRegion == "" {
		backupRegion = account.DefaultBackupRegion
	}

	directory := artifacts.New(clients.DynamoDB, schemaFor(env))
	files := filestore.New(clients.S3)
	backups := filestore.New(clients.S3ForRegion(backupRegion))

	runner := orchestrator.New(
		account.NewResolver(clients.STS),
		directory,
		backups,
		executor.New(files, directory, logger),
		orchestrator.Settings{
			BackupBucketPrefix: env.Backup.BucketPrefix,
			BackupRegion:       backupRegion,
			KeyPrefix:          env.Backup.KeyPrefix,
		},
		orchestrator.WithLogger(logger),
		orchestrator.WithRecorder(orchestrator.Recorders{jr, runMetrics}),
	)

	summary, err := runner.Run(ctx, orchestrator.RunInput{
		PlanFilePath: migrateFile,
		Environment:  env.Name,
		DryRun:       migrateDryRun,
		RunID:        runID,
	})
	if err != nil {
		return err
	}

	if migrateMetricsFile != "" {
		if err := runMetrics.WriteTextfile(migrateMetricsFile); err != nil {
			logger.Warn("failed to write metrics", "path", migrateMetricsFile, "error", err)
		}
	}

	printRunSummary(cmd.OutOrStdout(), summary)
	return nil
}

func printRunSummary(w io.Writer, s *orchestrator.RunSummary) {
	mode := "Live run"
	if s.DryRun {
		mode = "Dry run"
	}
	if s.Failed == 0 && s.Skipped == 0 {
		_, _ = color.New(color.FgGreen).Fprintf(w, "✓ %s complete\n", mode)
	} else {
		_, _ = color.New(color.FgYellow).Fprintf(w, "⚠ %s complete with problems\n", mode)
	}
	fmt.Fprintf(w, "  Run:       %s\n", s.RunID)
	fmt.Fprintf(w, "  Pending:   %d\n", s.Pending)
	fmt.Fprintf(w, "  Succeeded: %d\n", s.Succeeded)
	if s.Failed > 0 {
		_, _ = color.New(color.FgRed).Fprintf(w, "  Failed:    %d\n", s.Failed)
	} else {
		fmt.Fprintf(w, "  Failed:    0\n")
	}
	fmt.Fprintf(w, "  Skipped:   %d\n", s.Skipped)
	if s.BackupPrefix != "" {
		fmt.Fprintf(w, "  Backup:    s3://%s/%s\n", s.BackupBucket, s.BackupPrefix)
	}
	fmt.Fprintf(w, "  Output:    %s\n", s.OutputPath)
	fmt.Fprintf(w, "             s3://%s/%s\n", s.BackupBucket, s.OutputKey)
	if s.DryRun && s.Failed == 0 {
		fmt.Fprintf(w, "\nReview the output, then rerun with --dryRun=false to migrate.\n")
	}
}
