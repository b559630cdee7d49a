package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lockplane/ownershift/internal/artifacts"
	"github.com/lockplane/ownershift/internal/cloud"
	"github.com/lockplane/ownershift/internal/filestore"
	"github.com/lockplane/ownershift/internal/identity"
	"github.com/lockplane/ownershift/internal/planner"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Build a migration plan from the live directory, table and bucket",
	Long: `Build a migration plan by reading every user from the Cognito user pool,
every user-owned artifact from the DynamoDB table and every key in the S3
bucket. Artifacts whose owner belongs to an organization are planned for
migration; artifacts whose owner is unknown are listed as orphaned.

Nothing is written to AWS. The plan is saved as JSON for review.`,
	Example: `  # Plan against the default environment
  ownershift plan

  # Plan production with an explicit profile
  ownershift plan --environment production --profile ops --output plans/prod.json`,
	RunE: runPlan,
}

var (
	planEnvironment  string
	planIdentityPool string
	planProfile      string
	planRegion       string
	planOutput       string
)

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().StringVarP(&planEnvironment, "environment", "e", "", "Environment from ownershift.toml")
	planCmd.Flags().StringVar(&planIdentityPool, "identity-pool", "", "Cognito user pool id (overrides the environment)")
	planCmd.Flags().StringVar(&planProfile, "profile", "", "AWS shared config profile (overrides the environment)")
	planCmd.Flags().StringVar(&planRegion, "region", "", "AWS region (overrides the environment)")
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "", "Plan file to write (default plan-<environment>.json)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, env, err := loadEnvironment(planEnvironment)
	if err != nil {
		return err
	}
	if planIdentityPool != "" {
		env.IdentityPoolID = planIdentityPool
	}
	if planProfile != "" {
		env.Profile = planProfile
	}
	if planRegion != "" {
		env.Region = planRegion
	}
	if err := env.Validate(true); err != nil {
		return err
	}

	output := planOutput
	if output == "" {
		output = fmt.Sprintf("plan-%s.json", env.Name)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	logger := newLogger(cmd.ErrOrStderr(), verbose, cfg.LogLevel).With("environment", env.Name)
	clients, err := cloud.New(ctx, settingsFor(env))
	if err != nil {
		return err
	}

	resolver := identity.NewResolver(clients.Cognito, identity.Options{
		UserPoolID:        env.IdentityPoolID,
		GroupPrefix:       env.OrganizationGroupPrefix,
		StableIDAttribute: env.StableIDAttribute,
		Logger:            logger,
	})
	directory := artifacts.New(clients.DynamoDB, schemaFor(env))
	store := filestore.New(clients.S3)

	plan, err := buildPlan(ctx, resolver, directory, store, env.TableName, env.BucketName)
	if err != nil {
		return err
	}
	if err := planner.SavePlan(output, plan); err != nil {
		return err
	}
	logger.Info("Plan written", "path", output, "migrate", plan.Migrate.Count, "orphaned", plan.Orphaned.Count)

	printPlanSummary(cmd.OutOrStdout(), output, plan)
	return nil
}

type identityLister interface {
	ListIdentities(ctx context.Context) ([]planner.Identity, error)
}

type artifactLister interface {
	ListArtifacts(ctx context.Context, table string) ([]planner.Artifact, error)
}

type keyLister interface {
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
}

// buildPlan reads the three sources concurrently and builds the plan. Any
// failed read aborts planning.
func buildPlan(ctx context.Context, identities identityLister, directory artifactLister, files keyLister, table, bucket string) (*planner.Plan, error) {
	var (
		users []planner.Identity
		items []planner.Artifact
		keys  []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = identities.ListIdentities(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		items, err = directory.ListArtifacts(gctx, table)
		return err
	})
	g.Go(func() error {
		var err error
		keys, err = files.ListKeys(gctx, bucket, "")
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return planner.Build(
		users,
		planner.ArtifactSet{TableName: table, Artifacts: items},
		planner.FileSet{BucketName: bucket, Keys: keys},
	), nil
}

func printPlanSummary(w io.Writer, path string, plan *planner.Plan) {
	files := 0
	for _, item := range plan.Migrate.Plans {
		files += len(item.Files)
	}
	_, _ = color.New(color.FgGreen).Fprintf(w, "✓ Plan written to %s\n", path)
	fmt.Fprintf(w, "  Artifacts scanned: %d\n", plan.Total)
	fmt.Fprintf(w, "  To migrate:        %d (%d files)\n", plan.Migrate.Count, files)
	if plan.Orphaned.Count > 0 {
		_, _ = color.New(color.FgYellow).Fprintf(w, "  Orphaned:          %d (owner matches no organization user)\n", plan.Orphaned.Count)
	} else {
		fmt.Fprintf(w, "  Orphaned:          0\n")
	}
	if dropped := plan.Total - plan.Migrate.Count - plan.Orphaned.Count; dropped > 0 {
		fmt.Fprintf(w, "  Without files:     %d (not planned)\n", dropped)
	}
	fmt.Fprintf(w, "\nNext: ownershift migrate --file %s\n", path)
}
