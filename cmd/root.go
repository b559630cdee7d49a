package cmd

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var version = getVersion()

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "ownershift",
	Short: "Move artifact ownership from users to their organization",
	Long: `ownershift migrates ownership of stored artifacts (DynamoDB records and
their S3 files) from individual users to the organization they belong to.

Run "ownershift plan" to build a migration plan, review it, then run
"ownershift migrate --file <plan>" to dry-run and finally apply it.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
