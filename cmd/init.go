package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lockplane/ownershift/internal/wizard"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Set up ownershift.toml and .env files interactively",
	Long: `Set up ownershift in the current directory. The wizard asks how to reach
AWS, checks the credentials with sts:GetCallerIdentity, and writes
ownershift.toml plus one .env.<environment> file per environment.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	result, err := wizard.Run(dir)
	if err != nil {
		return err
	}
	if result == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Setup cancelled.")
	}
	return nil
}
