package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lockplane/ownershift/internal/artifacts"
	"github.com/lockplane/ownershift/internal/cloud"
	"github.com/lockplane/ownershift/internal/config"
)

// newLogger builds the text logger every command writes to. verbose wins
// over the configured level.
func newLogger(w io.Writer, verbose bool, level string) *slog.Logger {
	lvl := slog.LevelInfo
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
			lvl = slog.LevelInfo
		}
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// loadEnvironment loads ownershift.toml and resolves the named environment.
func loadEnvironment(name string) (*config.Config, *config.ResolvedEnvironment, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	env, err := config.ResolveEnvironment(cfg, name)
	if err != nil {
		return nil, nil, err
	}
	if cfg.ConfigFilePath == "" && !env.FromDotenv {
		printConfigNotFound(os.Stderr, env.Name)
	}
	return cfg, env, nil
}

// printConfigNotFound prints a helpful message when neither ownershift.toml
// nor a .env file was found.
func printConfigNotFound(w io.Writer, envName string) {
	fmt.Fprintf(w, `%s not found. Run "ownershift init" or create one that looks like:

[environments.%s]
region = "us-east-1"
identity_pool_id = "us-east-1_AbCdEf123"
table_name = "templates"
bucket_name = "artifact-files"

`, config.FileName, envName)
}

func settingsFor(env *config.ResolvedEnvironment) cloud.Settings {
	return cloud.Settings{
		Region:          env.Region,
		Profile:         env.Profile,
		AccessKeyID:     env.AccessKeyID,
		SecretAccessKey: env.SecretAccessKey,
		SessionToken:    env.SessionToken,
		Endpoint:        env.Endpoint,
	}
}

func schemaFor(env *config.ResolvedEnvironment) artifacts.Schema {
	return artifacts.Schema{
		IDAttribute:        env.IDAttribute,
		OwnerAttribute:     env.OwnerAttribute,
		UpdatedAtAttribute: env.UpdatedAtAttribute,
		OwnerPrefix:        env.OwnerPrefix,
		OrganizationPrefix: env.OrganizationGroupPrefix,
	}
}

// projectDir is where run state lives: next to ownershift.toml, or the
// working directory.
func projectDir(cfg *config.Config) string {
	if dir := cfg.ConfigDir(); dir != "" {
		return dir
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}
