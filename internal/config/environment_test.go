package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveEnvironmentDefaults(t *testing.T) {
	t.Parallel()

	env, err := ResolveEnvironment(&Config{configDir: t.TempDir()}, "")
	if err != nil {
		t.Fatalf("ResolveEnvironment returned error: %v", err)
	}

	if env.Name != defaultEnvironmentName {
		t.Fatalf("Expected default environment name %q, got %q", defaultEnvironmentName, env.Name)
	}
	if env.Region != defaultRegion {
		t.Fatalf("Expected default region %q, got %q", defaultRegion, env.Region)
	}
	if env.OrganizationGroupPrefix != "CLIENT_" || env.StableIDAttribute != "sub" {
		t.Fatalf("Unexpected directory defaults %+v", env)
	}
}

func TestResolveEnvironmentFromConfig(t *testing.T) {
	t.Parallel()

	config := &Config{
		DefaultEnvironment: "staging",
		configDir:          t.TempDir(),
		Backup:             BackupConfig{KeyPrefix: "migrations"},
		Environments: map[string]EnvironmentConfig{
			"staging": {
				Region:         "eu-west-1",
				IdentityPoolID: "pool",
				TableName:      "templates",
				BucketName:     "files",
				OwnerPrefix:    "USER#",
			},
		},
	}

	env, err := ResolveEnvironment(config, "")
	if err != nil {
		t.Fatalf("ResolveEnvironment returned error: %v", err)
	}
	if env.Name != "staging" || !env.FromConfig || env.FromDotenv {
		t.Fatalf("Unexpected resolution source %+v", env)
	}
	if env.Region != "eu-west-1" || env.TableName != "templates" || env.OwnerPrefix != "USER#" {
		t.Fatalf("Unexpected environment %+v", env)
	}
	if env.Backup.KeyPrefix != "migrations" {
		t.Fatalf("Expected backup config to carry through, got %+v", env.Backup)
	}
	if err := env.Validate(true); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestResolveEnvironmentFromDotenv(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	dotenvPath := filepath.Join(tempDir, ".env.staging")
	data := "OWNERSHIFT_IDENTITY_POOL_ID=us-east-1_dotenv\nOWNERSHIFT_TABLE_NAME=templates-dotenv\nAWS_PROFILE=migration\nOWNERSHIFT_ENDPOINT_URL=http://localhost:4566\n"
	if err := os.WriteFile(dotenvPath, []byte(data), 0o600); err != nil {
		t.Fatalf("Failed to write dotenv file: %v", err)
	}

	config := &Config{
		DefaultEnvironment: "staging",
		configDir:          tempDir,
		Environments: map[string]EnvironmentConfig{
			"staging": {TableName: "templates-toml", BucketName: "files-toml"},
		},
	}

	env, err := ResolveEnvironment(config, "staging")
	if err != nil {
		t.Fatalf("ResolveEnvironment returned error: %v", err)
	}
	if !env.FromDotenv || env.DotenvPath != dotenvPath {
		t.Fatalf("Expected dotenv %q to be used, got %+v", dotenvPath, env)
	}
	if env.IdentityPoolID != "us-east-1_dotenv" {
		t.Fatalf("Expected dotenv pool id, got %q", env.IdentityPoolID)
	}
	if env.TableName != "templates-dotenv" {
		t.Fatalf("Expected dotenv to override table name, got %q", env.TableName)
	}
	if env.BucketName != "files-toml" {
		t.Fatalf("Expected toml bucket name to survive, got %q", env.BucketName)
	}
	if env.Profile != "migration" || env.Endpoint != "http://localhost:4566" {
		t.Fatalf("Unexpected profile/endpoint %q %q", env.Profile, env.Endpoint)
	}
}

func TestResolveEnvironmentDotenvOnly(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tempDir, ".env.prod"), []byte("OWNERSHIFT_TABLE_NAME=t\n"), 0o600); err != nil {
		t.Fatalf("Failed to write dotenv file: %v", err)
	}
	config := &Config{
		configDir:    tempDir,
		Environments: map[string]EnvironmentConfig{"local": {}},
	}

	env, err := ResolveEnvironment(config, "prod")
	if err != nil {
		t.Fatalf("ResolveEnvironment returned error: %v", err)
	}
	if env.FromConfig || env.TableName != "t" {
		t.Fatalf("Unexpected environment %+v", env)
	}
}

func TestResolveEnvironmentDotenvInProjectRoot(t *testing.T) {
	t.Parallel()

	projectDir := t.TempDir()
	configDir := filepath.Join(projectDir, "ops")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	dotenvPath := filepath.Join(projectDir, ".env.local")
	if err := os.WriteFile(dotenvPath, []byte("OWNERSHIFT_BUCKET_NAME=root-bucket\n"), 0o600); err != nil {
		t.Fatalf("Failed to write dotenv file: %v", err)
	}

	config := &Config{configDir: configDir, projectDir: projectDir}
	env, err := ResolveEnvironment(config, "local")
	if err != nil {
		t.Fatalf("ResolveEnvironment returned error: %v", err)
	}
	if env.DotenvPath != dotenvPath || env.BucketName != "root-bucket" {
		t.Fatalf("Expected project-root dotenv, got %+v", env)
	}
}

func TestResolveEnvironmentMissingDefinition(t *testing.T) {
	t.Parallel()

	config := &Config{
		Environments: map[string]EnvironmentConfig{
			"local": {TableName: "t"},
		},
		configDir: t.TempDir(),
	}

	_, err := ResolveEnvironment(config, "production")
	if err == nil {
		t.Fatal("Expected error resolving undefined environment, got nil")
	}
	if !errors.Is(err, ErrEnvironmentNotFound) {
		t.Fatalf("Expected ErrEnvironmentNotFound, got %v", err)
	}
}

func TestResolvedEnvironmentValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		env     ResolvedEnvironment
		pool    bool
		wantErr bool
	}{
		{name: "complete", env: ResolvedEnvironment{IdentityPoolID: "p", TableName: "t", BucketName: "b"}, pool: true},
		{name: "pool not needed", env: ResolvedEnvironment{TableName: "t", BucketName: "b"}},
		{name: "missing pool", env: ResolvedEnvironment{TableName: "t", BucketName: "b"}, pool: true, wantErr: true},
		{name: "missing table", env: ResolvedEnvironment{BucketName: "b"}, wantErr: true},
		{name: "missing bucket", env: ResolvedEnvironment{TableName: "t"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.Validate(tt.pool)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
