package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const exampleConfig = `default_environment = "staging"

[backup]
bucket_prefix = "acme"
key_prefix = "migrations"

[environments.staging]
region = "eu-west-1"
identity_pool_id = "eu-west-1_abc"
table_name = "templates-staging"
bucket_name = "files-staging"
owner_prefix = "USER#"
`

// compareConfigPaths compares two paths, resolving symlinks
func compareConfigPaths(t *testing.T, expected, actual string) {
	t.Helper()

	expectedResolved, err := filepath.EvalSymlinks(expected)
	if err != nil {
		expectedResolved = expected
	}
	actualResolved, err := filepath.EvalSymlinks(actual)
	if err != nil {
		actualResolved = actual
	}

	if expectedResolved != actualResolved {
		t.Errorf("Expected ConfigFilePath=%q, got %q", expectedResolved, actualResolved)
	}
}

func TestLoadConfigInStartDirectory(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, FileName)
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	config, err := LoadConfigFrom(tempDir)
	if err != nil {
		t.Fatalf("LoadConfigFrom returned error: %v", err)
	}
	compareConfigPaths(t, configPath, config.ConfigFilePath)

	if config.DefaultEnvironment != "staging" {
		t.Errorf("Expected default_environment=staging, got %q", config.DefaultEnvironment)
	}
	staging, ok := config.Environments["staging"]
	if !ok {
		t.Fatalf("Expected staging environment, got %v", config.Environments)
	}
	if staging.TableName != "templates-staging" || staging.OwnerPrefix != "USER#" {
		t.Errorf("Unexpected staging environment %+v", staging)
	}
	if config.Backup.BucketPrefix != "acme" || config.Backup.KeyPrefix != "migrations" {
		t.Errorf("Unexpected backup section %+v", config.Backup)
	}
}

func TestLoadConfigInParentDirectory(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, FileName)
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	subDir := filepath.Join(tempDir, "plans", "2024")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatalf("Failed to create subdirectory: %v", err)
	}

	config, err := LoadConfigFrom(subDir)
	if err != nil {
		t.Fatalf("LoadConfigFrom returned error: %v", err)
	}
	compareConfigPaths(t, configPath, config.ConfigFilePath)
}

func TestLoadConfigStopsAtProjectRoot(t *testing.T) {
	tempDir := t.TempDir()
	// Config above the project root must not be picked up.
	if err := os.WriteFile(filepath.Join(tempDir, FileName), []byte(exampleConfig), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	projectDir := filepath.Join(tempDir, "project")
	if err := os.MkdirAll(filepath.Join(projectDir, ".git"), 0o755); err != nil {
		t.Fatalf("Failed to create .git: %v", err)
	}

	config, err := LoadConfigFrom(projectDir)
	if err != nil {
		t.Fatalf("LoadConfigFrom returned error: %v", err)
	}
	if config.ConfigFilePath != "" {
		t.Errorf("Expected no config file, got %q", config.ConfigFilePath)
	}
	if config.ProjectDir() != projectDir {
		t.Errorf("Expected project dir %q, got %q", projectDir, config.ProjectDir())
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	tempDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tempDir, FileName), []byte("[environments.local\n"), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := LoadConfigFrom(tempDir)
	if err == nil {
		t.Fatal("Expected parse error, got nil")
	}
	if !strings.Contains(err.Error(), FileName) {
		t.Errorf("Expected error to name the file, got %v", err)
	}
}

func TestResolveJournalPath(t *testing.T) {
	tempDir := t.TempDir()
	config := &Config{configDir: tempDir}
	if got, want := config.ResolveJournalPath(), filepath.Join(tempDir, ".ownershift", "journal.db"); got != want {
		t.Errorf("ResolveJournalPath = %q, want %q", got, want)
	}

	config.JournalPath = "/var/lib/ownershift.db"
	if got := config.ResolveJournalPath(); got != "/var/lib/ownershift.db" {
		t.Errorf("Expected absolute journal path to be kept, got %q", got)
	}
}

func TestConfigEncodeRoundTrip(t *testing.T) {
	config := &Config{
		DefaultEnvironment: "prod",
		Environments: map[string]EnvironmentConfig{
			"prod": {Region: "us-west-2", TableName: "t", BucketName: "b"},
		},
	}
	data, err := config.Encode()
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	decoded, err := ReadConfig(path)
	if err != nil {
		t.Fatalf("ReadConfig returned error: %v", err)
	}
	if decoded.Environments["prod"].Region != "us-west-2" {
		t.Errorf("Unexpected decoded config %+v", decoded)
	}
}
