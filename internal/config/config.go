package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the project configuration file looked up from the working
// directory.
const FileName = "ownershift.toml"

const defaultEnvironmentName = "local"

// EnvironmentConfig describes a single named environment from ownershift.toml.
type EnvironmentConfig struct {
	Description             string `toml:"description,omitempty"`
	Region                  string `toml:"region,omitempty"`
	Profile                 string `toml:"profile,omitempty"`
	Endpoint                string `toml:"endpoint,omitempty"`
	IdentityPoolID          string `toml:"identity_pool_id,omitempty"`
	TableName               string `toml:"table_name,omitempty"`
	BucketName              string `toml:"bucket_name,omitempty"`
	OrganizationGroupPrefix string `toml:"organization_group_prefix,omitempty"`
	StableIDAttribute       string `toml:"stable_id_attribute,omitempty"`
	OwnerPrefix             string `toml:"owner_prefix,omitempty"`
	IDAttribute             string `toml:"id_attribute,omitempty"`
	OwnerAttribute          string `toml:"owner_attribute,omitempty"`
	UpdatedAtAttribute      string `toml:"updated_at_attribute,omitempty"`
}

// BackupConfig places backups and run outputs.
type BackupConfig struct {
	BucketPrefix string `toml:"bucket_prefix,omitempty"`
	Region       string `toml:"region,omitempty"`
	KeyPrefix    string `toml:"key_prefix,omitempty"`
}

type Config struct {
	DefaultEnvironment string                       `toml:"default_environment,omitempty"`
	LogLevel           string                       `toml:"log_level,omitempty"`
	JournalPath        string                       `toml:"journal_path,omitempty"`
	Backup             BackupConfig                 `toml:"backup"`
	Environments       map[string]EnvironmentConfig `toml:"environments"`
	ConfigFilePath     string                       `toml:"-"`

	configDir  string
	projectDir string
}

// LoadConfig walks up from the working directory looking for ownershift.toml,
// stopping at the first project root. A missing file yields an empty config.
func LoadConfig() (*Config, error) {
	startDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return LoadConfigFrom(startDir)
}

// LoadConfigFrom is LoadConfig starting at dir.
func LoadConfigFrom(startDir string) (*Config, error) {
	dir := startDir
	for {
		configPath := filepath.Join(dir, FileName)
		if _, err := os.Stat(configPath); err == nil {
			return ReadConfig(configPath)
		}

		if isProjectRoot(dir) {
			return &Config{configDir: startDir, projectDir: dir}, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return &Config{configDir: startDir}, nil
}

// ReadConfig parses a specific configuration file.
func ReadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	config.ConfigFilePath = configPath
	config.configDir = filepath.Dir(configPath)
	config.projectDir = findProjectRoot(config.configDir)
	return &config, nil
}

// ConfigDir is the directory holding the config file, or the start directory
// when none was found.
func (c *Config) ConfigDir() string {
	if c == nil {
		return ""
	}
	return c.configDir
}

// ProjectDir is the nearest project root at or above ConfigDir.
func (c *Config) ProjectDir() string {
	if c == nil {
		return ""
	}
	return c.projectDir
}

// ResolveJournalPath returns the journal database location, relative paths
// anchored at the config directory.
func (c *Config) ResolveJournalPath() string {
	path := filepath.Join(".ownershift", "journal.db")
	if c != nil && c.JournalPath != "" {
		path = c.JournalPath
	}
	if filepath.IsAbs(path) || c.ConfigDir() == "" {
		return path
	}
	return filepath.Join(c.ConfigDir(), path)
}

// Encode renders the config as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

func findProjectRoot(dir string) string {
	for {
		if isProjectRoot(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// isProjectRoot checks if the directory is a project root based on common markers
func isProjectRoot(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, "package.json")); err == nil {
		return true
	}
	return false
}
