package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// ErrEnvironmentNotFound is returned when a named environment is neither in
// ownershift.toml nor backed by a .env file.
var ErrEnvironmentNotFound = errors.New("environment not found")

const (
	defaultOrganizationPrefix = "CLIENT_"
	defaultStableIDAttribute  = "sub"
	defaultRegion             = "us-east-1"
)

// ResolvedEnvironment is an environment with every setting made concrete.
type ResolvedEnvironment struct {
	Name                    string
	Region                  string
	Profile                 string
	Endpoint                string
	IdentityPoolID          string
	TableName               string
	BucketName              string
	OrganizationGroupPrefix string
	StableIDAttribute       string
	OwnerPrefix             string
	IDAttribute             string
	OwnerAttribute          string
	UpdatedAtAttribute      string
	AccessKeyID             string
	SecretAccessKey         string
	SessionToken            string

	Backup BackupConfig

	DotenvPath        string
	FromConfig        bool
	FromDotenv        bool
	ResolvedConfigDir string
}

// ResolveEnvironment resolves a named environment. Values from
// .env.<name> override ownershift.toml.
func ResolveEnvironment(config *Config, name string) (*ResolvedEnvironment, error) {
	envName := strings.TrimSpace(name)
	if envName == "" {
		if config != nil && config.DefaultEnvironment != "" {
			envName = config.DefaultEnvironment
		} else {
			envName = defaultEnvironmentName
		}
	}

	var (
		envConfig EnvironmentConfig
		envExists bool
	)
	if config != nil && config.Environments != nil {
		if cfg, ok := config.Environments[envName]; ok {
			envConfig = cfg
			envExists = true
		}
	}

	resolved := &ResolvedEnvironment{
		Name:                    envName,
		Region:                  envConfig.Region,
		Profile:                 envConfig.Profile,
		Endpoint:                envConfig.Endpoint,
		IdentityPoolID:          envConfig.IdentityPoolID,
		TableName:               envConfig.TableName,
		BucketName:              envConfig.BucketName,
		OrganizationGroupPrefix: envConfig.OrganizationGroupPrefix,
		StableIDAttribute:       envConfig.StableIDAttribute,
		OwnerPrefix:             envConfig.OwnerPrefix,
		IDAttribute:             envConfig.IDAttribute,
		OwnerAttribute:          envConfig.OwnerAttribute,
		UpdatedAtAttribute:      envConfig.UpdatedAtAttribute,
		FromConfig:              envExists,
	}
	if config != nil {
		resolved.Backup = config.Backup
		resolved.ResolvedConfigDir = config.ConfigDir()
	}

	dotenvPath, err := findDotenv(config, envName)
	if err != nil {
		return nil, err
	}
	resolved.DotenvPath = dotenvPath

	if info, err := os.Stat(dotenvPath); err == nil && !info.IsDir() {
		values, err := godotenv.Read(dotenvPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", dotenvPath, err)
		}
		resolved.FromDotenv = true
		resolved.applyDotenv(values)
	}

	if resolved.Region == "" {
		resolved.Region = defaultRegion
	}
	if resolved.OrganizationGroupPrefix == "" {
		resolved.OrganizationGroupPrefix = defaultOrganizationPrefix
	}
	if resolved.StableIDAttribute == "" {
		resolved.StableIDAttribute = defaultStableIDAttribute
	}

	if config != nil && len(config.Environments) > 0 && !envExists && !resolved.FromDotenv {
		return nil, fmt.Errorf("%w: %q is not defined in %s and %s not found", ErrEnvironmentNotFound, envName, FileName, dotenvPath)
	}

	return resolved, nil
}

func (r *ResolvedEnvironment) applyDotenv(values map[string]string) {
	set := func(dst *string, key string) {
		if value := values[key]; value != "" {
			*dst = value
		}
	}
	set(&r.IdentityPoolID, "OWNERSHIFT_IDENTITY_POOL_ID")
	set(&r.TableName, "OWNERSHIFT_TABLE_NAME")
	set(&r.BucketName, "OWNERSHIFT_BUCKET_NAME")
	set(&r.Endpoint, "OWNERSHIFT_ENDPOINT_URL")
	set(&r.OwnerPrefix, "OWNERSHIFT_OWNER_PREFIX")
	set(&r.Region, "AWS_REGION")
	set(&r.Profile, "AWS_PROFILE")
	set(&r.AccessKeyID, "AWS_ACCESS_KEY_ID")
	set(&r.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	set(&r.SessionToken, "AWS_SESSION_TOKEN")
}

// findDotenv prefers .env.<name> next to the config file and falls back to
// the project root.
func findDotenv(config *Config, envName string) (string, error) {
	fileName := ".env." + envName

	var baseDir, projectDir string
	if config != nil {
		baseDir = config.ConfigDir()
		projectDir = config.ProjectDir()
	}
	if baseDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			baseDir = cwd
		}
	}

	path := fileName
	if baseDir != "" {
		path = filepath.Join(baseDir, fileName)
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to access %s: %w", path, err)
		}
		if projectDir != "" && projectDir != baseDir {
			altPath := filepath.Join(projectDir, fileName)
			if altInfo, altErr := os.Stat(altPath); altErr == nil && !altInfo.IsDir() {
				return altPath, nil
			}
		}
	}
	return path, nil
}

// Validate reports the first missing setting a command needs.
func (r *ResolvedEnvironment) Validate(needIdentityPool bool) error {
	if needIdentityPool && r.IdentityPoolID == "" {
		return fmt.Errorf("environment %q: identity pool id is not set (identity_pool_id or OWNERSHIFT_IDENTITY_POOL_ID)", r.Name)
	}
	if r.TableName == "" {
		return fmt.Errorf("environment %q: table name is not set (table_name or OWNERSHIFT_TABLE_NAME)", r.Name)
	}
	if r.BucketName == "" {
		return fmt.Errorf("environment %q: bucket name is not set (bucket_name or OWNERSHIFT_BUCKET_NAME)", r.Name)
	}
	return nil
}
