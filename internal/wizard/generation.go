package wizard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lockplane/ownershift/internal/config"
	"github.com/lockplane/ownershift/internal/state"
)

// GenerateFiles writes ownershift.toml and one .env file per environment in
// dir, merging with any existing configuration.
func GenerateFiles(dir string, environments []EnvironmentInput) (*InitResult, error) {
	result := &InitResult{
		EnvFiles: []string{},
	}

	configPath := filepath.Join(dir, config.FileName)
	fileExists := false
	if _, err := os.Stat(configPath); err == nil {
		fileExists = true
	}

	if err := writeConfig(configPath, environments); err != nil {
		return nil, fmt.Errorf("failed to generate %s: %w", config.FileName, err)
	}
	result.ConfigPath = configPath
	if fileExists {
		result.ConfigUpdated = true
	} else {
		result.ConfigCreated = true
	}

	for _, env := range environments {
		envFilePath := filepath.Join(dir, ".env."+env.Name)
		if err := generateEnvFile(envFilePath, env); err != nil {
			return nil, fmt.Errorf("failed to generate %s: %w", envFilePath, err)
		}
		result.EnvFiles = append(result.EnvFiles, envFilePath)
	}

	examplePath := filepath.Join(dir, ".env.example")
	exampleExists := false
	if _, err := os.Stat(examplePath); err == nil {
		exampleExists = true
	}
	changed, err := createOrUpdateEnvExample(examplePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create/update .env.example: %w", err)
	}
	if changed {
		result.EnvExampleUpdated = exampleExists
		result.EnvExampleCreated = !exampleExists
	}

	updated, err := updateGitignore(filepath.Join(dir, ".gitignore"))
	if err != nil {
		return nil, fmt.Errorf("failed to update .gitignore: %w", err)
	}
	result.GitignoreUpdated = updated

	return result, nil
}

// writeConfig merges the new environments into the config at path. Secrets
// never go into the TOML file; they live in the .env files.
func writeConfig(path string, newEnvironments []EnvironmentInput) error {
	cfg := &config.Config{}
	if _, err := os.Stat(path); err == nil {
		existing, err := config.ReadConfig(path)
		if err != nil {
			return err
		}
		cfg = existing
	}
	if cfg.Environments == nil {
		cfg.Environments = map[string]config.EnvironmentConfig{}
	}

	for _, env := range newEnvironments {
		description := env.Description
		if description == "" {
			description = fmt.Sprintf("Connection: .env.%s", env.Name)
		}
		cfg.Environments[env.Name] = config.EnvironmentConfig{
			Description:    description,
			Region:         env.Region,
			IdentityPoolID: env.IdentityPoolID,
			TableName:      env.TableName,
			BucketName:     env.BucketName,
			OwnerPrefix:    env.OwnerPrefix,
		}
	}

	if cfg.DefaultEnvironment == "" && len(newEnvironments) > 0 {
		cfg.DefaultEnvironment = newEnvironments[0].Name
	}

	body, err := cfg.Encode()
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("# ownershift configuration\n")
	b.WriteString("# Generated by: ownershift init\n")
	b.WriteString("#\n")
	b.WriteString("# Credentials: stored in .env.* files (never in this file)\n\n")
	b.Write(body)

	return os.WriteFile(path, []byte(b.String()), 0644)
}

func generateEnvFile(path string, env EnvironmentInput) error {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# ownershift environment: %s\n", env.Name))
	b.WriteString("# Generated by: ownershift init\n")
	b.WriteString("#\n")
	b.WriteString("# Do not commit this file if it contains secrets!\n")
	b.WriteString("#\n")
	b.WriteString(fmt.Sprintf("AWS_REGION=%s\n", env.Region))

	switch env.AccessMode {
	case "profile":
		b.WriteString("# Shared config profile (run `aws sso login` first if it uses SSO)\n")
		b.WriteString(fmt.Sprintf("AWS_PROFILE=%s\n", env.Profile))
	case "keys":
		b.WriteString("# Static credentials\n")
		b.WriteString(fmt.Sprintf("AWS_ACCESS_KEY_ID=%s\n", env.AccessKeyID))
		b.WriteString(fmt.Sprintf("AWS_SECRET_ACCESS_KEY=%s\n", env.SecretAccessKey))
	case "endpoint":
		b.WriteString("# Local emulator\n")
		b.WriteString(fmt.Sprintf("OWNERSHIFT_ENDPOINT_URL=%s\n", env.Endpoint))
		b.WriteString("AWS_ACCESS_KEY_ID=test\n")
		b.WriteString("AWS_SECRET_ACCESS_KEY=test\n")
	}

	b.WriteString(fmt.Sprintf("OWNERSHIFT_IDENTITY_POOL_ID=%s\n", env.IdentityPoolID))
	b.WriteString(fmt.Sprintf("OWNERSHIFT_TABLE_NAME=%s\n", env.TableName))
	b.WriteString(fmt.Sprintf("OWNERSHIFT_BUCKET_NAME=%s\n", env.BucketName))

	// Write with restrictive permissions (owner read/write only)
	return os.WriteFile(path, []byte(b.String()), 0600)
}

var exampleVariables = []struct{ key, value string }{
	{"AWS_REGION", "us-east-1"},
	{"AWS_PROFILE", "your-profile"},
	{"OWNERSHIFT_IDENTITY_POOL_ID", "us-east-1_AbCdEf123"},
	{"OWNERSHIFT_TABLE_NAME", "templates"},
	{"OWNERSHIFT_BUCKET_NAME", "your-artifact-bucket"},
	{"OWNERSHIFT_ENDPOINT_URL", ""},
}

// createOrUpdateEnvExample appends any missing variables to .env.example and
// reports whether the file changed.
func createOrUpdateEnvExample(examplePath string) (bool, error) {
	existingContent := ""
	if data, err := os.ReadFile(examplePath); err == nil {
		existingContent = string(data)
	}

	var b strings.Builder
	for _, v := range exampleVariables {
		if !strings.Contains(existingContent, v.key+"=") {
			b.WriteString(fmt.Sprintf("%s=%s\n", v.key, v.value))
		}
	}
	if b.Len() == 0 {
		return false, nil
	}

	var header strings.Builder
	if existingContent != "" && !strings.HasSuffix(existingContent, "\n") {
		header.WriteString("\n")
	}
	if !strings.Contains(existingContent, "ownershift") {
		header.WriteString("\n# ownershift configuration\n")
		header.WriteString("# Copy to .env.<environment> and fill in your actual values\n")
	}

	newContent := existingContent + header.String() + b.String()
	return true, os.WriteFile(examplePath, []byte(newContent), 0644)
}

// updateGitignore makes sure env files and local run state stay untracked.
func updateGitignore(gitignorePath string) (bool, error) {
	content := ""
	if data, err := os.ReadFile(gitignorePath); err == nil {
		content = string(data)
	}

	var missing []string
	for _, pattern := range []string{".env.*", "!.env.example", state.StateFile, ".ownershift/"} {
		if !containsLine(content, pattern) {
			missing = append(missing, pattern)
		}
	}
	if len(missing) == 0 {
		return false, nil
	}

	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += "\n# ownershift (added by ownershift init)\n"
	content += strings.Join(missing, "\n") + "\n"

	return true, os.WriteFile(gitignorePath, []byte(content), 0644)
}

func containsLine(content, line string) bool {
	for _, l := range strings.Split(content, "\n") {
		if strings.TrimSpace(l) == line {
			return true
		}
	}
	return false
}
