package wizard

import (
	"context"

	"github.com/charmbracelet/bubbles/textinput"
)

// WizardState represents the current step in the wizard flow
type WizardState int

const (
	StateWelcome WizardState = iota
	StateCheckExisting
	StateAccessMode
	StateEnvironmentDetails
	StateTestCredentials
	StateAddAnother
	StateSummary
	StateCreating
	StateDone
	StateError
)

// CredentialTester checks that an environment's credentials work and
// returns the account they belong to.
type CredentialTester func(ctx context.Context, env EnvironmentInput) (string, error)

// WizardModel holds the state for the Bubble Tea wizard
type WizardModel struct {
	state WizardState
	dir   string

	// Existing config detection
	existingConfigPath string
	existingEnvNames   []string

	// Current environment being configured
	currentEnv   EnvironmentInput
	environments []EnvironmentInput

	// Credential testing
	tester            CredentialTester
	testingCreds      bool
	credentialResult  string
	credentialAccount string
	credentialError   error
	retryChoice       int // 0=retry, 1=edit, 2=quit

	// Add another environment choice
	addAnotherChoice int // 0=add another, 1=finish and save

	inputs     []textinput.Model
	focusIndex int

	accessModeIndex int

	errors map[string]string

	result *InitResult
	err    error

	width  int
	height int
}

// EnvironmentInput holds user input for a single environment
type EnvironmentInput struct {
	Name        string
	Description string
	AccessMode  string // "profile", "keys", "endpoint"

	Region          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string

	IdentityPoolID string
	TableName      string
	BucketName     string
	OwnerPrefix    string
}

// InitResult contains the outcome of running the wizard
type InitResult struct {
	ConfigPath        string
	ConfigCreated     bool
	ConfigUpdated     bool
	EnvFiles          []string
	GitignoreUpdated  bool
	EnvExampleCreated bool
	EnvExampleUpdated bool
}

// AccessMode is a way of reaching AWS.
type AccessMode struct {
	ID          string
	DisplayName string
	Description string
	Icon        string
}

// AccessModes lists the supported credential sources.
var AccessModes = []AccessMode{
	{
		ID:          "profile",
		DisplayName: "AWS profile",
		Description: "shared config / SSO, recommended",
		Icon:        "🔑",
	},
	{
		ID:          "keys",
		DisplayName: "Access keys",
		Description: "static key pair stored in .env",
		Icon:        "🗝",
	},
	{
		ID:          "endpoint",
		DisplayName: "Local endpoint",
		Description: "LocalStack or another emulator",
		Icon:        "🧪",
	},
}
