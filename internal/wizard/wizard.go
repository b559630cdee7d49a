package wizard

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lockplane/ownershift/internal/config"
)

// New creates a new wizard model writing into dir. A nil tester uses
// TestCredentials.
func New(dir string, tester CredentialTester) WizardModel {
	if tester == nil {
		tester = TestCredentials
	}
	return WizardModel{
		state:        StateWelcome,
		dir:          dir,
		tester:       tester,
		environments: []EnvironmentInput{},
		errors:       make(map[string]string),
		inputs:       []textinput.Model{},
	}
}

// Init initializes the wizard (Bubble Tea Init)
func (m WizardModel) Init() tea.Cmd {
	return m.checkForExistingConfig
}

// Result returns the files created, once the wizard is done.
func (m WizardModel) Result() *InitResult {
	return m.result
}

// Err returns the error that ended the wizard, if any.
func (m WizardModel) Err() error {
	return m.err
}

// Update handles state transitions (Bubble Tea Update)
func (m WizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != StateEnvironmentDetails {
				return m, tea.Quit
			}
			return m.handleTextInput(msg)

		case "enter":
			return m.handleEnter()

		case "up":
			return m.handleUp()

		case "down":
			return m.handleDown()

		case "tab":
			return m.handleTab()

		default:
			return m.handleTextInput(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case credentialTestResultMsg:
		m.testingCreds = false
		if msg.err != nil {
			m.credentialError = msg.err
			m.credentialResult = "failed"
		} else {
			m.credentialResult = "success"
			m.credentialAccount = msg.accountID
			m.credentialError = nil
		}
		return m, nil

	case fileCreationResultMsg:
		if msg.err != nil {
			m.err = msg.err
			m.state = StateError
			return m, nil
		}
		m.result = msg.result
		m.state = StateDone
		return m, nil

	case existingConfigMsg:
		if msg.path != "" {
			m.existingConfigPath = msg.path
			m.existingEnvNames = msg.envNames
			m.state = StateCheckExisting
		} else {
			m.state = StateWelcome
		}
		return m, nil
	}

	return m, nil
}

// View renders the wizard UI (Bubble Tea View)
func (m WizardModel) View() string {
	switch m.state {
	case StateWelcome:
		return m.renderWelcome()
	case StateCheckExisting:
		return m.renderCheckExisting()
	case StateAccessMode:
		return m.renderAccessMode()
	case StateEnvironmentDetails:
		return m.renderEnvironmentDetails()
	case StateTestCredentials:
		return m.renderTestCredentials()
	case StateAddAnother:
		return m.renderAddAnother()
	case StateSummary:
		return m.renderSummary()
	case StateCreating:
		return m.renderCreating()
	case StateDone:
		return m.renderDone()
	case StateError:
		return m.renderError()
	default:
		return "Unknown state"
	}
}

// State transition handlers

func (m WizardModel) handleEnter() (tea.Model, tea.Cmd) {
	switch m.state {
	case StateWelcome, StateCheckExisting:
		m.state = StateAccessMode
		return m, nil

	case StateAccessMode:
		m.currentEnv.AccessMode = AccessModes[m.accessModeIndex].ID
		m.state = StateEnvironmentDetails
		m.initializeInputs()
		return m, nil

	case StateEnvironmentDetails:
		if !m.collectInputValues() {
			return m, nil
		}
		m.state = StateTestCredentials
		m.testingCreds = true
		return m, m.testCredentials()

	case StateTestCredentials:
		switch m.credentialResult {
		case "success":
			m.state = StateAddAnother
			m.environments = append(m.environments, m.currentEnv)
			m.currentEnv = EnvironmentInput{}
			m.credentialResult = ""
			m.addAnotherChoice = 1
			return m, nil
		case "failed":
			switch m.retryChoice {
			case 0: // Retry
				m.credentialResult = ""
				m.credentialError = nil
				m.testingCreds = true
				return m, m.testCredentials()
			case 1: // Edit
				m.state = StateEnvironmentDetails
				m.credentialResult = ""
				m.credentialError = nil
				m.retryChoice = 0
				return m, nil
			case 2: // Quit
				return m, tea.Quit
			}
		}
		return m, nil

	case StateAddAnother:
		if m.addAnotherChoice == 0 {
			m.state = StateAccessMode
			m.accessModeIndex = 0
			return m, nil
		}
		m.state = StateSummary
		return m, nil

	case StateSummary:
		m.state = StateCreating
		return m, m.createFiles()

	case StateDone, StateError:
		return m, tea.Quit
	}

	return m, nil
}

func (m WizardModel) handleUp() (tea.Model, tea.Cmd) {
	switch m.state {
	case StateAccessMode:
		if m.accessModeIndex > 0 {
			m.accessModeIndex--
		}
	case StateEnvironmentDetails:
		if m.focusIndex > 0 {
			m.focusIndex--
			m.updateInputFocus()
		}
	case StateTestCredentials:
		if m.credentialResult == "failed" && m.retryChoice > 0 {
			m.retryChoice--
		}
	case StateAddAnother:
		m.addAnotherChoice = 0
	}
	return m, nil
}

func (m WizardModel) handleDown() (tea.Model, tea.Cmd) {
	switch m.state {
	case StateAccessMode:
		if m.accessModeIndex < len(AccessModes)-1 {
			m.accessModeIndex++
		}
	case StateEnvironmentDetails:
		if m.focusIndex < len(m.inputs)-1 {
			m.focusIndex++
			m.updateInputFocus()
		}
	case StateTestCredentials:
		if m.credentialResult == "failed" && m.retryChoice < 2 {
			m.retryChoice++
		}
	case StateAddAnother:
		m.addAnotherChoice = 1
	}
	return m, nil
}

func (m WizardModel) handleTab() (tea.Model, tea.Cmd) {
	if m.state == StateEnvironmentDetails && len(m.inputs) > 0 {
		m.focusIndex = (m.focusIndex + 1) % len(m.inputs)
		m.updateInputFocus()
	}
	return m, nil
}

func (m WizardModel) handleTextInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.state == StateEnvironmentDetails && len(m.inputs) > 0 {
		var cmd tea.Cmd
		m.inputs[m.focusIndex], cmd = m.inputs[m.focusIndex].Update(msg)
		return m, cmd
	}
	return m, nil
}

// Input management

// Input order: name, region, identity pool, table, bucket, then the
// access-mode specific fields.
const (
	inputName = iota
	inputRegion
	inputPool
	inputTable
	inputBucket
	inputAccessFirst
)

func (m *WizardModel) initializeInputs() {
	m.focusIndex = 0
	m.errors = make(map[string]string)
	m.inputs = []textinput.Model{
		m.makeInput("Environment name", "production", false),
		m.makeInput("AWS region", "us-east-1", false),
		m.makeInput("Cognito user pool id", "", false),
		m.makeInput("DynamoDB table", "", false),
		m.makeInput("S3 bucket", "", false),
	}

	switch m.currentEnv.AccessMode {
	case "profile":
		m.inputs = append(m.inputs, m.makeInput("AWS profile", "default", false))
	case "keys":
		m.inputs = append(m.inputs,
			m.makeInput("Access key id", "", false),
			m.makeInput("Secret access key", "", true),
		)
	case "endpoint":
		m.inputs[inputName].SetValue("local")
		m.inputs = append(m.inputs, m.makeInput("Endpoint URL", "http://localhost:4566", false))
	}

	m.inputs[0].Focus()
}

func (m *WizardModel) makeInput(placeholder, value string, isPassword bool) textinput.Model {
	input := textinput.New()
	input.Placeholder = placeholder
	input.SetValue(value)
	if isPassword {
		input.EchoMode = textinput.EchoPassword
		input.EchoCharacter = '*'
	}
	return input
}

func (m *WizardModel) updateInputFocus() {
	for i := range m.inputs {
		if i == m.focusIndex {
			m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
}

// collectInputValues copies the inputs into currentEnv and validates them.
func (m *WizardModel) collectInputValues() bool {
	if len(m.inputs) < inputAccessFirst {
		m.errors = map[string]string{"inputs": "not enough inputs"}
		return false
	}
	value := func(i int) string {
		if i < len(m.inputs) {
			return strings.TrimSpace(m.inputs[i].Value())
		}
		return ""
	}

	m.currentEnv.Name = value(inputName)
	m.currentEnv.Region = value(inputRegion)
	m.currentEnv.IdentityPoolID = value(inputPool)
	m.currentEnv.TableName = value(inputTable)
	m.currentEnv.BucketName = value(inputBucket)
	switch m.currentEnv.AccessMode {
	case "profile":
		m.currentEnv.Profile = value(inputAccessFirst)
	case "keys":
		m.currentEnv.AccessKeyID = value(inputAccessFirst)
		m.currentEnv.SecretAccessKey = value(inputAccessFirst + 1)
	case "endpoint":
		m.currentEnv.Endpoint = value(inputAccessFirst)
	}

	m.errors = ValidateEnvironment(m.currentEnv)
	return len(m.errors) == 0
}

// Message types for async operations

type credentialTestResultMsg struct {
	accountID string
	err       error
}

func (m WizardModel) testCredentials() tea.Cmd {
	env, tester := m.currentEnv, m.tester
	return func() tea.Msg {
		accountID, err := tester(context.Background(), env)
		return credentialTestResultMsg{accountID: accountID, err: err}
	}
}

type fileCreationResultMsg struct {
	result *InitResult
	err    error
}

func (m WizardModel) createFiles() tea.Cmd {
	dir, envs := m.dir, m.environments
	return func() tea.Msg {
		result, err := GenerateFiles(dir, envs)
		return fileCreationResultMsg{result: result, err: err}
	}
}

type existingConfigMsg struct {
	path     string
	envNames []string
}

func (m WizardModel) checkForExistingConfig() tea.Msg {
	configPath := filepath.Join(m.dir, config.FileName)
	cfg, err := config.ReadConfig(configPath)
	if err != nil || len(cfg.Environments) == 0 {
		return existingConfigMsg{}
	}
	names := make([]string, 0, len(cfg.Environments))
	for name := range cfg.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return existingConfigMsg{path: configPath, envNames: names}
}

// View renderers

const title = "ownershift init"

func (m WizardModel) renderWelcome() string {
	var b strings.Builder

	b.WriteString(renderHeader(title))
	b.WriteString("\n\n")
	b.WriteString("Welcome! Let's connect ownershift to your AWS environments.\n\n")
	b.WriteString(renderInfo("This wizard will help you:\n" +
		"  • Choose how to reach AWS (profile, keys or a local endpoint)\n" +
		"  • Record the user pool, table and bucket to migrate\n" +
		"  • Create environment-specific .env files"))
	b.WriteString("\n\n")
	b.WriteString(renderStatusBar("Press Enter to continue, q to quit"))

	return borderStyle.Render(b.String())
}

func (m WizardModel) renderCheckExisting() string {
	var b strings.Builder

	b.WriteString(renderHeader(title))
	b.WriteString("\n\n")
	b.WriteString(renderSuccess("Found existing configuration!"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Config: %s\n", m.existingConfigPath))
	b.WriteString(fmt.Sprintf("Environments: %s\n", strings.Join(m.existingEnvNames, ", ")))
	b.WriteString("\n\n")
	b.WriteString(renderInfo("New environments are merged into the existing file.\n" +
		"An environment with the same name is replaced."))
	b.WriteString("\n\n")
	b.WriteString(renderStatusBar("Press Enter to continue, q to quit"))

	return borderStyle.Render(b.String())
}

func (m WizardModel) renderAccessMode() string {
	var b strings.Builder

	b.WriteString(renderHeader(title))
	b.WriteString("\n\n")
	b.WriteString(renderSectionHeader("AWS Access"))
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("How should ownershift reach AWS?"))
	b.WriteString("\n\n")

	for i, mode := range AccessModes {
		line := fmt.Sprintf("%d. %s %s (%s)", i+1, mode.Icon, mode.DisplayName, mode.Description)
		b.WriteString(renderOption(i == m.accessModeIndex, line))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(renderStatusBar("↑/↓: navigate  Enter: select  q: quit"))

	return borderStyle.Render(b.String())
}

func (m WizardModel) renderEnvironmentDetails() string {
	var b strings.Builder

	b.WriteString(renderHeader(title))
	b.WriteString("\n\n")
	b.WriteString(renderSectionHeader("Environment Details"))
	b.WriteString("\n\n")

	mode := AccessModes[m.accessModeIndex]
	b.WriteString(fmt.Sprintf("Access: %s %s\n\n", mode.Icon, mode.DisplayName))

	for i, input := range m.inputs {
		label := input.Placeholder
		if i == m.focusIndex {
			b.WriteString(selectedStyle.Render(iconArrow + " " + label + ":"))
		} else {
			b.WriteString(labelStyle.Render("  " + label + ":"))
		}
		b.WriteString("\n  ")
		b.WriteString(input.View())
		b.WriteString("\n\n")
	}

	if len(m.errors) > 0 {
		fields := make([]string, 0, len(m.errors))
		for field := range m.errors {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			b.WriteString(renderError(m.errors[field]))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(renderStatusBar("↑/↓ or Tab: navigate  Enter: test credentials  ctrl+c: quit"))

	return borderStyle.Render(b.String())
}

func (m WizardModel) renderTestCredentials() string {
	var b strings.Builder

	b.WriteString(renderHeader(title))
	b.WriteString("\n\n")
	b.WriteString(renderSectionHeader("Testing Credentials"))
	b.WriteString("\n\n")

	switch {
	case m.testingCreds:
		b.WriteString(infoStyle.Render(iconSpinner + " Calling sts:GetCallerIdentity..."))
	case m.credentialResult == "success":
		b.WriteString(renderSuccess("Credentials work!"))
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("Account: %s\n", m.credentialAccount))
		b.WriteString(fmt.Sprintf("Environment: %s\n", m.currentEnv.Name))
	case m.credentialResult == "failed":
		b.WriteString(renderError("Credential check failed"))
		b.WriteString("\n\n")
		if m.credentialError != nil {
			b.WriteString(errorStyle.Render("Error: " + m.credentialError.Error()))
		}
		b.WriteString("\n\n")
		b.WriteString("What would you like to do?\n\n")
		b.WriteString(renderOption(m.retryChoice == 0, "Retry"))
		b.WriteString("\n")
		b.WriteString(renderOption(m.retryChoice == 1, "Edit environment details"))
		b.WriteString("\n")
		b.WriteString(renderOption(m.retryChoice == 2, "Quit wizard"))
		b.WriteString("\n")
	}

	b.WriteString("\n\n")
	if m.credentialResult == "failed" {
		b.WriteString(renderStatusBar("↑/↓: navigate  Enter: select  q: quit"))
	} else {
		b.WriteString(renderStatusBar("Press Enter to continue"))
	}

	return borderStyle.Render(b.String())
}

func (m WizardModel) renderAddAnother() string {
	var b strings.Builder

	b.WriteString(renderHeader(title))
	b.WriteString("\n\n")
	b.WriteString(renderSectionHeader("Add Another Environment?"))
	b.WriteString("\n\n")
	if len(m.environments) > 0 {
		b.WriteString(fmt.Sprintf("%s Added environment: %s\n\n", iconCheck, m.environments[len(m.environments)-1].Name))
	}
	b.WriteString(renderOption(m.addAnotherChoice == 0, "Add another environment"))
	b.WriteString("\n")
	b.WriteString(renderOption(m.addAnotherChoice == 1, "Finish and save"))
	b.WriteString("\n\n")
	b.WriteString(renderStatusBar("↑/↓: navigate  Enter: select  q: quit"))

	return borderStyle.Render(b.String())
}

func (m WizardModel) renderSummary() string {
	var b strings.Builder

	b.WriteString(renderHeader(title))
	b.WriteString("\n\n")
	b.WriteString(renderSectionHeader("Summary"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Ready to create configuration for %d environment(s):\n\n", len(m.environments)))

	for _, env := range m.environments {
		b.WriteString(fmt.Sprintf("  • %s (%s, %s)\n", env.Name, env.Region, env.AccessMode))
	}

	b.WriteString("\n")
	b.WriteString("This will create:\n")
	b.WriteString(fmt.Sprintf("  • %s\n", config.FileName))
	for _, env := range m.environments {
		b.WriteString(fmt.Sprintf("  • .env.%s\n", env.Name))
	}
	b.WriteString("  • Update .gitignore\n")

	b.WriteString("\n\n")
	b.WriteString(renderStatusBar("Press Enter to create files, q to quit"))

	return borderStyle.Render(b.String())
}

func (m WizardModel) renderCreating() string {
	var b strings.Builder

	b.WriteString(renderHeader(title))
	b.WriteString("\n\n")
	b.WriteString(infoStyle.Render(iconSpinner + " Writing configuration..."))

	return borderStyle.Render(b.String())
}

func (m WizardModel) renderDone() string {
	var b strings.Builder

	b.WriteString(renderHeader(title))
	b.WriteString("\n\n")
	b.WriteString(renderSuccess("Setup complete!"))
	b.WriteString("\n\n")

	if m.result != nil {
		b.WriteString("Created:\n")
		if m.result.ConfigCreated || m.result.ConfigUpdated {
			b.WriteString(fmt.Sprintf("  %s %s\n", iconCheck, m.result.ConfigPath))
		}
		for _, envFile := range m.result.EnvFiles {
			b.WriteString(fmt.Sprintf("  %s %s\n", iconCheck, envFile))
		}
		if m.result.GitignoreUpdated {
			b.WriteString(fmt.Sprintf("  %s .gitignore updated\n", iconCheck))
		}
	}

	b.WriteString("\n")
	b.WriteString(renderInfo("Ready to plan!\n" +
		"  Run: ownershift plan --environment <name>\n\n" +
		"  Then review the plan and dry-run it with\n" +
		"  ownershift migrate --file <plan>"))
	b.WriteString("\n\n")
	b.WriteString(renderStatusBar("Press Enter to exit"))

	return borderStyle.Render(b.String())
}

func (m WizardModel) renderError() string {
	var b strings.Builder

	b.WriteString(renderHeader(title))
	b.WriteString("\n\n")
	b.WriteString(renderError("An error occurred"))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()))
	}

	b.WriteString("\n\n")
	b.WriteString(renderStatusBar("Press Enter to exit"))

	return borderStyle.Render(b.String())
}

// Run starts the wizard in dir and returns what it created.
func Run(dir string) (*InitResult, error) {
	p := tea.NewProgram(New(dir, nil))
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	m, ok := final.(WizardModel)
	if !ok {
		return nil, nil
	}
	return m.Result(), m.Err()
}
