package ui

import (
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"tablekeeper/pkg/models"
)

const (
	authPassword = "Password (stored in the OS keyring)"
	authKeyPair  = "Key pair (PKCS#8 private key file)"
)

// ConfigWizard provides an interactive configuration setup
type ConfigWizard struct {
	defaults    models.Config
	currentStep int
	totalSteps  int
}

type wizardAnswers struct {
	Account        string `survey:"account"`
	User           string `survey:"user"`
	Auth           string `survey:"auth"`
	Password       string `survey:"password"`
	PrivateKeyPath string `survey:"private_key_path"`
	Database       string `survey:"database"`
	Warehouse      string `survey:"warehouse"`
	Schema         string `survey:"schema"`
	Role           string `survey:"role"`
}

// NewConfigWizard creates a wizard whose prompts default to defaults.
func NewConfigWizard(defaults models.Config) *ConfigWizard {
	return &ConfigWizard{
		defaults:    defaults,
		currentStep: 1,
		totalSteps:  3,
	}
}

// Run asks for the connection settings and returns the configuration and,
// for password authentication, the password to keep in the keyring.
func (w *ConfigWizard) Run() (*models.Config, string, error) {
	ShowHeader("tablekeeper - Configuration Setup")

	var answers wizardAnswers

	w.showProgress("Account")
	if err := survey.Ask(w.accountQuestions(), &answers); err != nil {
		return nil, "", promptErr(err)
	}

	w.showProgress("Authentication")
	if err := survey.Ask(w.authQuestions(answers.Auth), &answers); err != nil {
		return nil, "", promptErr(err)
	}

	config := w.apply(answers)

	w.showProgress("Review")
	if err := w.review(config); err != nil {
		return nil, "", err
	}

	password := ""
	if answers.Auth != authKeyPair {
		password = answers.Password
	}
	return config, password, nil
}

func (w *ConfigWizard) accountQuestions() []*survey.Question {
	sf := w.defaults.Snowflake
	return []*survey.Question{
		{
			Name: "account",
			Prompt: &survey.Input{
				Message: "Snowflake Account:",
				Default: sf.Account,
				Help:    "Your Snowflake account identifier (e.g., xy12345.us-east-1)",
			},
			Validate: survey.Required,
		},
		{
			Name:     "user",
			Prompt:   &survey.Input{Message: "Username:", Default: sf.User},
			Validate: survey.Required,
		},
		{
			Name:   "database",
			Prompt: &survey.Input{Message: "Database:", Default: sf.Database},
		},
		{
			Name:   "warehouse",
			Prompt: &survey.Input{Message: "Warehouse:", Default: sf.Warehouse},
		},
		{
			Name:   "schema",
			Prompt: &survey.Input{Message: "Schema:", Default: sf.Schema},
		},
		{
			Name: "role",
			Prompt: &survey.Input{
				Message: "Role:",
				Default: sf.Role,
				Help:    "Leave empty to use the user's default role",
			},
		},
		{
			Name: "auth",
			Prompt: &survey.Select{
				Message: "Authentication:",
				Options: []string{authPassword, authKeyPair},
				Default: authPassword,
			},
		},
	}
}

func (w *ConfigWizard) authQuestions(auth string) []*survey.Question {
	if auth == authKeyPair {
		return []*survey.Question{{
			Name: "private_key_path",
			Prompt: &survey.Input{
				Message: "Private key file:",
				Default: w.defaults.Snowflake.PrivateKeyPath,
			},
			Validate: survey.Required,
		}}
	}
	return []*survey.Question{{
		Name:     "password",
		Prompt:   &survey.Password{Message: "Password:", Help: "Stored in the OS keyring, never in the config file"},
		Validate: survey.Required,
	}}
}

// apply merges the answers over the defaults. Blank answers keep the default.
func (w *ConfigWizard) apply(a wizardAnswers) *models.Config {
	config := w.defaults
	sf := &config.Snowflake

	sf.Account = strings.TrimSpace(a.Account)
	sf.User = strings.TrimSpace(a.User)
	setIfPresent(&sf.Database, a.Database)
	setIfPresent(&sf.Warehouse, a.Warehouse)
	setIfPresent(&sf.Schema, a.Schema)
	sf.Role = strings.TrimSpace(a.Role)
	sf.Password = ""

	if a.Auth == authKeyPair {
		sf.PrivateKeyPath = strings.TrimSpace(a.PrivateKeyPath)
	} else {
		sf.PrivateKeyPath = ""
	}
	return &config
}

func setIfPresent(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}

func (w *ConfigWizard) review(config *models.Config) error {
	fmt.Fprintln(Output, "\n"+ColorInfo("Configuration Summary:"))
	fmt.Fprintln(Output, strings.Repeat("─", 50))
	PrintKeyValue("Account", config.Snowflake.Account)
	PrintKeyValue("User", config.Snowflake.User)
	PrintKeyValue("Database", config.Snowflake.Database)
	PrintKeyValue("Warehouse", config.Snowflake.Warehouse)
	PrintKeyValue("Schema", config.Snowflake.Schema)
	if config.Snowflake.PrivateKeyPath != "" {
		PrintKeyValue("Private key", config.Snowflake.PrivateKeyPath)
	}
	fmt.Fprintln(Output, strings.Repeat("─", 50))

	ok, err := Confirm("Save this configuration?", true)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCancelled
	}
	return nil
}

func (w *ConfigWizard) showProgress(step string) {
	fmt.Fprintf(Output, "\n%s [Step %d/%d] %s\n\n",
		ColorProgress("►"),
		w.currentStep,
		w.totalSteps,
		ColorBold(step),
	)
	w.currentStep++
}
