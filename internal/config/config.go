/*
PURPOSE:
  Defines the run configuration and its loading logic for Donkey Runner.
  Adheres to "Config IS Code" philosophy: every option is a named, typed field
  with a documented default.

REQUIREMENTS:
  User-specified:
  - budget_tokens, domain_profile, batch_optimizer_enabled, max_batch_tokens.
  - response_allowance and admission_buffer are configuration, not constants.
  - Missing or malformed required fields abort before execution begins.

  Implementation-discovered:
  - Needs to support YAML parsing.
  - Needs to support Environment variable overrides (DONKEY_...) and a local .env file.

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli, internal/engine
  - Dependencies: gopkg.in/yaml.v3, github.com/joho/godotenv,
    github.com/go-playground/validator/v10

ERROR HANDLING:
  - Returns explicit error if the config file is invalid.
  - Missing default config file is not an error (falls back to defaults).
  - Validation failures wrap ErrInvalidConfig.

IMPLEMENTATION RULES:
  - Config struct tags support yaml and validate.
  - The loaded Config is read-only for the rest of the run.

USAGE:
  cfg, err := config.Load("donkey.yaml")

SELF-HEALING INSTRUCTIONS:
  - If new fields are needed, add to Config, DefaultConfig() and the validate tags.

RELATED FILES:
  - internal/config/env.go
  - internal/cli/root.go

MAINTENANCE:
  - Update when adding new tuning parameters.
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultFiles are searched in order when no explicit path is given.
var DefaultFiles = []string{"donkey.yaml", "donkey.yml", ".donkey.yaml"}

// Config represents the full configuration for a run.
type Config struct {
	BudgetTokens          int    `yaml:"budget_tokens" validate:"gt=0"`
	DomainProfile         string `yaml:"domain_profile" validate:"required"`
	BatchOptimizerEnabled bool   `yaml:"batch_optimizer_enabled"`
	MaxBatchTokens        int    `yaml:"max_batch_tokens" validate:"gt=0"`
	// ResponseAllowance is the expected worst-case response size added to each
	// task's estimate when batching.
	ResponseAllowance int `yaml:"response_allowance" validate:"gte=0"`
	// AdmissionBuffer is added to the prompt estimate for the pre-flight budget check.
	AdmissionBuffer int `yaml:"admission_buffer" validate:"gtefield=ResponseAllowance"`
	// MaxTokens is the completion limit for tasks that don't set their own.
	MaxTokens int `yaml:"max_tokens" validate:"gt=0"`

	TasksDir             string `yaml:"tasks_dir" validate:"required"`
	OutputDir            string `yaml:"output_dir"`
	HTMLReport           string `yaml:"html_report"`
	TraceDB              string `yaml:"trace_db"`
	MetricsFile          string `yaml:"metrics_file"`
	ResponsePreviewChars int    `yaml:"response_preview_chars" validate:"gte=0"`

	Provider ProviderConfig `yaml:"provider"`
}

// ProviderConfig configures the remote completion provider.
type ProviderConfig struct {
	Model       string  `yaml:"model" validate:"required"`
	BaseURL     string  `yaml:"base_url" validate:"omitempty,url"`
	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`
	// APIKeyEnv names the environment variable holding the key.
	APIKeyEnv string `yaml:"api_key_env" validate:"required"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BudgetTokens:          1000,
		DomainProfile:         "math",
		BatchOptimizerEnabled: true,
		MaxBatchTokens:        2048,
		ResponseAllowance:     100,
		AdmissionBuffer:       150,
		MaxTokens:             100,
		TasksDir:              "tasks",
		OutputDir:             ".",
		HTMLReport:            "trace_latest.html",
		ResponsePreviewChars:  100,
		Provider: ProviderConfig{
			Model:       "gpt-3.5-turbo",
			Temperature: 0.7,
			APIKeyEnv:   "OPENAI_API_KEY",
		},
	}
}

// Load reads configuration from a file.
// If path is specified, it attempts to load that file.
// If path is empty, it searches for default files in order.
// If no file found, returns default config.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		found := false
		for _, name := range DefaultFiles {
			data, err = os.ReadFile(name)
			if err == nil {
				path = name
				found = true
				break
			}
		}
		if !found {
			return cfg, nil
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its documented constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}
