/*
PURPOSE:
  Environment overrides for the run configuration.

REQUIREMENTS:
  Implementation-discovered:
  - A local .env file is loaded first and never overwrites variables already set.
  - DONKEY_* variables override config file values; flags override both.
  - The provider API key is read from the variable named by provider.api_key_env.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli
  - Dependencies: github.com/joho/godotenv

ERROR HANDLING:
  - A missing .env file is not an error.
  - Unparseable numeric or boolean values are returned with the variable name.

RELATED FILES:
  - internal/config/config.go
*/

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvBudgetTokens   = "DONKEY_BUDGET_TOKENS"
	EnvDomain         = "DONKEY_DOMAIN"
	EnvMaxBatchTokens = "DONKEY_MAX_BATCH_TOKENS"
	EnvBatchOptimizer = "DONKEY_BATCH_OPTIMIZER"
	EnvModel          = "DONKEY_MODEL"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set are left alone. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

// ApplyEnv overrides fields from the environment using getenv (usually os.Getenv).
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvBudgetTokens); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBudgetTokens, err)
		}
		c.BudgetTokens = n
	}
	if v := getenv(EnvDomain); v != "" {
		c.DomainProfile = v
	}
	if v := getenv(EnvMaxBatchTokens); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxBatchTokens, err)
		}
		c.MaxBatchTokens = n
	}
	if v := getenv(EnvBatchOptimizer); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBatchOptimizer, err)
		}
		c.BatchOptimizerEnabled = b
	}
	if v := getenv(EnvModel); v != "" {
		c.Provider.Model = v
	}
	return nil
}

// APIKey returns the provider key from the configured variable, or "".
func (c *Config) APIKey(getenv func(string) string) string {
	return getenv(c.Provider.APIKeyEnv)
}
