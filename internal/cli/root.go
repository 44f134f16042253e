/*
PURPOSE:
  Defines the root Cobra command for the Donkey Runner CLI.
  Handles global flags, logger setup and command initialization.

REQUIREMENTS:
  User-specified:
  - Provide a CLI interface.
  - Support global flags like --config.

  Implementation-discovered:
  - Needs to expose an Execute() function for main.go.
  - Log level and format are chosen before any subcommand runs.
  - Logs go to stderr so the console report on stdout stays clean.

ARCHITECTURE INTEGRATION:
  - Called by: cmd/donkey/main.go
  - Calls: Child commands (run, sweep, validate, rules, history)
  - Modifies: output.Logger

ERROR HANDLING:
  - Returns error to main.go for exit code handling.

IMPLEMENTATION RULES:
  - Use `PersistentFlags()` for flags available to all subcommands.
  - Keep Run logic in subcommands, Root is usually empty or helps.

USAGE:
  Called by main.go.

SELF-HEALING INSTRUCTIONS:
  - If adding new global flags, add them to init().

RELATED FILES:
  - cmd/donkey/main.go
  - internal/cli/common.go

MAINTENANCE:
  - Update when adding global configuration options.
*/

package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/daryltucker/donkey-runner/internal/output"
)

var (
	// cfgFile stores the path to the config file (if specified via flag)
	cfgFile   string
	envFile   string
	logLevel  string
	logFormat string

	rootCmd = &cobra.Command{
		Use:   "donkey",
		Short: "Budget-aware LLM task runner",
		Long: `Donkey Runner loads prompt tasks for a domain, rewrites them with domain rules,
packs them into token-bounded batches and executes them against a completion
provider without ever exceeding a hard token budget. Use 'run --help' for options.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := output.NewLogger(logLevel, logFormat, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			output.SetLogger(l)
			return nil
		},
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./donkey.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading DONKEY_* variables")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
}
