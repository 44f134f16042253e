/*
PURPOSE:
  Defines the 'validate' subcommand.
  Checks the configuration and every task file without calling a provider.

ERROR HANDLING:
  - Non-zero exit when the config or any task file is invalid.

USAGE:
  donkey validate

RELATED FILES:
  - internal/engine/loader.go
*/

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daryltucker/donkey-runner/internal/engine"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and every task file without calling a provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		fmt.Fprintln(out, "config: ok")

		domains, err := engine.ListDomains(cfg.TasksDir)
		if err != nil {
			return err
		}

		issues := 0
		for _, domain := range domains {
			res, err := engine.LoadTasks(engine.DomainDir(cfg.TasksDir, domain))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: %d tasks, %d skipped\n", domain, len(res.Tasks), len(res.Skipped))
			for _, s := range res.Skipped {
				fmt.Fprintf(out, "  - %s: %s\n", s.File, s.Reason)
			}
			issues += len(res.Skipped)
		}

		if issues > 0 {
			return fmt.Errorf("%d invalid task file(s)", issues)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
