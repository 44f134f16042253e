/*
PURPOSE:
  Defines the 'rules' subcommand.
  Lists the mutation rules registered per domain, in application order.

USAGE:
  donkey rules
*/

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daryltucker/donkey-runner/internal/mutation"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the mutation rules registered per domain",
	RunE: func(cmd *cobra.Command, args []string) error {
		e := mutation.NewDefault()
		for _, domain := range e.Domains() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", domain)
			for i, name := range e.Rules(domain) {
				fmt.Fprintf(cmd.OutOrStdout(), "  %d. %s\n", i+1, name)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}
