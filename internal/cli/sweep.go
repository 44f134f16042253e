/*
PURPOSE:
  Defines the 'sweep' subcommand.
  Runs several domains in parallel, each under its own budget.

REQUIREMENTS:
  User-specified:
  - One independent run per domain; fails if any run failed fatally.

  Implementation-discovered:
  - Without --domains, every directory under tasks_dir is swept.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Sweep()

ERROR HANDLING:
  - Per-domain errors are joined; outputs are still written for every report.

USAGE:
  donkey sweep --domains math,rag

RELATED FILES:
  - internal/engine/sweep.go
*/

package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/daryltucker/donkey-runner/internal/engine"
	"github.com/daryltucker/donkey-runner/internal/metrics"
	"github.com/daryltucker/donkey-runner/internal/output"
)

var (
	sweepFlags    runOverrides
	sweepDomains  []string
	sweepParallel int
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run several domains in parallel, each under its own budget",
	Long: `Runs one independent run per domain. Every run has its own budget ledger,
mutation log, provider tally and trace; the configured budget applies to each
domain separately. Outputs are written to <output-dir>/<domain>/.

Without --domains every sub-directory of the tasks directory is swept.`,
	Example: `  donkey sweep --domains math,rag
  donkey sweep --parallel 1 --trace-db runs.db`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sweepFlags.apply(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		domains := sweepDomains
		if len(domains) == 0 {
			domains, err = engine.ListDomains(cfg.TasksDir)
			if err != nil {
				return err
			}
		}
		if len(domains) == 0 {
			return fmt.Errorf("no domains found in %s", cfg.TasksDir)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		collector := metrics.NewCollector(nil)
		reports, sweepErr := engine.Sweep(ctx, cfg, newProvider(cfg), domains, sweepParallel, engine.WithMetrics(collector))

		var errs []error
		out := cmd.OutOrStdout()
		for i, r := range reports {
			if r == nil {
				fmt.Fprintf(out, "%s: no report\n", domains[i])
				continue
			}
			fmt.Fprintln(out, output.SummaryLine(r))
			if err := writeOutputs(filepath.Join(cfg.OutputDir, r.Domain), r, cfg.HTMLReport); err != nil {
				errs = append(errs, err)
			}
		}
		if cfg.TraceDB != "" {
			if err := saveReports(cmd.Context(), cfg.TraceDB, reports...); err != nil {
				errs = append(errs, err)
			}
		}
		if cfg.MetricsFile != "" {
			if err := collector.WriteTextfile(cfg.MetricsFile); err != nil {
				errs = append(errs, err)
			}
		}

		return errors.Join(append([]error{sweepErr}, errs...)...)
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().StringSliceVar(&sweepDomains, "domains", nil, "Comma-separated list of domains (default: every directory under tasks-dir)")
	sweepCmd.Flags().IntVar(&sweepParallel, "parallel", 0, "Maximum concurrent runs (0 = all at once)")
	sweepFlags.register(sweepCmd)
}
