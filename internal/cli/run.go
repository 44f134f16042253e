/*
PURPOSE:
  Defines the 'run' subcommand.
  Executes one budget-aware run for a single domain.

REQUIREMENTS:
  User-specified:
  - Optional domain override.
  - Exit 0 on normal completion, including runs where tasks were blocked.
  - Non-zero only on fatal budget overage or unrecoverable input errors.

  Implementation-discovered:
  - Need to load config first, then .env / DONKEY_* variables, then flags.
  - The console report is printed even when the run aborts.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Runner.Run()
  - Uses: internal/config, internal/provider, internal/metrics, internal/output, internal/store

ERROR HANDLING:
  - Returns error if config load/validation fails or the run aborts.
  - Output write failures are returned after the report is printed.

IMPLEMENTATION RULES:
  - Setup flags in init().
  - Logic: Load Config -> Override -> Validate -> Runner.Run -> Write outputs.

USAGE:
  donkey run --domain rag --budget 2000

SELF-HEALING INSTRUCTIONS:
  - Check flag names match Config struct fields generally.

RELATED FILES:
  - internal/cli/root.go
  - internal/cli/common.go

MAINTENANCE:
  - Update when adding new CLI overrides.
*/

package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/daryltucker/donkey-runner/internal/config"
	"github.com/daryltucker/donkey-runner/internal/engine"
	"github.com/daryltucker/donkey-runner/internal/metrics"
	"github.com/daryltucker/donkey-runner/internal/output"
)

// runOverrides holds flag values shared by run and sweep.
type runOverrides struct {
	domain      string
	tasksDir    string
	outputDir   string
	budget      int
	noBatch     bool
	noHTML      bool
	traceDB     string
	metricsFile string
}

var runFlags runOverrides

// apply copies every flag the user actually set onto cfg.
func (o *runOverrides) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if o.domain != "" {
		cfg.DomainProfile = o.domain
	}
	if o.tasksDir != "" {
		cfg.TasksDir = o.tasksDir
	}
	if o.outputDir != "" {
		cfg.OutputDir = o.outputDir
	}
	if flags.Changed("budget") {
		cfg.BudgetTokens = o.budget
	}
	if o.noBatch {
		cfg.BatchOptimizerEnabled = false
	}
	if o.noHTML {
		cfg.HTMLReport = ""
	}
	if o.traceDB != "" {
		cfg.TraceDB = o.traceDB
	}
	if o.metricsFile != "" {
		cfg.MetricsFile = o.metricsFile
	}
}

func (o *runOverrides) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.tasksDir, "tasks-dir", "", "Directory holding one sub-directory of task files per domain")
	cmd.Flags().StringVarP(&o.outputDir, "output-dir", "o", "", "Output directory for trace and report files")
	cmd.Flags().IntVar(&o.budget, "budget", 0, "Hard token budget for the run (overrides budget_tokens)")
	cmd.Flags().BoolVar(&o.noBatch, "no-batch", false, "Disable the batch optimizer (one task per batch)")
	cmd.Flags().BoolVar(&o.noHTML, "no-html", false, "Skip the HTML report")
	cmd.Flags().StringVar(&o.traceDB, "trace-db", "", "SQLite database to append the run to")
	cmd.Flags().StringVar(&o.metricsFile, "metrics-file", "", "Write Prometheus metrics in textfile format to this path")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tasks of one domain under a token budget",
	Long: `Executes every task of a domain against the completion provider.
The process follows a strict protocol:
1. Loading: Reads tasks/<domain>/*.json in file-name order; bad files are skipped.
2. Mutating: Applies the domain's rewrite rules (first match wins).
3. Batching: Packs tasks into batches bounded by max_batch_tokens.
4. Executing: Admission-checks each task, calls the provider, charges actual usage.

Tasks that would not fit the remaining budget are blocked and the run continues.
If actual usage ever pushes the total over the budget the run aborts with an error.

Results are written to trace.jsonl, trace.csv, report.json and the HTML report.
Without OPENAI_API_KEY a deterministic local provider answers every prompt.`,
	Example: `  # Run with defaults (uses donkey.yaml if present)
  donkey run

  # Run the rag domain with a larger budget
  donkey run --domain rag --budget 5000

  # One task per batch, no HTML, keep history in SQLite
  donkey run --no-batch --no-html --trace-db runs.db`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. Load Config
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// 2. Overrides
		runFlags.apply(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// 3. Execution
		collector := metrics.NewCollector(nil)
		runner := engine.New(cfg, newProvider(cfg), engine.WithMetrics(collector))
		report, runErr := runner.Run(ctx)
		if report == nil {
			return runErr
		}

		fmt.Fprintln(cmd.OutOrStdout(), output.RenderConsole(report))

		// 4. Outputs
		var errs []error
		if err := writeOutputs(cfg.OutputDir, report, cfg.HTMLReport); err != nil {
			errs = append(errs, err)
		}
		if cfg.TraceDB != "" {
			if err := saveReports(cmd.Context(), cfg.TraceDB, report); err != nil {
				errs = append(errs, err)
			}
		}
		if cfg.MetricsFile != "" {
			if err := collector.WriteTextfile(cfg.MetricsFile); err != nil {
				errs = append(errs, err)
			}
		}

		return errors.Join(append([]error{runErr}, errs...)...)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.domain, "domain", "d", "", "Domain profile to run (overrides domain_profile)")
	runFlags.register(runCmd)
}
