/*
PURPOSE:
  Defines the 'history' subcommand.
  Lists runs stored in the SQLite trace database, or one run's trace.

REQUIREMENTS:
  Implementation-discovered:
  - Must not create a database as a side effect; a missing file is an error.

ARCHITECTURE INTEGRATION:
  - Uses: internal/store

USAGE:
  donkey history --trace-db runs.db

RELATED FILES:
  - internal/store/sqlite.go
*/

package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/daryltucker/donkey-runner/internal/output"
	"github.com/daryltucker/donkey-runner/internal/store"
)

var (
	historyDB    string
	historyRun   string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show runs recorded in a trace database",
	Long: `Lists runs saved with --trace-db, newest first.
With --run, prints the stored trace and blocked tasks of that run.`,
	Example: `  donkey history --trace-db runs.db
  donkey history --trace-db runs.db --run 0b6f...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := historyDB
		if path == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path = cfg.TraceDB
		}
		if path == "" {
			return errors.New("no trace database: set trace_db or pass --trace-db")
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("trace database %s: %w", path, err)
		}

		s, err := store.Open(path)
		if err != nil {
			return err
		}
		defer s.Close()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		defer w.Flush()

		if historyRun != "" {
			trace, err := s.LoadTrace(cmd.Context(), historyRun)
			if err != nil {
				return err
			}
			blocked, err := s.LoadBlocked(cmd.Context(), historyRun)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "TASK\tBATCH\tPROMPT\tRESPONSE\tTOTAL\tMUTATED")
			for _, e := range trace {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%t\n", e.TaskID, e.Batch, e.PromptTokens, e.ResponseTokens, e.TotalTokens, e.Mutated)
			}
			for _, b := range blocked {
				fmt.Fprintf(w, "%s\tblocked\test=%d\tremaining=%d\t-\t-\n", b.TaskID, b.EstimatedTokens, b.BudgetRemaining)
			}
			return nil
		}

		runs, err := s.ListRuns(cmd.Context())
		if err != nil {
			return err
		}
		if historyLimit > 0 && len(runs) > historyLimit {
			runs = runs[:historyLimit]
		}
		fmt.Fprintln(w, "RUN\tDOMAIN\tSTARTED\tUSED\tBUDGET\tTASKS\tSTATUS")
		for _, r := range runs {
			status := "ok"
			if r.Fatal != "" {
				status = "aborted"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				r.RunID, r.Domain, r.StartedAt.Local().Format(time.DateTime), r.Used, r.Budget, r.TaskCount, status)
		}
		output.Logger.Debug("Listed runs", "db", path, "count", len(runs))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyDB, "trace-db", "", "SQLite trace database (default: trace_db from config)")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Show the stored trace of one run")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum runs to list (0 = all)")
}
