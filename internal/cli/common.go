/*
PURPOSE:
  Helpers shared by the run and sweep subcommands.

REQUIREMENTS:
  Implementation-discovered:
  - Config precedence: defaults < config file < .env < DONKEY_* < flags.
  - Output files land in output_dir (per domain for sweeps).

ARCHITECTURE INTEGRATION:
  - Uses: internal/config, internal/provider, internal/output, internal/store

ERROR HANDLING:
  - Returns wrapped errors; callers join them with the run error.

RELATED FILES:
  - internal/cli/run.go
  - internal/cli/sweep.go
*/

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/daryltucker/donkey-runner/internal/config"
	"github.com/daryltucker/donkey-runner/internal/model"
	"github.com/daryltucker/donkey-runner/internal/output"
	"github.com/daryltucker/donkey-runner/internal/provider"
	"github.com/daryltucker/donkey-runner/internal/store"
)

const (
	traceJSONLName = "trace.jsonl"
	traceCSVName   = "trace.csv"
	reportJSONName = "report.json"
)

// loadConfig applies, in order: defaults, config file, .env, DONKEY_* variables.
// Flag overrides and validation are left to the caller.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	return cfg, nil
}

func newProvider(cfg *config.Config) provider.Provider {
	p := provider.New(provider.Options{
		APIKey:      cfg.APIKey(os.Getenv),
		Model:       cfg.Provider.Model,
		BaseURL:     cfg.Provider.BaseURL,
		Temperature: cfg.Provider.Temperature,
	})
	output.Logger.Info("Using provider", "name", p.Name())
	return p
}

// writeOutputs writes the trace files, the JSON report and (unless disabled)
// the HTML report into dir.
func writeOutputs(dir string, r *model.Report, htmlName string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	jw, err := output.NewJSONWriter(filepath.Join(dir, traceJSONLName))
	if err != nil {
		return err
	}
	defer jw.Close()
	cw, err := output.NewCSVWriter(filepath.Join(dir, traceCSVName))
	if err != nil {
		return err
	}
	defer cw.Close()

	for _, e := range r.Trace {
		if err := jw.Write(e); err != nil {
			return err
		}
		if err := cw.Write(e); err != nil {
			return err
		}
	}

	if err := output.WriteReportJSON(filepath.Join(dir, reportJSONName), r); err != nil {
		return err
	}

	if htmlName != "" {
		path := filepath.Join(dir, htmlName)
		if err := output.WriteHTML(path, r); err != nil {
			return err
		}
		output.Logger.Info("HTML report written", "path", path)
	}
	output.Logger.Info("Results saved", "dir", dir, "entries", len(r.Trace))
	return nil
}

// saveReports persists reports into the SQLite trace store at path.
func saveReports(ctx context.Context, path string, reports ...*model.Report) error {
	s, err := store.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, r := range reports {
		if r == nil {
			continue
		}
		if err := s.SaveReport(ctx, r); err != nil {
			return err
		}
	}
	output.Logger.Info("Trace stored", "db", path, "runs", len(reports))
	return nil
}
