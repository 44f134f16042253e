/*
PURPOSE:
  High-level runner that drives one budget-aware run.
  LOADING -> MUTATING -> BATCHING -> EXECUTING -> REPORTING -> DONE.

REQUIREMENTS:
  User-specified:
  - Admission-check every task before calling the provider; blocked tasks are
    skipped and the run continues.
  - Charge actual usage to the ledger after each call; an overage aborts the run.
  - Produce an append-only trace and a budget summary, nothing rendered.

  Implementation-discovered:
  - The provider token tally is accumulated here from returned usage.
  - The report is produced even when the run aborts.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli, engine.Sweep
  - Uses: internal/budget, internal/batch, internal/mutation, internal/provider,
    internal/metrics, internal/output

ERROR HANDLING:
  - Provider failures are absorbed by the provider (fallback).
  - Blocked tasks: log and continue.
  - Budget overage or context cancellation: stop, report, return the error.

IMPLEMENTATION RULES:
  - Strictly sequential. One Runner per run; it owns its ledger and trace.
  - No backward phase transitions.

USAGE:
  r := engine.New(cfg, provider.NewLocal())
  report, err := r.Run(ctx)

RELATED FILES:
  - internal/engine/loader.go
  - internal/engine/sweep.go
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/daryltucker/donkey-runner/internal/batch"
	"github.com/daryltucker/donkey-runner/internal/budget"
	"github.com/daryltucker/donkey-runner/internal/config"
	"github.com/daryltucker/donkey-runner/internal/metrics"
	"github.com/daryltucker/donkey-runner/internal/model"
	"github.com/daryltucker/donkey-runner/internal/mutation"
	"github.com/daryltucker/donkey-runner/internal/output"
	"github.com/daryltucker/donkey-runner/internal/provider"
	"github.com/daryltucker/donkey-runner/internal/tokens"
)

// ErrAlreadyRun is returned when a Runner is reused.
var ErrAlreadyRun = errors.New("runner already used")

// Runner executes a single run.
type Runner struct {
	cfg       *config.Config
	domain    string
	provider  provider.Provider
	mutations *mutation.Engine
	metrics   *metrics.Collector
	now       func() time.Time

	phase  model.Phase
	ledger *budget.Ledger
	trace  []model.TraceEntry

	providerTokens int
	fallbacks      int
}

// Option customizes a Runner.
type Option func(*Runner)

// WithDomain overrides the configured domain profile.
func WithDomain(domain string) Option {
	return func(r *Runner) {
		if domain != "" {
			r.domain = domain
		}
	}
}

// WithMutations replaces the default rule set. The engine must not be shared
// with another Runner.
func WithMutations(e *mutation.Engine) Option {
	return func(r *Runner) { r.mutations = e }
}

// WithMutationFactory builds a fresh rule engine for the run. Sweep needs this
// form, since an Engine holds one run's mutation log.
func WithMutationFactory(newEngine func() *mutation.Engine) Option {
	return func(r *Runner) { r.mutations = newEngine() }
}

// WithMetrics records run metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Runner) { r.metrics = c }
}

// WithClock sets the trace timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a Runner. cfg is treated as read-only.
func New(cfg *config.Config, p provider.Provider, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg,
		domain:   cfg.DomainProfile,
		provider: p,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.mutations == nil {
		r.mutations = mutation.NewDefault()
	}
	r.ledger = budget.NewLedger(cfg.BudgetTokens, cfg.AdmissionBuffer)
	return r
}

// Domain is the domain this runner executes.
func (r *Runner) Domain() string { return r.domain }

// Phase is the current state of the run.
func (r *Runner) Phase() model.Phase { return r.phase }

// Run loads the domain's tasks from the configured tasks directory and executes them.
func (r *Runner) Run(ctx context.Context) (*model.Report, error) {
	if r.phase != "" {
		return nil, ErrAlreadyRun
	}
	r.setPhase(model.PhaseLoading)

	dir := DomainDir(r.cfg.TasksDir, r.domain)
	res, err := LoadTasks(dir)
	if err != nil {
		return nil, err
	}
	output.Logger.Info("Loaded tasks", "domain", r.domain, "count", len(res.Tasks), "skipped", len(res.Skipped))
	return r.execute(ctx, res.Tasks, res.Skipped)
}

// RunTasks executes tasks supplied by the caller. Task ids must be unique.
func (r *Runner) RunTasks(ctx context.Context, tasks []model.Task) (*model.Report, error) {
	if r.phase != "" {
		return nil, ErrAlreadyRun
	}
	r.setPhase(model.PhaseLoading)

	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if err := ValidateTask(t); err != nil {
			return nil, fmt.Errorf("task %q: %w", t.ID, err)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("duplicate task id %q", t.ID)
		}
		seen[t.ID] = true
	}
	return r.execute(ctx, tasks, nil)
}

func (r *Runner) execute(ctx context.Context, tasks []model.Task, skipped []model.LoadSkip) (*model.Report, error) {
	started := r.now()
	report := &model.Report{
		RunID:       uuid.NewString(),
		Domain:      r.domain,
		StartedAt:   started,
		TaskCount:   len(tasks),
		LoadSkipped: skipped,
	}

	output.Logger.Info("Donkey starting",
		"run", report.RunID,
		"domain", r.domain,
		"budget", r.cfg.BudgetTokens,
		"batch_optimizer", r.cfg.BatchOptimizerEnabled,
		"provider", r.provider.Name(),
	)
	if r.metrics != nil {
		r.metrics.RunStarted(r.domain, r.cfg.BudgetTokens)
	}

	r.setPhase(model.PhaseMutating)
	mutated := r.mutations.MutateAll(tasks, r.domain)
	report.Mutations = r.mutations.Records()
	if r.metrics != nil {
		for _, m := range report.Mutations {
			r.metrics.MutationApplied(r.domain, m.Mutation)
		}
	}

	r.setPhase(model.PhaseBatching)
	cost := tokens.WithAllowance(r.cfg.ResponseAllowance)
	var batches []model.Batch
	if r.cfg.BatchOptimizerEnabled {
		batches = batch.Plan(mutated, cost, r.cfg.MaxBatchTokens)
		output.Logger.Info("Created batches", "count", len(batches), "max_batch_tokens", r.cfg.MaxBatchTokens)
	} else {
		batches = batch.Singletons(mutated, cost)
	}
	report.BatchCount = len(batches)

	r.setPhase(model.PhaseExecuting)
	runErr := r.executeBatches(ctx, batches)
	if runErr != nil {
		report.Fatal = runErr.Error()
		output.Logger.Error("Run aborted", "run", report.RunID, "error", runErr)
	}

	r.setPhase(model.PhaseReporting)
	report.Trace = append([]model.TraceEntry(nil), r.trace...)
	report.Summary = r.ledger.Summary()
	report.ProviderTokens = r.providerTokens
	report.Fallbacks = r.fallbacks
	report.Elapsed = r.now().Sub(started)

	r.setPhase(model.PhaseDone)
	report.Phase = r.phase

	output.Logger.Info("Run finished",
		"run", report.RunID,
		"executed", len(report.Trace),
		"blocked", len(report.Summary.BlockedTasks),
		"used", report.Summary.Used,
		"remaining", report.Summary.Remaining,
	)
	return report, runErr
}

func (r *Runner) executeBatches(ctx context.Context, batches []model.Batch) error {
	for _, b := range batches {
		output.Logger.Info("Processing batch", "batch", b.Index+1, "of", len(batches), "tasks", len(b.Tasks))

		for _, task := range b.Tasks {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("run interrupted: %w", err)
			}

			if !r.ledger.Admit(task) {
				output.Logger.Warn("Task blocked - would exceed budget",
					"task", task.ID,
					"estimated", r.ledger.AdmissionCost(task),
					"remaining", r.ledger.Remaining(),
				)
				if r.metrics != nil {
					r.metrics.TaskBlocked(r.domain)
				}
				continue
			}

			if err := r.executeTask(ctx, b.Index, task); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Runner) executeTask(ctx context.Context, batchIndex int, task model.Task) error {
	maxTokens := task.MaxTokens
	if maxTokens <= 0 {
		maxTokens = r.cfg.MaxTokens
	}

	c := r.provider.Complete(ctx, task.Prompt, maxTokens)
	r.providerTokens += c.TotalTokens
	if c.Fallback {
		r.fallbacks++
	}
	if r.metrics != nil {
		r.metrics.TokensConsumed(r.domain, c.TotalTokens, c.Fallback)
	}

	if err := r.ledger.Consume(c.TotalTokens); err != nil {
		return fmt.Errorf("task %s: %w", task.ID, err)
	}

	entry := model.TraceEntry{
		Timestamp:       r.now(),
		TaskID:          task.ID,
		Domain:          r.domain,
		Batch:           batchIndex,
		EstimatedTokens: r.ledger.AdmissionCost(task),
		PromptTokens:    c.PromptTokens,
		ResponseTokens:  c.ResponseTokens,
		TotalTokens:     c.TotalTokens,
		ResponseText:    preview(c.Text, r.cfg.ResponsePreviewChars),
		Mutated:         r.mutations.Mutated(task.ID),
		Fallback:        c.Fallback,
	}
	r.trace = append(r.trace, entry)

	if r.metrics != nil {
		r.metrics.TaskExecuted(r.domain, r.ledger.Remaining())
	}
	output.Logger.Info("Task executed", "task", task.ID, "tokens", c.TotalTokens, "used", r.ledger.Used())
	return nil
}

func (r *Runner) setPhase(p model.Phase) {
	r.phase = p
	output.Logger.Debug("Phase", "domain", r.domain, "phase", p)
}

// preview truncates text to n runes; n <= 0 keeps everything.
func preview(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n])
}
