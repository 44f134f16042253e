/*
PURPOSE:
  Exposes run counters in Prometheus format.

  Every collector owns its registry, so tests and separate invocations never
  share series. Series carry a domain label; one collector can serve every run
  of a sweep. Metrics:
    - donkey_tokens_consumed_total: tokens charged to the ledger, including a call that overran the budget
    - donkey_tasks_executed_total: tasks that produced a trace entry
    - donkey_tasks_blocked_total: tasks rejected by the admission check
    - donkey_mutations_applied_total: prompt rewrites
    - donkey_provider_fallbacks_total: remote failures answered locally
    - donkey_budget_tokens / donkey_budget_remaining_tokens: ledger gauges
    - donkey_task_tokens: histogram of per-task total tokens

ARCHITECTURE INTEGRATION:
  - Used by: internal/engine (Runner), internal/cli (run, sweep)
  - Dependencies: github.com/prometheus/client_golang

ERROR HANDLING:
  - WriteTextfile returns wrapped write errors.

RELATED FILES:
  - internal/engine/runner.go
*/

package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "donkey"

// Collector records metrics for runs.
type Collector struct {
	registry *prometheus.Registry

	tokensConsumed *prometheus.CounterVec
	tasksExecuted  *prometheus.CounterVec
	tasksBlocked   *prometheus.CounterVec
	mutations      *prometheus.CounterVec
	fallbacks      *prometheus.CounterVec
	budget         *prometheus.GaugeVec
	remaining      *prometheus.GaugeVec
	taskTokens     *prometheus.HistogramVec
}

// NewCollector creates and registers the run metrics. If registry is nil a
// fresh one is created.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	labels := []string{"domain"}
	c := &Collector{
		registry: registry,
		tokensConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tokens_consumed_total",
			Help: "Tokens charged to the budget ledger",
		}, labels),
		tasksExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_executed_total",
			Help: "Tasks executed and traced",
		}, labels),
		tasksBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_blocked_total",
			Help: "Tasks rejected by the admission check",
		}, labels),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "mutations_applied_total",
			Help: "Prompt mutations applied",
		}, []string{"domain", "mutation"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "provider_fallbacks_total",
			Help: "Remote completions that fell back to the local provider",
		}, labels),
		budget: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "budget_tokens",
			Help: "Configured token budget",
		}, labels),
		remaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "budget_remaining_tokens",
			Help: "Budget left after the last consumption",
		}, labels),
		taskTokens: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "task_tokens",
			Help:    "Total tokens per executed task",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000},
		}, labels),
	}

	registry.MustRegister(
		c.tokensConsumed, c.tasksExecuted, c.tasksBlocked, c.mutations,
		c.fallbacks, c.budget, c.remaining, c.taskTokens,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RunStarted sets the budget gauges.
func (c *Collector) RunStarted(domain string, budget int) {
	c.budget.WithLabelValues(domain).Set(float64(budget))
	c.remaining.WithLabelValues(domain).Set(float64(budget))
}

// TokensConsumed records a completion charged to the ledger. It is called for
// every provider call, including one that overruns the budget.
func (c *Collector) TokensConsumed(domain string, totalTokens int, fallback bool) {
	c.tokensConsumed.WithLabelValues(domain).Add(float64(totalTokens))
	c.taskTokens.WithLabelValues(domain).Observe(float64(totalTokens))
	if fallback {
		c.fallbacks.WithLabelValues(domain).Inc()
	}
}

// TaskExecuted records a task that made it into the trace.
func (c *Collector) TaskExecuted(domain string, remaining int) {
	c.tasksExecuted.WithLabelValues(domain).Inc()
	c.remaining.WithLabelValues(domain).Set(float64(remaining))
}

// TaskBlocked records an admission rejection.
func (c *Collector) TaskBlocked(domain string) {
	c.tasksBlocked.WithLabelValues(domain).Inc()
}

// MutationApplied records a rewrite.
func (c *Collector) MutationApplied(domain, mutation string) {
	c.mutations.WithLabelValues(domain, mutation).Inc()
}

// WriteTextfile writes all metrics in the node-exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
