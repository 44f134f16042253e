package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/donkey-runner/internal/budget"
	"github.com/daryltucker/donkey-runner/internal/metrics"
	"github.com/daryltucker/donkey-runner/internal/model"
	"github.com/daryltucker/donkey-runner/internal/mutation"
	"github.com/daryltucker/donkey-runner/internal/provider"
	"github.com/daryltucker/donkey-runner/internal/tokens"
)

func traceIDs(r *model.Report) []string {
	out := make([]string, len(r.Trace))
	for i, e := range r.Trace {
		out[i] = e.TaskID
	}
	return out
}

func TestRunTasks_AdmitAtBoundary(t *testing.T) {
	p := &scriptedProvider{totals: map[string]int{"BIG": 950}}
	r := New(testConfig(1000), p, WithDomain("poetry"), WithClock(fixedClock()))
	task := model.Task{ID: "t1", Prompt: promptOfEstimate("BIG", 900)}
	require.Equal(t, 900, tokens.Estimate(task.Prompt))

	report, err := r.RunTasks(context.Background(), []model.Task{task})

	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, traceIDs(report))
	assert.Equal(t, 950, report.Summary.Used)
	assert.Equal(t, 50, report.Summary.Remaining)
	assert.Empty(t, report.Summary.BlockedTasks)
	assert.Equal(t, 1000, report.Trace[0].EstimatedTokens)
	assert.Equal(t, model.PhaseDone, report.Phase)
}

func TestRunTasks_SecondTaskBlocked(t *testing.T) {
	p := &scriptedProvider{totals: map[string]int{"T1": 350, "T2": 350}}
	r := New(testConfig(500), p, WithDomain("poetry"))
	tasks := []model.Task{
		{ID: "t1", Prompt: promptOfEstimate("T1", 300)},
		{ID: "t2", Prompt: promptOfEstimate("T2", 300)},
	}

	report, err := r.RunTasks(context.Background(), tasks)

	require.NoError(t, err, "blocking is not fatal")
	assert.Equal(t, []string{"t1"}, traceIDs(report))
	assert.Equal(t, 350, report.Summary.Used)
	require.Len(t, report.Summary.BlockedTasks, 1)
	assert.Equal(t, model.BlockedTask{TaskID: "t2", EstimatedTokens: 400, BudgetRemaining: 150}, report.Summary.BlockedTasks[0])
	assert.Equal(t, 1, p.calls(), "blocked task never reaches the provider")
}

func TestRunTasks_BlockedTaskDoesNotStopLaterTasks(t *testing.T) {
	p := &scriptedProvider{totals: map[string]int{"A": 300, "C": 20}}
	r := New(testConfig(500), p, WithDomain("poetry"))
	tasks := []model.Task{
		{ID: "a", Prompt: promptOfEstimate("A", 200)},
		{ID: "b", Prompt: promptOfEstimate("B", 400)},
		{ID: "c", Prompt: promptOfEstimate("C", 10)},
	}

	report, err := r.RunTasks(context.Background(), tasks)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, traceIDs(report))
	require.Len(t, report.Summary.BlockedTasks, 1)
	assert.Equal(t, "b", report.Summary.BlockedTasks[0].TaskID)
	assert.Equal(t, 320, report.Summary.Used)
}

func TestRunTasks_OverageIsFatal(t *testing.T) {
	p := &scriptedProvider{totals: map[string]int{"OVER": 600}}
	r := New(testConfig(500), p, WithDomain("poetry"))
	tasks := []model.Task{
		{ID: "over", Prompt: promptOfEstimate("OVER", 100)},
		{ID: "after", Prompt: promptOfEstimate("AFTER", 10)},
	}

	report, err := r.RunTasks(context.Background(), tasks)

	require.Error(t, err)
	assert.True(t, errors.Is(err, budget.ErrBudgetExceeded))
	var overage *budget.OverageError
	require.True(t, errors.As(err, &overage))
	assert.Equal(t, 100, overage.Overage())

	require.NotNil(t, report, "report is produced on abort")
	assert.Equal(t, model.PhaseDone, report.Phase)
	assert.Contains(t, report.Fatal, "budget exceeded")
	assert.Empty(t, report.Trace)
	assert.Equal(t, 600, report.Summary.Used)
	assert.Equal(t, 1, p.calls(), "run stops immediately")
}

func TestRunTasks_Batching(t *testing.T) {
	p := &scriptedProvider{}
	r := New(testConfig(100000), p, WithDomain("poetry"))
	tasks := []model.Task{
		{ID: "t1", Prompt: promptOfEstimate("1", 300)},
		{ID: "t2", Prompt: promptOfEstimate("2", 300)},
		{ID: "t3", Prompt: promptOfEstimate("3", 300)},
	}

	report, err := r.RunTasks(context.Background(), tasks)

	require.NoError(t, err)
	assert.Equal(t, 2, report.BatchCount)
	assert.Equal(t, []string{"t1", "t2", "t3"}, traceIDs(report))
	assert.Equal(t, []int{0, 0, 1}, []int{report.Trace[0].Batch, report.Trace[1].Batch, report.Trace[2].Batch})
}

func TestRunTasks_OptimizerDisabled(t *testing.T) {
	cfg := testConfig(100000)
	cfg.BatchOptimizerEnabled = false
	r := New(cfg, &scriptedProvider{}, WithDomain("poetry"))
	tasks := []model.Task{{ID: "a", Prompt: "x"}, {ID: "b", Prompt: "y"}, {ID: "c", Prompt: "z"}}

	report, err := r.RunTasks(context.Background(), tasks)

	require.NoError(t, err)
	assert.Equal(t, 3, report.BatchCount)
	assert.Equal(t, []string{"a", "b", "c"}, traceIDs(report))
}

func TestRunTasks_MutationsFlowToProviderAndTrace(t *testing.T) {
	p := &scriptedProvider{}
	r := New(testConfig(10000), p, WithDomain("math"))
	tasks := []model.Task{
		{ID: "m1", Prompt: "Prove that the sum of two even numbers is even."},
		{ID: "m2", Prompt: "What is 2+2?"},
	}

	report, err := r.RunTasks(context.Background(), tasks)

	require.NoError(t, err)
	require.Len(t, report.Mutations, 1)
	assert.Equal(t, "m1", report.Mutations[0].TaskID)
	assert.Equal(t, "reasoning_chain", report.Mutations[0].Mutation)
	assert.True(t, report.Trace[0].Mutated)
	assert.False(t, report.Trace[1].Mutated)
	assert.Equal(t, "Step by step, Prove that the sum of two even numbers is even. Show your reasoning.", p.prompts[0])
	assert.Equal(t, "What is 2+2?", p.prompts[1])
}

func TestRunTasks_CustomMutations(t *testing.T) {
	e := mutation.New()
	e.Register("poetry", mutation.Rule{Name: "rhyme", Apply: func(t model.Task) (model.Task, bool) {
		return t.WithPrompt(t.Prompt + " (in rhyme)"), true
	}})
	p := &scriptedProvider{}
	r := New(testConfig(10000), p, WithDomain("poetry"), WithMutations(e))

	report, err := r.RunTasks(context.Background(), []model.Task{{ID: "p", Prompt: "a sonnet"}})

	require.NoError(t, err)
	assert.Equal(t, "a sonnet (in rhyme)", p.prompts[0])
	assert.True(t, report.Trace[0].Mutated)
}

func TestRunTasks_TraceCompleteness(t *testing.T) {
	p := &scriptedProvider{totals: map[string]int{"K": 120}}
	r := New(testConfig(700), p, WithDomain("poetry"))
	var tasks []model.Task
	for i, est := range []int{100, 500, 50, 300, 20, 250, 10} {
		id := string(rune('a' + i))
		tasks = append(tasks, model.Task{ID: id, Prompt: promptOfEstimate("K"+id, est)})
	}

	report, err := r.RunTasks(context.Background(), tasks)
	require.NoError(t, err)

	executed := map[string]bool{}
	for _, e := range report.Trace {
		executed[e.TaskID] = true
	}
	blocked := map[string]bool{}
	for _, b := range report.Summary.BlockedTasks {
		blocked[b.TaskID] = true
		assert.False(t, executed[b.TaskID], "blocked task %s must not be traced", b.TaskID)
	}
	for _, task := range tasks {
		assert.True(t, executed[task.ID] != blocked[task.ID], "task %s is either executed or blocked", task.ID)
	}
	assert.LessOrEqual(t, report.Summary.Used, report.Summary.Budget)

	sum := 0
	for _, e := range report.Trace {
		sum += e.TotalTokens
	}
	assert.Equal(t, report.Summary.Used, sum)
}

func TestRunTasks_ProviderTallyAndFallbacks(t *testing.T) {
	p := &scriptedProvider{fallback: true}
	r := New(testConfig(10000), p, WithDomain("poetry"))

	report, err := r.RunTasks(context.Background(), []model.Task{{ID: "a", Prompt: "x"}, {ID: "b", Prompt: "y"}})

	require.NoError(t, err)
	assert.Equal(t, 100, report.ProviderTokens)
	assert.Equal(t, 2, report.Fallbacks)
	assert.True(t, report.Trace[0].Fallback)
}

func TestRunTasks_ResponsePreview(t *testing.T) {
	cfg := testConfig(10000)
	cfg.ResponsePreviewChars = 5
	r := New(cfg, &scriptedProvider{}, WithDomain("poetry"))

	report, err := r.RunTasks(context.Background(), []model.Task{{ID: "a", Prompt: "héllo"}})

	require.NoError(t, err)
	assert.Equal(t, "answe", report.Trace[0].ResponseText)
	assert.Equal(t, "héllo wörld", preview("héllo wörld", 0))
	assert.Equal(t, "hé", preview("héllo", 2))
}

func TestRunTasks_RejectsBadInput(t *testing.T) {
	r := New(testConfig(1000), &scriptedProvider{})
	_, err := r.RunTasks(context.Background(), []model.Task{{ID: "a", Prompt: "x"}, {ID: "a", Prompt: "y"}})
	assert.ErrorContains(t, err, "duplicate task id")

	r = New(testConfig(1000), &scriptedProvider{})
	_, err = r.RunTasks(context.Background(), []model.Task{{ID: "a"}})
	assert.ErrorContains(t, err, "invalid task")
}

func TestRunner_SingleUse(t *testing.T) {
	r := New(testConfig(1000), &scriptedProvider{})
	_, err := r.RunTasks(context.Background(), nil)
	require.NoError(t, err)

	_, err = r.RunTasks(context.Background(), nil)
	assert.ErrorIs(t, err, ErrAlreadyRun)
	_, err = r.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestRunTasks_EmptyIsNormal(t *testing.T) {
	report, err := New(testConfig(1000), &scriptedProvider{}).RunTasks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Trace)
	assert.Equal(t, 0, report.BatchCount)
	assert.Equal(t, 1000, report.Summary.Remaining)
	assert.NotEmpty(t, report.RunID)
}

func TestRunTasks_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &scriptedProvider{}

	report, err := New(testConfig(1000), p).RunTasks(ctx, []model.Task{{ID: "a", Prompt: "x"}})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotNil(t, report)
	assert.Equal(t, 0, p.calls())
}

func TestRunTasks_Metrics(t *testing.T) {
	c := metrics.NewCollector(nil)
	p := &scriptedProvider{totals: map[string]int{"T1": 350}}
	r := New(testConfig(500), p, WithDomain("math"), WithMetrics(c))
	tasks := []model.Task{
		{ID: "t1", Prompt: promptOfEstimate("T1 prove", 300)},
		{ID: "t2", Prompt: promptOfEstimate("T2", 300)},
	}

	_, err := r.RunTasks(context.Background(), tasks)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "m.prom")
	require.NoError(t, c.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `donkey_tokens_consumed_total{domain="math"} 350`)
	assert.Contains(t, text, `donkey_tasks_blocked_total{domain="math"} 1`)
	assert.Contains(t, text, `donkey_mutations_applied_total{domain="math",mutation="reasoning_chain"} 1`)
	n, err := testutil.GatherAndCount(c.Registry(), "donkey_tasks_executed_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunTasks_MetricsOnOverage(t *testing.T) {
	c := metrics.NewCollector(nil)
	p := &scriptedProvider{totals: map[string]int{"OVER": 600}, fallback: true}
	r := New(testConfig(500), p, WithDomain("poetry"), WithMetrics(c))

	report, err := r.RunTasks(context.Background(), []model.Task{{ID: "over", Prompt: promptOfEstimate("OVER", 100)}})
	require.ErrorIs(t, err, budget.ErrBudgetExceeded)
	require.Equal(t, 600, report.Summary.Used)

	path := filepath.Join(t.TempDir(), "m.prom")
	require.NoError(t, c.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `donkey_tokens_consumed_total{domain="poetry"} 600`)
	assert.Contains(t, text, `donkey_provider_fallbacks_total{domain="poetry"} 1`)
	assert.Contains(t, text, `donkey_task_tokens_count{domain="poetry"} 1`)
	assert.NotContains(t, text, "donkey_tasks_executed_total{")
}

func TestRunTasks_AdmitsNonASCIIByCharacters(t *testing.T) {
	cfg := testConfig(600)
	cfg.AdmissionBuffer = 150
	p := &scriptedProvider{totals: map[string]int{"é": 300}}
	r := New(cfg, p, WithDomain("poetry"))
	task := model.Task{ID: "u", Prompt: strings.Repeat("é", 1000)}

	report, err := r.RunTasks(context.Background(), []model.Task{task})

	require.NoError(t, err)
	assert.Empty(t, report.Summary.BlockedTasks)
	require.Len(t, report.Trace, 1)
	assert.Equal(t, 400, report.Trace[0].EstimatedTokens)
	assert.Equal(t, 300, report.Summary.Used)
}

func TestRun_FromDirectory(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "math")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	writeTask(t, dir, "task_001.json", map[string]any{"id": "math_001", "prompt": "Prove that the sum of two even numbers is even."})
	writeTask(t, dir, "task_002.json", map[string]any{"id": "math_002", "prompt": "What is the capital of France?"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "task_003.json"), []byte("garbage"), 0o644))

	cfg := testConfig(1000)
	cfg.TasksDir = root
	report, err := New(cfg, provider.NewLocal()).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "math", report.Domain)
	assert.Equal(t, 2, report.TaskCount)
	assert.Equal(t, []string{"math_001", "math_002"}, traceIDs(report))
	require.Len(t, report.LoadSkipped, 1)
	assert.True(t, strings.HasSuffix(report.LoadSkipped[0].File, "task_003.json"))
	assert.True(t, strings.HasPrefix(report.Trace[0].ResponseText, "Let n and m be even integers."))
	assert.Len(t, report.Trace[0].ResponseText, 100)
	assert.Equal(t, "The capital of France is Paris.", report.Trace[1].ResponseText)
}
