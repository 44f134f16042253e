package store

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/donkey-runner/internal/model"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func report(id string, started time.Time) *model.Report {
	return &model.Report{
		RunID:     id,
		Domain:    "math",
		StartedAt: started,
		Elapsed:   2 * time.Second,
		Phase:     model.PhaseDone,
		TaskCount: 3, BatchCount: 2,
		Trace: []model.TraceEntry{
			{Timestamp: started, TaskID: "t1", Domain: "math", Batch: 0, EstimatedTokens: 160, PromptTokens: 10, ResponseTokens: 20, TotalTokens: 30, ResponseText: "a", Mutated: true},
			{Timestamp: started.Add(time.Second), TaskID: "t2", Domain: "math", Batch: 1, EstimatedTokens: 155, PromptTokens: 5, ResponseTokens: 5, TotalTokens: 10, ResponseText: "b", Fallback: true},
		},
		Mutations: []model.MutationRecord{{TaskID: "t1", Mutation: "reasoning_chain", OriginalPrompt: "prove", MutatedPrompt: "Step by step, prove Show your reasoning."}},
		Summary: model.BudgetSummary{
			Budget: 100, Used: 40, Remaining: 60,
			BlockedTasks: []model.BlockedTask{{TaskID: "t3", EstimatedTokens: 400, BudgetRemaining: 60}},
		},
		ProviderTokens: 40,
		Fallbacks:      1,
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	started := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveReport(ctx, report("run-a", started)))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-a", runs[0].RunID)
	assert.Equal(t, 40, runs[0].Used)
	assert.Equal(t, 60, runs[0].Remaining)
	assert.Equal(t, model.PhaseDone, runs[0].Phase)
	assert.Equal(t, 2*time.Second, runs[0].Elapsed)
	assert.True(t, started.Equal(runs[0].StartedAt))

	trace, err := s.LoadTrace(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, trace, 2)
	assert.Equal(t, "t1", trace[0].TaskID)
	assert.True(t, trace[0].Mutated)
	assert.False(t, trace[0].Fallback)
	assert.Equal(t, "t2", trace[1].TaskID)
	assert.True(t, trace[1].Fallback)
	assert.Equal(t, 1, trace[1].Batch)

	blocked, err := s.LoadBlocked(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, []model.BlockedTask{{TaskID: "t3", EstimatedTokens: 400, BudgetRemaining: 60}}, blocked)
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveReport(ctx, report("old", base)))
	require.NoError(t, s.SaveReport(ctx, report("new", base.Add(time.Hour))))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].RunID)
	assert.Equal(t, "old", runs[1].RunID)
}

func TestStore_DuplicateRunRejected(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	r := report("dup", time.Now())

	require.NoError(t, s.SaveReport(ctx, r))
	assert.Error(t, s.SaveReport(ctx, r))

	trace, err := s.LoadTrace(ctx, "dup")
	require.NoError(t, err)
	assert.Len(t, trace, 2, "failed save must not leave partial rows")
}

func TestStore_UnknownRun(t *testing.T) {
	s := newStore(t)
	trace, err := s.LoadTrace(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, trace)
}

func TestDSN_KeepsExistingQuery(t *testing.T) {
	for _, path := range []string{"trace.db", "file:trace.db?cache=shared"} {
		d := dsn(path)
		require.Equal(t, 1, strings.Count(d, "?"), d)

		name, query, _ := strings.Cut(d, "?")
		assert.Equal(t, strings.SplitN(path, "?", 2)[0], name)
		q, err := url.ParseQuery(query)
		require.NoError(t, err)
		assert.Equal(t, []string{"foreign_keys(1)", "journal_mode(WAL)"}, q["_pragma"])
	}

	q, err := url.ParseQuery(strings.SplitN(dsn("file:trace.db?cache=shared"), "?", 2)[1])
	require.NoError(t, err)
	assert.Equal(t, "shared", q.Get("cache"))
}
