package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/daryltucker/donkey-runner/internal/config"
	"github.com/daryltucker/donkey-runner/internal/model"
)

// scriptedProvider returns a fixed total per call, split evenly, and records prompts.
type scriptedProvider struct {
	mu       sync.Mutex
	totals   map[string]int
	fallback bool
	prompts  []string
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, prompt string, _ int) model.Completion {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)

	total := 50
	for key, n := range p.totals {
		if strings.Contains(prompt, key) {
			total = n
		}
	}
	return model.Completion{
		Text:           "answer to " + prompt,
		PromptTokens:   total / 2,
		ResponseTokens: total - total/2,
		TotalTokens:    total,
		Fallback:       p.fallback,
	}
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

func testConfig(budget int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.BudgetTokens = budget
	cfg.ResponseAllowance = 100
	cfg.AdmissionBuffer = 100
	cfg.MaxBatchTokens = 1000
	return cfg
}

func fixedClock() func() time.Time {
	t := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

// promptOfEstimate returns a prompt tagged with key that estimates to exactly n tokens.
func promptOfEstimate(key string, n int) string {
	return key + strings.Repeat("x", n*4-len(key))
}

func writeTask(t *testing.T, dir, name string, task map[string]any) {
	t.Helper()
	data, err := json.Marshal(task)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}
