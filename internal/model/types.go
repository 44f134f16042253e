/*
PURPOSE:
  Defines the core data structures used throughout Donkey Runner.
  These models represent tasks, mutations, batches, the execution trace and
  the budget summary produced by a run.

REQUIREMENTS:
  User-specified:
  - Tasks are immutable inputs: id, prompt, optional max_tokens, free-form domain fields.
  - Record per-task token usage (prompt/response/total) in an append-only trace.
  - Report budget, used, remaining and blocked tasks at the end of a run.

  Implementation-discovered:
  - Task files carry arbitrary extra keys (e.g. "context" for RAG); keep them in Fields.
  - Need JSON tags for JSONL export and downstream analysis.

ARCHITECTURE INTEGRATION:
  - Used by: every internal package.
  - Shared across boundaries.

ERROR HANDLING:
  - Task.UnmarshalJSON returns decode errors; the loader decides whether to skip.

IMPLEMENTATION RULES:
  - Keep structs simple and public.
  - Tasks are values; WithPrompt returns a copy.

USAGE:
  t := model.Task{ID: "t1", Prompt: "prove X"}

SELF-HEALING INSTRUCTIONS:
  - If new trace metrics are needed, add the field and update the CSV/JSON/SQLite writers.

RELATED FILES:
  - internal/output/csv.go
  - internal/output/json.go
  - internal/store/sqlite.go

MAINTENANCE:
  - Update when adding new metrics to capture.
*/

package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Task is one unit of work submitted for completion.
type Task struct {
	ID        string `json:"id" validate:"required"`
	Prompt    string `json:"prompt" validate:"required"`
	MaxTokens int    `json:"max_tokens,omitempty" validate:"gte=0"`
	// Fields holds domain-specific keys such as "context".
	Fields map[string]any `json:"-"`
}

// HasField reports whether the task carries the named domain field.
func (t Task) HasField(name string) bool {
	_, ok := t.Fields[name]
	return ok
}

// Field returns a domain field rendered as a string, or "" if absent.
func (t Task) Field(name string) string {
	v, ok := t.Fields[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// WithPrompt returns a copy of the task with a different prompt.
// The Fields map is shared; it is never written after loading.
func (t Task) WithPrompt(prompt string) Task {
	t.Prompt = prompt
	return t
}

// UnmarshalJSON decodes the known keys and keeps the rest in Fields.
func (t *Task) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var known struct {
		ID        string `json:"id"`
		Prompt    string `json:"prompt"`
		MaxTokens int    `json:"max_tokens"`
	}
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	t.ID = known.ID
	t.Prompt = known.Prompt
	t.MaxTokens = known.MaxTokens
	t.Fields = nil

	for k, v := range raw {
		switch k {
		case "id", "prompt", "max_tokens":
			continue
		}
		if t.Fields == nil {
			t.Fields = make(map[string]any)
		}
		t.Fields[k] = v
	}
	return nil
}

// MarshalJSON writes the known keys and the domain fields as one flat object.
func (t Task) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(t.Fields)+3)
	for k, v := range t.Fields {
		out[k] = v
	}
	out["id"] = t.ID
	out["prompt"] = t.Prompt
	if t.MaxTokens > 0 {
		out["max_tokens"] = t.MaxTokens
	}
	return json.Marshal(out)
}

// FieldNames returns the domain field keys in sorted order.
func (t Task) FieldNames() []string {
	names := make([]string, 0, len(t.Fields))
	for k := range t.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// MutationRecord is appended once per rewrite actually applied.
type MutationRecord struct {
	TaskID         string `json:"task_id"`
	Mutation       string `json:"mutation"`
	OriginalPrompt string `json:"original"`
	MutatedPrompt  string `json:"mutated"`
}

// Batch is an ordered group of tasks scheduled together.
type Batch struct {
	Index int    `json:"index"`
	Tasks []Task `json:"tasks"`
	// Cost is the summed estimated cost (estimate + response allowance).
	Cost int `json:"cost"`
}

// Completion is the result of one provider call.
type Completion struct {
	Text           string `json:"text"`
	PromptTokens   int    `json:"prompt_tokens"`
	ResponseTokens int    `json:"response_tokens"`
	TotalTokens    int    `json:"total_tokens"`
	// Fallback is set when a remote call failed and the local stand-in answered.
	Fallback bool   `json:"fallback,omitempty"`
	Warning  string `json:"warning,omitempty"`
}

// TraceEntry records one successfully executed task.
type TraceEntry struct {
	Timestamp       time.Time `json:"timestamp"`
	TaskID          string    `json:"task_id"`
	Domain          string    `json:"domain"`
	Batch           int       `json:"batch"`
	EstimatedTokens int       `json:"estimated_tokens"`
	PromptTokens    int       `json:"prompt_tokens"`
	ResponseTokens  int       `json:"response_tokens"`
	TotalTokens     int       `json:"total_tokens"`
	ResponseText    string    `json:"response"`
	Mutated         bool      `json:"mutated"`
	Fallback        bool      `json:"fallback,omitempty"`
}

// BlockedTask is recorded when a task fails the admission check.
type BlockedTask struct {
	TaskID          string `json:"task_id"`
	EstimatedTokens int    `json:"estimated_tokens"`
	BudgetRemaining int    `json:"budget_remaining"`
}

// Shortfall is how many tokens the task was short of admission.
func (b BlockedTask) Shortfall() int {
	return b.EstimatedTokens - b.BudgetRemaining
}

// BudgetSummary is the ledger state read at the end of a run.
type BudgetSummary struct {
	Budget       int           `json:"budget"`
	Used         int           `json:"used"`
	Remaining    int           `json:"remaining"`
	BlockedTasks []BlockedTask `json:"blocked_tasks"`
}

// LoadSkip describes a task file that was skipped during loading.
type LoadSkip struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// Phase is the orchestrator state.
type Phase string

const (
	PhaseLoading   Phase = "LOADING"
	PhaseMutating  Phase = "MUTATING"
	PhaseBatching  Phase = "BATCHING"
	PhaseExecuting Phase = "EXECUTING"
	PhaseReporting Phase = "REPORTING"
	PhaseDone      Phase = "DONE"
)

// Report is everything a run produces for presentation and analysis.
type Report struct {
	RunID     string        `json:"run_id"`
	Domain    string        `json:"domain"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	Phase     Phase         `json:"phase"`

	TaskCount  int `json:"task_count"`
	BatchCount int `json:"batch_count"`

	Trace     []TraceEntry     `json:"trace"`
	Mutations []MutationRecord `json:"mutations"`
	Summary   BudgetSummary    `json:"summary"`

	// ProviderTokens is the operator-facing tally of every provider call,
	// accumulated from returned usage rather than read from the provider.
	ProviderTokens int        `json:"provider_tokens"`
	Fallbacks      int        `json:"fallbacks"`
	LoadSkipped    []LoadSkip `json:"load_skipped,omitempty"`

	// Fatal holds the abort reason when the run stopped on a budget overage.
	Fatal string `json:"fatal,omitempty"`
}
