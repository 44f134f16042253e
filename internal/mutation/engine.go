/*
PURPOSE:
  Rewrites task prompts before execution using rules registered per domain.

REQUIREMENTS:
  User-specified:
  - Rules for a domain are tried in registration order; the first that applies wins.
  - Every applied rewrite is logged; the log is for reporting only.

  Implementation-discovered:
  - Mutated(id) lets the trace flag rewritten tasks without scanning the log.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (MUTATING phase), internal/cli (rules)

ERROR HANDLING:
  - None. Rules report "does not apply" with false.

IMPLEMENTATION RULES:
  - Rules must not modify their argument. Tasks are values.
  - One Engine per run; it is not safe for concurrent use.

USAGE:
  e := mutation.NewDefault()
  t = e.Mutate(t, "math")

RELATED FILES:
  - internal/model/types.go
*/

package mutation

import (
	"sort"
	"strings"

	"github.com/daryltucker/donkey-runner/internal/model"
	"github.com/daryltucker/donkey-runner/internal/output"
)

// RuleFunc returns the rewritten task and true, or false when it does not apply.
// It must not modify its argument.
type RuleFunc func(model.Task) (model.Task, bool)

// Rule is a named rewrite.
type Rule struct {
	Name  string
	Apply RuleFunc
}

// Engine holds the rule registry and the log of applied mutations.
// An Engine belongs to a single run.
type Engine struct {
	rules   map[string][]Rule
	history []model.MutationRecord
	mutated map[string]bool
}

// New returns an engine with no rules.
func New() *Engine {
	return &Engine{
		rules:   make(map[string][]Rule),
		mutated: make(map[string]bool),
	}
}

// Register appends a rule for a domain.
func (e *Engine) Register(domain string, rule Rule) {
	e.rules[domain] = append(e.rules[domain], rule)
}

// Mutate applies the first matching rule for the domain. Tasks that match
// nothing are returned unchanged and leave no record.
func (e *Engine) Mutate(task model.Task, domain string) model.Task {
	for _, rule := range e.rules[domain] {
		mutated, ok := rule.Apply(task)
		if !ok {
			continue
		}
		e.history = append(e.history, model.MutationRecord{
			TaskID:         task.ID,
			Mutation:       rule.Name,
			OriginalPrompt: task.Prompt,
			MutatedPrompt:  mutated.Prompt,
		})
		e.mutated[task.ID] = true
		output.Logger.Debug("Mutation applied", "task", task.ID, "mutation", rule.Name)
		return mutated
	}
	return task
}

// MutateAll mutates tasks in order.
func (e *Engine) MutateAll(tasks []model.Task, domain string) []model.Task {
	out := make([]model.Task, len(tasks))
	for i, t := range tasks {
		out[i] = e.Mutate(t, domain)
	}
	return out
}

// Records returns a copy of the mutation log.
func (e *Engine) Records() []model.MutationRecord {
	out := make([]model.MutationRecord, len(e.history))
	copy(out, e.history)
	return out
}

// Mutated reports whether any rule fired for the task id.
func (e *Engine) Mutated(taskID string) bool {
	return e.mutated[taskID]
}

// Domains lists domains with registered rules, sorted.
func (e *Engine) Domains() []string {
	domains := make([]string, 0, len(e.rules))
	for d := range e.rules {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}

// Rules lists rule names for a domain in application order.
func (e *Engine) Rules(domain string) []string {
	names := make([]string, 0, len(e.rules[domain]))
	for _, r := range e.rules[domain] {
		names = append(names, r.Name)
	}
	return names
}

// ReasoningChain asks for step-by-step reasoning on prompts containing "prove".
var ReasoningChain = Rule{
	Name: "reasoning_chain",
	Apply: func(t model.Task) (model.Task, bool) {
		if !strings.Contains(strings.ToLower(t.Prompt), "prove") {
			return t, false
		}
		return t.WithPrompt("Step by step, " + t.Prompt + " Show your reasoning."), true
	},
}

// ContextPrefix points the model at the supplied context when the task has one.
var ContextPrefix = Rule{
	Name: "context_prefix",
	Apply: func(t model.Task) (model.Task, bool) {
		if !t.HasField("context") {
			return t, false
		}
		return t.WithPrompt("Based on the provided context, " + t.Prompt), true
	},
}

// NewDefault returns an engine with the built-in math and rag rules.
func NewDefault() *Engine {
	e := New()
	e.Register("math", ReasoningChain)
	e.Register("rag", ContextPrefix)
	return e
}
