/*
PURPOSE:
  Tracks cumulative token consumption for one run against a fixed budget.

REQUIREMENTS:
  User-specified:
  - Pre-flight admission: estimate + admission buffer must fit the remaining budget,
    otherwise the task is blocked (non-fatal) and recorded.
  - Post-hoc consumption uses the provider's actual usage; going over budget is fatal.

  Implementation-discovered:
  - Admission reserves nothing; two admits in a row see the same remaining budget.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine
  - Uses: internal/tokens, internal/model

ERROR HANDLING:
  - Consume returns *OverageError (wrapping ErrBudgetExceeded). Callers must stop the run.

IMPLEMENTATION RULES:
  - used only increases; blocked is append-only.
  - One Ledger per run. It is not safe for concurrent use and does not need to be.

USAGE:
  l := budget.NewLedger(1000, 150)
  if l.Admit(task) { ...; err := l.Consume(c.TotalTokens) }
*/

package budget

import (
	"errors"
	"fmt"

	"github.com/daryltucker/donkey-runner/internal/model"
	"github.com/daryltucker/donkey-runner/internal/tokens"
)

// ErrBudgetExceeded is wrapped by every fatal consumption error.
var ErrBudgetExceeded = errors.New("budget exceeded")

// OverageError reports a consumption that pushed usage past the budget.
type OverageError struct {
	Budget    int
	Used      int
	Attempted int
}

func (e *OverageError) Error() string {
	return fmt.Sprintf("budget exceeded: used %d > budget %d (consumed %d, over by %d)",
		e.Used, e.Budget, e.Attempted, e.Overage())
}

func (e *OverageError) Unwrap() error { return ErrBudgetExceeded }

// Overage is the number of tokens used beyond the budget.
func (e *OverageError) Overage() int { return e.Used - e.Budget }

// Ledger is the budget state of a single run.
type Ledger struct {
	budget int
	buffer int
	used   int

	blocked []model.BlockedTask
}

// NewLedger creates a ledger with the given budget and admission buffer.
func NewLedger(budget, admissionBuffer int) *Ledger {
	return &Ledger{budget: budget, buffer: admissionBuffer}
}

// AdmissionCost is the conservative pre-flight cost of a task.
func (l *Ledger) AdmissionCost(task model.Task) int {
	return tokens.Estimate(task.Prompt) + l.buffer
}

// Admit reports whether the task's admission cost fits in the remaining budget.
// A rejected task is appended to the blocked list.
func (l *Ledger) Admit(task model.Task) bool {
	estimated := l.AdmissionCost(task)
	if l.used+estimated > l.budget {
		l.blocked = append(l.blocked, model.BlockedTask{
			TaskID:          task.ID,
			EstimatedTokens: estimated,
			BudgetRemaining: l.Remaining(),
		})
		return false
	}
	return true
}

// Consume records actual usage. If usage now exceeds the budget the returned
// error is fatal for the run.
func (l *Ledger) Consume(actual int) error {
	if actual < 0 {
		return fmt.Errorf("negative token consumption %d", actual)
	}
	l.used += actual
	if l.used > l.budget {
		return &OverageError{Budget: l.budget, Used: l.used, Attempted: actual}
	}
	return nil
}

// Budget returns the configured ceiling.
func (l *Ledger) Budget() int { return l.budget }

// Used returns the tokens consumed so far.
func (l *Ledger) Used() int { return l.used }

// Remaining returns budget minus used, never below zero.
func (l *Ledger) Remaining() int {
	if l.used >= l.budget {
		return 0
	}
	return l.budget - l.used
}

// Blocked returns a copy of the blocked-task list.
func (l *Ledger) Blocked() []model.BlockedTask {
	out := make([]model.BlockedTask, len(l.blocked))
	copy(out, l.blocked)
	return out
}

// Summary returns the end-of-run view of the ledger.
func (l *Ledger) Summary() model.BudgetSummary {
	return model.BudgetSummary{
		Budget:       l.budget,
		Used:         l.used,
		Remaining:    l.Remaining(),
		BlockedTasks: l.Blocked(),
	}
}
