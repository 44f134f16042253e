/*
PURPOSE:
  Terminal rendering of a run report.

REQUIREMENTS:
  User-specified:
  - Show mutations, per-task tokens, the budget summary, blocked tasks and elapsed time.

  Implementation-discovered:
  - Sweeps need a one-line digest per domain.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (run, sweep)
  - Dependencies: github.com/charmbracelet/lipgloss

ERROR HANDLING:
  - None. Rendering only.

RELATED FILES:
  - internal/output/html.go
*/

package output

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/daryltucker/donkey-runner/internal/model"
)

var (
	colorAccent  = lipgloss.Color("#007AFF")
	colorMutated = lipgloss.Color("#FF9500")
	colorBlocked = lipgloss.Color("#FF3B30")
	colorMuted   = lipgloss.Color("#666666")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	headingStyle = lipgloss.NewStyle().Bold(true)
	mutatedStyle = lipgloss.NewStyle().Foreground(colorMutated)
	blockedStyle = lipgloss.NewStyle().Foreground(colorBlocked)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	boxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 1)
)

// RenderConsole renders the execution trace and budget summary for a terminal.
func RenderConsole(r *model.Report) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("EXECUTION TRACE"))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  run %s · domain %s", r.RunID, r.Domain)))
	b.WriteString("\n")

	if len(r.Mutations) > 0 {
		b.WriteString("\n" + headingStyle.Render("Mutations Applied") + "\n")
		for _, m := range r.Mutations {
			fmt.Fprintf(&b, "  - Task %s: %s\n", m.TaskID, mutatedStyle.Render(m.Mutation))
		}
	}

	b.WriteString("\n" + headingStyle.Render("Task Execution") + "\n")
	if len(r.Trace) == 0 {
		b.WriteString(mutedStyle.Render("  no tasks executed") + "\n")
	}
	for _, e := range r.Trace {
		label := "original"
		if e.Mutated {
			label = mutatedStyle.Render("mutated")
		}
		fmt.Fprintf(&b, "\n[%s] Task %s (%s)\n", e.Timestamp.Format("2006-01-02T15:04:05"), e.TaskID, label)
		fmt.Fprintf(&b, "  Tokens: %d + %d = %d", e.PromptTokens, e.ResponseTokens, e.TotalTokens)
		if e.Fallback {
			b.WriteString(mutedStyle.Render("  (local fallback)"))
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "  Response: %s\n", e.ResponseText)
	}

	s := r.Summary
	summary := fmt.Sprintf("Allocated: %d tokens\nUsed:      %d tokens\nRemaining: %d tokens\nBatches:   %d\nProvider:  %d tokens",
		s.Budget, s.Used, s.Remaining, r.BatchCount, r.ProviderTokens)
	b.WriteString("\n" + headingStyle.Render("Budget Summary") + "\n")
	b.WriteString(boxStyle.Render(summary) + "\n")

	if len(s.BlockedTasks) > 0 {
		b.WriteString("\n" + blockedStyle.Render(fmt.Sprintf("Blocked Tasks (%d)", len(s.BlockedTasks))) + "\n")
		for _, bt := range s.BlockedTasks {
			fmt.Fprintf(&b, "  - %s: needed %d tokens, %d remaining\n", bt.TaskID, bt.EstimatedTokens, bt.BudgetRemaining)
		}
	}

	if len(r.LoadSkipped) > 0 {
		b.WriteString("\n" + mutedStyle.Render(fmt.Sprintf("Skipped %d task file(s) during loading", len(r.LoadSkipped))) + "\n")
	}

	if r.Fatal != "" {
		b.WriteString("\n" + blockedStyle.Bold(true).Render("ABORTED: "+r.Fatal) + "\n")
	}

	fmt.Fprintf(&b, "\nExecution time: %.2fs\n", r.Elapsed.Seconds())
	return b.String()
}

// SummaryLine is a one-line digest used by sweeps.
func SummaryLine(r *model.Report) string {
	// Pad before styling; escape codes would count toward the width.
	status := fmt.Sprintf("%-8s", "ok")
	if r.Fatal != "" {
		status = blockedStyle.Render(fmt.Sprintf("%-8s", "aborted"))
	}
	return fmt.Sprintf("%-10s %s executed=%d blocked=%d mutations=%d used=%d/%d",
		r.Domain, status, len(r.Trace), len(r.Summary.BlockedTasks), len(r.Mutations), r.Summary.Used, r.Summary.Budget)
}
