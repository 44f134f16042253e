/*
PURPOSE:
  Self-contained HTML report of a run.

REQUIREMENTS:
  User-specified:
  - Summary stats, mutations, a token timeline and the blocked tasks.

  Implementation-discovered:
  - Response text is model output; html/template escapes it.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (run, sweep) unless --no-html

ERROR HANDLING:
  - Template and file errors are returned wrapped.

RELATED FILES:
  - internal/output/console.go
*/

package output

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"time"

	"github.com/daryltucker/donkey-runner/internal/model"
)

var htmlFuncs = template.FuncMap{
	"percent": func(n, of int) float64 {
		if of <= 0 {
			return 0
		}
		p := float64(n) / float64(of) * 100
		if p > 100 {
			p = 100
		}
		return p
	},
	"stamp": func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
	"seconds": func(d time.Duration) string {
		return fmt.Sprintf("%.2fs", d.Seconds())
	},
}

var htmlTemplate = template.Must(template.New("trace").Funcs(htmlFuncs).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Donkey Trace - {{stamp .StartedAt}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; margin: 20px; background: #f5f5f5; }
.container { max-width: 1200px; margin: 0 auto; }
.header { background: #333; color: white; padding: 20px; border-radius: 8px; margin-bottom: 20px; }
.section { background: white; padding: 20px; margin-bottom: 20px; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
.task { border-left: 4px solid #007aff; padding-left: 15px; margin: 15px 0; }
.mutated { border-left-color: #ff9500; }
.blocked { border-left-color: #ff3b30; opacity: 0.7; }
.token-bar { background: #e0e0e0; height: 20px; border-radius: 4px; margin: 5px 0; position: relative; }
.token-fill { background: #007aff; height: 100%; border-radius: 4px; }
.token-text { position: absolute; top: 0; left: 5px; line-height: 20px; font-size: 12px; }
.mutation { background: #fff3cd; padding: 10px; margin: 10px 0; border-radius: 4px; }
.stats { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 15px; }
.stat-box { background: #f8f9fa; padding: 15px; border-radius: 4px; text-align: center; }
.stat-value { font-size: 24px; font-weight: bold; color: #333; }
.stat-label { color: #666; font-size: 14px; }
.fatal { background: #ff3b30; color: white; padding: 10px; border-radius: 4px; }
pre { background: #f5f5f5; padding: 10px; border-radius: 4px; overflow-x: auto; white-space: pre-wrap; }
</style>
</head>
<body>
<div class="container">
  <div class="header">
    <h1>Donkey Execution Trace</h1>
    <p>Run {{.RunID}} | Domain {{.Domain}} | Started {{stamp .StartedAt}} | Duration {{seconds .Elapsed}}</p>
  </div>
  {{- if .Fatal}}
  <div class="section"><div class="fatal">Run aborted: {{.Fatal}}</div></div>
  {{- end}}
  <div class="section">
    <h2>Summary Statistics</h2>
    <div class="stats">
      <div class="stat-box"><div class="stat-value">{{len .Trace}}</div><div class="stat-label">Tasks Executed</div></div>
      <div class="stat-box"><div class="stat-value">{{.Summary.Used}}</div><div class="stat-label">Tokens Used</div></div>
      <div class="stat-box"><div class="stat-value">{{.Summary.Budget}}</div><div class="stat-label">Token Budget</div></div>
      <div class="stat-box"><div class="stat-value">{{len .Mutations}}</div><div class="stat-label">Mutations Applied</div></div>
      <div class="stat-box"><div class="stat-value">{{len .Summary.BlockedTasks}}</div><div class="stat-label">Tasks Blocked</div></div>
    </div>
  </div>
  {{- if .Mutations}}
  <div class="section">
    <h2>Mutations Applied</h2>
    {{- range .Mutations}}
    <div class="mutation">
      <strong>Task {{.TaskID}}</strong> - {{.Mutation}}
      <pre>Original: {{.OriginalPrompt}}</pre>
      <pre>Mutated: {{.MutatedPrompt}}</pre>
    </div>
    {{- end}}
  </div>
  {{- end}}
  <div class="section">
    <h2>Task Execution Timeline</h2>
    {{- $budget := .Summary.Budget}}
    {{- range .Trace}}
    <div class="task{{if .Mutated}} mutated{{end}}">
      <h3>Task {{.TaskID}}{{if .Mutated}} (mutated){{end}}</h3>
      <p><strong>Time:</strong> {{stamp .Timestamp}} | <strong>Batch:</strong> {{.Batch}}</p>
      <p><strong>Tokens:</strong> {{.PromptTokens}} (prompt) + {{.ResponseTokens}} (response) = {{.TotalTokens}} total, estimated {{.EstimatedTokens}}</p>
      <div class="token-bar">
        <div class="token-fill" style="width: {{printf "%.1f" (percent .TotalTokens $budget)}}%"></div>
        <span class="token-text">{{.TotalTokens}} / {{$budget}}</span>
      </div>
      <p><strong>Response:</strong></p>
      <pre>{{.ResponseText}}</pre>
    </div>
    {{- end}}
  </div>
  {{- if .Summary.BlockedTasks}}
  <div class="section">
    <h2>Blocked Tasks</h2>
    {{- range .Summary.BlockedTasks}}
    <div class="task blocked">
      <h3>Task {{.TaskID}}</h3>
      <p>Would have needed {{.EstimatedTokens}} tokens</p>
      <p>Budget remaining: {{.BudgetRemaining}} tokens</p>
    </div>
    {{- end}}
  </div>
  {{- end}}
</div>
</body>
</html>
`))

// RenderHTML writes the HTML trace viewer for a report.
func RenderHTML(w io.Writer, r *model.Report) error {
	return htmlTemplate.Execute(w, r)
}

// WriteHTML renders the report to path.
func WriteHTML(path string, r *model.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := RenderHTML(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to render HTML report: %w", err)
	}
	return f.Close()
}
