/*
PURPOSE:
  Completion providers that turn a prompt into response text plus token usage.
  Two variants: Remote (OpenAI chat completions) and Local (deterministic stand-in).

REQUIREMENTS:
  User-specified:
  - Absence of an API key silently selects the Local variant.
  - Remote failures degrade to Local with a warning; they never abort a run.

  Implementation-discovered:
  - No cumulative counter lives here; every call returns its own usage and the
    orchestrator accumulates the tally.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine
  - Uses: internal/tokens, internal/model, internal/output

ERROR HANDLING:
  - Complete never returns an error. Remote errors are logged and recorded on
    the returned Completion (Fallback/Warning).

USAGE:
  p := provider.New(provider.Options{APIKey: key, Model: "gpt-3.5-turbo"})
  c := p.Complete(ctx, "prove X", 100)

RELATED FILES:
  - internal/provider/local.go
  - internal/provider/remote.go
*/

package provider

import (
	"context"

	"github.com/daryltucker/donkey-runner/internal/model"
	"github.com/daryltucker/donkey-runner/internal/output"
)

// Provider completes prompts.
type Provider interface {
	// Name identifies the variant for logs and reports.
	Name() string
	// Complete returns the response and its token usage. It does not fail;
	// transport problems are absorbed into a Local completion.
	Complete(ctx context.Context, prompt string, maxTokens int) model.Completion
}

// Options selects and configures a provider.
type Options struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
}

// New returns a Remote provider when an API key is present, otherwise Local.
func New(opts Options) Provider {
	if opts.APIKey == "" {
		output.Logger.Info("No API key found, using local provider")
		return NewLocal()
	}
	output.Logger.Info("API key found, using remote provider", "model", opts.Model)
	return NewRemote(opts)
}
