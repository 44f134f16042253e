/*
PURPOSE:
  Deterministic local completion provider that needs no network.

REQUIREMENTS:
  User-specified:
  - Keyword-matched canned responses; a generic response otherwise.
  - Usage is estimated with the same heuristic as admission.

ARCHITECTURE INTEGRATION:
  - Used by: provider.New (no API key), provider.Remote (fallback)

ERROR HANDLING:
  - Never fails.

RELATED FILES:
  - internal/provider/remote.go
*/

package provider

import (
	"context"
	"strings"

	"github.com/daryltucker/donkey-runner/internal/model"
	"github.com/daryltucker/donkey-runner/internal/tokens"
)

const (
	evenSumProof = "Let n and m be even integers. Then n = 2k and m = 2j for some integers k, j. " +
		"Therefore n + m = 2k + 2j = 2(k + j), which is even. QED."
	franceCapital   = "The capital of France is Paris."
	genericResponse = "This is a simulated response demonstrating token usage and batching."
)

// cannedResponse is matched when every keyword appears in the lowercased prompt.
type cannedResponse struct {
	keywords []string
	text     string
}

var cannedResponses = []cannedResponse{
	{keywords: []string{"prove", "even"}, text: evenSumProof},
	{keywords: []string{"capital", "france"}, text: franceCapital},
}

// Local is a deterministic stand-in that needs no network.
type Local struct{}

// NewLocal creates a Local provider.
func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Name() string { return "local" }

// Complete picks a canned response by keyword and estimates both sides of the usage.
// maxTokens is ignored; canned responses are short.
func (l *Local) Complete(_ context.Context, prompt string, _ int) model.Completion {
	text := Respond(prompt)
	promptTokens := tokens.Estimate(prompt)
	responseTokens := tokens.Estimate(text)
	return model.Completion{
		Text:           text,
		PromptTokens:   promptTokens,
		ResponseTokens: responseTokens,
		TotalTokens:    promptTokens + responseTokens,
	}
}

// Respond returns the canned response text for a prompt.
func Respond(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, c := range cannedResponses {
		if containsAll(lower, c.keywords) {
			return c.text
		}
	}
	return genericResponse
}

func containsAll(s string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(s, w) {
			return false
		}
	}
	return true
}
