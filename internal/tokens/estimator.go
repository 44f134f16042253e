/*
PURPOSE:
  Character-based token estimate used for every admission and batching
  decision made before a provider call.

REQUIREMENTS:
  User-specified:
  - Estimate = characters / 4, rounded down. Not a tokenizer.
  - Exact usage comes from the provider after the call.

  Implementation-discovered:
  - "Characters" are runes, the same unit used for response previews.
    Byte length would over-estimate non-ASCII prompts several times over.

ARCHITECTURE INTEGRATION:
  - Used by: internal/budget, internal/batch, internal/provider (local usage)

ERROR HANDLING:
  - None. Pure functions.

USAGE:
  n := tokens.Estimate(prompt)
  cost := tokens.WithAllowance(cfg.ResponseAllowance)

RELATED FILES:
  - internal/budget/ledger.go
  - internal/batch/planner.go
*/

package tokens

import "unicode/utf8"

const charsPerToken = 4

// Estimate approximates the token count of text as runes/4, rounded down.
func Estimate(text string) int {
	return utf8.RuneCountInString(text) / charsPerToken
}

// CostFunc returns the scheduling cost of a prompt.
type CostFunc func(prompt string) int

// WithAllowance returns a CostFunc adding a fixed response allowance to the estimate.
func WithAllowance(allowance int) CostFunc {
	return func(prompt string) int {
		return Estimate(prompt) + allowance
	}
}
