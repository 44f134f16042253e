/*
PURPOSE:
  Groups tasks into token-bounded batches.

REQUIREMENTS:
  User-specified:
  - Greedy packing in input order; no sorting, no optimal packing.
  - A batch never exceeds max_batch_tokens unless it holds a single oversized task.
  - Concatenating the batches reproduces the input order.

  Implementation-discovered:
  - Cost is supplied as a tokens.CostFunc so the response allowance stays config.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (BATCHING phase)
  - Uses: internal/tokens

ERROR HANDLING:
  - None. Pure functions.

USAGE:
  batches := batch.Plan(tasks, tokens.WithAllowance(100), 2048)

RELATED FILES:
  - internal/tokens/estimator.go
*/

package batch

import (
	"github.com/daryltucker/donkey-runner/internal/model"
	"github.com/daryltucker/donkey-runner/internal/tokens"
)

// Plan packs tasks into batches whose summed cost stays within maxBatchTokens,
// except for singleton batches holding an oversized task.
func Plan(tasks []model.Task, cost tokens.CostFunc, maxBatchTokens int) []model.Batch {
	var batches []model.Batch
	var current model.Batch

	for _, task := range tasks {
		c := cost(task.Prompt)
		if len(current.Tasks) > 0 && current.Cost+c > maxBatchTokens {
			batches = append(batches, current)
			current = model.Batch{Index: len(batches)}
		}
		current.Tasks = append(current.Tasks, task)
		current.Cost += c
	}
	if len(current.Tasks) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// Singletons places each task in its own batch, used when the optimizer is off.
func Singletons(tasks []model.Task, cost tokens.CostFunc) []model.Batch {
	batches := make([]model.Batch, len(tasks))
	for i, task := range tasks {
		batches[i] = model.Batch{Index: i, Tasks: []model.Task{task}, Cost: cost(task.Prompt)}
	}
	return batches
}

// Flatten concatenates batches back into a task list.
func Flatten(batches []model.Batch) []model.Task {
	var out []model.Task
	for _, b := range batches {
		out = append(out, b.Tasks...)
	}
	return out
}
