/*
PURPOSE:
  Runs several domains as independent runs, in parallel.

REQUIREMENTS:
  User-specified:
  - Each domain gets its own budget ledger, mutation log, provider tally and trace.

  Implementation-discovered:
  - The provider and the metrics collector are safe to share; a mutation
    engine is not. A shared engine is rejected before anything runs.
  - One failed domain does not cancel the others.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (sweep)
  - Uses: engine.Runner, golang.org/x/sync/errgroup

ERROR HANDLING:
  - Per-domain failures are joined with errors.Join.
  - ErrSharedMutations when opts hand one mutation.Engine to several runs.

USAGE:
  reports, err := engine.Sweep(ctx, cfg, p, []string{"math", "rag"}, 2,
      engine.WithMutationFactory(mutation.NewDefault))

RELATED FILES:
  - internal/engine/runner.go
*/

package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/daryltucker/donkey-runner/internal/config"
	"github.com/daryltucker/donkey-runner/internal/model"
	"github.com/daryltucker/donkey-runner/internal/mutation"
	"github.com/daryltucker/donkey-runner/internal/provider"
)

// ErrSharedMutations is returned when Sweep options give several runs the same
// mutation engine. Pass WithMutationFactory instead of WithMutations.
var ErrSharedMutations = errors.New("mutation engine shared between sweep runs")

// Sweep runs each domain as an independent run, up to parallel at a time
// (parallel <= 0 means no limit).
//
// Reports are returned in domain order. A run that fails still contributes its
// report when it produced one; the returned error joins every failure.
func Sweep(ctx context.Context, cfg *config.Config, p provider.Provider, domains []string, parallel int, opts ...Option) ([]*model.Report, error) {
	runners := make([]*Runner, len(domains))
	owners := make(map[*mutation.Engine]string, len(domains))
	for i, domain := range domains {
		runOpts := append(append([]Option(nil), opts...), WithDomain(domain))
		r := New(cfg, p, runOpts...)
		if other, dup := owners[r.mutations]; dup {
			return nil, fmt.Errorf("%w: %s and %s", ErrSharedMutations, other, domain)
		}
		owners[r.mutations] = domain
		runners[i] = r
	}

	reports := make([]*model.Report, len(domains))
	errs := make([]error, len(domains))

	var g errgroup.Group
	if parallel > 0 {
		g.SetLimit(parallel)
	}

	for i, r := range runners {
		g.Go(func() error {
			report, err := r.Run(ctx)
			reports[i] = report
			if err != nil {
				errs[i] = fmt.Errorf("domain %s: %w", r.Domain(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return reports, errors.Join(errs...)
}
