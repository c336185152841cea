// Package pipeline drives the configured provider adapters concurrently and
// merges their snapshots into one day's output.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"mtgprices/internal/catalog"
	"mtgprices/internal/prices"
	"mtgprices/internal/providers"
)

const defaultMaxConcurrent = 32

// Options tune orchestration behaviour.
type Options struct {
	// MaxConcurrent bounds in-flight provider tasks.
	MaxConcurrent int
	// ProviderTimeout caps each provider's whole run; expiry counts as that
	// provider being unavailable.
	ProviderTimeout time.Duration
}

// Outcome records one provider's result, success or failure. Snapshot stays
// populated on success so callers can persist per-provider contributions.
type Outcome struct {
	Provider providers.Kind
	Snapshot prices.Snapshot
	Records  int
	Duration time.Duration
	Err      error
}

// Result is one completed run. A run always completes; providers that failed
// are simply absent from the merged snapshots.
type Result struct {
	RunID    string
	Date     string
	Duration time.Duration
	// TodayPrices is the most-recent-only merged view.
	TodayPrices prices.Snapshot
	// ArchivePrices is an independent copy handed to archive integration.
	ArchivePrices prices.Snapshot
	Outcomes      []Outcome
}

// Failed lists the outcomes that carried an error.
func (r Result) Failed() []Outcome {
	var failed []Outcome
	for _, outcome := range r.Outcomes {
		if outcome.Err != nil {
			failed = append(failed, outcome)
		}
	}
	return failed
}

// Orchestrator fans out over the adapters in configured precedence order.
type Orchestrator struct {
	adapters []providers.Adapter
	opts     Options
	logger   zerolog.Logger
}

// New constructs an orchestrator. The adapter order is the merge precedence:
// on a cross-provider UUID collision the later adapter wins.
func New(adapters []providers.Adapter, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	return &Orchestrator{
		adapters: adapters,
		opts:     opts,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Run executes every adapter against the catalog and merges the results.
// The catalog is shared read-only across the provider tasks.
func (o *Orchestrator) Run(ctx context.Context, cat *catalog.Catalog, date string) Result {
	start := time.Now()
	runID := uuid.NewString()
	logger := o.logger.With().Str("run_id", runID).Str("date", date).Logger()
	logger.Info().Int("providers", len(o.adapters)).Msg("starting aggregation run")

	type task struct {
		outcome  Outcome
		snapshot prices.Snapshot
	}
	results := make([]task, len(o.adapters))

	var mu sync.Mutex
	workers := pool.New().WithMaxGoroutines(o.opts.MaxConcurrent)
	for i, adapter := range o.adapters {
		i, adapter := i, adapter
		workers.Go(func() {
			taskStart := time.Now()
			taskCtx := ctx
			if o.opts.ProviderTimeout > 0 {
				var cancel context.CancelFunc
				taskCtx, cancel = context.WithTimeout(ctx, o.opts.ProviderTimeout)
				defer cancel()
			}

			snapshot, err := adapter.Prices(taskCtx, cat, date)
			if err != nil {
				logger.Error().Err(err).Str("provider", string(adapter.Kind())).
					Msg("provider failed; dropping its contribution")
				snapshot = nil
			}
			outcome := Outcome{
				Provider: adapter.Kind(),
				Snapshot: snapshot,
				Records:  len(snapshot),
				Duration: time.Since(taskStart),
				Err:      err,
			}

			mu.Lock()
			results[i] = task{outcome: outcome, snapshot: snapshot}
			mu.Unlock()
		})
	}
	workers.Wait()

	// Merge in configured order, never completion order.
	today := make(prices.Snapshot)
	outcomes := make([]Outcome, 0, len(results))
	for _, res := range results {
		outcomes = append(outcomes, res.outcome)
		if res.snapshot == nil {
			continue
		}
		if collisions := today.Merge(res.snapshot); len(collisions) > 0 {
			logger.Warn().Str("provider", string(res.outcome.Provider)).
				Int("collisions", len(collisions)).
				Msg("cross-provider uuid collision; later provider wins")
		}
	}

	archive := make(prices.Snapshot, len(today))
	for id, record := range today {
		archive[id] = record.Clone()
	}

	result := Result{
		RunID:         runID,
		Date:          date,
		Duration:      time.Since(start),
		TodayPrices:   today,
		ArchivePrices: archive,
		Outcomes:      outcomes,
	}
	logger.Info().Int("records", len(today)).Int("failed_providers", len(result.Failed())).
		Dur("duration", result.Duration).Msg("aggregation run done")
	return result
}
