// Package load drives incremental loading: it diffs the dump catalog against
// the ledger and hands every pending file to an executor.
package load

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"wikistat/internal/catalog"
	"wikistat/internal/domain"
	"wikistat/internal/executor"
	"wikistat/internal/ledger"
	"wikistat/internal/metrics"
)

// Coordinator runs incremental loads. Files are processed one at a time; a
// Coordinator must not run concurrently with another one on the same ledger.
type Coordinator struct {
	Open     ledger.Opener
	Executor executor.Executor
	Log      *slog.Logger
	Metrics  *metrics.Recorder // optional

	// Timeout bounds a single executor call. Zero means no bound.
	Timeout time.Duration

	// Now returns the completion time recorded in the ledger. Defaults to
	// time.Now in UTC.
	Now func() time.Time
}

// Plan is the outcome of diffing the catalog against the ledger.
type Plan struct {
	Candidates []domain.FileID
	Pending    []domain.FileID
}

// Plan generates the candidates for r and returns those not yet recorded
// SUCCEEDED, in catalog order. Nothing is loaded or written.
func (c *Coordinator) Plan(ctx context.Context, r catalog.Range) (Plan, error) {
	candidates, err := catalog.Generate(r)
	if err != nil {
		return Plan{}, err
	}

	l, err := c.open(ctx)
	if err != nil {
		return Plan{}, err
	}
	defer l.Close()

	return plan(ctx, l, candidates)
}

func plan(ctx context.Context, l ledger.Ledger, candidates []domain.FileID) (Plan, error) {
	known, err := l.Known(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("reading ledger: %w", err)
	}

	p := Plan{Candidates: candidates}
	for _, id := range candidates {
		if _, ok := known[id]; !ok {
			p.Pending = append(p.Pending, id)
		}
	}
	return p, nil
}

// Run loads every file of r that is not yet recorded SUCCEEDED.
//
// Only an invalid range, an unavailable ledger or a failed ledger write end a
// run with an error. Executor failures are recorded FAILED and the run moves
// on to the next file. When ctx is cancelled no further file is started and
// the summary so far is returned together with ctx.Err().
func (c *Coordinator) Run(ctx context.Context, r catalog.Range) (domain.RunSummary, error) {
	summary := domain.RunSummary{RunID: uuid.NewString()}
	log := c.logger().With("run_id", summary.RunID)

	candidates, err := catalog.Generate(r)
	if err != nil {
		return summary, err
	}
	summary.Candidates = len(candidates)

	l, err := c.open(ctx)
	if err != nil {
		return summary, err
	}
	defer func() {
		if err := l.Close(); err != nil {
			log.Warn("closing ledger", "error", err)
		}
	}()

	p, err := plan(ctx, l, candidates)
	if err != nil {
		return summary, err
	}
	summary.Skipped = len(candidates) - len(p.Pending)
	c.Metrics.Skipped(summary.Skipped)

	if len(p.Pending) == 0 {
		log.Info("nothing to load", "candidates", len(candidates))
		c.Metrics.RunFinished(c.now())
		return summary, nil
	}

	log.Info("starting load",
		"executor", c.Executor.Name(),
		"candidates", len(candidates),
		"pending", len(p.Pending),
		"skipped", summary.Skipped,
	)

	for i, id := range p.Pending {
		if err := ctx.Err(); err != nil {
			log.Warn("run interrupted", "remaining", len(p.Pending)-i)
			return summary, err
		}

		outcome := c.loadOne(ctx, log, summary.RunID, id)
		// The outcome is written even if ctx was cancelled during the call.
		if err := l.Record(context.WithoutCancel(ctx), outcome); err != nil {
			return summary, fmt.Errorf("recording outcome for %s: %w", id, err)
		}

		summary.Attempted++
		switch outcome.Status {
		case domain.StatusSucceeded:
			summary.Succeeded++
			summary.RowsInserted += outcome.RowsInserted
			if outcome.RowsInserted == 0 {
				summary.Empty++
			}
		case domain.StatusFailed:
			summary.Failed++
		}
	}

	c.Metrics.RunFinished(c.now())
	log.Info("load finished",
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"empty", summary.Empty,
		"rows", summary.RowsInserted,
	)
	return summary, nil
}

// loadOne calls the executor for id and turns the result into an outcome.
func (c *Coordinator) loadOne(ctx context.Context, log *slog.Logger, runID string, id domain.FileID) domain.LoadOutcome {
	callCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := c.Executor.Load(callCtx, id)
	elapsed := time.Since(start)

	outcome := domain.LoadOutcome{
		FileID:      id,
		ProcessedAt: c.now(),
		RunID:       runID,
	}
	switch {
	case err != nil:
		outcome.Status = domain.StatusFailed
		outcome.ErrorMessage = reason(err)
		log.Error("load failed", "file", id.Label(), "duration", elapsed, "error", err)
	case rows < 0:
		outcome.Status = domain.StatusFailed
		outcome.ErrorMessage = fmt.Sprintf("executor reported %d rows", rows)
		log.Error("load failed", "file", id.Label(), "duration", elapsed, "error", outcome.ErrorMessage)
	default:
		outcome.Status = domain.StatusSucceeded
		outcome.RowsInserted = rows
		if rows == 0 {
			log.Warn("file loaded with no matching rows", "file", id.Label(), "duration", elapsed)
		} else {
			log.Info("file loaded", "file", id.Label(), "rows", rows, "duration", elapsed)
		}
	}

	c.Metrics.FileLoaded(outcome.Status, outcome.RowsInserted, elapsed)
	return outcome
}

func (c *Coordinator) open(ctx context.Context) (ledger.Ledger, error) {
	if c.Open == nil {
		return nil, fmt.Errorf("%w: no ledger configured", ledger.ErrUnavailable)
	}
	l, err := c.Open(ctx)
	if err != nil {
		if errors.Is(err, ledger.ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}
	return l, nil
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

// reason returns the message stored in the ledger for a failed load.
func reason(err error) string {
	var f *executor.Failure
	if errors.As(err, &f) && f.Reason != nil {
		return f.Reason.Error()
	}
	return err.Error()
}
