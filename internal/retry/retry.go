// Package retry re-runs model completions that failed to produce parseable
// output. Only parse-class failures are retried; upstream and state errors
// surface immediately.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/planward/planward/internal/plan"
)

const (
	// DefaultBudget is the number of extra attempts after the first failure.
	DefaultBudget = 2
	// DefaultBackoff is the base delay, multiplied by the attempt number.
	DefaultBackoff = time.Second
)

// Retrier runs a function with a fixed retry budget and linear backoff.
type Retrier struct {
	Budget  int
	Backoff time.Duration

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New() *Retrier {
	return &Retrier{Budget: DefaultBudget, Backoff: DefaultBackoff, sleep: sleepCtx}
}

// Do runs fn, retrying parse-class failures up to Budget additional times.
// Attempt n waits Backoff*n before running. Exhausting the budget yields
// plan.RetryExhaustedError wrapping the last failure.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	sleep := r.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var last error
	for attempt := 0; attempt <= r.Budget; attempt++ {
		if attempt > 0 {
			slog.Warn("retrying after parse failure", "op", op, "attempt", attempt, "err", last)
			if err := sleep(ctx, r.Backoff*time.Duration(attempt)); err != nil {
				return err
			}
		}
		last = fn(ctx)
		if last == nil {
			return nil
		}
		if !plan.IsParseClass(last) {
			return last
		}
	}
	return &plan.RetryExhaustedError{Attempts: r.Budget + 1, Last: last}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
