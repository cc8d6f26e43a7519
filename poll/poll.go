// Package poll implements the fixed-interval, fixed-timeout waits the router
// uses to watch external tools converge. There is no backoff: every wait is
// a bounded number of evenly spaced checks.
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/yllada/travel-router/common"
)

// Options configures a bounded wait.
type Options struct {
	// What names the wait in timeout errors.
	What     string
	Interval time.Duration
	Timeout  time.Duration
	// OnTick is called once before every check.
	OnTick func(attempt uint)
}

// Check reports whether the awaited condition holds. A non-nil error stops
// the wait immediately.
type Check func(ctx context.Context) (bool, error)

var errNotYet = errors.New("condition not met")

// Attempts returns how many checks fit in the budget, at least one.
func (o Options) Attempts() uint {
	if o.Interval <= 0 || o.Timeout <= 0 {
		return 1
	}
	n := uint(o.Timeout / o.Interval)
	if n == 0 {
		n = 1
	}
	return n
}

// Until runs check every Interval until it holds, fails, or Timeout elapses.
// Timeout is a wall-clock deadline: the context handed to check expires with
// it, so a slow check cannot stretch the wait. It returns the number of
// checks made. On budget exhaustion the error is a *common.TimeoutError.
func Until(ctx context.Context, opts Options, check Check) (uint, error) {
	var (
		attempts uint
		fatal    error
	)

	budgetCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		budgetCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	err := retry.Do(
		func() error {
			attempts++
			if opts.OnTick != nil {
				opts.OnTick(attempts)
			}
			done, err := check(budgetCtx)
			if err != nil {
				fatal = err
				return retry.Unrecoverable(err)
			}
			if !done {
				return errNotYet
			}
			return nil
		},
		retry.Context(budgetCtx),
		retry.Attempts(opts.Attempts()),
		retry.Delay(opts.Interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)

	switch {
	case err == nil:
		return attempts, nil
	case ctx.Err() != nil:
		return attempts, ctx.Err()
	case fatal != nil && !(budgetCtx.Err() != nil && errors.Is(fatal, context.DeadlineExceeded)):
		return attempts, fatal
	default:
		return attempts, &common.TimeoutError{What: opts.What, Budget: opts.Timeout, Attempts: attempts}
	}
}
