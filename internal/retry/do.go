package retry

import (
	"context"
	"time"
)

// Do calls fn until it reports done, the strategy is exhausted or ctx is done.
// The error of the last attempt is returned.
func Do(ctx context.Context, strategy Strategy, fn func(ctx context.Context, attempt uint) (bool, error)) error {
	if strategy == nil {
		strategy = NewNever()
	}

	for attempt := uint(0); ; attempt++ {
		done, err := fn(ctx, attempt)
		if done {
			return err
		}

		sleep, exceeded := strategy.Sleep(attempt)
		if exceeded {
			return err
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
