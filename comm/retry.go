package comm

import (
	"context"
	"math/rand"
	"time"
)

// retry calls fn until it succeeds, times retries are used up or ctx ends.
func retry(ctx context.Context, times int, interval time.Duration, fn func() error) error {
	i := 0

	for {
		err := fn()
		if err == nil {
			return nil
		}

		// add 20% jitter
		wait := interval
		if j := int64(interval / 5); j > 0 {
			wait += time.Duration(rand.Int63n(j))
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return err
		}

		i++

		if i > times {
			return err
		}
	}
}
