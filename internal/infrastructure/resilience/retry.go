package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GriffinCanCode/imf/internal/shared/clock"
)

// ErrNotReady is returned by a polled condition that should be retried
var ErrNotReady = errors.New("not ready")

// RetryPolicy describes a bounded retry loop
type RetryPolicy struct {
	// Attempts is the total number of calls, including the first.
	Attempts int
	// Interval is the pause between attempts.
	Interval time.Duration
	// Clock supplies Sleep; tests inject a fake.
	Clock clock.Clock
}

// Retry calls fn until it succeeds, the attempts are exhausted or ctx is
// done. The last error is returned wrapped with the attempt count.
func Retry(ctx context.Context, p RetryPolicy, fn func() error) error {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Clock == nil {
		p.Clock = clock.Real{}
	}

	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err == nil {
				err = ctxErr
			}
			return fmt.Errorf("retry cancelled after %d attempts: %w", attempt-1, err)
		}
		if err = fn(); err == nil {
			return nil
		}
		if attempt < p.Attempts {
			p.Clock.Sleep(p.Interval)
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", p.Attempts, err)
}

// Poll retries until cond reports true
func Poll(ctx context.Context, p RetryPolicy, cond func() bool) error {
	return Retry(ctx, p, func() error {
		if cond() {
			return nil
		}
		return ErrNotReady
	})
}
