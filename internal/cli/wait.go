// internal/cli/wait.go
package sweepwatch

import (
	"context"
	"time"

	"github.com/avast/retry-go"

	"github.com/mwiater/sweepwatch/internal/logging"
)

// retryWhileRunning calls fn until it stops failing with the service's 202
// "still running" answer. Any other error ends the loop immediately.
func retryWhileRunning(ctx context.Context, interval time.Duration, attempts uint, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isStillRunning),
		retry.OnRetry(func(n uint, err error) {
			logging.Debugf("still running, retry %d: %v", n+1, err)
		}),
	)
}
