package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Bootstrap defaults shared by the broker publishers.
const (
	DefaultBootstrapRetries = 3
	DefaultBootstrapDelay   = 2 * time.Second
)

// waitForBroker calls connect up to retries times with a fixed delay between
// attempts. It returns ErrBrokerUnreachable wrapped with the last failure once
// the attempts are used up, or ctx.Err() if ctx ends during a wait.
func waitForBroker(ctx context.Context, system, target string, retries int, delay time.Duration, logger *slog.Logger, connect func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if lastErr = connect(ctx); lastErr == nil {
			return nil
		}
		logger.Warn(system+" not available",
			"attempt", fmt.Sprintf("%d/%d", attempt, retries),
			"retry_in", delay,
			"err", lastErr,
		)
		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%w after %d attempts (%s): %v", ErrBrokerUnreachable, retries, target, lastErr)
}
