package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/koyomidev/koyomi/internal/errors"
)

// retryPolicy bounds calendar calls with exponential backoff. Core sync
// logic stays retry-free; only the provider boundary is wrapped.
type retryPolicy struct {
	maxAttempts int
	backoff     time.Duration
}

func (p retryPolicy) do(ctx context.Context, op string, fn func() error) error {
	attempts := p.maxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := p.backoff
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !errors.IsRetryable(err) || attempt == attempts {
			return err
		}

		slog.Warn("Retrying calendar call",
			"op", op, "attempt", attempt, "backoff", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}
