package indexer

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"go.uber.org/zap"
)

// retryPolicy retries RPC calls with exponential backoff starting at
// baseDelay.
type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

// retryable reports whether another attempt can change the outcome. A
// missing object or a cancelled context will not.
func retryable(err error) bool {
	return !errors.Is(err, ethereum.NotFound) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// call runs fn until it succeeds, fails with a non-retryable error or the
// retries are used up. Each failed attempt is logged under what.
func call[T any](ctx context.Context, p retryPolicy, what string, fn func(context.Context) (T, error), fields ...zap.Field) (T, error) {
	maxRetries := p.maxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := p.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	logger := p.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	for attempt := 0; ; attempt++ {
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		logger.Warn(what+" failed", append(fields, zap.Int("attempt", attempt+1), zap.Error(err))...)
		if attempt >= maxRetries || !retryable(err) {
			return value, err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}
