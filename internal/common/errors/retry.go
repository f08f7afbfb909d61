package errors

import (
	"context"
	"time"
)

// RetryBackoff is the pause before the single retry of an idempotent read.
var RetryBackoff = 100 * time.Millisecond

// RetryOnce runs op and, if it fails with a retryable error, runs it exactly
// once more. Use it only for idempotent reads; side-effecting calls must be
// issued once.
func RetryOnce(ctx context.Context, op func(ctx context.Context) error) error {
	err := op(ctx)
	if err == nil {
		return nil
	}

	stdErr, ok := AsStandard(err)
	if !ok || !stdErr.Retryable || !IsRetryableErrorCode(stdErr.Code) {
		return err
	}

	select {
	case <-time.After(RetryBackoff):
	case <-ctx.Done():
		return err
	}

	return op(ctx)
}
