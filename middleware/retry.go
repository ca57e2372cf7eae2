package middleware

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/juju/errors"
)

// Retry retries calls that were rejected before reaching the editor, with
// exponential backoff starting at baseDelay. Calls that may have been sent are
// never repeated: editor calls are not idempotent in general.
func Retry(maxRetries int, baseDelay time.Duration) Middleware {
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, method string, params []any) (any, error) {
			op := func() (any, error) {
				v, err := next(ctx, method, params)
				if err != nil && !retryable(err) {
					return nil, backoff.Permanent(err)
				}
				return v, err
			}

			b := backoff.NewExponentialBackOff()
			b.InitialInterval = baseDelay
			b.MaxElapsedTime = 0
			policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)
			return backoff.RetryWithData(op, policy)
		}
	}
}

func retryable(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
