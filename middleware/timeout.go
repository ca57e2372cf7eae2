package middleware

import (
	"context"
	"time"

	"github.com/juju/errors"
)

// ErrTimeout is returned when a call outlives the Timeout middleware's limit.
const ErrTimeout = errors.ConstError("request timed out")

type result struct {
	value any
	err   error
}

// Timeout bounds each call. The call's own context is cancelled as well, so a
// caller waiting on the session gives up at the same moment.
func Timeout(timeout time.Duration) Middleware {
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, method string, params []any) (any, error) {
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan result, 1)
			go func() {
				v, err := next(callCtx, method, params)
				done <- result{value: v, err: err}
			}()

			select {
			case r := <-done:
				return r.value, r.err
			case <-callCtx.Done():
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, errors.Annotatef(ErrTimeout, "%s after %s", method, timeout)
			}
		}
	}
}
