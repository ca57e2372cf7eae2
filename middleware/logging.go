package middleware

import (
	"context"
	"time"

	"github.com/go-logr/logr"
)

// Logging logs every call with its duration at V(1), and failures as errors.
func Logging(log logr.Logger) Middleware {
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, method string, params []any) (any, error) {
			start := time.Now()
			result, err := next(ctx, method, params)
			duration := time.Since(start)
			if err != nil {
				log.Error(err, "call failed", "method", method, "duration", duration)
			} else {
				log.V(1).Info("call finished", "method", method, "duration", duration)
			}
			return result, err
		}
	}
}
