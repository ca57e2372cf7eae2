package middleware

import (
	"context"

	"github.com/juju/errors"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned without sending anything when the limiter has no
// token left.
const ErrRateLimited = errors.ConstError("rate limit exceeded")

// RateLimit 基于令牌桶算法限流：每秒 r 个请求，突发 burst 个
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, method string, params []any) (any, error) {
			if !limiter.Allow() {
				return nil, errors.Annotate(ErrRateLimited, method)
			}
			return next(ctx, method, params)
		}
	}
}
