// Package middleware wraps session calls with cross-cutting behaviour such as
// logging, deadlines, rate limiting and retries.
package middleware

import "context"

// CallFunc issues one call and waits for its result.
type CallFunc func(ctx context.Context, method string, params []any) (any, error)

type Middleware func(next CallFunc) CallFunc

// Chain 将多个中间件组合成一个中间件，第一个在最外层
func Chain(middlewares ...Middleware) Middleware {
	return func(next CallFunc) CallFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
