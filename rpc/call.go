package rpc

import (
	"context"
	"sync"
)

// Call is the handle for one in-flight request. It completes exactly once,
// with a result, an *Error from the peer, or ErrClosed.
type Call struct {
	ID     uint32
	Method string

	once   sync.Once
	done   chan struct{}
	result any
	err    error
}

func newCall(id uint32, method string) *Call {
	return &Call{ID: id, Method: method, done: make(chan struct{})}
}

// complete is called by whoever removed the call from the pending table, so it
// runs once; the sync.Once only guards against misuse.
func (c *Call) complete(result any, err error) {
	c.once.Do(func() {
		c.result = result
		c.err = err
		close(c.done)
	})
}

// Done is closed when the call has completed.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the call completes or ctx is done. Giving up does not
// cancel anything on the peer; the eventual response is discarded.
func (c *Call) Wait(ctx context.Context) (any, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
